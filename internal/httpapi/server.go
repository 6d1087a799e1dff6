// Package httpapi exposes the device-pairing endpoints, the site management
// surface, and the health check over plain net/http.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/connections"
	"github.com/nextlevelbuilder/wpbridge/internal/idempotency"
	"github.com/nextlevelbuilder/wpbridge/internal/limiter"
	"github.com/nextlevelbuilder/wpbridge/internal/pairing"
	"github.com/nextlevelbuilder/wpbridge/internal/store"
)

// HeaderAccount carries the authenticated account ID, injected by the
// fronting session layer. Session issuance itself lives outside this service;
// only its output is consumed here.
const HeaderAccount = "X-WPBridge-User-Id"

// AccountFunc extracts the caller's account ID from a request, empty when
// unauthenticated.
type AccountFunc func(r *http.Request) string

func headerAccount(r *http.Request) string {
	return r.Header.Get(HeaderAccount)
}

// HealthCheck reports the readiness of one backing dependency.
type HealthCheck func(ctx context.Context) error

// Server wires the coordinator and stores into an HTTP handler.
type Server struct {
	pairing *pairing.Coordinator
	sites   *connections.Service
	limiter *limiter.RateLimiter
	idem    *idempotency.Cache

	account        AccountFunc
	allowedOrigins map[string]bool
	checks         map[string]HealthCheck
}

// Option configures a Server.
type Option func(*Server)

// WithAccountFunc overrides how the account ID is resolved from a request.
func WithAccountFunc(fn AccountFunc) Option {
	return func(s *Server) { s.account = fn }
}

// WithAllowedOrigins sets the Origin allow-list for the device endpoints.
// A request with no Origin header always passes; a present Origin must match.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = make(map[string]bool, len(origins))
		for _, o := range origins {
			s.allowedOrigins[o] = true
		}
	}
}

// WithHealthCheck registers a named dependency probe for /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

func NewServer(coord *pairing.Coordinator, sites *connections.Service, rl *limiter.RateLimiter, idem *idempotency.Cache, opts ...Option) *Server {
	s := &Server{
		pairing: coord,
		sites:   sites,
		limiter: rl,
		idem:    idem,
		account: headerAccount,
		checks:  map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /device/start", s.deviceMiddleware("device_start", 10, http.HandlerFunc(s.handleDeviceStart)))
	mux.Handle("POST /device/activate", s.deviceMiddleware("device_activate", 30,
		idempotency.Middleware(s.idem, "device_activate")(http.HandlerFunc(s.handleDeviceActivate))))
	mux.Handle("POST /device/poll", s.deviceMiddleware("device_poll", 120, http.HandlerFunc(s.handleDevicePoll)))

	mux.HandleFunc("GET /api/sites", s.handleSitesList)
	mux.HandleFunc("POST /api/sites/select", s.handleSiteSelect)
	mux.HandleFunc("POST /api/sites/write-mode", s.handleSiteWriteMode)
	mux.HandleFunc("DELETE /api/sites", s.handleSiteDisconnect)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.withAccount(mux)
}

// withAccount resolves the caller's account once and carries it in the
// request context for every handler downstream.
func (s *Server) withAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := s.account(r); id != "" {
			r = r.WithContext(store.WithAccountID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// deviceMiddleware applies the origin allow-list and a per-IP fixed-window
// budget to one device endpoint.
func (s *Server) deviceMiddleware(purpose string, perMinute int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.originAllowed(r) {
			writeError(w, http.StatusForbidden, errOriginDenied)
			return
		}

		key := purpose + ":" + clientIP(r)
		d, err := s.limiter.Allow(r.Context(), key, time.Minute, perMinute)
		if err != nil {
			// A broken counter store must not take the pairing flow down.
			slog.Warn("rate limit check failed, allowing", "purpose", purpose, "error", err)
		} else if !d.Allowed {
			w.Header().Set("Retry-After", retryAfter(d))
			writeError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins == nil {
		return true
	}
	return s.allowedOrigins[origin]
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
