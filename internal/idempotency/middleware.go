package idempotency

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
)

// HeaderKey is the caller-supplied idempotency token header.
const HeaderKey = "Idempotency-Key"

// HeaderReplay marks a response served from the cache.
const HeaderReplay = "X-Idempotent-Replay"

// Middleware replays cached responses for requests carrying an
// Idempotency-Key. Requests without the header pass through untouched.
func Middleware(cache *Cache, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerKey := r.Header.Get(HeaderKey)
			if callerKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, `{"code":"INVALID_REQUEST","message":"unreadable body"}`, http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := MakeKey(route, callerKey, body)

			if rec, err := cache.Get(r.Context(), key); err == nil && rec != nil {
				replay(w, rec)
				return
			}

			rw := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			rec := Record{
				Status:      rw.status,
				ContentType: rw.Header().Get("Content-Type"),
				Body:        rw.buf.Bytes(),
			}
			stored, err := cache.Set(r.Context(), key, rec)
			if err != nil {
				slog.Warn("idempotency: failed to store response", "route", route, "error", err)
			} else if !stored {
				// Lost the race to a concurrent request with the same key;
				// the first writer's record stands. This request already
				// streamed its own (semantically identical) response.
				slog.Info("idempotency: concurrent writer won", "route", route)
			}
		})
	}
}

func replay(w http.ResponseWriter, rec *Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplay, "true")
	w.WriteHeader(rec.Status)
	w.Write(rec.Body)
}

// recorder tees the response so it can be cached after the handler runs.
type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
