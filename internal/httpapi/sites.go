package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/store"
)

// activeSiteCookie records the account's selected site. The selection is a
// caller-side concern; the cookie just round-trips the choice.
const activeSiteCookie = "wpbridge_site"

type siteView struct {
	SiteURL    string     `json:"siteUrl"`
	WriteMode  bool       `json:"writeMode"`
	Active     bool       `json:"active"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

type siteRequest struct {
	SiteURL string `json:"siteUrl"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (s *Server) handleSitesList(w http.ResponseWriter, r *http.Request) {
	account := store.AccountIDFromContext(r.Context())
	if account == "" {
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	sites, err := s.sites.List(r.Context(), account)
	if err != nil {
		slog.Error("list sites failed", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	active := ""
	if c, err := r.Cookie(activeSiteCookie); err == nil {
		active = c.Value
	}

	views := make([]siteView, 0, len(sites))
	for _, site := range sites {
		views = append(views, siteView{
			SiteURL:    site.SiteURL,
			WriteMode:  site.WriteMode,
			Active:     site.SiteURL == active,
			UpdatedAt:  site.UpdatedAt,
			LastUsedAt: site.LastUsedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sites": views})
}

func (s *Server) handleSiteSelect(w http.ResponseWriter, r *http.Request) {
	account, req, ok := s.siteRequest(w, r)
	if !ok {
		return
	}

	// Selecting a site the account does not hold would leak existence via
	// the cookie; verify first.
	if _, err := s.sites.Get(r.Context(), account, req.SiteURL); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, errNotFound)
			return
		}
		slog.Error("site lookup failed", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     activeSiteCookie,
		Value:    req.SiteURL,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSiteWriteMode(w http.ResponseWriter, r *http.Request) {
	account, req, ok := s.siteRequest(w, r)
	if !ok {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}

	err := s.sites.SetWriteMode(r.Context(), account, req.SiteURL, *req.Enabled)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err != nil {
		slog.Error("set write mode failed", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	slog.Info("write mode changed", "account", account, "site", req.SiteURL, "enabled", *req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSiteDisconnect(w http.ResponseWriter, r *http.Request) {
	account, req, ok := s.siteRequest(w, r)
	if !ok {
		return
	}

	err := s.sites.Disconnect(r.Context(), account, req.SiteURL)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err != nil {
		slog.Error("disconnect failed", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	slog.Info("site disconnected", "account", account, "site", req.SiteURL)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// siteRequest handles the shared auth + body decoding of the site endpoints.
func (s *Server) siteRequest(w http.ResponseWriter, r *http.Request) (string, siteRequest, bool) {
	account := store.AccountIDFromContext(r.Context())
	if account == "" {
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return "", siteRequest{}, false
	}
	var req siteRequest
	if err := decodeBody(r, &req); err != nil || req.SiteURL == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return "", siteRequest{}, false
	}
	return account, req, true
}
