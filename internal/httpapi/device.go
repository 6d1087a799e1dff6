package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/pairing"
	"github.com/nextlevelbuilder/wpbridge/internal/store"
	"github.com/nextlevelbuilder/wpbridge/pkg/protocol"
)

func (s *Server) handleDeviceStart(w http.ResponseWriter, r *http.Request) {
	var req protocol.DeviceStartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}

	res, err := s.pairing.Start(r.Context(), time.Duration(req.TTL)*time.Second)
	if err != nil {
		slog.Error("device start failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	writeJSON(w, http.StatusOK, protocol.DeviceStartResponse{
		DeviceCode: res.DeviceCode,
		UserCode:   res.UserCode,
		ExpiresIn:  res.ExpiresIn,
		Interval:   res.Interval,
	})
}

func (s *Server) handleDeviceActivate(w http.ResponseWriter, r *http.Request) {
	var req protocol.DeviceActivateRequest
	if err := decodeBody(r, &req); err != nil || req.UserCode == "" || req.Site == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}

	err := s.pairing.Activate(r.Context(), req.UserCode, req.Site, req.Token, req.Write, req.PluginVersion)
	switch {
	case errors.Is(err, pairing.ErrNotFound):
		writeError(w, http.StatusNotFound, errNotFound)
	case errors.Is(err, pairing.ErrExpired):
		writeError(w, http.StatusGone, errExpired)
	case errors.Is(err, pairing.ErrAlreadyApproved):
		writeError(w, http.StatusConflict, errAlreadyUsed)
	case err != nil:
		slog.Error("device activate failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
	default:
		writeJSON(w, http.StatusOK, protocol.DeviceActivateResponse{OK: true})
	}
}

func (s *Server) handleDevicePoll(w http.ResponseWriter, r *http.Request) {
	var req protocol.DevicePollRequest
	if err := decodeBody(r, &req); err != nil || req.DeviceCode == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest)
		return
	}

	res, err := s.pairing.Poll(r.Context(), req.DeviceCode, store.AccountIDFromContext(r.Context()))
	switch {
	case errors.Is(err, pairing.ErrNotFound):
		writeError(w, http.StatusNotFound, errNotFound)
	case errors.Is(err, pairing.ErrPlanLimit):
		writeError(w, http.StatusPaymentRequired, errPlanLimit)
	case err != nil:
		slog.Error("device poll failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
	default:
		writeJSON(w, http.StatusOK, protocol.DevicePollResponse{
			Status:    res.Status,
			SiteURL:   res.SiteURL,
			WriteMode: res.WriteMode,
		})
	}
}

// decodeBody tolerates an empty body; optional-field requests may omit it.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
