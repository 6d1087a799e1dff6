package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/limiter"
	"github.com/nextlevelbuilder/wpbridge/pkg/protocol"
)

// Wire errors with stable machine-readable codes. The pairing UI routes on
// the code, not the message.
var (
	errInvalidRequest = protocol.ErrorResponse{Code: protocol.ErrInvalidRequest, Message: "invalid request body"}
	errUnauthorized   = protocol.ErrorResponse{Code: protocol.ErrUnauthorized, Message: "sign-in required"}
	errNotFound       = protocol.ErrorResponse{Code: protocol.ErrNotFound, Message: "code not found"}
	errExpired        = protocol.ErrorResponse{Code: protocol.ErrExpired, Message: "code expired, start again"}
	errAlreadyUsed    = protocol.ErrorResponse{Code: protocol.ErrAlreadyUsed, Message: "code already activated"}
	errPlanLimit      = protocol.ErrorResponse{Code: protocol.ErrPaymentRequired, Message: "site limit reached, upgrade to connect more sites"}
	errRateLimited    = protocol.ErrorResponse{Code: protocol.ErrRateLimited, Message: "too many requests"}
	errOriginDenied   = protocol.ErrorResponse{Code: protocol.ErrOriginDenied, Message: "origin not allowed"}
	errInternal       = protocol.ErrorResponse{Code: protocol.ErrInternal, Message: "internal error"}
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, e protocol.ErrorResponse) {
	writeJSON(w, status, e)
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the socket
// peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfter(d limiter.Decision) string {
	secs := int(time.Until(d.ResetAt).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
