package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fastinnovation/fastchat/internal/auth"
	"github.com/fastinnovation/fastchat/internal/chatstore"
	"github.com/fastinnovation/fastchat/internal/flowclient"
	"github.com/fastinnovation/fastchat/internal/storage"
)

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code. Encoding
// failures after WriteHeader cannot reach the client; they are only
// logged.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps a store/flow/auth failure onto an HTTP status.
// Unrecognized errors become 500 with a generic message; the cause is
// logged, not leaked.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, chatstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, chatstore.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "resource already exists")
	case errors.Is(err, chatstore.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid message")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
	case errors.Is(err, storage.ErrPoolExhausted):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "overloaded", "server busy, retry shortly")
	case errors.Is(err, storage.ErrConnection):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "database unavailable")
	case errors.Is(err, flowclient.ErrRejected):
		logger.Error("flow engine rejected request", "error", err)
		writeError(w, http.StatusBadGateway, "flow_rejected", "assistant could not process the message")
	case errors.Is(err, flowclient.ErrUnavailable):
		logger.Error("flow engine unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "flow_unavailable", "assistant temporarily unavailable")
	default:
		logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeJSON decodes a request body into dst with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
