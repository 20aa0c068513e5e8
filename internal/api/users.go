package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fastinnovation/fastchat/internal/auth"
	"github.com/fastinnovation/fastchat/internal/chatstore"
)

// userHandler serves user identity endpoints.
type userHandler struct {
	store  Store
	logger *slog.Logger
}

func (h *userHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/users/sync", h.sync)
}

type syncUserRequest struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type userResponse struct {
	ID           uuid.UUID `json:"id"`
	FirebaseUID  string    `json:"firebase_uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func toUserResponse(u *chatstore.User) userResponse {
	return userResponse{
		ID:           u.ID,
		FirebaseUID:  u.FirebaseUID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		CreatedAt:    u.CreatedAt,
		LastActiveAt: u.LastActiveAt,
	}
}

// sync upserts the authenticated user. The identity comes from the
// verified token; the body may refine email and display name. Called by
// the frontend after sign-in, idempotent.
func (h *userHandler) sync(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req syncUserRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}

	email := identity.Email
	if req.Email != "" {
		email = req.Email
	}
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}
	displayName := identity.Name
	if req.DisplayName != "" {
		displayName = req.DisplayName
	}

	user, err := h.store.UpsertUser(r.Context(), identity.UID, email, displayName)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
