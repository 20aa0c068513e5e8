package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fastinnovation/fastchat/internal/analyzer"
	"github.com/fastinnovation/fastchat/internal/chatstore"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// conversationHandler serves conversation CRUD and history endpoints.
type conversationHandler struct {
	store    Store
	insights Insights
	logger   *slog.Logger
}

func (h *conversationHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/conversations", h.create)
	mux.HandleFunc("GET /api/v1/conversations", h.list)
	mux.HandleFunc("GET /api/v1/conversations/{id}", h.get)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", h.messages)
	mux.HandleFunc("GET /api/v1/conversations/{id}/summary", h.summary)
	mux.HandleFunc("GET /api/v1/conversations/{id}/analyses", h.analyses)
	mux.HandleFunc("POST /api/v1/conversations/{id}/analyze", h.analyze)
}

type createConversationRequest struct {
	Title string `json:"title,omitempty"`
	Stage string `json:"stage,omitempty"`
}

type conversationResponse struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title,omitempty"`
	Stage        string    `json:"stage,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toConversationResponse(c *chatstore.Conversation) conversationResponse {
	return conversationResponse{
		ID:           c.ID,
		Title:        c.Title,
		Stage:        c.Stage,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type messageResponse struct {
	ID        uuid.UUID      `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Order     int            `json:"order"`
	CreatedAt time.Time      `json:"created_at"`
}

func toMessageResponse(m *chatstore.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Metadata:  m.Metadata,
		Order:     m.Order,
		CreatedAt: m.CreatedAt,
	}
}

func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.store)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	var req createConversationRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}

	conv, err := h.store.CreateConversation(r.Context(), user.ID, req.Title, req.Stage)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationResponse(conv))
}

func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.store)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	limit, offset := pagination(r)
	convs, err := h.store.ListConversationsForUser(r.Context(), user.ID, limit, offset)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	msgs, err := h.store.Messages(r.Context(), conv.ID, limit, offset)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *conversationHandler) summary(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	summary, err := h.store.GetSummary(r.Context(), conv.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": summary.ConversationID,
		"summary":         summary.Text,
		"model_used":      summary.ModelUsed,
		"message_count":   summary.MessageCount,
		"created_at":      summary.CreatedAt,
	})
}

func (h *conversationHandler) analyses(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	analyses, err := h.store.ListAnalyses(r.Context(), conv.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]map[string]any, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, map[string]any{
			"id":         a.ID,
			"data":       a.Data,
			"model_used": a.ModelUsed,
			"created_at": a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": out})
}

func (h *conversationHandler) analyze(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}
	if h.insights == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis_disabled",
			"conversation analysis is not configured")
		return
	}

	insight, err := h.insights.Run(r.Context(), conv.ID)
	if err != nil {
		if errors.Is(err, analyzer.ErrEmptyConversation) {
			writeError(w, http.StatusBadRequest, "invalid_request", "conversation has no messages")
			return
		}
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

// ownedConversation loads the conversation in the path and verifies the
// caller owns it. Foreign conversations answer 404, not 403, so IDs are
// not confirmable by other users.
func (h *conversationHandler) ownedConversation(w http.ResponseWriter, r *http.Request) (*chatstore.Conversation, bool) {
	user, err := currentUser(r, h.store)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return nil, false
	}

	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid conversation id")
		return nil, false
	}

	conv, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return nil, false
	}
	if conv.OwnerID != user.ID {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
		return nil, false
	}
	return conv, true
}

// pagination reads limit/offset query parameters with bounds.
func pagination(r *http.Request) (limit, offset int32) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = int32(min(n, maxPageSize))
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}
