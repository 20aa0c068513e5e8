package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fastinnovation/fastchat/internal/chatstore"
	"github.com/fastinnovation/fastchat/internal/flowclient"
)

// maxHistoryTurns bounds the context forwarded to the flow engine.
const maxHistoryTurns = 50

// chatHandler relays chat turns through the flow engine, persisting
// both sides of the exchange.
type chatHandler struct {
	store  Store
	flow   Flow
	logger *slog.Logger
}

func (h *chatHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.chat)
}

type chatRequest struct {
	// ConversationID continues an existing conversation. Empty starts a
	// new one.
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	Reply          messageResponse `json:"reply"`
}

// chat appends the user's message, forwards it with prior history to
// the flow engine, and persists the assistant reply. The user message
// survives even when the engine fails, so a retried request does not
// lose the turn.
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	if h.flow == nil {
		writeError(w, http.StatusServiceUnavailable, "flow_unavailable", "flow engine not configured")
		return
	}

	user, err := currentUser(r, h.store)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	conv, err := h.resolveConversation(r, user, req.ConversationID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid conversation id")
		return
	}

	history, err := h.history(r, conv.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	if _, err := h.store.AppendMessage(r.Context(), conv.ID, chatstore.RoleUser, req.Message, nil); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp, err := h.flow.Process(r.Context(), req.Message, conv.ID.String(), history)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if resp.Text == "" {
		h.logger.Error("flow engine returned empty reply", "conversation", conv.ID)
		writeError(w, http.StatusBadGateway, "flow_unavailable", "assistant returned an empty reply")
		return
	}

	reply, err := h.store.AppendMessage(r.Context(), conv.ID, chatstore.RoleAssistant, resp.Text, map[string]any{
		"source": "flow_engine",
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: conv.ID,
		Reply:          toMessageResponse(reply),
	})
}

// resolveConversation loads an owned conversation or creates a fresh
// one when no ID was supplied. Returns nil for a malformed ID.
func (h *chatHandler) resolveConversation(r *http.Request, user *chatstore.User, rawID string) (*chatstore.Conversation, error) {
	if rawID == "" {
		return h.store.CreateConversation(r.Context(), user.ID, "", "")
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil
	}
	conv, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != user.ID {
		return nil, chatstore.ErrNotFound
	}
	return conv, nil
}

// history collects the most recent turns as flow-engine context.
func (h *chatHandler) history(r *http.Request, conversationID uuid.UUID) ([]flowclient.Turn, error) {
	var turns []flowclient.Turn
	for msg, err := range h.store.ListConversation(r.Context(), conversationID) {
		if err != nil {
			return nil, err
		}
		turns = append(turns, flowclient.Turn{Role: string(msg.Role), Content: msg.Content})
	}
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	return turns, nil
}
