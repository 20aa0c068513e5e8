package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastinnovation/fastchat/internal/analyzer"
	"github.com/fastinnovation/fastchat/internal/auth"
	"github.com/fastinnovation/fastchat/internal/chatstore"
	"github.com/fastinnovation/fastchat/internal/flowclient"
	"github.com/fastinnovation/fastchat/internal/log"
	"github.com/fastinnovation/fastchat/internal/storage"
)

// stubStore is an in-memory Store for handler tests.
type stubStore struct {
	users         map[string]*chatstore.User // by firebase UID
	conversations map[uuid.UUID]*chatstore.Conversation
	messages      map[uuid.UUID][]*chatstore.Message
	summaries     map[uuid.UUID]*chatstore.Summary
	analyses      map[uuid.UUID][]*chatstore.Analysis

	appendErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		users:         make(map[string]*chatstore.User),
		conversations: make(map[uuid.UUID]*chatstore.Conversation),
		messages:      make(map[uuid.UUID][]*chatstore.Message),
		summaries:     make(map[uuid.UUID]*chatstore.Summary),
		analyses:      make(map[uuid.UUID][]*chatstore.Analysis),
	}
}

func (s *stubStore) UpsertUser(_ context.Context, firebaseUID, email, displayName string) (*chatstore.User, error) {
	if u, ok := s.users[firebaseUID]; ok {
		u.Email = email
		u.DisplayName = displayName
		return u, nil
	}
	u := &chatstore.User{ID: uuid.New(), FirebaseUID: firebaseUID, Email: email, DisplayName: displayName}
	s.users[firebaseUID] = u
	return u, nil
}

func (s *stubStore) GetUserByFirebaseUID(_ context.Context, firebaseUID string) (*chatstore.User, error) {
	if u, ok := s.users[firebaseUID]; ok {
		return u, nil
	}
	return nil, chatstore.ErrNotFound
}

func (s *stubStore) CreateConversation(_ context.Context, ownerID uuid.UUID, title, stage string) (*chatstore.Conversation, error) {
	c := &chatstore.Conversation{ID: uuid.New(), OwnerID: ownerID, Title: title, Stage: stage}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *stubStore) GetConversation(_ context.Context, id uuid.UUID) (*chatstore.Conversation, error) {
	if c, ok := s.conversations[id]; ok {
		return c, nil
	}
	return nil, chatstore.ErrNotFound
}

func (s *stubStore) ListConversationsForUser(_ context.Context, ownerID uuid.UUID, limit, offset int32) ([]*chatstore.Conversation, error) {
	var out []*chatstore.Conversation
	for _, c := range s.conversations {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubStore) AppendMessage(_ context.Context, conversationID uuid.UUID, role chatstore.Role, content string, metadata map[string]any) (*chatstore.Message, error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, chatstore.ErrNotFound
	}
	m := &chatstore.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		Order:          len(s.messages[conversationID]) + 1,
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	s.conversations[conversationID].MessageCount++
	return m, nil
}

func (s *stubStore) Messages(_ context.Context, conversationID uuid.UUID, limit, offset int32) ([]*chatstore.Message, error) {
	return s.messages[conversationID], nil
}

func (s *stubStore) ListConversation(_ context.Context, conversationID uuid.UUID) iter.Seq2[*chatstore.Message, error] {
	msgs := s.messages[conversationID]
	return func(yield func(*chatstore.Message, error) bool) {
		for _, m := range msgs {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (s *stubStore) GetSummary(_ context.Context, conversationID uuid.UUID) (*chatstore.Summary, error) {
	if sum, ok := s.summaries[conversationID]; ok {
		return sum, nil
	}
	return nil, chatstore.ErrNotFound
}

func (s *stubStore) ListAnalyses(_ context.Context, conversationID uuid.UUID) ([]*chatstore.Analysis, error) {
	return s.analyses[conversationID], nil
}

// stubFlow is a canned flow engine.
type stubFlow struct {
	reply    string
	err      error
	history  []flowclient.Turn
	healthy  bool
	sessions []string
}

func (f *stubFlow) Process(_ context.Context, message, sessionID string, history []flowclient.Turn) (*flowclient.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.history = history
	f.sessions = append(f.sessions, sessionID)
	return &flowclient.Response{Text: f.reply}, nil
}

func (f *stubFlow) CheckConnection(context.Context) error {
	if f.healthy {
		return nil
	}
	return flowclient.ErrUnavailable
}

// stubPool reports a fixed health state.
type stubPool struct{ err error }

func (p stubPool) Healthy(context.Context) error { return p.err }

func newTestServer(t *testing.T, store Store, flow Flow, pool HealthChecker) http.Handler {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Store:     store,
		Flow:      flow,
		Pool:      pool,
		Verifier:  auth.StaticVerifier{},
		RateBurst: 1000,
	})
	require.NoError(t, err)
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(ServerConfig{Verifier: auth.StaticVerifier{}})
	assert.Error(t, err)

	_, err = NewServer(ServerConfig{Store: newStubStore()})
	assert.Error(t, err)
}

func TestHealth_Liveness(t *testing.T) {
	h := newTestServer(t, newStubStore(), &stubFlow{healthy: true}, stubPool{})

	w := doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestHealth_Readiness(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		h := newTestServer(t, newStubStore(), &stubFlow{healthy: true}, stubPool{})
		w := doJSON(t, h, http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp readinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.Equal(t, "ok", resp.FlowEngine)
	})

	t.Run("database down", func(t *testing.T) {
		h := newTestServer(t, newStubStore(), &stubFlow{healthy: true}, stubPool{err: storage.ErrConnection})
		w := doJSON(t, h, http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("no flow engine configured", func(t *testing.T) {
		h := newTestServer(t, newStubStore(), nil, stubPool{})
		w := doJSON(t, h, http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp readinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "disabled", resp.FlowEngine)
	})

	t.Run("flow engine down does not gate readiness", func(t *testing.T) {
		h := newTestServer(t, newStubStore(), &stubFlow{healthy: false}, stubPool{})
		w := doJSON(t, h, http.MethodGet, "/ready", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp readinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "unavailable", resp.FlowEngine)
	})
}

func TestAuth_Required(t *testing.T) {
	h := newTestServer(t, newStubStore(), &stubFlow{}, stubPool{})

	w := doJSON(t, h, http.MethodGet, "/api/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserSync(t *testing.T) {
	store := newStubStore()
	h := newTestServer(t, store, &stubFlow{}, stubPool{})

	w := doJSON(t, h, http.MethodPost, "/api/v1/users/sync", "fb-1:alice@example.com:Alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp userResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "fb-1", resp.FirebaseUID)
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.Equal(t, "Alice", resp.DisplayName)

	// Body overrides take precedence over token claims.
	w = doJSON(t, h, http.MethodPost, "/api/v1/users/sync", "fb-1:alice@example.com:Alice",
		syncUserRequest{DisplayName: "Alice Chen"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Alice Chen", resp.DisplayName)

	// Token without email and no body email is rejected.
	w = doJSON(t, h, http.MethodPost, "/api/v1/users/sync", "fb-2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// syncedUser provisions a user through the API and returns its token.
func syncedUser(t *testing.T, h http.Handler, uid string) string {
	t.Helper()
	token := fmt.Sprintf("%s:%s@example.com", uid, uid)
	w := doJSON(t, h, http.MethodPost, "/api/v1/users/sync", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return token
}

func TestConversationLifecycle(t *testing.T) {
	store := newStubStore()
	h := newTestServer(t, store, &stubFlow{}, stubPool{})
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/conversations", token,
		createConversationRequest{Title: "Hello", Stage: "intake"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var conv conversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, "Hello", conv.Title)

	w = doJSON(t, h, http.MethodGet, "/api/v1/conversations", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Conversations []conversationResponse `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Conversations, 1)

	w = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+conv.ID.String(), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/conversations/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type stubInsights struct {
	insight *analyzer.Insight
	err     error
	calls   []uuid.UUID
}

func (s *stubInsights) Run(ctx context.Context, conversationID uuid.UUID) (*analyzer.Insight, error) {
	s.calls = append(s.calls, conversationID)
	if s.err != nil {
		return nil, s.err
	}
	return s.insight, nil
}

func newInsightsServer(t *testing.T, store Store, insights Insights) http.Handler {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Store:     store,
		Insights:  insights,
		Pool:      stubPool{},
		Verifier:  auth.StaticVerifier{},
		RateBurst: 1000,
	})
	require.NoError(t, err)
	return srv.Handler()
}

func TestConversation_Analyze(t *testing.T) {
	insights := &stubInsights{insight: &analyzer.Insight{
		MainIntent:       "get a refund",
		UserSatisfaction: 3,
		ConversationType: "support",
	}}
	store := newStubStore()
	h := newInsightsServer(t, store, insights)
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/conversations", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	w = doJSON(t, h, http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/analyze", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var insight analyzer.Insight
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &insight))
	assert.Equal(t, "get a refund", insight.MainIntent)
	require.Len(t, insights.calls, 1)
	assert.Equal(t, conv.ID, insights.calls[0])
}

func TestConversation_AnalyzeEmpty(t *testing.T) {
	insights := &stubInsights{err: analyzer.ErrEmptyConversation}
	store := newStubStore()
	h := newInsightsServer(t, store, insights)
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/conversations", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	w = doJSON(t, h, http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/analyze", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversation_AnalyzeDisabled(t *testing.T) {
	store := newStubStore()
	h := newTestServer(t, store, &stubFlow{}, stubPool{})
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/conversations", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	w = doJSON(t, h, http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/analyze", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestConversation_OwnershipHidden(t *testing.T) {
	store := newStubStore()
	h := newTestServer(t, store, &stubFlow{}, stubPool{})
	ownerToken := syncedUser(t, h, "fb-owner")
	otherToken := syncedUser(t, h, "fb-other")

	w := doJSON(t, h, http.MethodPost, "/api/v1/conversations", ownerToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	// A foreign conversation answers 404, indistinguishable from absent.
	w = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+conv.ID.String(), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+conv.ID.String()+"/messages", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_NewConversation(t *testing.T) {
	store := newStubStore()
	flow := &stubFlow{reply: "Hello! How can I help?"}
	h := newTestServer(t, store, flow, stubPool{})
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/chat", token, chatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.ConversationID)
	assert.Equal(t, "Hello! How can I help?", resp.Reply.Content)
	assert.Equal(t, "assistant", resp.Reply.Role)

	// Both turns persisted.
	msgs := store.messages[resp.ConversationID]
	require.Len(t, msgs, 2)
	assert.Equal(t, chatstore.RoleUser, msgs[0].Role)
	assert.Equal(t, chatstore.RoleAssistant, msgs[1].Role)

	// Conversation ID doubles as the engine session ID.
	require.Len(t, flow.sessions, 1)
	assert.Equal(t, resp.ConversationID.String(), flow.sessions[0])
}

func TestChat_ContinuesConversationWithHistory(t *testing.T) {
	store := newStubStore()
	flow := &stubFlow{reply: "second reply"}
	h := newTestServer(t, store, flow, stubPool{})
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/chat", token, chatRequest{Message: "first"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = doJSON(t, h, http.MethodPost, "/api/v1/chat", token,
		chatRequest{ConversationID: resp.ConversationID.String(), Message: "second"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The second call forwards the first exchange as history.
	require.Len(t, flow.history, 2)
	assert.Equal(t, "first", flow.history[0].Content)
	assert.Equal(t, "second reply", flow.history[1].Content)

	assert.Len(t, store.messages[resp.ConversationID], 4)
}

func TestChat_FlowFailureKeepsUserMessage(t *testing.T) {
	store := newStubStore()
	flow := &stubFlow{err: flowclient.ErrUnavailable}
	h := newTestServer(t, store, flow, stubPool{})
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/conversations", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	w = doJSON(t, h, http.MethodPost, "/api/v1/chat", token,
		chatRequest{ConversationID: conv.ID.String(), Message: "are you there?"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	// The user's turn is already persisted despite the engine failure.
	msgs := store.messages[conv.ID]
	require.Len(t, msgs, 1)
	assert.Equal(t, chatstore.RoleUser, msgs[0].Role)
}

func TestChat_Validation(t *testing.T) {
	h := newTestServer(t, newStubStore(), &stubFlow{reply: "x"}, stubPool{})
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/chat", token, chatRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/v1/chat", token,
		chatRequest{ConversationID: "not-a-uuid", Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPoolExhaustion_SignalsRetry(t *testing.T) {
	store := newStubStore()
	store.appendErr = storage.ErrPoolExhausted
	h := newTestServer(t, store, &stubFlow{reply: "x"}, stubPool{})
	token := syncedUser(t, h, "fb-1")

	w := doJSON(t, h, http.MethodPost, "/api/v1/chat", token, chatRequest{Message: "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimit(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Store:     newStubStore(),
		Flow:      &stubFlow{},
		Pool:      stubPool{},
		Verifier:  auth.StaticVerifier{},
		RateBurst: 3,
	})
	require.NoError(t, err)
	h := srv.Handler()

	var limited bool
	for range 10 {
		w := doJSON(t, h, http.MethodGet, "/health", "", nil)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
			break
		}
	}
	assert.True(t, limited, "expected burst to be exhausted")
}

func TestCORS_Preflight(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Logger:      log.NewNop(),
		Store:       newStubStore(),
		Verifier:    auth.StaticVerifier{},
		CORSOrigins: []string{"https://app.example.com"},
		RateBurst:   100,
	})
	require.NoError(t, err)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	// Unknown origins get no CORS headers.
	req = httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	panicStore := &panickyStore{stubStore: newStubStore()}
	h := newTestServer(t, panicStore, &stubFlow{}, stubPool{})

	w := doJSON(t, h, http.MethodPost, "/api/v1/users/sync", "fb-1:a@example.com", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "internal_error", resp.Error)
}

type panickyStore struct{ *stubStore }

func (p *panickyStore) UpsertUser(context.Context, string, string, string) (*chatstore.User, error) {
	panic("boom")
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", chatstore.ErrNotFound, http.StatusNotFound},
		{"conflict", chatstore.ErrConflict, http.StatusConflict},
		{"invalid role", chatstore.ErrInvalidRole, http.StatusBadRequest},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"pool exhausted", storage.ErrPoolExhausted, http.StatusServiceUnavailable},
		{"connection", storage.ErrConnection, http.StatusServiceUnavailable},
		{"flow rejected", flowclient.ErrRejected, http.StatusBadGateway},
		{"flow unavailable", flowclient.ErrUnavailable, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDomainError(w, log.NewNop(), fmt.Errorf("wrapped: %w", tt.err))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
