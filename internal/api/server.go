// Package api exposes the chat service over HTTP.
//
// Endpoints:
//
//	GET  /health                              liveness probe
//	GET  /ready                               readiness probe (DB + flow engine)
//	POST /api/v1/users/sync                   upsert the authenticated user
//	GET  /api/v1/conversations                list own conversations
//	POST /api/v1/conversations                create a conversation
//	GET  /api/v1/conversations/{id}           fetch one conversation
//	GET  /api/v1/conversations/{id}/messages  page through messages
//	GET  /api/v1/conversations/{id}/summary   latest summary
//	GET  /api/v1/conversations/{id}/analyses  analysis history
//	POST /api/v1/conversations/{id}/analyze   summarize and analyze now
//	POST /api/v1/chat                         send a turn through the flow engine
//
// Everything under /api/v1 requires a bearer token. Middleware order:
// recovery, logging, CORS, rate limit, then auth on the API subtree.
package api

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fastinnovation/fastchat/internal/analyzer"
	"github.com/fastinnovation/fastchat/internal/auth"
	"github.com/fastinnovation/fastchat/internal/chatstore"
	"github.com/fastinnovation/fastchat/internal/flowclient"
)

const defaultRatePerSecond = 10

// Store is the persistence surface the handlers need. Satisfied by
// *chatstore.Store.
type Store interface {
	UpsertUser(ctx context.Context, firebaseUID, email, displayName string) (*chatstore.User, error)
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*chatstore.User, error)
	CreateConversation(ctx context.Context, ownerID uuid.UUID, title, stage string) (*chatstore.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*chatstore.Conversation, error)
	ListConversationsForUser(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]*chatstore.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role chatstore.Role, content string, metadata map[string]any) (*chatstore.Message, error)
	Messages(ctx context.Context, conversationID uuid.UUID, limit, offset int32) ([]*chatstore.Message, error)
	ListConversation(ctx context.Context, conversationID uuid.UUID) iter.Seq2[*chatstore.Message, error]
	GetSummary(ctx context.Context, conversationID uuid.UUID) (*chatstore.Summary, error)
	ListAnalyses(ctx context.Context, conversationID uuid.UUID) ([]*chatstore.Analysis, error)
}

// Flow relays chat turns to the flow engine. Satisfied by
// *flowclient.Client.
type Flow interface {
	Process(ctx context.Context, message, sessionID string, history []flowclient.Turn) (*flowclient.Response, error)
	CheckConnection(ctx context.Context) error
}

// Insights derives and persists a summary plus a structured analysis for
// a conversation. Satisfied by *analyzer.Analyzer.
type Insights interface {
	Run(ctx context.Context, conversationID uuid.UUID) (*analyzer.Insight, error)
}

// HealthChecker reports database readiness. Satisfied by *storage.Pool.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// ServerConfig carries the server's dependencies.
type ServerConfig struct {
	Logger      *slog.Logger
	Store       Store
	Flow        Flow
	Insights    Insights
	Pool        HealthChecker
	Verifier    auth.TokenVerifier
	CORSOrigins []string
	RateBurst   int
	TrustProxy  bool
}

// Server is the HTTP API server.
type Server struct {
	cfg     ServerConfig
	logger  *slog.Logger
	limiter *rateLimiter

	health        *healthHandler
	users         *userHandler
	conversations *conversationHandler
	chat          *chatHandler
}

// NewServer creates a server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}

	return &Server{
		cfg:           cfg,
		logger:        cfg.Logger,
		limiter:       newRateLimiter(defaultRatePerSecond, burst),
		health:        &healthHandler{pool: cfg.Pool, flow: cfg.Flow, logger: cfg.Logger},
		users:         &userHandler{store: cfg.Store, logger: cfg.Logger},
		conversations: &conversationHandler{store: cfg.Store, insights: cfg.Insights, logger: cfg.Logger},
		chat:          &chatHandler{store: cfg.Store, flow: cfg.Flow, logger: cfg.Logger},
	}, nil
}

// Handler returns the fully assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.registerRoutes(mux)

	apiMux := http.NewServeMux()
	s.users.registerRoutes(apiMux)
	s.conversations.registerRoutes(apiMux)
	s.chat.registerRoutes(apiMux)
	mux.Handle("/api/v1/", authMiddleware(s.cfg.Verifier, s.logger)(apiMux))

	return chain(mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		corsMiddleware(s.cfg.CORSOrigins),
		rateLimitMiddleware(s.limiter, s.cfg.TrustProxy, s.logger),
	)
}

// currentUser resolves the authenticated identity to a stored user.
func currentUser(r *http.Request, store Store) (*chatstore.User, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return store.GetUserByFirebaseUID(r.Context(), identity.UID)
}

// pathUUID parses a path value as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
