// Package chatstore provides the typed persistence operations for users,
// conversations, messages, summaries and analyses. It is the only
// sanctioned mutation path for those tables: handlers never issue raw
// statements.
//
// Every operation is one transaction. Failures roll back before the error
// is surfaced, mapped onto a small taxonomy (ErrNotFound, ErrConflict,
// storage.ErrConnection, storage.ErrPoolExhausted) so callers can branch
// with errors.Is.
package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fastinnovation/fastchat/internal/sqlc"
	"github.com/fastinnovation/fastchat/internal/storage"
)

// Querier is the database operation set Store depends on. Defined here,
// by the consumer, so unit tests can substitute a mock.
type Querier interface {
	UpsertUser(ctx context.Context, arg sqlc.UpsertUserParams) (sqlc.User, error)
	GetUser(ctx context.Context, id pgtype.UUID) (sqlc.User, error)
	GetUserByFirebaseUID(ctx context.Context, firebaseUid string) (sqlc.User, error)

	CreateConversation(ctx context.Context, arg sqlc.CreateConversationParams) (sqlc.Conversation, error)
	GetConversation(ctx context.Context, id pgtype.UUID) (sqlc.Conversation, error)
	ListConversationsByOwner(ctx context.Context, arg sqlc.ListConversationsByOwnerParams) ([]sqlc.Conversation, error)
	LockConversation(ctx context.Context, id pgtype.UUID) (pgtype.UUID, error)

	AddMessage(ctx context.Context, arg sqlc.AddMessageParams) (sqlc.Message, error)
	MaxMessageOrder(ctx context.Context, conversationID pgtype.UUID) (int32, error)
	TouchConversation(ctx context.Context, id pgtype.UUID) error
	ListMessages(ctx context.Context, arg sqlc.ListMessagesParams) ([]sqlc.Message, error)
	ListAllMessages(ctx context.Context, conversationID pgtype.UUID) ([]sqlc.Message, error)

	UpsertSummary(ctx context.Context, arg sqlc.UpsertSummaryParams) (sqlc.Summary, error)
	GetSummary(ctx context.Context, conversationID pgtype.UUID) (sqlc.Summary, error)
	InsertAnalysis(ctx context.Context, arg sqlc.InsertAnalysisParams) (sqlc.Analysis, error)
	ListAnalyses(ctx context.Context, conversationID pgtype.UUID) ([]sqlc.Analysis, error)
}

// Store implements the conversation persistence protocol on top of the
// shared connection pool. Safe for concurrent use.
type Store struct {
	querier Querier
	pool    *storage.Pool // nil in unit tests with a mock querier
	logger  *slog.Logger
}

// New creates a Store. pool may be nil in tests; transactional operations
// then run through the querier directly.
func New(querier Querier, pool *storage.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, pool: pool, logger: logger}
}

// UpsertUser inserts or updates a user by external identity ID and returns
// the canonical row. Idempotent: the unique constraint on firebase_uid
// enforces one row per identity, last write wins on mutable fields. A
// concurrent race on the email unique constraint surfaces as ErrConflict.
func (s *Store) UpsertUser(ctx context.Context, firebaseUID, email, displayName string) (*User, error) {
	if firebaseUID == "" {
		return nil, fmt.Errorf("%w: empty identity id", ErrConflict)
	}
	row, err := s.querier.UpsertUser(ctx, sqlc.UpsertUserParams{
		FirebaseUid: firebaseUID,
		Email:       email,
		DisplayName: nilIfEmpty(displayName),
	})
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", classify(err))
	}

	user := userFromRow(row)
	s.logger.Debug("upserted user", "id", user.ID, "firebase_uid", firebaseUID)
	return user, nil
}

// GetUser retrieves a user by internal ID.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	row, err := s.querier.GetUser(ctx, uuidToPg(id))
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, classify(err))
	}
	return userFromRow(row), nil
}

// GetUserByFirebaseUID retrieves a user by external identity ID.
func (s *Store) GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*User, error) {
	row, err := s.querier.GetUserByFirebaseUID(ctx, firebaseUID)
	if err != nil {
		return nil, fmt.Errorf("getting user by identity %q: %w", firebaseUID, classify(err))
	}
	return userFromRow(row), nil
}

// CreateConversation inserts a conversation for an existing owner.
// A missing owner surfaces as ErrNotFound via the foreign key constraint,
// not a pre-check.
func (s *Store) CreateConversation(ctx context.Context, ownerID uuid.UUID, title, stage string) (*Conversation, error) {
	row, err := s.querier.CreateConversation(ctx, sqlc.CreateConversationParams{
		OwnerID: uuidToPg(ownerID),
		Title:   nilIfEmpty(title),
		Stage:   nilIfEmpty(stage),
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation for owner %s: %w", ownerID, classify(err))
	}

	conv := conversationFromRow(row)
	s.logger.Debug("created conversation", "id", conv.ID, "owner", ownerID, "stage", stage)
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row, err := s.querier.GetConversation(ctx, uuidToPg(id))
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, classify(err))
	}
	return conversationFromRow(row), nil
}

// ListConversationsForUser lists a user's conversations, most recently
// updated first.
func (s *Store) ListConversationsForUser(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]*Conversation, error) {
	rows, err := s.querier.ListConversationsByOwner(ctx, sqlc.ListConversationsByOwnerParams{
		OwnerID: uuidToPg(ownerID),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing conversations for %s: %w", ownerID, classify(err))
	}

	convs := make([]*Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, conversationFromRow(row))
	}
	return convs, nil
}

// AppendMessage inserts a message and advances the parent conversation's
// updated-at in the same transaction. The conversation row is locked
// first, so concurrent appends to one conversation serialize and message
// order stays gapless. A missing conversation surfaces as ErrNotFound.
func (s *Store) AppendMessage(ctx context.Context, conversationID uuid.UUID, role Role, content string, metadata map[string]any) (*Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidRole)
	}

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	// Without a pool (mock tests) run non-transactionally.
	if s.pool == nil {
		return s.appendMessageWith(ctx, s.querier, conversationID, role, content, metadataJSON)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	// Rollback is a no-op after commit.
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	msg, err := s.appendMessageWith(ctx, sqlc.New(tx), conversationID, role, content, metadataJSON)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message append: %w", classify(err))
	}

	s.logger.Debug("appended message",
		"conversation", conversationID, "role", role, "order", msg.Order)
	return msg, nil
}

// appendMessageWith runs the append protocol against q: lock parent,
// compute next order, insert, touch parent.
func (s *Store) appendMessageWith(ctx context.Context, q Querier, conversationID uuid.UUID, role Role, content string, metadataJSON []byte) (*Message, error) {
	if _, err := q.LockConversation(ctx, uuidToPg(conversationID)); err != nil {
		return nil, fmt.Errorf("locking conversation %s: %w", conversationID, classify(err))
	}

	maxOrder, err := q.MaxMessageOrder(ctx, uuidToPg(conversationID))
	if err != nil {
		return nil, fmt.Errorf("reading message order: %w", classify(err))
	}

	row, err := q.AddMessage(ctx, sqlc.AddMessageParams{
		ConversationID: uuidToPg(conversationID),
		Role:           string(role),
		Content:        content,
		Metadata:       metadataJSON,
		MessageOrder:   maxOrder + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", classify(err))
	}

	if err := q.TouchConversation(ctx, uuidToPg(conversationID)); err != nil {
		return nil, fmt.Errorf("updating conversation metadata: %w", classify(err))
	}

	return messageFromRow(row)
}

// Messages returns a page of a conversation's messages in insertion order.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID, limit, offset int32) ([]*Message, error) {
	rows, err := s.querier.ListMessages(ctx, sqlc.ListMessagesParams{
		ConversationID: uuidToPg(conversationID),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", conversationID, classify(err))
	}

	msgs := make([]*Message, 0, len(rows))
	for _, row := range rows {
		msg, err := messageFromRow(row)
		if err != nil {
			s.logger.Warn("skipping malformed message", "id", pgToUUID(row.ID), "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ListConversation returns the full message history as a lazy, finite,
// restartable sequence: each range over the result re-runs the query from
// the start, and no cursor state survives between ranges. Errors are
// yielded as the second value; iteration stops after the first error.
func (s *Store) ListConversation(ctx context.Context, conversationID uuid.UUID) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		rows, err := s.querier.ListAllMessages(ctx, uuidToPg(conversationID))
		if err != nil {
			yield(nil, fmt.Errorf("listing conversation %s: %w", conversationID, classify(err)))
			return
		}
		for _, row := range rows {
			msg, err := messageFromRow(row)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// WriteSummary stores the conversation summary with replace semantics:
// one summary per conversation, regeneration overwrites. Requires an
// existing conversation (ErrNotFound otherwise).
func (s *Store) WriteSummary(ctx context.Context, conversationID uuid.UUID, text, modelUsed string, messageCount int) (*Summary, error) {
	row, err := s.querier.UpsertSummary(ctx, sqlc.UpsertSummaryParams{
		ConversationID: uuidToPg(conversationID),
		Summary:        text,
		ModelUsed:      nilIfEmpty(modelUsed),
		MessageCount:   int32(messageCount), // #nosec G115 -- bounded by conversation length
	})
	if err != nil {
		return nil, fmt.Errorf("writing summary for %s: %w", conversationID, classify(err))
	}

	s.logger.Debug("wrote summary", "conversation", conversationID, "messages", messageCount)
	return summaryFromRow(row), nil
}

// GetSummary returns the latest summary for a conversation.
func (s *Store) GetSummary(ctx context.Context, conversationID uuid.UUID) (*Summary, error) {
	row, err := s.querier.GetSummary(ctx, uuidToPg(conversationID))
	if err != nil {
		return nil, fmt.Errorf("getting summary for %s: %w", conversationID, classify(err))
	}
	return summaryFromRow(row), nil
}

// WriteAnalysis appends a structured analysis record for a conversation.
// Append-only; requires an existing conversation.
func (s *Store) WriteAnalysis(ctx context.Context, conversationID uuid.UUID, data map[string]any, modelUsed string) (*Analysis, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling analysis data: %w", err)
	}

	row, err := s.querier.InsertAnalysis(ctx, sqlc.InsertAnalysisParams{
		ConversationID: uuidToPg(conversationID),
		AnalysisData:   payload,
		ModelUsed:      nilIfEmpty(modelUsed),
	})
	if err != nil {
		return nil, fmt.Errorf("writing analysis for %s: %w", conversationID, classify(err))
	}

	analysis, err := analysisFromRow(row)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("wrote analysis", "conversation", conversationID, "id", analysis.ID)
	return analysis, nil
}

// ListAnalyses returns all analysis records for a conversation in
// creation order.
func (s *Store) ListAnalyses(ctx context.Context, conversationID uuid.UUID) ([]*Analysis, error) {
	rows, err := s.querier.ListAnalyses(ctx, uuidToPg(conversationID))
	if err != nil {
		return nil, fmt.Errorf("listing analyses for %s: %w", conversationID, classify(err))
	}

	analyses := make([]*Analysis, 0, len(rows))
	for _, row := range rows {
		a, err := analysisFromRow(row)
		if err != nil {
			s.logger.Warn("skipping malformed analysis", "id", pgToUUID(row.ID), "error", err)
			continue
		}
		analyses = append(analyses, a)
	}
	return analyses, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil // stored as NULL
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling message metadata: %w", err)
	}
	return data, nil
}

func messageFromRow(row sqlc.Message) (*Message, error) {
	var metadata map[string]any
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling message metadata: %w", err)
		}
	}
	return &Message{
		ID:             pgToUUID(row.ID),
		ConversationID: pgToUUID(row.ConversationID),
		Role:           Role(row.Role),
		Content:        row.Content,
		Metadata:       metadata,
		Order:          int(row.MessageOrder),
		CreatedAt:      row.CreatedAt.Time,
	}, nil
}

func analysisFromRow(row sqlc.Analysis) (*Analysis, error) {
	var data map[string]any
	if len(row.AnalysisData) > 0 {
		if err := json.Unmarshal(row.AnalysisData, &data); err != nil {
			return nil, fmt.Errorf("unmarshaling analysis data: %w", err)
		}
	}
	return &Analysis{
		ID:             pgToUUID(row.ID),
		ConversationID: pgToUUID(row.ConversationID),
		Data:           data,
		ModelUsed:      derefOr(row.ModelUsed, ""),
		CreatedAt:      row.CreatedAt.Time,
	}, nil
}
