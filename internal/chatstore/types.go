package chatstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fastinnovation/fastchat/internal/sqlc"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// User is an authenticated application user, keyed by the immutable
// external identity ID.
type User struct {
	ID           uuid.UUID
	FirebaseUID  string
	Email        string
	DisplayName  string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Conversation is one multi-turn exchange owned by a user.
type Conversation struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Title        string
	Stage        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is one turn in a conversation. Insertion order (Order) defines
// conversation order.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	Content        string
	Metadata       map[string]any
	Order          int
	CreatedAt      time.Time
}

// Summary is the latest generated summary for a conversation. Regenerated
// summaries replace the previous one.
type Summary struct {
	ConversationID uuid.UUID
	Text           string
	ModelUsed      string
	MessageCount   int
	CreatedAt      time.Time
}

// Analysis is one structured metrics record for a conversation.
// Append-only.
type Analysis struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Data           map[string]any
	ModelUsed      string
	CreatedAt      time.Time
}

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgToUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return id.Bytes
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func userFromRow(row sqlc.User) *User {
	return &User{
		ID:           pgToUUID(row.ID),
		FirebaseUID:  row.FirebaseUid,
		Email:        row.Email,
		DisplayName:  derefOr(row.DisplayName, ""),
		CreatedAt:    row.CreatedAt.Time,
		LastActiveAt: row.LastActiveAt.Time,
	}
}

func conversationFromRow(row sqlc.Conversation) *Conversation {
	return &Conversation{
		ID:           pgToUUID(row.ID),
		OwnerID:      pgToUUID(row.OwnerID),
		Title:        derefOr(row.Title, ""),
		Stage:        derefOr(row.Stage, ""),
		MessageCount: int(row.MessageCount),
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
}

func summaryFromRow(row sqlc.Summary) *Summary {
	return &Summary{
		ConversationID: pgToUUID(row.ConversationID),
		Text:           row.Summary,
		ModelUsed:      derefOr(row.ModelUsed, ""),
		MessageCount:   int(row.MessageCount),
		CreatedAt:      row.CreatedAt.Time,
	}
}
