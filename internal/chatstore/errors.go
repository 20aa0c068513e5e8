package chatstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fastinnovation/fastchat/internal/storage"
)

var (
	// ErrNotFound indicates a referenced parent entity (user or
	// conversation) does not exist. A normal negative result, not an
	// abort of the whole request.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique-constraint violation, e.g. two
	// concurrent UpsertUser calls racing on the same email. Callers may
	// treat it as "already exists".
	ErrConflict = errors.New("conflict")

	// ErrInvalidRole indicates a message role outside user/assistant/system.
	ErrInvalidRole = errors.New("invalid message role")
)

// PostgreSQL SQLSTATE codes used for error classification.
const (
	sqlstateForeignKeyViolation = "23503"
	sqlstateUniqueViolation     = "23505"
	sqlstateCheckViolation      = "23514"
	sqlstateClassConnection     = "08"
)

// classify maps driver-level failures onto the store's error taxonomy.
// Errors already carrying a sentinel (pool exhaustion, connection loss)
// pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrPoolExhausted) ||
		errors.Is(err, storage.ErrConnection) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidRole) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlstateForeignKeyViolation:
			return fmt.Errorf("%w: referenced row missing: %v", ErrNotFound, err)
		case pgErr.Code == sqlstateUniqueViolation:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case pgErr.Code == sqlstateCheckViolation:
			return fmt.Errorf("%w: %v", ErrInvalidRole, err)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == sqlstateClassConnection:
			return fmt.Errorf("%w: %v", storage.ErrConnection, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}
	return err
}
