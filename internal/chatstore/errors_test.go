package chatstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/fastinnovation/fastchat/internal/storage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil passes through", nil, nil},
		{"no rows becomes not found", pgx.ErrNoRows, ErrNotFound},
		{"foreign key violation becomes not found", &pgconn.PgError{Code: "23503"}, ErrNotFound},
		{"unique violation becomes conflict", &pgconn.PgError{Code: "23505"}, ErrConflict},
		{"check violation becomes invalid role", &pgconn.PgError{Code: "23514"}, ErrInvalidRole},
		{"connection exception becomes connection error", &pgconn.PgError{Code: "08006"}, storage.ErrConnection},
		{"deadline becomes connection error", context.DeadlineExceeded, storage.ErrConnection},
		{"pool exhaustion passes through", storage.ErrPoolExhausted, storage.ErrPoolExhausted},
		{"wrapped sentinel passes through", fmt.Errorf("acquiring: %w", storage.ErrPoolExhausted), storage.ErrPoolExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestClassify_UnknownErrorUnchanged(t *testing.T) {
	in := errors.New("syntax error")
	got := classify(in)
	assert.Equal(t, in, got)
	assert.NotErrorIs(t, got, ErrNotFound)
	assert.NotErrorIs(t, got, ErrConflict)
}

func TestClassify_SerializationFailureUnchanged(t *testing.T) {
	// Class 40 (transaction rollback) is retried by callers, not mapped.
	in := &pgconn.PgError{Code: "40001"}
	got := classify(in)
	assert.NotErrorIs(t, got, ErrConflict)
	assert.NotErrorIs(t, got, storage.ErrConnection)
}
