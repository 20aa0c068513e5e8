package storage

import "errors"

var (
	// ErrConfiguration indicates invalid or incomplete connection
	// configuration. Fatal at startup, never retried.
	ErrConfiguration = errors.New("invalid storage configuration")

	// ErrConnection indicates a transient network or auth failure acquiring
	// a connection. Callers may retry with backoff.
	ErrConnection = errors.New("database connection failed")

	// ErrPoolExhausted indicates no connection became available within the
	// acquire timeout. Retryable; signals backpressure.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)
