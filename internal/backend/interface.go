// Package backend builds the ledger store and change feed selected by
// configuration.
package backend

import (
	"context"

	"feedesk/internal/amqp"
	"feedesk/internal/ledger"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result is a ready-to-use backend.
type Result struct {
	Store ledger.Store
	// Feed delivers payment changes to dashboards.
	Feed ledger.ChangeFeed
	// AMQP is nil unless a broker is configured and reachable.
	AMQP *amqp.Client
	// Ping reports storage health.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string
	PGMaxConns  int

	// Optional broker for cross-process change events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
