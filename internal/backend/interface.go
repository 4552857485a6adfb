package backend

import (
	"context"

	"gestionjm/internal/identity"
	"gestionjm/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired ledger service, the identity provider that
// shares its store, and the function releasing both.
type BackendResult struct {
	Service  *services.LedgerService
	Identity *identity.Provider
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific; an empty path starts empty.
	SeedFile string

	// Sync publishing, optional for both backends.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	DefaultPins map[string]string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
