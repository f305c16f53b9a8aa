// Package backend builds the document store, account service and export
// target selected by configuration.
package backend

import (
	"context"

	"spendwise/internal/auth"
	"spendwise/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// StoreResult contains the store instance and its cleanup function
type StoreResult struct {
	Store   store.Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateStore opens the document store named by config.Type.
	CreateStore(ctx context.Context, config Config) (*StoreResult, error)

	// CreateAccounts returns the account service; local accounts live in st.
	CreateAccounts(config Config, st store.AccountStore) (auth.Service, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresURL string

	// Mongo specific
	MongoURI      string
	MongoDatabase string

	// Accounts
	AuthProvider string
	SupabaseURL  string
	SupabaseKey  string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MongoBackend    BackendType = "mongo"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, MongoBackend:
		return true
	default:
		return false
	}
}

// Shared reports whether separate processes see the same data. The
// in-memory store lives and dies with one process.
func (bt BackendType) Shared() bool {
	return bt != MemoryBackend
}
