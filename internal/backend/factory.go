package backend

import (
	"context"
	"fmt"

	"spendwise/internal/auth"
	"spendwise/internal/config"
	"spendwise/internal/log"
	"spendwise/internal/store"
	"spendwise/internal/store/memory"
	"spendwise/internal/store/mongo"
	"spendwise/internal/store/postgres"
	"spendwise/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*StoreResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		st  store.Backend
		err error
	)
	switch config.Type {
	case MemoryBackend:
		st = memory.New()
	case SQLiteBackend:
		st, err = sqlite.Open(config.SQLiteDBPath)
	case PostgresBackend:
		st, err = postgres.Open(ctx, config.PostgresURL)
	case MongoBackend:
		st, err = mongo.Open(ctx, config.MongoURI, config.MongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", config.Type, err)
	}

	f.logger.InfoContext(ctx, "Initialized document store", log.FieldBackend, config.Type.String())
	return &StoreResult{Store: st, Cleanup: st.Close}, nil
}

// CreateAccounts implements Factory.CreateAccounts
func (f *DefaultFactory) CreateAccounts(cfg Config, st store.AccountStore) (auth.Service, error) {
	switch cfg.AuthProvider {
	case "", config.AuthLocal:
		if st == nil {
			return nil, fmt.Errorf("local accounts need an account store")
		}
		f.logger.Info("Using local accounts")
		return auth.NewLocalProvider(st), nil
	case config.AuthSupabase:
		p, err := auth.NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, err
		}
		f.logger.Info("Using Supabase accounts", "url", cfg.SupabaseURL)
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported auth provider: %s", cfg.AuthProvider)
	}
}
