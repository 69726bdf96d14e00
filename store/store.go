package store

import (
	"context"
	"errors"
	"fmt"

	"messageboard/config"
	"messageboard/models"
)

var (
	ErrNotFound       = errors.New("message not found")
	ErrNotInitialized = errors.New("store not initialized")
)

// Repository abstracts message persistence & retrieval.
type Repository interface {
	// InsertMessage is idempotent on the message id.
	InsertMessage(ctx context.Context, msg models.Message) error
	// GetAllMessages returns every message, oldest first.
	GetAllMessages(ctx context.Context) ([]models.Message, error)
	// GetRecentMessages returns the newest limit messages, oldest first.
	// A limit <= 0 returns everything.
	GetRecentMessages(ctx context.Context, limit int) ([]models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects the backend selected by cfg.StoreDriver and makes sure its
// schema exists.
func Open(ctx context.Context, cfg config.Config) (Repository, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return migrated(ctx, s)
	case config.DriverPostgres:
		s, err := OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return migrated(ctx, s)
	case config.DriverMongo:
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func migrated(ctx context.Context, s *SQLStore) (Repository, error) {
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("migrate %s: %w", s.dialect, err)
	}
	return s, nil
}
