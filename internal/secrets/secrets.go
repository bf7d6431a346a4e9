package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/recents/internal/shared"
)

// Store reads and writes named secret records.
//
// Get returns an error matching [shared.ErrSecretNotFound] when the record does not exist.
// Put overwrites the whole record.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, value []byte) error
	Close() error
}

// GetJSON reads the record at name and decodes it into v.
func GetJSON(ctx context.Context, s Store, name string, v any) error {
	data, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode secret %q: %w", name, err)
	}
	return nil
}

// PutJSON encodes v and writes it to the record at name.
func PutJSON(ctx context.Context, s Store, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode secret %q: %w", name, err)
	}
	return s.Put(ctx, name, data)
}

// NewStore builds the backend selected by cfg.Secrets.Backend.
//
// The sqlite backend opens (and migrates) cfg.Database.
func NewStore(ctx context.Context, cfg *shared.Config) (Store, error) {
	switch shared.NormalizeBackend(cfg.Secrets.Backend) {
	case shared.BackendParameterStore:
		awsCfg, err := loadAWSConfig(ctx, cfg.Secrets.Region)
		if err != nil {
			return nil, err
		}
		return NewParameterStore(newSSMClient(awsCfg)), nil
	case shared.BackendSecretsManager:
		awsCfg, err := loadAWSConfig(ctx, cfg.Secrets.Region)
		if err != nil {
			return nil, err
		}
		return NewSecretsManagerStore(newSecretsManagerClient(awsCfg)), nil
	case shared.BackendSQLite:
		db, err := shared.OpenDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db, true), nil
	case shared.BackendRedis:
		return OpenRedisStore(ctx, cfg.Secrets.Redis)
	default:
		return nil, fmt.Errorf("%w: unknown secrets backend %q", shared.ErrInvalidConfig, cfg.Secrets.Backend)
	}
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", shared.ErrSecretNotFound, name)
}
