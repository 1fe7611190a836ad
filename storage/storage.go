// Package storage holds the single-slot key-value adapters the chat state is
// persisted through. Every driver stores one opaque blob per key and
// overwrites it on each Put.
package storage

import (
	"context"
	"path/filepath"
	"time"

	"chatdesk/config"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("storage: key not found")

type Store interface {
	// Get returns ErrNotFound when the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	log.Debug().Str("driver", cfg.Driver).Str("path", cfg.Path).Msg("opening store")

	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "pebble", "":
		return OpenPebbleStore(cfg.Path)
	case "bolt":
		return OpenBoltStore(withExt(cfg.Path, ".bolt"))
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = withExt(cfg.Path, ".db")
		}
		return OpenSQLiteStore(ctx, dsn)
	case "postgres":
		return OpenPostgresStore(ctx, cfg.DSN)
	case "dynamodb":
		return OpenDynamoStore(ctx, DynamoOptions{
			Table:    cfg.Table,
			Endpoint: cfg.Endpoint,
			Region:   cfg.Region,
		})
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenWithRetry retries Open, for databases that come up after the app
// (postgres, DynamoDB Local in compose setups).
func OpenWithRetry(ctx context.Context, cfg config.StoreConfig, attempts int, delay time.Duration) (Store, error) {
	var (
		s   Store
		err error
	)
	for i := 0; i < attempts; i++ {
		s, err = Open(ctx, cfg)
		if err == nil {
			return s, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Str("driver", cfg.Driver).Msg("failed to open store")
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, errors.Wrapf(err, "open %s store after %d attempts", cfg.Driver, attempts)
}

func withExt(path, ext string) string {
	if filepath.Ext(path) != "" {
		return path
	}
	return path + ext
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
