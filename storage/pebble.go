package storage

import (
	"context"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type PebbleStore struct {
	db   *pebble.DB
	path string
}

var _ Store = (*PebbleStore)(nil)

// OpenPebbleStore opens (or creates) a pebble database directory at path.
func OpenPebbleStore(path string) (*PebbleStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create pebble dir %s", path)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("pebble open failed")
		return nil, errors.Wrapf(err, "open pebble at %s", path)
	}
	log.Info().Str("path", path).Msg("pebble opened")
	return &PebbleStore{db: db, path: path}, nil
}

func (s *PebbleStore) Get(_ context.Context, key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "pebble get %s", key)
	}
	defer func() { _ = closer.Close() }()
	return cloneBytes(v), nil
}

func (s *PebbleStore) Put(_ context.Context, key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return errors.Wrapf(err, "pebble set %s", key)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	log.Info().Str("path", s.path).Msg("pebble closed")
	return err
}
