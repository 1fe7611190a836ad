package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const createStateTable = `
CREATE TABLE IF NOT EXISTS chat_state (
    slot       TEXT PRIMARY KEY,
    blob       TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// SQLStore keeps each slot as one row of the chat_state table.
type SQLStore struct {
	db      *sql.DB
	getSQL  string
	putSQL  string
	dialect string
}

var _ Store = (*SQLStore)(nil)

func OpenPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres store requires a dsn")
	}
	s := &SQLStore{
		dialect: "postgres",
		getSQL:  `SELECT blob FROM chat_state WHERE slot = $1`,
		putSQL: `
        INSERT INTO chat_state (slot, blob, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (slot)
        DO UPDATE SET
            blob = EXCLUDED.blob,
            updated_at = EXCLUDED.updated_at`,
	}
	return s, s.open(ctx, "postgres", withSSLMode(dsn))
}

func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite store requires a dsn")
	}
	s := &SQLStore{
		dialect: "sqlite",
		getSQL:  `SELECT blob FROM chat_state WHERE slot = ?`,
		putSQL: `
        INSERT INTO chat_state (slot, blob, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT (slot)
        DO UPDATE SET
            blob = excluded.blob,
            updated_at = excluded.updated_at`,
	}
	return s, s.open(ctx, "sqlite", dsn)
}

func (s *SQLStore) open(ctx context.Context, driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return errors.Wrapf(err, "failed to ping %s", driver)
	}
	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "create chat_state table")
	}
	s.db = db
	log.Info().Str("driver", driver).Msg("sql store ready")
	return nil
}

// withSSLMode disables TLS for DSNs that do not mention it, which is what a
// local postgres expects.
func withSSLMode(dsn string) string {
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&sslmode=disable"
		}
		return dsn + "?sslmode=disable"
	}
	return dsn + " sslmode=disable"
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, s.getSQL, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s get %s", s.dialect, key)
	}
	return []byte(blob), nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.putSQL, key, string(value), time.Now().UTC()); err != nil {
		return errors.Wrapf(err, "%s put %s", s.dialect, key)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
