package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chatdesk/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

	require.NoError(t, s.Put(ctx, "chatbot_conversations", []byte(`[{"id":"a"}]`)))
	got, err := s.Get(ctx, "chatbot_conversations")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, string(got))

	// full overwrite, never a merge
	require.NoError(t, s.Put(ctx, "chatbot_conversations", []byte(`[]`)))
	got, err = s.Get(ctx, "chatbot_conversations")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	require.NoError(t, s.Put(ctx, "other", []byte("x")))
	got, err = s.Get(ctx, "chatbot_conversations")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, s.Put(context.Background(), "k", buf))
	buf[0] = 'z'

	got, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestPebbleStore(t *testing.T) {
	s, err := OpenPebbleStore(filepath.Join(t.TempDir(), "pebble"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runStoreContract(t, s)
}

func TestPebbleStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	s, err := OpenPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = OpenPebbleStore(dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestBoltStore(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "state.bolt"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runStoreContract(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runStoreContract(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHATDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATDESK_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runStoreContract(t, s)
}

func TestDynamoStore(t *testing.T) {
	endpoint := os.Getenv("CHATDESK_TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("CHATDESK_TEST_DYNAMODB_ENDPOINT not set")
	}
	s, err := OpenDynamoStore(context.Background(), DynamoOptions{
		Table:    "ChatStateTest",
		Endpoint: endpoint,
		Region:   "us-east-1",
	})
	require.NoError(t, err)
	runStoreContract(t, s)
}

func TestOpenSelectsDriver(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		cfg    config.StoreConfig
		expect interface{}
	}{
		{"memory", config.StoreConfig{Driver: "memory"}, &MemoryStore{}},
		{"pebble", config.StoreConfig{Driver: "pebble", Path: filepath.Join(dir, "p")}, &PebbleStore{}},
		{"bolt", config.StoreConfig{Driver: "bolt", Path: filepath.Join(dir, "b")}, &BoltStore{}},
		{"sqlite", config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "s")}, &SQLStore{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.cfg)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()
			assert.IsType(t, tt.expect, s)
		})
	}

	_, err := Open(context.Background(), config.StoreConfig{Driver: "floppy"})
	assert.Error(t, err)
}

func TestWithSSLMode(t *testing.T) {
	assert.Equal(t, "postgres://u@h/db?sslmode=disable", withSSLMode("postgres://u@h/db"))
	assert.Equal(t, "postgres://u@h/db?x=1&sslmode=disable", withSSLMode("postgres://u@h/db?x=1"))
	assert.Equal(t, "host=h dbname=db sslmode=disable", withSSLMode("host=h dbname=db"))
	assert.Equal(t, "host=h sslmode=require", withSSLMode("host=h sslmode=require"))
}
