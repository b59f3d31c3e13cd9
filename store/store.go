package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrInvalidAPIKey is returned when a key is unknown or disabled.
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// DBInterface is the minimal pgx surface the store needs. Both
// *pgxpool.Pool and pgxmock satisfy it.
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store gives access to the relational records: API keys, the document
// registry, chat history and model settings.
type Store struct {
	db DBInterface
}

// New creates a store over an existing database handle.
func New(db DBInterface) *Store {
	return &Store{db: db}
}

// Connect opens a pgx pool against databaseURL and returns a store over it.
func Connect(ctx context.Context, databaseURL string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return New(pool), pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY,
		key_hash TEXT UNIQUE NOT NULL,
		key_prefix TEXT NOT NULL,
		name TEXT NOT NULL,
		is_active BOOLEAN DEFAULT TRUE,
		usage_count BIGINT DEFAULT 0,
		rate_limit INTEGER DEFAULT 60,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size BIGINT NOT NULL,
		chunk_count INTEGER DEFAULT 0,
		is_indexed BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_history (
		id UUID PRIMARY KEY,
		api_key_id UUID REFERENCES api_keys(id),
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_documents TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS model_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		active_model TEXT NOT NULL,
		temperature REAL DEFAULT 0.7,
		context_length INTEGER DEFAULT 4096,
		top_p REAL DEFAULT 0.9,
		fallback_model TEXT,
		system_prompt TEXT,
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
}

// Setup creates the tables if they are missing and seeds the model
// settings singleton with defaultModel.
func (s *Store) Setup(ctx context.Context, defaultModel string) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set up schema: %w", err)
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO model_settings (id, active_model) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`,
		defaultModel)
	if err != nil {
		return fmt.Errorf("failed to seed model settings: %w", err)
	}
	return nil
}
