package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKey is a stored key record. The key itself is never persisted,
// only its SHA-256 hash and a display prefix.
type APIKey struct {
	ID         uuid.UUID
	KeyPrefix  string
	Name       string
	IsActive   bool
	UsageCount int64
	RateLimit  int
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// CreatedAPIKey is returned once at creation time and includes the
// plaintext key.
type CreatedAPIKey struct {
	APIKey
	Key string
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey generates a new key, stores its hash and returns the
// plaintext key. This is the only time the plaintext is available.
func (s *Store) CreateAPIKey(ctx context.Context, name string, rateLimit int) (*CreatedAPIKey, error) {
	key := strings.ReplaceAll(uuid.NewString(), "-", "")
	id := uuid.New()

	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, name, rate_limit) VALUES ($1, $2, $3, $4, $5)`,
		id, hashKey(key), key[:8], name, rateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return &CreatedAPIKey{
		APIKey: APIKey{
			ID:        id,
			KeyPrefix: key[:8],
			Name:      name,
			IsActive:  true,
			RateLimit: rateLimit,
		},
		Key: key,
	}, nil
}

// VerifyAPIKey checks a plaintext key against the active keys and, on a
// match, bumps the usage counter. Unknown or disabled keys return
// ErrInvalidAPIKey.
func (s *Store) VerifyAPIKey(ctx context.Context, key string) (*APIKey, error) {
	keyHash := hashKey(key)

	var record APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, key_prefix, name, is_active, usage_count, rate_limit, created_at, last_used_at
		 FROM api_keys WHERE key_hash = $1 AND is_active = TRUE`,
		keyHash).Scan(
		&record.ID, &record.KeyPrefix, &record.Name, &record.IsActive,
		&record.UsageCount, &record.RateLimit, &record.CreatedAt, &record.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to verify API key: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1`,
		record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update API key usage: %w", err)
	}

	record.UsageCount++
	return &record, nil
}

// ListAPIKeys returns all keys, newest first, without key material.
func (s *Store) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, key_prefix, name, is_active, usage_count, rate_limit, created_at, last_used_at
		 FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	keys := []APIKey{}
	for rows.Next() {
		var record APIKey
		if err := rows.Scan(
			&record.ID, &record.KeyPrefix, &record.Name, &record.IsActive,
			&record.UsageCount, &record.RateLimit, &record.CreatedAt, &record.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, record)
	}
	return keys, rows.Err()
}

// SetAPIKeyActive enables or disables a key.
func (s *Store) SetAPIKeyActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE api_keys SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAPIKey removes a key.
func (s *Store) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
