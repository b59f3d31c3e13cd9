package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChatEntry is a recorded question/answer exchange.
type ChatEntry struct {
	ID              uuid.UUID
	APIKeyID        *uuid.UUID
	Question        string
	Answer          string
	SourceType      string
	SourceDocuments *string
	CreatedAt       time.Time
}

// AddChatEntry records an exchange. sourceDocuments is a comma-separated
// list of the source files the answer was grounded on, nil when the
// answer came from model knowledge alone.
func (s *Store) AddChatEntry(ctx context.Context, apiKeyID *uuid.UUID, question, answer, sourceType string, sourceDocuments *string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO chat_history (id, api_key_id, question, answer, source_type, source_documents)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), apiKeyID, question, answer, sourceType, sourceDocuments)
	if err != nil {
		return fmt.Errorf("failed to record chat entry: %w", err)
	}
	return nil
}

// ListChatHistory returns the most recent exchanges, newest first.
func (s *Store) ListChatHistory(ctx context.Context, limit int) ([]ChatEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, api_key_id, question, answer, source_type, source_documents, created_at
		 FROM chat_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat history: %w", err)
	}
	defer rows.Close()

	entries := []ChatEntry{}
	for rows.Next() {
		var entry ChatEntry
		if err := rows.Scan(
			&entry.ID, &entry.APIKeyID, &entry.Question, &entry.Answer,
			&entry.SourceType, &entry.SourceDocuments, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
