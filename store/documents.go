package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Document is a registry record for an uploaded file. The indexed
// content itself lives in the knowledge base.
type Document struct {
	ID               uuid.UUID
	Filename         string
	OriginalFilename string
	FileType         string
	FileSize         int64
	ChunkCount       int
	IsIndexed        bool
	CreatedAt        time.Time
}

// AddDocument registers an uploaded file and returns its ID.
func (s *Store) AddDocument(ctx context.Context, filename, originalFilename, fileType string, fileSize int64) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (id, filename, original_filename, file_type, file_size) VALUES ($1, $2, $3, $4, $5)`,
		id, filename, originalFilename, fileType, fileSize)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add document: %w", err)
	}
	return id, nil
}

// MarkDocumentIndexed records that a document has been chunked and indexed.
func (s *Store) MarkDocumentIndexed(ctx context.Context, id uuid.UUID, chunkCount int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET is_indexed = TRUE, chunk_count = $1 WHERE id = $2`,
		chunkCount, id)
	if err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns all registered documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, filename, original_filename, file_type, file_size, chunk_count, is_indexed, created_at
		 FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.FileType,
			&doc.FileSize, &doc.ChunkCount, &doc.IsIndexed, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetDocument returns a single document by ID.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := s.db.QueryRow(ctx,
		`SELECT id, filename, original_filename, file_type, file_size, chunk_count, is_indexed, created_at
		 FROM documents WHERE id = $1`, id).Scan(
		&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.FileType,
		&doc.FileSize, &doc.ChunkCount, &doc.IsIndexed, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// DeleteDocument removes a document record.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
