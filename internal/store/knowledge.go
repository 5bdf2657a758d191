package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReplaceChunks atomically replaces all knowledge chunks from one
// source. The ingester calls this per document so re-imports are clean.
func (s *Store) ReplaceChunks(ctx context.Context, source string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", source, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range chunks {
		if c.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("generate chunk ID: %w", err)
			}
			c.ID = id.String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_chunks (id, source, section, content, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, source, c.Section, c.Content, encodeVector(c.Embedding), now,
		)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk replace: %w", err)
	}
	return nil
}

// Chunks loads every knowledge chunk with its embedding. The retriever
// scores these in memory; the corpus is small enough that a full scan
// beats maintaining an index.
func (s *Store) Chunks(ctx context.Context) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, COALESCE(section, ''), content, embedding, created_at
		 FROM knowledge_chunks`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		var created string
		if err := rows.Scan(&c.ID, &c.Source, &c.Section, &c.Content, &blob, &created); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = decodeVector(blob)
		c.CreatedAt, _ = time.Parse(time.RFC3339, created)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
