package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an initialized connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// LoadState returns the persisted content and comments for a document.
// An unknown (kind, id) pair yields an empty state.
func (s *PostgresStore) LoadState(ctx context.Context, kind, id string) (*DocumentState, error) {
	state := &DocumentState{}

	err := s.pool.QueryRow(ctx,
		`SELECT content FROM documents WHERE kind = $1 AND doc_id = $2`,
		kind, id,
	).Scan(&state.Content)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to load document %s-%s: %w", kind, id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, content, author_id, author_name, author_email, section, resolved, created_at
		 FROM document_comments
		 WHERE kind = $1 AND doc_id = $2
		 ORDER BY created_at`,
		kind, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments for %s-%s: %w", kind, id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Content, &c.AuthorID, &c.AuthorName, &c.AuthorEmail,
			&c.Section, &c.Resolved, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		state.Comments = append(state.Comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading comment rows: %w", err)
	}

	return state, nil
}

// SaveContent upserts the full document content.
func (s *PostgresStore) SaveContent(ctx context.Context, kind, id, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (kind, doc_id, content, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (kind, doc_id)
		 DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
		kind, id, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save content for %s-%s: %w", kind, id, err)
	}
	return nil
}

// SaveComment inserts a comment row.
func (s *PostgresStore) SaveComment(ctx context.Context, kind, id string, comment Comment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_comments
		 (id, kind, doc_id, content, author_id, author_name, author_email, section, resolved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		comment.ID, kind, id, comment.Content, comment.AuthorID, comment.AuthorName,
		comment.AuthorEmail, comment.Section, comment.Resolved, comment.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("comment %s already exists: %w", comment.ID, err)
		}
		return fmt.Errorf("failed to save comment %s: %w", comment.ID, err)
	}
	return nil
}

// UpdateComment patches the resolved flag of an existing comment.
func (s *PostgresStore) UpdateComment(ctx context.Context, commentID string, resolved bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE document_comments SET resolved = $2 WHERE id = $1`,
		commentID, resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to update comment %s: %w", commentID, err)
	}
	return nil
}
