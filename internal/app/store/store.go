/*
Package store is the persistence adapter for room documents and comments.

The collaboration core depends only on the narrow Store interface defined here;
every call is best-effort from the core's perspective, and the in-memory room
state remains authoritative for live sessions even when the durable store is down.
*/
package store

import (
	"context"
	"time"
)

// Comment is one threaded comment on a document section.
type Comment struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	AuthorEmail string    `json:"authorEmail"`
	Section     string    `json:"section"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DocumentState is the durable state of one co-edited document.
type DocumentState struct {
	Content  string
	Comments []Comment
}

// Store is the contract the collaboration core holds against the durable store.
// Documents are keyed by a (kind, id) pair, e.g. ("idea", "42").
type Store interface {
	// LoadState returns the persisted content and comments for a document.
	// A document that was never saved yields an empty state, not an error.
	LoadState(ctx context.Context, kind, id string) (*DocumentState, error)

	// SaveContent writes the full document content (last-writer-wins upsert).
	SaveContent(ctx context.Context, kind, id, content string) error

	// SaveComment appends a comment to the document.
	SaveComment(ctx context.Context, kind, id string, comment Comment) error

	// UpdateComment patches the resolved flag of an existing comment.
	UpdateComment(ctx context.Context, commentID string, resolved bool) error
}
