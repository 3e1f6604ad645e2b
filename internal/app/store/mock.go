package store

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store used in tests. Each method delegates to the
// corresponding Func field when set, allowing failure injection; otherwise it
// records the call against the in-memory state.
type MockStore struct {
	mu sync.Mutex

	LoadStateFunc     func(ctx context.Context, kind, id string) (*DocumentState, error)
	SaveContentFunc   func(ctx context.Context, kind, id, content string) error
	SaveCommentFunc   func(ctx context.Context, kind, id string, comment Comment) error
	UpdateCommentFunc func(ctx context.Context, commentID string, resolved bool) error

	SaveContentCalls   int
	SaveCommentCalls   int
	UpdateCommentCalls int

	Contents map[string]string
	Comments map[string][]Comment
}

func key(kind, id string) string { return kind + "-" + id }

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		Contents: make(map[string]string),
		Comments: make(map[string][]Comment),
	}
}

func (m *MockStore) LoadState(ctx context.Context, kind, id string) (*DocumentState, error) {
	if m.LoadStateFunc != nil {
		return m.LoadStateFunc(ctx, kind, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return &DocumentState{
		Content:  m.Contents[key(kind, id)],
		Comments: append([]Comment(nil), m.Comments[key(kind, id)]...),
	}, nil
}

func (m *MockStore) SaveContent(ctx context.Context, kind, id, content string) error {
	m.mu.Lock()
	m.SaveContentCalls++
	m.mu.Unlock()

	if m.SaveContentFunc != nil {
		return m.SaveContentFunc(ctx, kind, id, content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Contents[key(kind, id)] = content
	return nil
}

func (m *MockStore) SaveComment(ctx context.Context, kind, id string, comment Comment) error {
	m.mu.Lock()
	m.SaveCommentCalls++
	m.mu.Unlock()

	if m.SaveCommentFunc != nil {
		return m.SaveCommentFunc(ctx, kind, id, comment)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Comments[key(kind, id)] = append(m.Comments[key(kind, id)], comment)
	return nil
}

func (m *MockStore) UpdateComment(ctx context.Context, commentID string, resolved bool) error {
	m.mu.Lock()
	m.UpdateCommentCalls++
	m.mu.Unlock()

	if m.UpdateCommentFunc != nil {
		return m.UpdateCommentFunc(ctx, commentID, resolved)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for docKey, comments := range m.Comments {
		for i := range comments {
			if comments[i].ID == commentID {
				m.Comments[docKey][i].Resolved = resolved
				return nil
			}
		}
	}
	return nil
}

// ContentCallCount returns the number of SaveContent calls made so far.
func (m *MockStore) ContentCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SaveContentCalls
}

// CommentCallCount returns the number of SaveComment calls made so far.
func (m *MockStore) CommentCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SaveCommentCalls
}

// UpdateCallCount returns the number of UpdateComment calls made so far.
func (m *MockStore) UpdateCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UpdateCommentCalls
}
