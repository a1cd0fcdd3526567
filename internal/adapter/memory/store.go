// Package memory is an in-process DocumentStore for development and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Store struct {
	mu    sync.RWMutex
	docs  map[string]domain.Document
	clock clockwork.Clock
}

var _ domain.DocumentStore = (*Store)(nil)

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		docs:  make(map[string]domain.Document),
		clock: clock,
	}
}

func (s *Store) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, clone(d))
	}
	s.mu.RUnlock()

	slices.SortStableFunc(docs, func(a, b domain.Document) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return docs, nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	out := clone(d)
	return &out, nil
}

func (s *Store) CreateDocument(_ context.Context, title, content string) (*domain.Document, error) {
	now := s.clock.Now().UTC()
	d := domain.Document{
		ID:            uuid.NewString(),
		Title:         title,
		Content:       content,
		Collaborators: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.docs[d.ID] = d
	s.mu.Unlock()

	out := clone(d)
	return &out, nil
}

func (s *Store) UpdateDocument(_ context.Context, id, content string, title *string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	d.Content = content
	if title != nil && *title != "" {
		d.Title = *title
	}
	d.UpdatedAt = s.clock.Now().UTC()
	s.docs[id] = d

	out := clone(d)
	return &out, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func clone(d domain.Document) domain.Document {
	d.Collaborators = slices.Clone(d.Collaborators)
	if d.Collaborators == nil {
		d.Collaborators = []string{}
	}
	return d
}
