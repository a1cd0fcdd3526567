package httpserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/config"
	"github.com/jonboulle/clockwork"
)

// --- Mock implementations ---

type mockStore struct {
	listFn   func(ctx context.Context) ([]domain.Document, error)
	getFn    func(ctx context.Context, id string) (*domain.Document, error)
	createFn func(ctx context.Context, title, content string) (*domain.Document, error)
	updateFn func(ctx context.Context, id, content string, title *string) (*domain.Document, error)
	pingFn   func(ctx context.Context) error
}

func (m *mockStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []domain.Document{}, nil
}

func (m *mockStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.ErrDocumentNotFound
}

func (m *mockStore) CreateDocument(ctx context.Context, title, content string) (*domain.Document, error) {
	if m.createFn != nil {
		return m.createFn(ctx, title, content)
	}
	return nil, errors.New("not implemented")
}

func (m *mockStore) UpdateDocument(ctx context.Context, id, content string, title *string) (*domain.Document, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, content, title)
	}
	return nil, domain.ErrDocumentNotFound
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type mockStats struct {
	identified, rooms, members, connections int
}

func (m *mockStats) IdentifiedConnections() int { return m.identified }
func (m *mockStats) RoomCount() int             { return m.rooms }
func (m *mockStats) RoomMembers() int           { return m.members }
func (m *mockStats) Count() int                 { return m.connections }

// --- Test server builder ---

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type serverOption func(*Options, *config.Config)

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(o *Options, _ *config.Config) { o.HealthChecks = checks }
}

func withStats(stats *mockStats) serverOption {
	return func(o *Options, _ *config.Config) {
		o.Stats = stats
		o.Connections = stats
	}
}

func withAPILimit(perSecond float64, burst int) serverOption {
	return func(_ *Options, cfg *config.Config) {
		cfg.APIRateLimit = perSecond
		cfg.APIBurst = burst
	}
}

func withClock(clock clockwork.Clock) serverOption {
	return func(o *Options, _ *config.Config) { o.Clock = clock }
}

func newTestServer(t *testing.T, store *mockStore, opts ...serverOption) *Server {
	t.Helper()

	cfg := &config.Config{
		AppEnv:       "development",
		AppURL:       "http://localhost:8080",
		Port:         "0",
		APIRateLimit: 1000,
		APIBurst:     1000,
	}
	stats := &mockStats{}
	o := Options{
		Store:       store,
		Stats:       stats,
		Connections: stats,
		Clock:       clockwork.NewFakeClockAt(testStart),
	}
	for _, opt := range opts {
		opt(&o, cfg)
	}

	return NewServer(cfg, o)
}
