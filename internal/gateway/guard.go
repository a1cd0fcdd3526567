// Package gateway bounds and isolates every call into the document store.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/metrics"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/retry"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
)

// Guard decorates a DocumentStore with a deadline per operation, a circuit breaker and
// retries for reads. Any failure other than a missing document is reported as
// domain.ErrGatewayUnavailable.
type Guard struct {
	store   domain.DocumentStore
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	policy  retry.Policy
	clock   clockwork.Clock
	metrics *metrics.GatewayMetrics
}

var _ domain.DocumentStore = (*Guard)(nil)

// DefaultBreakerSettings opens the circuit when at least 60% of 5 or more requests in a
// 10s window fail, and lets one request through again after 30s.
func DefaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "document-store",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
}

// DefaultRetryPolicy retries reads twice with a short backoff.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:      3,
		InitialBackoff:   100 * time.Millisecond,
		RateLimitBackoff: 500 * time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Debug("Retrying document store read", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
}

func NewGuard(store domain.DocumentStore, timeout time.Duration, clock clockwork.Clock, m *metrics.GatewayMetrics) *Guard {
	return newGuard(store, timeout, clock, m, DefaultBreakerSettings(), DefaultRetryPolicy())
}

func newGuard(store domain.DocumentStore, timeout time.Duration, clock clockwork.Clock, m *metrics.GatewayMetrics,
	settings gobreaker.Settings, policy retry.Policy) *Guard {
	policy.Clock = clock
	settings.IsSuccessful = isSuccessful
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		m.CircuitStateChanges.WithLabelValues(to.String()).Inc()
		m.CircuitState.Set(stateToFloat(to))
	}

	return &Guard{
		store:   store,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
		policy:  policy,
		clock:   clock,
		metrics: m,
	}
}

// State reports the current circuit breaker state.
func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}

func (g *Guard) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return guarded(ctx, g, "list", true, func(ctx context.Context) ([]domain.Document, error) {
		return g.store.ListDocuments(ctx)
	})
}

func (g *Guard) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return guarded(ctx, g, "get", true, func(ctx context.Context) (*domain.Document, error) {
		return g.store.GetDocument(ctx, id)
	})
}

func (g *Guard) CreateDocument(ctx context.Context, title, content string) (*domain.Document, error) {
	return guarded(ctx, g, "create", false, func(ctx context.Context) (*domain.Document, error) {
		return g.store.CreateDocument(ctx, title, content)
	})
}

func (g *Guard) UpdateDocument(ctx context.Context, id, content string, title *string) (*domain.Document, error) {
	return guarded(ctx, g, "update", false, func(ctx context.Context) (*domain.Document, error) {
		return g.store.UpdateDocument(ctx, id, content, title)
	})
}

func (g *Guard) Ping(ctx context.Context) error {
	_, err := guarded(ctx, g, "ping", false, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.Ping(ctx)
	})
	return err
}

// guarded runs op under one deadline for the whole operation, retries included.
// Writes are not retried: a timed out write may still have been applied.
func guarded[T any](ctx context.Context, g *Guard, op string, retryable bool, fn func(context.Context) (T, error)) (T, error) {
	start := g.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	attempt := func() (T, error) {
		v, err := g.cb.Execute(func() (any, error) {
			return fn(ctx)
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}

	var (
		v   T
		err error
	)
	if retryable {
		v, err = retry.Do(ctx, g.policy, classify, attempt)
	} else {
		v, err = attempt()
	}

	g.metrics.OperationDuration.WithLabelValues(op).Observe(g.clock.Since(start).Seconds())
	g.metrics.Operations.WithLabelValues(op, resultLabel(err)).Inc()

	if err == nil {
		return v, nil
	}

	var zero T
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return zero, fmt.Errorf("%s: %w", op, domain.ErrDocumentNotFound)
	}
	return zero, fmt.Errorf("%w: %s: %w", domain.ErrGatewayUnavailable, op, err)
}

func classify(err error) retry.Action {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return retry.Stop
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return retry.After
	default:
		return retry.Retry
	}
}

// isSuccessful keeps a missing document or a caller going away from counting against the store.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, domain.ErrDocumentNotFound) || errors.Is(err, context.Canceled)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
