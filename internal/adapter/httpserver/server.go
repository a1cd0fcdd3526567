package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/metrics"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

// SessionStats reports live collaboration counters for /stats.
type SessionStats interface {
	IdentifiedConnections() int
	RoomCount() int
	RoomMembers() int
}

// ConnectionCounter reports open real-time connections.
type ConnectionCounter interface {
	Count() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	store       domain.DocumentStore
	stats       SessionStats
	connections ConnectionCounter

	websocketHandler echo.HandlerFunc
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

type Options struct {
	Store            domain.DocumentStore
	Stats            SessionStats
	Connections      ConnectionCounter
	WebSocketHandler echo.HandlerFunc
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics
	HealthChecks     []HealthCheck
	Clock            clockwork.Clock
}

func NewServer(cfg *config.Config, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		store:            opts.Store,
		stats:            opts.Stats,
		connections:      opts.Connections,
		websocketHandler: opts.WebSocketHandler,
		metricsHandler:   opts.MetricsHandler,
		httpMetrics:      opts.HTTPMetrics,
		healthChecks:     opts.HealthChecks,
		clock:            opts.Clock,
		startTime:        opts.Clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
