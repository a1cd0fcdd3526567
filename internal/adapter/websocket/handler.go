package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/metrics"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/correlation"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	resultOK          = "ok"
	resultDropped     = "dropped"
	resultRateLimited = "rate_limited"
	resultInvalid     = "invalid"
	resultError       = "error"

	unknownEventLabel = "unknown"
)

var (
	errUnknownEvent      = errors.New("unknown event")
	errMissingDocumentID = errors.New("documentId is required")
)

// Coordinator handles the events of one connection.
type Coordinator interface {
	Connect(ctx context.Context, id domain.ConnectionID)
	Identify(ctx context.Context, id domain.ConnectionID, username string) domain.UserProfile
	CreateDocument(ctx context.Context, id domain.ConnectionID, title string) (*domain.Document, error)
	JoinDocument(ctx context.Context, id domain.ConnectionID, documentID string) error
	ContentChange(ctx context.Context, id domain.ConnectionID, documentID, content string) error
	SaveDocument(ctx context.Context, id domain.ConnectionID, documentID, content string, title *string) (*domain.Document, error)
	CursorMove(ctx context.Context, id domain.ConnectionID, documentID string, position domain.CursorPosition) error
	Disconnect(ctx context.Context, id domain.ConnectionID)
}

// Transport owns the outbound side of a connection.
type Transport interface {
	Register(id domain.ConnectionID, conn *websocket.Conn) error
	Unregister(id domain.ConnectionID)
}

type Config struct {
	CheckOrigin     func(r *http.Request) bool
	MaxMessageBytes int64
	EventRate       float64
	EventBurst      int
}

// Handler upgrades HTTP requests to WebSocket connections and runs their read loops.
type Handler struct {
	coordinator Coordinator
	transport   Transport
	limits      *ConnectionLimits
	upgrader    websocket.Upgrader
	cfg         Config
	clock       clockwork.Clock
	metrics     *metrics.WebSocketMetrics
}

func NewHandler(coordinator Coordinator, transport Transport, limits *ConnectionLimits, cfg Config, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Handler {
	return &Handler{
		coordinator: coordinator,
		transport:   transport,
		limits:      limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		cfg:     cfg,
		clock:   clock,
		metrics: m,
	}
}

// Handle serves GET /ws. It blocks until the connection is gone.
func (h *Handler) Handle(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := h.limits.Acquire(ip); !ok {
		h.metrics.RejectedConnections.WithLabelValues(string(reason)).Inc()
		slog.Warn("WebSocket connection rejected", "reason", reason, "remote_ip", ip)

		status := http.StatusServiceUnavailable
		if reason == LimitReasonRate {
			status = http.StatusTooManyRequests
		}
		return c.JSON(status, map[string]string{"error": "Too many connections"})
	}
	defer h.limits.Release(ip)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		h.metrics.RejectedConnections.WithLabelValues("upgrade_failed").Inc()
		slog.Debug("WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	id := domain.ConnectionID(uuid.NewString())
	ctx := correlation.WithConnectionID(context.WithoutCancel(c.Request().Context()), id.String())

	if err := h.transport.Register(id, conn); err != nil {
		slog.WarnContext(ctx, "Failed to register connection", "error", err)
		_ = conn.Close()
		return nil
	}
	slog.DebugContext(ctx, "Client connected", "remote_ip", ip)

	h.coordinator.Connect(ctx, id)
	h.readLoop(ctx, id, conn)

	h.coordinator.Disconnect(ctx, id)
	h.transport.Unregister(id)
	slog.DebugContext(ctx, "Client disconnected")

	return nil
}

func (h *Handler) readLoop(ctx context.Context, id domain.ConnectionID, conn *websocket.Conn) {
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	limiter := rate.NewLimiter(rate.Limit(h.cfg.EventRate), h.cfg.EventBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "WebSocket read failed", "error", err)
			}
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			h.record(unknownEventLabel, resultInvalid)
			slog.DebugContext(ctx, "Malformed frame dropped", "error", err)
			continue
		}

		if !limiter.AllowN(h.clock.Now(), 1) {
			h.record(env.Event, resultRateLimited)
			slog.DebugContext(ctx, "Event rate limited", "event", env.Event)
			continue
		}

		h.record(env.Event, h.dispatch(ctx, id, env))
	}
}

// dispatch runs one event and returns its result label. It never panics.
func (h *Handler) dispatch(ctx context.Context, id domain.ConnectionID, env domain.Envelope) (result string) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Panic while handling event", "event", env.Event, "panic", r)
			result = resultError
		}
	}()

	err := h.route(ctx, id, env)
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, domain.ErrNotIdentified), errors.Is(err, domain.ErrNotMember):
		slog.DebugContext(ctx, "Event dropped", "event", env.Event, "reason", err)
		return resultDropped
	case errors.Is(err, errUnknownEvent), errors.Is(err, errMissingDocumentID), isDecodeError(err):
		slog.DebugContext(ctx, "Invalid event dropped", "event", env.Event, "error", err)
		return resultInvalid
	default:
		slog.WarnContext(ctx, "Event failed", "event", env.Event, "error", err)
		return resultError
	}
}

func (h *Handler) route(ctx context.Context, id domain.ConnectionID, env domain.Envelope) error {
	switch env.Event {
	case domain.EventJoin:
		var p domain.JoinPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		h.coordinator.Identify(ctx, id, p.Username)
		return nil

	case domain.EventCreateDocument:
		var p domain.CreateDocumentPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		_, err := h.coordinator.CreateDocument(ctx, id, p.Title)
		return err

	case domain.EventJoinDocument:
		var p domain.JoinDocumentPayload
		if err := decodeWithDocument(env.Data, &p, &p.DocumentID); err != nil {
			return err
		}
		return h.coordinator.JoinDocument(ctx, id, p.DocumentID)

	case domain.EventContentChange:
		var p domain.ContentChangePayload
		if err := decodeWithDocument(env.Data, &p, &p.DocumentID); err != nil {
			return err
		}
		return h.coordinator.ContentChange(ctx, id, p.DocumentID, p.Content)

	case domain.EventSaveDocument:
		var p domain.SaveDocumentPayload
		if err := decodeWithDocument(env.Data, &p, &p.DocumentID); err != nil {
			return err
		}
		_, err := h.coordinator.SaveDocument(ctx, id, p.DocumentID, p.Content, p.Title)
		return err

	case domain.EventCursorMove:
		var p domain.CursorMovePayload
		if err := decodeWithDocument(env.Data, &p, &p.DocumentID); err != nil {
			return err
		}
		return h.coordinator.CursorMove(ctx, id, p.DocumentID, p.Position)

	default:
		return errUnknownEvent
	}
}

func (h *Handler) record(event, result string) {
	if !knownEvent(event) {
		event = unknownEventLabel
	}
	h.metrics.InboundEvents.WithLabelValues(event, result).Inc()
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return fmt.Sprintf("decode payload: %v", e.err) }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}

// decode treats a missing payload as an empty object.
func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

func decodeWithDocument(data json.RawMessage, dst any, documentID *string) error {
	if err := decode(data, dst); err != nil {
		return err
	}
	if *documentID == "" {
		return errMissingDocumentID
	}
	return nil
}

func knownEvent(event string) bool {
	switch event {
	case domain.EventJoin, domain.EventCreateDocument, domain.EventJoinDocument,
		domain.EventContentChange, domain.EventSaveDocument, domain.EventCursorMove:
		return true
	}
	return false
}
