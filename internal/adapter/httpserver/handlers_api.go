package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	apperrors "github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

type createDocumentRequest struct {
	Title   *string `json:"title"`
	Content string  `json:"content"`
}

type updateDocumentRequest struct {
	Content string  `json:"content"`
	Title   *string `json:"title"`
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api", apiRateLimiter(s.config))
	api.GET("/documents", s.handleListDocuments)
	api.GET("/documents/:id", s.handleGetDocument)
	api.POST("/documents", s.handleCreateDocument)
	api.PUT("/documents/:id", s.handleUpdateDocument)
}

// handleListDocuments never fails: an unreachable store yields an empty list.
func (s *Server) handleListDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to list documents", "error", err)
		docs = nil
	}
	if docs == nil {
		docs = []domain.Document{}
	}

	if err := c.JSON(http.StatusOK, map[string]any{"documents": docs}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleGetDocument answers 404 both for unknown ids and for an unreachable store.
func (s *Server) handleGetDocument(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			slog.WarnContext(ctx, "Failed to load document", "document_id", id, "error", err)
		}
		return apperrors.NotFoundError("Document not found").WithField("document_id", id)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"document": doc}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCreateDocument(c echo.Context) error {
	ctx := c.Request().Context()

	var req createDocumentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	title := domain.DefaultDocumentTitle
	if req.Title != nil && *req.Title != "" {
		title = *req.Title
	}

	doc, err := s.store.CreateDocument(ctx, title, req.Content)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	slog.InfoContext(ctx, "Document created via API", "document_id", doc.ID, "title", doc.Title)

	if err := c.JSON(http.StatusCreated, map[string]any{"document": doc}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleUpdateDocument(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var req updateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithField("document_id", id)
	}

	doc, err := s.store.UpdateDocument(ctx, id, req.Content, req.Title)
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"document": doc}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
