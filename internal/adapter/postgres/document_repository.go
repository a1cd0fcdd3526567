package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

const documentColumns = "id, title, content, collaborators, created_at, updated_at"

type DocumentRepo struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

var _ domain.DocumentStore = (*DocumentRepo)(nil)

func NewDocumentRepo(pool *pgxpool.Pool, clock clockwork.Clock) *DocumentRepo {
	return &DocumentRepo{pool: pool, clock: clock}
}

func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs, err := pgx.CollectRows(rows, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return collectOne(rows)
}

func (r *DocumentRepo) CreateDocument(ctx context.Context, title, content string) (*domain.Document, error) {
	// Postgres stores microseconds.
	now := r.clock.Now().UTC().Truncate(time.Microsecond)
	rows, err := r.pool.Query(ctx,
		"INSERT INTO documents (id, title, content, created_at, updated_at) VALUES ($1, $2, $3, $4, $4) RETURNING "+documentColumns,
		uuid.NewString(), title, content, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return collectOne(rows)
}

// UpdateDocument keeps the stored title when title is nil or empty.
func (r *DocumentRepo) UpdateDocument(ctx context.Context, id, content string, title *string) (*domain.Document, error) {
	var newTitle *string
	if title != nil && *title != "" {
		newTitle = title
	}

	rows, err := r.pool.Query(ctx,
		"UPDATE documents SET content = $2, title = COALESCE($3, title), updated_at = $4 WHERE id = $1 RETURNING "+documentColumns,
		id, content, newTitle, r.clock.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return collectOne(rows)
}

func (r *DocumentRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func collectOne(rows pgx.Rows) (*domain.Document, error) {
	doc, err := pgx.CollectExactlyOneRow(rows, scanDocument)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return &doc, nil
}

func scanDocument(row pgx.CollectableRow) (domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Collaborators, &d.CreatedAt, &d.UpdatedAt)
	if d.Collaborators == nil {
		d.Collaborators = []string{}
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, err
}
