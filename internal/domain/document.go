package domain

import (
	"context"
	"time"
)

// DefaultDocumentTitle is used when a document is created without a title.
const DefaultDocumentTitle = "Untitled Document"

// Document is the persisted unit of collaboration. JSON field names match what
// browser clients already expect, including the "_id" key.
type Document struct {
	ID            string    `json:"_id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Collaborators []string  `json:"collaborators"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	UpdatedAt     time.Time `json:"updatedAt,omitzero"`
}

// DocumentStore is the persistence gateway. Implementations return ErrDocumentNotFound
// for unknown ids and wrap transport failures so callers can tell them apart.
type DocumentStore interface {
	// ListDocuments returns every document ordered by UpdatedAt, newest first.
	ListDocuments(ctx context.Context) ([]Document, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	// CreateDocument assigns a fresh id and sets both timestamps to the creation time.
	CreateDocument(ctx context.Context, title, content string) (*Document, error)
	// UpdateDocument replaces the content and refreshes UpdatedAt. A nil or empty
	// title leaves the stored title untouched.
	UpdateDocument(ctx context.Context, id, content string, title *string) (*Document, error)
	Ping(ctx context.Context) error
}
