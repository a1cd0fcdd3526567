package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
)

// Profiles is the connection registry.
type Profiles interface {
	Register(id domain.ConnectionID, username string) domain.UserProfile
	Lookup(id domain.ConnectionID) (domain.UserProfile, bool)
	Remove(id domain.ConnectionID) (domain.UserProfile, bool)
	Count() int
}

// Rooms is the room manager.
type Rooms interface {
	Join(ctx context.Context, connID domain.ConnectionID, documentID string) (string, []domain.UserProfile, error)
	Release(connID domain.ConnectionID)
	UpdateContent(documentID string, connID domain.ConnectionID, content string) bool
	MoveCursor(documentID string, connID domain.ConnectionID, position domain.CursorPosition) bool
	ConfirmSave(doc domain.Document) bool
	RoomCount() int
	RoomMembers() int
}

// Publisher delivers events that are not scoped to a room.
type Publisher interface {
	Send(id domain.ConnectionID, event string, payload any)
	PublishAll(event string, payload any)
}

// Coordinator is the application layer: the only component that references the registry,
// the rooms and the document store together. Events from connections without a profile are
// dropped and reported as domain.ErrNotIdentified.
type Coordinator struct {
	profiles Profiles
	rooms    Rooms
	store    domain.DocumentStore
	pub      Publisher
}

func NewCoordinator(profiles Profiles, rooms Rooms, store domain.DocumentStore, pub Publisher) *Coordinator {
	return &Coordinator{
		profiles: profiles,
		rooms:    rooms,
		store:    store,
		pub:      pub,
	}
}

// Connect greets a new connection with the current document list.
func (c *Coordinator) Connect(ctx context.Context, id domain.ConnectionID) {
	c.pub.Send(id, domain.EventDocumentList, c.ListDocuments(ctx))
}

// Identify registers the connection's profile, replacing any earlier one, and resends the document list.
func (c *Coordinator) Identify(ctx context.Context, id domain.ConnectionID, username string) domain.UserProfile {
	profile := c.profiles.Register(id, username)
	slog.InfoContext(ctx, "User identified", "username", username, "color", profile.Color)

	c.pub.Send(id, domain.EventDocumentList, c.ListDocuments(ctx))
	return profile
}

// CreateDocument persists a new document and pushes the refreshed list to every connection.
func (c *Coordinator) CreateDocument(ctx context.Context, id domain.ConnectionID, title string) (*domain.Document, error) {
	if !c.identified(id) {
		return nil, domain.ErrNotIdentified
	}
	if title == "" {
		title = domain.DefaultDocumentTitle
	}

	doc, err := c.store.CreateDocument(ctx, title, "")
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	slog.InfoContext(ctx, "Document created", "document_id", doc.ID, "title", doc.Title)

	c.broadcastDocumentList(ctx)
	return doc, nil
}

// JoinDocument moves the connection into the document's room. The room sends the joiner
// its snapshot and tells every member about the new membership.
func (c *Coordinator) JoinDocument(ctx context.Context, id domain.ConnectionID, documentID string) error {
	if !c.identified(id) {
		return domain.ErrNotIdentified
	}

	_, members, err := c.rooms.Join(ctx, id, documentID)
	if err != nil {
		return fmt.Errorf("join document %s: %w", documentID, err)
	}
	slog.DebugContext(ctx, "Joined document", "document_id", documentID, "members", len(members))
	return nil
}

// ContentChange updates the room cache and relays the content to the other members.
func (c *Coordinator) ContentChange(ctx context.Context, id domain.ConnectionID, documentID, content string) error {
	if !c.identified(id) {
		return domain.ErrNotIdentified
	}
	if !c.rooms.UpdateContent(documentID, id, content) {
		return domain.ErrNotMember
	}
	return nil
}

// SaveDocument writes through the store, then installs the stored document into the room
// and pushes the refreshed list to every connection. Nothing is broadcast if the write fails.
func (c *Coordinator) SaveDocument(ctx context.Context, id domain.ConnectionID, documentID, content string, title *string) (*domain.Document, error) {
	if !c.identified(id) {
		return nil, domain.ErrNotIdentified
	}

	doc, err := c.store.UpdateDocument(ctx, documentID, content, title)
	if err != nil {
		return nil, fmt.Errorf("save document %s: %w", documentID, err)
	}
	c.rooms.ConfirmSave(*doc)
	slog.InfoContext(ctx, "Document saved", "document_id", doc.ID)

	c.broadcastDocumentList(ctx)
	return doc, nil
}

// CursorMove relays a cursor position to the other members of the room.
func (c *Coordinator) CursorMove(_ context.Context, id domain.ConnectionID, documentID string, position domain.CursorPosition) error {
	if !c.identified(id) {
		return domain.ErrNotIdentified
	}
	if !c.rooms.MoveCursor(documentID, id, position) {
		return domain.ErrNotMember
	}
	return nil
}

// Disconnect forgets the connection. The registry entry goes first so a join racing
// the disconnect cannot re-add the connection to a room.
func (c *Coordinator) Disconnect(ctx context.Context, id domain.ConnectionID) {
	if profile, ok := c.profiles.Remove(id); ok {
		slog.InfoContext(ctx, "User left", "username", profile.Username)
	}
	c.rooms.Release(id)
}

// ListDocuments returns every stored document, newest first. A store failure yields an empty list.
func (c *Coordinator) ListDocuments(ctx context.Context) []domain.Document {
	docs, err := c.store.ListDocuments(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.WarnContext(ctx, "Failed to list documents", "error", err)
		}
		return []domain.Document{}
	}
	if docs == nil {
		return []domain.Document{}
	}
	return docs
}

func (c *Coordinator) IdentifiedConnections() int {
	return c.profiles.Count()
}

func (c *Coordinator) RoomCount() int {
	return c.rooms.RoomCount()
}

func (c *Coordinator) RoomMembers() int {
	return c.rooms.RoomMembers()
}

func (c *Coordinator) identified(id domain.ConnectionID) bool {
	_, ok := c.profiles.Lookup(id)
	return ok
}

func (c *Coordinator) broadcastDocumentList(ctx context.Context) {
	c.pub.PublishAll(domain.EventDocumentList, c.ListDocuments(ctx))
}
