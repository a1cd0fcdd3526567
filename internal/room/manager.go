package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// PresenceNotifier is told about every membership change, from inside the room actor.
type PresenceNotifier interface {
	MembershipChanged(documentID string, members []domain.UserProfile)
}

// EditNotifier fans out content, cursor and document events, from inside the room actor.
type EditNotifier interface {
	ContentChanged(documentID string, members []domain.UserProfile, sender domain.ConnectionID, content string)
	CursorMoved(documentID string, members []domain.UserProfile, sender domain.UserProfile, position domain.CursorPosition)
	Snapshot(documentID string, joiner domain.ConnectionID, doc domain.Document)
	DocumentSaved(documentID string, members []domain.UserProfile, doc domain.Document)
}

type ProfileLookup interface {
	Lookup(id domain.ConnectionID) (domain.UserProfile, bool)
}

// DocumentLoader seeds a new room with persisted content.
type DocumentLoader interface {
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
}

// seat tracks the single room a connection occupies.
type seat struct {
	mu         sync.Mutex
	documentID string
	released   bool
}

type Manager struct {
	profiles ProfileLookup
	loader   DocumentLoader
	presence PresenceNotifier
	edits    EditNotifier
	clock    clockwork.Clock

	seeds   singleflight.Group
	members atomic.Int64

	mu    sync.Mutex
	rooms map[string]*room
	seats map[domain.ConnectionID]*seat
}

func NewManager(profiles ProfileLookup, loader DocumentLoader, presence PresenceNotifier, edits EditNotifier,
	clock clockwork.Clock) *Manager {
	return &Manager{
		profiles: profiles,
		loader:   loader,
		presence: presence,
		edits:    edits,
		clock:    clock,
		rooms:    make(map[string]*room),
		seats:    make(map[domain.ConnectionID]*seat),
	}
}

// Join moves connID into the room for documentID, leaving its previous room first.
// The room is created on first use and seeded from the store exactly once. It returns
// the room's cached content and its members in join order.
func (m *Manager) Join(ctx context.Context, connID domain.ConnectionID, documentID string) (string, []domain.UserProfile, error) {
	s := m.lockSeat(connID)
	defer s.mu.Unlock()

	profile, ok := m.profiles.Lookup(connID)
	if !ok || s.released {
		m.dropSeatIfVacant(connID, s)
		return "", nil, domain.ErrNotIdentified
	}

	if s.documentID != "" && s.documentID != documentID {
		m.leaveRoom(s.documentID, connID)
		s.documentID = ""
	}

	r, err := m.roomFor(ctx, documentID)
	if err != nil {
		m.dropSeatIfVacant(connID, s)
		return "", nil, err
	}

	reply := make(chan snapshot, 1)
	if !r.submit(joinCmd{profile: profile, replyChannel: reply}) {
		return "", nil, errRoomStopped
	}
	snap, ok := await(r, reply, "join")
	if !ok {
		// The join is queued and may still land. Claiming the seat makes a later
		// Leave or Release queue its leave behind it.
		s.documentID = documentID
		return "", nil, errRoomTimeout
	}

	s.documentID = documentID
	return snap.content, snap.members, nil
}

// Leave removes connID from its current room. It is a no-op when the connection is in no room.
func (m *Manager) Leave(connID domain.ConnectionID) {
	s := m.existingSeat(connID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.documentID != "" {
		m.leaveRoom(s.documentID, connID)
		s.documentID = ""
	}
}

// Release is Leave for a connection that is going away: the seat is discarded and
// any join still waiting on it fails.
func (m *Manager) Release(connID domain.ConnectionID) {
	s := m.existingSeat(connID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.documentID != "" {
		m.leaveRoom(s.documentID, connID)
		s.documentID = ""
	}
	s.released = true

	m.mu.Lock()
	if m.seats[connID] == s {
		delete(m.seats, connID)
	}
	m.mu.Unlock()
}

// UpdateContent replaces the room cache and relays content to the other members.
// It reports false, and does nothing, when connID is not a member of the room.
func (m *Manager) UpdateContent(documentID string, connID domain.ConnectionID, content string) bool {
	r := m.lookupRoom(documentID)
	if r == nil {
		return false
	}

	reply := make(chan bool, 1)
	if !r.submit(contentCmd{sender: connID, content: content, replyChannel: reply}) {
		return false
	}
	applied, _ := await(r, reply, "content")
	return applied
}

// MoveCursor relays a cursor position to the other members of the room.
func (m *Manager) MoveCursor(documentID string, connID domain.ConnectionID, position domain.CursorPosition) bool {
	profile, ok := m.profiles.Lookup(connID)
	if !ok {
		return false
	}
	r := m.lookupRoom(documentID)
	if r == nil {
		return false
	}

	reply := make(chan bool, 1)
	if !r.submit(cursorCmd{sender: profile, position: position, replyChannel: reply}) {
		return false
	}
	relayed, _ := await(r, reply, "cursor")
	return relayed
}

// ConfirmSave installs a persisted document into its room, if the room exists, and sends
// it to every member.
func (m *Manager) ConfirmSave(doc domain.Document) bool {
	r := m.lookupRoom(doc.ID)
	if r == nil {
		return false
	}

	reply := make(chan struct{}, 1)
	if !r.submit(saveConfirmCmd{doc: doc, replyChannel: reply}) {
		return false
	}
	_, ok := await(r, reply, "save_confirm")
	return ok
}

// Members returns the room's members in join order.
func (m *Manager) Members(documentID string) []domain.UserProfile {
	snap, ok := m.snapshot(documentID)
	if !ok {
		return []domain.UserProfile{}
	}
	return snap.members
}

// Content returns the room's cached content and whether the room exists.
func (m *Manager) Content(documentID string) (string, bool) {
	snap, ok := m.snapshot(documentID)
	return snap.content, ok
}

// DocumentOf reports which room connID currently occupies.
func (m *Manager) DocumentOf(connID domain.ConnectionID) (string, bool) {
	s := m.existingSeat(connID)
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentID, s.documentID != ""
}

func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *Manager) RoomMembers() int {
	return int(m.members.Load())
}

// Stop terminates every room actor. Rooms are not usable afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rooms {
		r.stop()
		delete(m.rooms, id)
	}
}

func (m *Manager) snapshot(documentID string) (snapshot, bool) {
	r := m.lookupRoom(documentID)
	if r == nil {
		return snapshot{}, false
	}

	reply := make(chan snapshot, 1)
	if !r.submit(snapshotCmd{replyChannel: reply}) {
		return snapshot{}, false
	}
	return await(r, reply, "snapshot")
}

func (m *Manager) leaveRoom(documentID string, connID domain.ConnectionID) {
	r := m.lookupRoom(documentID)
	if r == nil {
		return
	}

	reply := make(chan bool, 1)
	if !r.submit(leaveCmd{connID: connID, replyChannel: reply}) {
		return
	}
	await(r, reply, "leave")
}

func (m *Manager) lookupRoom(documentID string) *room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[documentID]
}

// roomFor returns the room for documentID, creating it if needed. Concurrent first
// joiners share one store fetch; the fetch runs without holding the room table lock.
func (m *Manager) roomFor(ctx context.Context, documentID string) (*room, error) {
	if r := m.lookupRoom(documentID); r != nil {
		return r, nil
	}

	// The shared fetch must not fail because the first caller went away.
	fetchCtx := context.WithoutCancel(ctx)
	ch := m.seeds.DoChan(documentID, func() (any, error) {
		if r := m.lookupRoom(documentID); r != nil {
			return r, nil
		}

		seed := m.load(fetchCtx, documentID)

		m.mu.Lock()
		defer m.mu.Unlock()
		if r, ok := m.rooms[documentID]; ok {
			return r, nil
		}
		r := newRoom(documentID, seed, m.presence, m.edits, m.clock, &m.members)
		m.rooms[documentID] = r
		return r, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*room), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load fetches the seed document. Absence and store failures both open an empty room.
func (m *Manager) load(ctx context.Context, documentID string) *domain.Document {
	doc, err := m.loader.GetDocument(ctx, documentID)
	switch {
	case err == nil:
		return doc
	case errors.Is(err, domain.ErrDocumentNotFound):
		slog.Debug("Opening room for unknown document", "document_id", documentID)
	default:
		slog.Warn("Document store unavailable, opening room with empty content",
			"document_id", documentID, "error", err)
	}
	return nil
}

// lockSeat returns the locked seat for connID, creating it if needed. A seat that was
// discarded while we waited for its lock is skipped in favor of the current one.
func (m *Manager) lockSeat(connID domain.ConnectionID) *seat {
	for {
		m.mu.Lock()
		s, ok := m.seats[connID]
		if !ok {
			s = &seat{}
			m.seats[connID] = s
		}
		m.mu.Unlock()

		s.mu.Lock()
		m.mu.Lock()
		current := m.seats[connID] == s
		m.mu.Unlock()
		if current || s.released {
			return s
		}
		s.mu.Unlock()
	}
}

func (m *Manager) existingSeat(connID domain.ConnectionID) *seat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seats[connID]
}

// dropSeatIfVacant forgets a seat that never held a room. The caller holds s.mu.
func (m *Manager) dropSeatIfVacant(connID domain.ConnectionID, s *seat) {
	if s.documentID != "" {
		return
	}
	m.mu.Lock()
	if m.seats[connID] == s {
		delete(m.seats, connID)
	}
	m.mu.Unlock()
}
