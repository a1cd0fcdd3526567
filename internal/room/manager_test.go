package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/registry"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLoader struct {
	calls atomic.Int32
	getFn func(ctx context.Context, id string) (*domain.Document, error)
}

func (m *mockLoader) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	m.calls.Add(1)
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.ErrDocumentNotFound
}

type event struct {
	kind       string
	documentID string
	members    []domain.UserProfile
	sender     domain.ConnectionID
	content    string
	doc        domain.Document
}

// recorder captures presence and edit notifications in the order rooms emit them.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) MembershipChanged(documentID string, members []domain.UserProfile) {
	r.add(event{kind: "users", documentID: documentID, members: members})
}

func (r *recorder) ContentChanged(documentID string, members []domain.UserProfile, sender domain.ConnectionID, content string) {
	r.add(event{kind: "content", documentID: documentID, members: members, sender: sender, content: content})
}

func (r *recorder) CursorMoved(documentID string, members []domain.UserProfile, sender domain.UserProfile, _ domain.CursorPosition) {
	r.add(event{kind: "cursor", documentID: documentID, members: members, sender: sender.ID})
}

func (r *recorder) Snapshot(documentID string, joiner domain.ConnectionID, doc domain.Document) {
	r.add(event{kind: "snapshot", documentID: documentID, sender: joiner, doc: doc})
}

func (r *recorder) DocumentSaved(documentID string, members []domain.UserProfile, doc domain.Document) {
	r.add(event{kind: "saved", documentID: documentID, members: members, doc: doc})
}

func (r *recorder) ofKind(kind string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	manager  *Manager
	registry *registry.Registry
	loader   *mockLoader
	rec      *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	loader := &mockLoader{}
	rec := &recorder{}
	m := NewManager(reg, loader, rec, rec, clockwork.NewRealClock())
	t.Cleanup(m.Stop)
	return &fixture{manager: m, registry: reg, loader: loader, rec: rec}
}

func (f *fixture) identify(id domain.ConnectionID, username string) domain.UserProfile {
	return f.registry.Register(id, username)
}

func usernames(members []domain.UserProfile) []string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Username)
	}
	return names
}

func TestJoin_UnidentifiedConnectionFails(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.manager.Join(t.Context(), "c1", "d1")

	assert.ErrorIs(t, err, domain.ErrNotIdentified)
	assert.Equal(t, 0, f.manager.RoomCount())
	assert.Zero(t, f.loader.calls.Load())
}

func TestJoin_SeedsRoomFromStore(t *testing.T) {
	f := newFixture(t)
	f.loader.getFn = func(_ context.Context, id string) (*domain.Document, error) {
		return &domain.Document{ID: id, Title: "Notes", Content: "persisted"}, nil
	}
	f.identify("c1", "alice")

	content, members, err := f.manager.Join(t.Context(), "c1", "d1")
	require.NoError(t, err)

	assert.Equal(t, "persisted", content)
	assert.Equal(t, []string{"alice"}, usernames(members))

	snaps := f.rec.ofKind("snapshot")
	require.Len(t, snaps, 1)
	assert.Equal(t, domain.ConnectionID("c1"), snaps[0].sender)
	assert.Equal(t, "Notes", snaps[0].doc.Title)
	assert.Equal(t, "persisted", snaps[0].doc.Content)
}

func TestJoin_UnknownDocumentOpensEmptyRoom(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")

	content, _, err := f.manager.Join(t.Context(), "c1", "missing")
	require.NoError(t, err)

	assert.Empty(t, content)
	snaps := f.rec.ofKind("snapshot")
	require.Len(t, snaps, 1)
	assert.Equal(t, "missing", snaps[0].doc.ID)
	assert.Empty(t, snaps[0].doc.Title)
	assert.NotNil(t, snaps[0].doc.Collaborators)
}

func TestJoin_StoreFailureOpensEmptyRoom(t *testing.T) {
	f := newFixture(t)
	f.loader.getFn = func(context.Context, string) (*domain.Document, error) {
		return nil, fmt.Errorf("get: %w", domain.ErrGatewayUnavailable)
	}
	f.identify("c1", "alice")

	content, members, err := f.manager.Join(t.Context(), "c1", "d1")
	require.NoError(t, err)

	assert.Empty(t, content)
	assert.Len(t, members, 1)
}

func TestJoin_ConcurrentFirstJoinersShareOneFetch(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.loader.getFn = func(_ context.Context, id string) (*domain.Document, error) {
		<-release
		return &domain.Document{ID: id, Content: "seed"}, nil
	}

	const joiners = 20
	var wg sync.WaitGroup
	contents := make([]string, joiners)
	for i := range joiners {
		id := domain.ConnectionID(fmt.Sprintf("c%d", i))
		f.identify(id, fmt.Sprintf("user%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			content, _, err := f.manager.Join(context.Background(), id, "d1")
			assert.NoError(t, err)
			contents[i] = content
		}()
	}

	require.Eventually(t, func() bool { return f.loader.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), f.loader.calls.Load())
	assert.Equal(t, 1, f.manager.RoomCount())
	assert.Len(t, f.manager.Members("d1"), joiners)
	for _, c := range contents {
		assert.Equal(t, "seed", c)
	}
}

func TestJoin_CanceledCallerDoesNotPoisonSharedFetch(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.loader.getFn = func(ctx context.Context, id string) (*domain.Document, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &domain.Document{ID: id, Content: "seed"}, nil
	}
	f.identify("c1", "alice")
	f.identify("c2", "bob")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := f.manager.Join(ctx, "c1", "d1")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return f.loader.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	content, _, err := f.manager.Join(t.Context(), "c2", "d1")
	require.NoError(t, err)
	assert.Equal(t, "seed", content)
	assert.Equal(t, []string{"bob"}, usernames(f.manager.Members("d1")))
}

func TestJoin_MembersInJoinOrderAndPresenceToAll(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	f.identify("c2", "bob")

	_, _, err := f.manager.Join(t.Context(), "c1", "d1")
	require.NoError(t, err)
	_, members, err := f.manager.Join(t.Context(), "c2", "d1")
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, usernames(members))

	updates := f.rec.ofKind("users")
	require.Len(t, updates, 2)
	assert.Equal(t, []string{"alice"}, usernames(updates[0].members))
	assert.Equal(t, []string{"alice", "bob"}, usernames(updates[1].members))
}

func TestJoin_SameRoomAgainKeepsPosition(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	f.identify("c2", "bob")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")
	_, _, _ = f.manager.Join(t.Context(), "c2", "d1")

	f.identify("c1", "alice2")
	_, members, err := f.manager.Join(t.Context(), "c1", "d1")
	require.NoError(t, err)

	assert.Equal(t, []string{"alice2", "bob"}, usernames(members))
	assert.Equal(t, 2, f.manager.RoomMembers())
}

func TestJoin_MovesBetweenRooms(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	f.identify("c2", "bob")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")
	_, _, _ = f.manager.Join(t.Context(), "c2", "d1")
	f.rec.reset()

	_, members, err := f.manager.Join(t.Context(), "c1", "d2")
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, usernames(members))
	assert.Equal(t, []string{"bob"}, usernames(f.manager.Members("d1")))

	docID, ok := f.manager.DocumentOf("c1")
	require.True(t, ok)
	assert.Equal(t, "d2", docID)

	updates := f.rec.ofKind("users")
	require.Len(t, updates, 2)
	assert.Equal(t, "d1", updates[0].documentID, "old room hears about the departure first")
	assert.Equal(t, []string{"bob"}, usernames(updates[0].members))
	assert.Equal(t, "d2", updates[1].documentID)
	assert.Equal(t, 2, f.manager.RoomMembers())
}

func TestLeave_NotInRoomIsNoop(t *testing.T) {
	f := newFixture(t)

	f.manager.Leave("ghost")

	assert.Empty(t, f.rec.ofKind("users"))
}

func TestRelease_RemovesMembershipOnce(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	f.identify("c2", "bob")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")
	_, _, _ = f.manager.Join(t.Context(), "c2", "d1")
	f.rec.reset()

	f.registry.Remove("c2")
	f.manager.Release("c2")
	f.manager.Release("c2")

	updates := f.rec.ofKind("users")
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"alice"}, usernames(updates[0].members))

	_, ok := f.manager.DocumentOf("c2")
	assert.False(t, ok)
	assert.Equal(t, 1, f.manager.RoomMembers())
}

func TestUpdateContent_MemberUpdatesCacheAndFansOut(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	f.identify("c2", "bob")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")
	_, _, _ = f.manager.Join(t.Context(), "c2", "d1")

	assert.True(t, f.manager.UpdateContent("d1", "c1", "hello"))

	content, ok := f.manager.Content("d1")
	require.True(t, ok)
	assert.Equal(t, "hello", content)

	changes := f.rec.ofKind("content")
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ConnectionID("c1"), changes[0].sender)
	assert.Equal(t, []string{"alice", "bob"}, usernames(changes[0].members))
}

func TestUpdateContent_NonMemberIsDropped(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	f.identify("c2", "bob")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")

	assert.False(t, f.manager.UpdateContent("d1", "c2", "intruder"))
	assert.False(t, f.manager.UpdateContent("nope", "c1", "no room"))

	content, _ := f.manager.Content("d1")
	assert.Empty(t, content)
	assert.Empty(t, f.rec.ofKind("content"))
}

func TestLaterJoinerSeesCachedContent(t *testing.T) {
	f := newFixture(t)
	f.loader.getFn = func(_ context.Context, id string) (*domain.Document, error) {
		return &domain.Document{ID: id, Title: "Plan", Content: "old"}, nil
	}
	f.identify("c1", "alice")
	f.identify("c2", "bob")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")
	f.manager.UpdateContent("d1", "c1", "unsaved edit")

	content, _, err := f.manager.Join(t.Context(), "c2", "d1")
	require.NoError(t, err)

	assert.Equal(t, "unsaved edit", content)
	snaps := f.rec.ofKind("snapshot")
	require.Len(t, snaps, 2)
	assert.Equal(t, "unsaved edit", snaps[1].doc.Content)
	assert.Equal(t, "Plan", snaps[1].doc.Title)
	assert.Equal(t, int32(1), f.loader.calls.Load())
}

func TestMoveCursor(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	f.identify("c2", "bob")
	f.identify("c3", "carol")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")
	_, _, _ = f.manager.Join(t.Context(), "c2", "d1")

	assert.True(t, f.manager.MoveCursor("d1", "c1", domain.CursorPosition(`{"line":1}`)))
	assert.False(t, f.manager.MoveCursor("d1", "c3", domain.CursorPosition(`{"line":1}`)), "not a member")
	assert.False(t, f.manager.MoveCursor("d1", "ghost", domain.CursorPosition(`{"line":1}`)), "not identified")

	moves := f.rec.ofKind("cursor")
	require.Len(t, moves, 1)
	assert.Equal(t, domain.ConnectionID("c1"), moves[0].sender)
}

func TestConfirmSave(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")
	f.manager.UpdateContent("d1", "c1", "draft")

	saved := domain.Document{ID: "d1", Title: "Final", Content: "saved text"}
	assert.True(t, f.manager.ConfirmSave(saved))
	assert.False(t, f.manager.ConfirmSave(domain.Document{ID: "no-room"}))

	content, _ := f.manager.Content("d1")
	assert.Equal(t, "saved text", content)

	events := f.rec.ofKind("saved")
	require.Len(t, events, 1)
	assert.Equal(t, saved, events[0].doc)
	assert.Equal(t, []string{"alice"}, usernames(events[0].members))
}

func TestDisconnectRacingJoinLeavesNoMembership(t *testing.T) {
	f := newFixture(t)

	const conns = 100
	var wg sync.WaitGroup
	for i := range conns {
		id := domain.ConnectionID(fmt.Sprintf("c%d", i))
		f.identify(id, fmt.Sprintf("user%d", i))
		doc := fmt.Sprintf("d%d", i%5)

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := f.manager.Join(context.Background(), id, doc)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrNotIdentified)
			}
		}()
		go func() {
			defer wg.Done()
			f.registry.Remove(id)
			f.manager.Release(id)
		}()
	}
	wg.Wait()

	for i := range 5 {
		assert.Empty(t, f.manager.Members(fmt.Sprintf("d%d", i)))
	}
	assert.Equal(t, 0, f.manager.RoomMembers())
}

func TestOneRoomPerConnection(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")

	for _, doc := range []string{"d1", "d2", "d3", "d1"} {
		_, _, err := f.manager.Join(t.Context(), "c1", doc)
		require.NoError(t, err)
	}

	total := 0
	for _, doc := range []string{"d1", "d2", "d3"} {
		total += len(f.manager.Members(doc))
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"alice"}, usernames(f.manager.Members("d1")))
}

func TestStoppedManagerRejectsCommands(t *testing.T) {
	f := newFixture(t)
	f.identify("c1", "alice")
	_, _, _ = f.manager.Join(t.Context(), "c1", "d1")

	f.manager.Stop()

	assert.Equal(t, 0, f.manager.RoomCount())
	assert.False(t, f.manager.UpdateContent("d1", "c1", "late"))
	_, ok := f.manager.Content("d1")
	assert.False(t, ok)
}

// stallingPresence blocks the first membership notification until released.
type stallingPresence struct {
	*recorder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallingPresence() *stallingPresence {
	return &stallingPresence{recorder: &recorder{}, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stallingPresence) MembershipChanged(documentID string, members []domain.UserProfile) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	s.recorder.MembershipChanged(documentID, members)
}

// panickingPresence panics on its first membership notification only.
type panickingPresence struct {
	*recorder
	panicked atomic.Bool
}

func (p *panickingPresence) MembershipChanged(documentID string, members []domain.UserProfile) {
	if p.panicked.CompareAndSwap(false, true) {
		panic("presence unavailable")
	}
	p.recorder.MembershipChanged(documentID, members)
}

// timeOutJoin runs a join for c1 that the fake clock times out.
func timeOutJoin(t *testing.T, m *Manager, clock *clockwork.FakeClock) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		_, _, err := m.Join(context.Background(), "c1", "d1")
		errCh <- err
	}()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(commandTimeout)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, errRoomTimeout)
	case <-time.After(time.Second):
		t.Fatal("join did not time out")
	}
}

func TestJoin_TimedOutJoinIsUndoneOnRelease(t *testing.T) {
	reg := registry.New()
	presence := newStallingPresence()
	clock := clockwork.NewFakeClock()
	m := NewManager(reg, &mockLoader{}, presence, presence.recorder, clock)
	t.Cleanup(m.Stop)
	reg.Register("c1", "alice")

	timeOutJoin(t, m, clock)
	<-presence.entered

	docID, ok := m.DocumentOf("c1")
	require.True(t, ok, "a queued join still occupies the seat")
	assert.Equal(t, "d1", docID)

	close(presence.release)
	reg.Remove("c1")
	m.Release("c1")

	assert.Empty(t, m.Members("d1"))
	assert.Equal(t, 0, m.RoomMembers())
	_, ok = m.DocumentOf("c1")
	assert.False(t, ok)
}

func TestJoin_NotifierPanicIsUndoneOnRelease(t *testing.T) {
	reg := registry.New()
	presence := &panickingPresence{recorder: &recorder{}}
	clock := clockwork.NewFakeClock()
	m := NewManager(reg, &mockLoader{}, presence, presence.recorder, clock)
	t.Cleanup(m.Stop)
	reg.Register("c1", "alice")

	timeOutJoin(t, m, clock)

	reg.Remove("c1")
	m.Release("c1")

	assert.Empty(t, m.Members("d1"))
	assert.Equal(t, 0, m.RoomMembers())
}

func TestJoin_SlowFetchDoesNotBlockOtherRooms(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.loader.getFn = func(_ context.Context, id string) (*domain.Document, error) {
		if id == "slow" {
			<-release
		}
		return &domain.Document{ID: id, Content: id}, nil
	}
	f.identify("c1", "alice")
	f.identify("c2", "bob")

	slowDone := make(chan error, 1)
	go func() {
		_, _, err := f.manager.Join(context.Background(), "c1", "slow")
		slowDone <- err
	}()
	require.Eventually(t, func() bool { return f.loader.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	fastDone := make(chan string, 1)
	go func() {
		content, _, err := f.manager.Join(context.Background(), "c2", "fast")
		assert.NoError(t, err)
		fastDone <- content
	}()

	select {
	case content := <-fastDone:
		assert.Equal(t, "fast", content)
	case <-time.After(time.Second):
		t.Fatal("join to an unrelated room waited on the slow fetch")
	}
	assert.True(t, f.manager.UpdateContent("fast", "c2", "edit"))

	close(release)
	require.NoError(t, <-slowDone)
	assert.Equal(t, []string{"alice"}, usernames(f.manager.Members("slow")))
}
