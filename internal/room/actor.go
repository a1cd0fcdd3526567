package room

import (
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	commandBufferSize = 256
	commandTimeout    = 5 * time.Second
)

// roomCmd is the command interface for the room actor.
type roomCmd interface{ isRoomCmd() }

type baseRoomCmd struct{}

func (baseRoomCmd) isRoomCmd() {}

type joinCmd struct {
	baseRoomCmd
	profile      domain.UserProfile
	replyChannel chan snapshot
}

type leaveCmd struct {
	baseRoomCmd
	connID       domain.ConnectionID
	replyChannel chan bool
}

type contentCmd struct {
	baseRoomCmd
	sender       domain.ConnectionID
	content      string
	replyChannel chan bool
}

type cursorCmd struct {
	baseRoomCmd
	sender       domain.UserProfile
	position     domain.CursorPosition
	replyChannel chan bool
}

type saveConfirmCmd struct {
	baseRoomCmd
	doc          domain.Document
	replyChannel chan struct{}
}

type snapshotCmd struct {
	baseRoomCmd
	replyChannel chan snapshot
}

// snapshot is a copy of room state handed back to callers outside the actor.
type snapshot struct {
	content string
	members []domain.UserProfile
}

type room struct {
	documentID  string
	presence    PresenceNotifier
	edits       EditNotifier
	clock       clockwork.Clock
	memberGauge *atomic.Int64

	cmdCh  chan roomCmd
	doneCh chan struct{}

	// Owned by the actor goroutine.
	members []domain.UserProfile
	content string
	stored  *domain.Document
}

func newRoom(documentID string, seed *domain.Document, presence PresenceNotifier, edits EditNotifier,
	clock clockwork.Clock, memberGauge *atomic.Int64) *room {
	r := &room{
		documentID:  documentID,
		presence:    presence,
		edits:       edits,
		clock:       clock,
		memberGauge: memberGauge,
		cmdCh:       make(chan roomCmd, commandBufferSize),
		doneCh:      make(chan struct{}),
		members:     []domain.UserProfile{},
		stored:      seed,
	}
	if seed != nil {
		r.content = seed.Content
	}
	go r.run()
	return r
}

func (r *room) run() {
	for {
		select {
		case cmd := <-r.cmdCh:
			r.handle(cmd)
		case <-r.doneCh:
			return
		}
	}
}

func (r *room) handle(cmd roomCmd) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Room panic recovered", "document_id", r.documentID, "panic", p)
		}
	}()

	switch c := cmd.(type) {
	case joinCmd:
		c.replyChannel <- r.handleJoin(c.profile)
	case leaveCmd:
		c.replyChannel <- r.handleLeave(c.connID)
	case contentCmd:
		c.replyChannel <- r.handleContent(c.sender, c.content)
	case cursorCmd:
		c.replyChannel <- r.handleCursor(c.sender, c.position)
	case saveConfirmCmd:
		r.handleSaveConfirm(c.doc)
		c.replyChannel <- struct{}{}
	case snapshotCmd:
		c.replyChannel <- r.snapshot()
	}
}

func (r *room) handleJoin(profile domain.UserProfile) snapshot {
	if i := r.indexOf(profile.ID); i >= 0 {
		// Rejoining the same room keeps the original join position.
		r.members[i] = profile
	} else {
		r.members = append(r.members, profile)
		r.memberGauge.Add(1)
	}

	r.edits.Snapshot(r.documentID, profile.ID, r.document())
	r.presence.MembershipChanged(r.documentID, r.memberList())
	return r.snapshot()
}

func (r *room) handleLeave(connID domain.ConnectionID) bool {
	i := r.indexOf(connID)
	if i < 0 {
		return false
	}
	r.members = slices.Delete(r.members, i, i+1)
	r.memberGauge.Add(-1)

	r.presence.MembershipChanged(r.documentID, r.memberList())
	return true
}

func (r *room) handleContent(sender domain.ConnectionID, content string) bool {
	if r.indexOf(sender) < 0 {
		return false
	}
	r.content = content
	r.edits.ContentChanged(r.documentID, r.memberList(), sender, content)
	return true
}

func (r *room) handleCursor(sender domain.UserProfile, position domain.CursorPosition) bool {
	if r.indexOf(sender.ID) < 0 {
		return false
	}
	r.edits.CursorMoved(r.documentID, r.memberList(), sender, position)
	return true
}

func (r *room) handleSaveConfirm(doc domain.Document) {
	r.content = doc.Content
	r.stored = &doc
	r.edits.DocumentSaved(r.documentID, r.memberList(), doc)
}

// document is what a joiner sees: the stored document with the live cache as content,
// or a bare document when nothing has been persisted under this id.
func (r *room) document() domain.Document {
	doc := domain.Document{ID: r.documentID}
	if r.stored != nil {
		doc = *r.stored
	}
	if doc.Collaborators == nil {
		doc.Collaborators = []string{}
	}
	doc.Content = r.content
	return doc
}

func (r *room) snapshot() snapshot {
	return snapshot{content: r.content, members: r.memberList()}
}

// memberList returns a copy safe to hand to other goroutines.
func (r *room) memberList() []domain.UserProfile {
	return slices.Clone(r.members)
}

func (r *room) indexOf(id domain.ConnectionID) int {
	return slices.IndexFunc(r.members, func(p domain.UserProfile) bool { return p.ID == id })
}

func (r *room) stop() {
	close(r.doneCh)
}

// submit hands cmd to the actor. It reports false once the room is stopped.
func (r *room) submit(cmd roomCmd) bool {
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.doneCh:
		return false
	}
}

// await waits for a reply, bounded by commandTimeout.
func await[T any](r *room, reply <-chan T, op string) (T, bool) {
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case v := <-reply:
		return v, true
	case <-timer.Chan():
		slog.Warn("Room command timed out", "document_id", r.documentID, "command", op, "timeout", commandTimeout)
	case <-r.doneCh:
	}
	var zero T
	return zero, false
}
