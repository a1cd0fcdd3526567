package broadcast

import "github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"

// Edits relays content and cursor changes between room members.
type Edits struct {
	pub Publisher
}

func NewEdits(pub Publisher) *Edits {
	return &Edits{pub: pub}
}

// ContentChanged forwards content to every member except the sender.
func (e *Edits) ContentChanged(_ string, members []domain.UserProfile, sender domain.ConnectionID, content string) {
	e.pub.Publish(othersThan(members, sender), domain.EventContentUpdate, domain.ContentUpdate{
		Content: content,
		UserID:  sender,
	})
}

// CursorMoved forwards a cursor position to every member except the sender.
// The position is relayed verbatim.
func (e *Edits) CursorMoved(_ string, members []domain.UserProfile, sender domain.UserProfile, position domain.CursorPosition) {
	e.pub.Publish(othersThan(members, sender.ID), domain.EventCursorUpdate, domain.CursorUpdate{
		UserID:   sender.ID,
		Position: position,
		User:     sender,
	})
}

// Snapshot sends the document as currently held by the room to a single joiner.
func (e *Edits) Snapshot(_ string, joiner domain.ConnectionID, doc domain.Document) {
	e.pub.Publish([]domain.ConnectionID{joiner}, domain.EventDocumentContent, doc)
}

// DocumentSaved sends the persisted document to every member, the saver included.
func (e *Edits) DocumentSaved(_ string, members []domain.UserProfile, doc domain.Document) {
	e.pub.Publish(domain.ProfileIDs(members), domain.EventDocumentContent, doc)
}

func othersThan(members []domain.UserProfile, sender domain.ConnectionID) []domain.ConnectionID {
	ids := make([]domain.ConnectionID, 0, len(members))
	for _, m := range members {
		if m.ID != sender {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
