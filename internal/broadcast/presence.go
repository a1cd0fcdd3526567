package broadcast

import "github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"

// Publisher delivers an encoded event to a set of connections.
type Publisher interface {
	Publish(recipients []domain.ConnectionID, event string, payload any)
}

// Presence announces room membership changes.
type Presence struct {
	pub Publisher
}

func NewPresence(pub Publisher) *Presence {
	return &Presence{pub: pub}
}

// MembershipChanged sends the full member list, in join order, to every member.
func (p *Presence) MembershipChanged(_ string, members []domain.UserProfile) {
	if members == nil {
		members = []domain.UserProfile{}
	}
	p.pub.Publish(domain.ProfileIDs(members), domain.EventUsersUpdate, members)
}
