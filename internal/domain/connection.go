package domain

import "encoding/json"

// ConnectionID identifies one real-time connection for its whole lifetime.
type ConnectionID string

func (id ConnectionID) String() string { return string(id) }

// UserProfile is what other collaborators see of a connection.
type UserProfile struct {
	ID       ConnectionID `json:"id"`
	Username string       `json:"username"`
	Color    string       `json:"color"`
}

// CursorPosition is forwarded verbatim; its shape is owned by the editor client.
type CursorPosition = json.RawMessage

// ProfileIDs returns the connection ids of the given profiles in order.
func ProfileIDs(profiles []UserProfile) []ConnectionID {
	ids := make([]ConnectionID, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	return ids
}
