package domain

import "encoding/json"

// Inbound events sent by clients.
const (
	EventJoin           = "join"
	EventCreateDocument = "create_document"
	EventJoinDocument   = "join_document"
	EventContentChange  = "content_change"
	EventSaveDocument   = "save_document"
	EventCursorMove     = "cursor_move"
)

// Outbound events pushed to clients.
const (
	EventDocumentList    = "document_list"
	EventDocumentContent = "document_content"
	EventUsersUpdate     = "users_update"
	EventContentUpdate   = "content_update"
	EventCursorUpdate    = "cursor_update"
)

// Envelope is the frame exchanged over the real-time channel in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	Username string `json:"username"`
}

type CreateDocumentPayload struct {
	Title string `json:"title"`
}

type JoinDocumentPayload struct {
	DocumentID string `json:"documentId"`
}

type ContentChangePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

type SaveDocumentPayload struct {
	DocumentID string  `json:"documentId"`
	Content    string  `json:"content"`
	Title      *string `json:"title,omitempty"`
}

type CursorMovePayload struct {
	DocumentID string         `json:"documentId"`
	Position   CursorPosition `json:"position"`
}

type ContentUpdate struct {
	Content string       `json:"content"`
	UserID  ConnectionID `json:"userId"`
}

type CursorUpdate struct {
	UserID   ConnectionID   `json:"userId"`
	Position CursorPosition `json:"position"`
	User     UserProfile    `json:"user"`
}
