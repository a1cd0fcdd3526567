package domain

import "errors"

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrGatewayUnavailable = errors.New("document gateway unavailable")
	ErrNotIdentified      = errors.New("connection not identified")
	ErrNotMember          = errors.New("connection is not a member of the document room")
)
