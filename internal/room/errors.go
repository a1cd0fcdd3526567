package room

import "errors"

var (
	errRoomStopped = errors.New("room is stopped")
	errRoomTimeout = errors.New("room command timed out")
)
