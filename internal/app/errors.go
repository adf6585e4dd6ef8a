package app

import "errors"

var (
	ErrEmptyBatch      = errors.New("no message ids given")
	ErrInvalidCallKind = errors.New("call kind must be call or video_call")
	ErrNotInRoom       = errors.New("connection is not in the room")
	ErrMissingPeer     = errors.New("peer id is required")
	ErrMissingRoom     = errors.New("room id is required")
	ErrSelfCall        = errors.New("cannot call yourself")
	ErrEmptyComment    = errors.New("comment is empty")
	ErrSelfFollow      = errors.New("cannot follow yourself")

	// ErrNotFound is returned by stores when a referenced user, post or
	// message does not exist.
	ErrNotFound = errors.New("not found")
)
