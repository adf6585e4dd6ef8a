package domain

import "errors"

var (
	ErrInvalidMedia      = errors.New("invalid media kind")
	ErrInvalidMediaState = errors.New("invalid media state")
)

type (
	// RoomID is the id of the call message that opened the room.
	RoomID string
	PeerID string
)

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (m MediaKind) Valid() bool { return m == MediaAudio || m == MediaVideo }

// MediaState is the sender's own track state after a toggle.
type MediaState string

const (
	MediaOn  MediaState = "on"
	MediaOff MediaState = "off"
)

func (s MediaState) Valid() bool { return s == MediaOn || s == MediaOff }
