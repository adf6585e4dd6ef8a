package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrRecipientRequired = errors.New("recipient is required")
	ErrEmptyMessage      = errors.New("message needs a body or an image")
	ErrInvalidKind       = errors.New("invalid message kind")
)

type MessageID string

type MessageKind string

const (
	KindText      MessageKind = "text"
	KindCall      MessageKind = "call"
	KindVideoCall MessageKind = "video_call"
)

// IsCall reports whether the message opens a call room.
func (k MessageKind) IsCall() bool {
	return k == KindCall || k == KindVideoCall
}

func (k MessageKind) Valid() bool {
	return k == KindText || k.IsCall()
}

type Message struct {
	ID        MessageID   `json:"id"`
	Sender    UserRef     `json:"sender"`
	Recipient UserRef     `json:"recipient"`
	Body      *string     `json:"message,omitempty"`
	Image     *string     `json:"image,omitempty"`
	ReplyTo   *MessageID  `json:"reply,omitempty"`
	Read      bool        `json:"read"`
	Kind      MessageKind `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// Parties returns sender and recipient ids, collapsed when a user writes to
// themselves.
func (m Message) Parties() []UserID {
	if m.Sender.ID == m.Recipient.ID {
		return []UserID{m.Sender.ID}
	}
	return []UserID{m.Sender.ID, m.Recipient.ID}
}

// MessageDraft is what a sender submits before persistence assigns an id.
type MessageDraft struct {
	Sender    UserID      `json:"-"`
	Recipient UserID      `json:"recipient"`
	Body      string      `json:"message,omitempty"`
	Image     string      `json:"image,omitempty"`
	ReplyTo   MessageID   `json:"reply,omitempty"`
	Kind      MessageKind `json:"type,omitempty"`
}

// Normalize fills the default kind and trims the body.
func (d *MessageDraft) Normalize() {
	if d.Kind == "" {
		d.Kind = KindText
	}
	d.Body = strings.TrimSpace(d.Body)
}

func (d MessageDraft) Validate() error {
	if d.Recipient == "" {
		return ErrRecipientRequired
	}
	if !d.Kind.Valid() {
		return ErrInvalidKind
	}
	if d.Kind == KindText && d.Body == "" && d.Image == "" {
		return ErrEmptyMessage
	}
	return nil
}
