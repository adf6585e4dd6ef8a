package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Messaging persists direct messages and pushes the stored result to every
// session of both parties.
type Messaging struct {
	Store  MessageStore
	Router *Router
}

func NewMessaging(store MessageStore, router *Router) *Messaging {
	return &Messaging{Store: store, Router: router}
}

// Send persists the draft and fans the stored message out to the sender's and
// recipient's sessions. Push results never change the returned message.
func (m *Messaging) Send(ctx context.Context, sender domain.UserID, d domain.MessageDraft) (domain.Message, error) {
	d.Sender = sender
	d.Normalize()
	if err := d.Validate(); err != nil {
		return domain.Message{}, err
	}
	msg, err := m.Store.CreateMessage(ctx, d)
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	n := m.Router.Route(core.EventMessage, ToUsers(msg.Parties()...), msg)
	log.Debug().Str("module", "app.messaging").Str("msg", string(msg.ID)).Int("copies", n).Msg("message routed")
	return msg, nil
}

// MarkRead persists the read flip for the batch and sends the updated rows to
// both parties of each message, so every device converges.
func (m *Messaging) MarkRead(ctx context.Context, reader domain.UserID, ids []domain.MessageID) ([]domain.Message, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	msgs, err := m.Store.MarkRead(ctx, reader, dedupeIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if len(msgs) == 0 {
		return msgs, nil
	}
	m.Router.Route(core.EventReadMessages, ToUsers(batchParties(msgs)...), msgs)
	return msgs, nil
}

// Typing relays a preview to the recipient. Blank previews go out with
// Active=false so clients clear the indicator instead of extending it.
func (m *Messaging) Typing(sender, recipient domain.UserID, preview string) {
	if recipient == "" || recipient == sender {
		return
	}
	m.Router.Route(core.EventTyping, ToUsers(recipient), core.TypingRelay{
		Sender:  sender,
		Preview: preview,
		Active:  strings.TrimSpace(preview) != "",
	})
}

func dedupeIDs(ids []domain.MessageID) []domain.MessageID {
	seen := make(map[domain.MessageID]struct{}, len(ids))
	out := make([]domain.MessageID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func batchParties(msgs []domain.Message) []domain.UserID {
	seen := make(map[domain.UserID]struct{})
	var out []domain.UserID
	for _, msg := range msgs {
		for _, uid := range msg.Parties() {
			if _, ok := seen[uid]; !ok {
				seen[uid] = struct{}{}
				out = append(out, uid)
			}
		}
	}
	return out
}
