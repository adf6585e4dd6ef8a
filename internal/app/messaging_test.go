package app

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
)

func TestSendReachesEveryDeviceOfBothParties(t *testing.T) {
	h := newHarness("alice", "bob", "carol")
	_, a1 := h.connect("alice")
	_, a2 := h.connect("alice")
	_, carol := h.connect("carol")

	// bob is offline: the message is still stored and returned
	msg, err := h.msg.Send(context.Background(), "alice", domain.MessageDraft{Recipient: "bob", Body: "  hi  "})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Kind != domain.KindText || msg.Body == nil || *msg.Body != "hi" {
		t.Fatalf("stored message = %+v", msg)
	}
	for i, c := range []*fakeConn{a1, a2} {
		got := last[domain.Message](t, c, core.EventMessage)
		if got.ID != msg.ID {
			t.Errorf("device %d got %s, want %s", i, got.ID, msg.ID)
		}
	}
	if carol.count(core.EventMessage) != 0 {
		t.Error("third party received the message")
	}

	_, b1 := h.connect("bob")
	_, b2 := h.connect("bob")
	if _, err := h.msg.Send(context.Background(), "alice", domain.MessageDraft{Recipient: "bob", Body: "again"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if b1.count(core.EventMessage) != 1 || b2.count(core.EventMessage) != 1 || a1.count(core.EventMessage) != 2 {
		t.Errorf("counts a1=%d b1=%d b2=%d", a1.count(core.EventMessage), b1.count(core.EventMessage), b2.count(core.EventMessage))
	}
}

func TestSendToSelfDeliversOnce(t *testing.T) {
	h := newHarness("alice")
	_, c := h.connect("alice")
	if _, err := h.msg.Send(context.Background(), "alice", domain.MessageDraft{Recipient: "alice", Body: "note"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if n := c.count(core.EventMessage); n != 1 {
		t.Fatalf("got %d copies", n)
	}
}

func TestSendRejects(t *testing.T) {
	h := newHarness("alice", "bob")
	_, c := h.connect("alice")
	tests := []struct {
		name  string
		draft domain.MessageDraft
		want  error
	}{
		{"no recipient", domain.MessageDraft{Body: "x"}, domain.ErrRecipientRequired},
		{"blank text", domain.MessageDraft{Recipient: "bob", Body: "   "}, domain.ErrEmptyMessage},
		{"bad kind", domain.MessageDraft{Recipient: "bob", Body: "x", Kind: "fax"}, domain.ErrInvalidKind},
		{"unknown recipient", domain.MessageDraft{Recipient: "nobody", Body: "x"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.msg.Send(context.Background(), "alice", tt.draft); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if c.count(core.EventMessage) != 0 {
		t.Error("rejected messages must not be pushed")
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	h := newHarness("alice", "bob")
	_, a := h.connect("alice")
	_, b := h.connect("bob")
	ctx := context.Background()
	m1, _ := h.msg.Send(ctx, "alice", domain.MessageDraft{Recipient: "bob", Body: "one"})
	m2, _ := h.msg.Send(ctx, "alice", domain.MessageDraft{Recipient: "bob", Body: "two"})

	for range 2 {
		got, err := h.msg.MarkRead(ctx, "bob", []domain.MessageID{m1.ID, m2.ID, m1.ID})
		if err != nil {
			t.Fatalf("mark read: %v", err)
		}
		if len(got) != 2 || !got[0].Read || !got[1].Read {
			t.Fatalf("read batch = %+v", got)
		}
	}
	if a.count(core.EventReadMessages) != 2 || b.count(core.EventReadMessages) != 2 {
		t.Errorf("read events a=%d b=%d", a.count(core.EventReadMessages), b.count(core.EventReadMessages))
	}
	batch := last[[]domain.Message](t, a, core.EventReadMessages)
	if len(batch) != 2 {
		t.Errorf("sender saw %d read rows", len(batch))
	}

	// alice is not the recipient, nothing flips and nothing is pushed
	a.reset()
	got, err := h.msg.MarkRead(ctx, "alice", []domain.MessageID{m1.ID})
	if err != nil || len(got) != 0 {
		t.Fatalf("foreign read = %v, %v", got, err)
	}
	if a.count(core.EventReadMessages) != 0 {
		t.Error("empty result must not be pushed")
	}

	if _, err := h.msg.MarkRead(ctx, "bob", nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("empty batch err = %v", err)
	}
}

func TestTyping(t *testing.T) {
	h := newHarness()
	_, a := h.connect("alice")
	_, b := h.connect("bob")

	h.msg.Typing("alice", "bob", "hel")
	if got := last[core.TypingRelay](t, b, core.EventTyping); got.Sender != "alice" || got.Preview != "hel" || !got.Active {
		t.Errorf("typing = %+v", got)
	}
	h.msg.Typing("alice", "bob", "  ")
	if got := last[core.TypingRelay](t, b, core.EventTyping); got.Active {
		t.Error("blank preview must clear the indicator")
	}
	h.msg.Typing("alice", "alice", "x")
	h.msg.Typing("alice", "", "x")
	if a.count(core.EventTyping) != 0 {
		t.Error("typing echoed to the sender")
	}
}

func TestStoreFailureIsWrapped(t *testing.T) {
	h := newHarness("alice", "bob")
	boom := errors.New("db down")
	h.store.fail = boom
	if _, err := h.msg.Send(context.Background(), "alice", domain.MessageDraft{Recipient: "bob", Body: "x"}); !errors.Is(err, boom) {
		t.Errorf("send err = %v", err)
	}
	if _, err := h.msg.MarkRead(context.Background(), "bob", []domain.MessageID{"m"}); !errors.Is(err, boom) {
		t.Errorf("mark read err = %v", err)
	}
}
