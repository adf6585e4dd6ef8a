package peer

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
)

type roomFixture struct {
	room   *Room
	neg    *fakeNegotiator
	sender *fakeSender
	local  *fakeStream
}

func newRoomFixture(t *testing.T, resolve bool) roomFixture {
	t.Helper()
	f := roomFixture{neg: &fakeNegotiator{}, sender: &fakeSender{}, local: newFakeStream("local")}
	gate := NewMediaGate()
	if resolve {
		gate.Resolve(f.local)
	}
	f.room = NewRoom(RoomConfig{
		RoomID:       "room",
		Self:         "me",
		Sender:       f.sender,
		Negotiator:   f.neg,
		Gate:         gate,
		MediaTimeout: 20 * time.Millisecond,
	})
	return f
}

func TestJoinDialsWaitingPeersOnce(t *testing.T) {
	f := newRoomFixture(t, true)
	ctx := context.Background()
	f.room.Invite()
	if f.room.State() != Invited {
		t.Fatalf("state = %s", f.room.State())
	}

	// announcements before local media is ready are held
	_ = f.room.HandlePeerJoined(ctx, "a")
	_ = f.room.HandlePeerJoined(ctx, "a")
	_ = f.room.HandlePeerJoined(ctx, "me")
	if len(f.neg.dialed()) != 0 {
		t.Fatal("dialed before join")
	}

	if err := f.room.Join(ctx); err != nil {
		t.Fatalf("join: %v", err)
	}
	if f.room.State() != Active {
		t.Fatalf("state = %s", f.room.State())
	}
	if got := f.sender.kinds(); !slices.Equal(got, []string{core.EventJoinRoom}) {
		t.Fatalf("sent = %v", got)
	}
	req := f.sender.sent[0].payload.(core.JoinRoomRequest)
	if req.PeerID != "me" || req.RoomID != "room" || !req.Ready {
		t.Fatalf("join request = %+v", req)
	}

	_ = f.room.HandlePeerJoined(ctx, "a")
	_ = f.room.HandlePeerJoined(ctx, "b")
	if got := f.neg.dialed(); !slices.Equal(got, []domain.PeerID{"a", "b"}) {
		t.Fatalf("dialed = %v", got)
	}
	if err := f.room.Join(ctx); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if len(f.sender.kinds()) != 1 {
		t.Fatal("second join announced again")
	}
}

func TestFailedDialCanBeRetried(t *testing.T) {
	f := newRoomFixture(t, true)
	ctx := context.Background()
	_ = f.room.Join(ctx)
	f.neg.callErr = errDial
	if err := f.room.HandlePeerJoined(ctx, "a"); !errors.Is(err, errDial) {
		t.Fatalf("err = %v", err)
	}
	f.neg.callErr = nil
	if err := f.room.HandlePeerJoined(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if got := f.neg.dialed(); !slices.Equal(got, []domain.PeerID{"a"}) {
		t.Fatalf("dialed = %v", got)
	}
}

func TestIncomingHeldUntilJoin(t *testing.T) {
	f := newRoomFixture(t, true)
	call := &fakeCall{peer: "a"}
	f.neg.incoming(call)
	if len(call.answered) != 0 {
		t.Fatal("answered before join")
	}
	if err := f.room.Join(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(call.answered) != 1 || call.answered[0] != f.local {
		t.Fatalf("answered = %v", call.answered)
	}
	// the caller is connected, a later announcement does not dial back
	_ = f.room.HandlePeerJoined(context.Background(), "a")
	if len(f.neg.dialed()) != 0 {
		t.Fatal("answered peer dialed again")
	}

	late := &fakeCall{peer: "b"}
	f.neg.incoming(late)
	if len(late.answered) != 1 {
		t.Fatal("call during active room not answered")
	}
}

func TestJoinWithoutMedia(t *testing.T) {
	f := newRoomFixture(t, false)
	f.room.Invite()
	err := f.room.Join(context.Background())
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if f.room.State() != Invited {
		t.Fatalf("state after failed join = %s", f.room.State())
	}
	if len(f.sender.kinds()) != 0 {
		t.Fatal("announced without media")
	}

	f.room.Gate().Resolve(f.local)
	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestStreamsAndToggles(t *testing.T) {
	f := newRoomFixture(t, true)
	ctx := context.Background()
	_ = f.room.Join(ctx)

	remote := newFakeStream("ra")
	f.neg.onStream("a", remote)
	if len(f.room.Store().Ready()) != 0 {
		t.Fatal("stream without announcement is not ready")
	}
	_ = f.room.Dispatch(ctx, envelope(core.EventPeerJoined, core.PeerEvent{PeerID: "a", RoomID: "room"}))
	if len(f.room.Store().Ready()) != 1 {
		t.Fatal("peer should be ready")
	}

	if got := f.room.Flags("a"); !got.Audio || !got.Video {
		t.Fatalf("default flags = %+v", got)
	}
	for _, st := range []domain.MediaState{domain.MediaOff, domain.MediaOn, domain.MediaOff} {
		_ = f.room.Dispatch(ctx, envelope(core.EventMediaToggled, core.MediaToggled{PeerID: "a", Media: domain.MediaVideo, State: st}))
	}
	if got := f.room.Flags("a"); !got.Audio || got.Video {
		t.Fatalf("flags = %+v", got)
	}

	_ = f.room.Dispatch(ctx, envelope(core.EventSignal, core.SignalRelay{From: "a", Data: []byte(`{}`)}))
	if len(f.neg.signals) != 1 {
		t.Fatal("signal not handed to negotiator")
	}

	_ = f.room.Dispatch(ctx, envelope(core.EventPeerLeft, core.PeerEvent{PeerID: "a"}))
	if _, ok := f.room.Store().Get("a"); ok || remote.stopped() != 1 {
		t.Fatal("peer-left must prune the peer and stop its stream")
	}
	if !slices.Contains(f.neg.hangups, "a") {
		t.Fatal("peer-left must hang up")
	}
}

func TestSetMedia(t *testing.T) {
	f := newRoomFixture(t, true)
	if err := f.room.SetMedia(domain.MediaAudio, domain.MediaOff); !errors.Is(err, ErrNotActive) {
		t.Fatalf("before join err = %v", err)
	}
	_ = f.room.Join(context.Background())
	if err := f.room.SetMedia(domain.MediaAudio, domain.MediaOff); err != nil {
		t.Fatal(err)
	}
	if f.local.enabled[domain.MediaAudio] {
		t.Fatal("local audio still enabled")
	}
	if got := f.sender.kinds(); !slices.Equal(got, []string{core.EventJoinRoom, core.EventToggleMedia}) {
		t.Fatalf("sent = %v", got)
	}
	if err := f.room.SetMedia("screen", domain.MediaOff); !errors.Is(err, domain.ErrInvalidMedia) {
		t.Fatalf("bad media err = %v", err)
	}
}

func TestCallEndedStopsEverythingOnce(t *testing.T) {
	f := newRoomFixture(t, true)
	ctx := context.Background()
	_ = f.room.Join(ctx)
	remote := newFakeStream("ra")
	f.neg.onStream("a", remote)

	_ = f.room.Dispatch(ctx, envelope(core.EventCallEnded, core.RoomRequest{RoomID: "room"}))
	f.room.HandleCallEnded()
	if err := f.room.Hangup(); err != nil {
		t.Fatal(err)
	}
	if f.room.State() != Ended {
		t.Fatalf("state = %s", f.room.State())
	}
	if f.local.stopped() != 1 || remote.stopped() != 1 || f.neg.closed != 1 {
		t.Fatalf("stops local=%d remote=%d closed=%d", f.local.stopped(), remote.stopped(), f.neg.closed)
	}
	if slices.Contains(f.sender.kinds(), core.EventEndCall) {
		t.Fatal("hangup after a remote end must not send end-call")
	}

	late := newFakeStream("late")
	f.neg.onStream("b", late)
	if late.stopped() != 1 || f.room.Store().Len() != 0 {
		t.Fatal("streams arriving after the end must be stopped")
	}
	if err := f.room.Join(ctx); !errors.Is(err, ErrRoomEnded) {
		t.Fatalf("join after end err = %v", err)
	}
}

func TestHangupSendsEndCall(t *testing.T) {
	f := newRoomFixture(t, true)
	_ = f.room.Join(context.Background())
	if err := f.room.Hangup(); err != nil {
		t.Fatal(err)
	}
	if got := f.sender.kinds(); !slices.Equal(got, []string{core.EventJoinRoom, core.EventEndCall}) {
		t.Fatalf("sent = %v", got)
	}
	if f.local.stopped() != 1 {
		t.Fatal("local media not released")
	}
}

func TestEndBeforeJoinReleasesResolvedMedia(t *testing.T) {
	f := newRoomFixture(t, true)
	f.room.HandleCallEnded()
	if f.local.stopped() != 1 {
		t.Fatal("gate stream not stopped")
	}
}
