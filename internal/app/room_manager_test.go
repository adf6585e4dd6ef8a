package app

import (
	"slices"
	"testing"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
)

func TestAnnounceOncePerPeer(t *testing.T) {
	rm := NewRoomManager()
	if _, ok := rm.Announce("r", RoomMember{ConnID: "a", PeerID: "pa"}); ok {
		t.Fatal("member that is not ready must not be announced")
	}
	others, ok := rm.Announce("r", RoomMember{ConnID: "a", PeerID: "pa", Ready: true})
	if !ok || len(others) != 0 {
		t.Fatalf("first ready join = %v, %v", others, ok)
	}
	if _, ok := rm.Announce("r", RoomMember{ConnID: "a", PeerID: "pa", Ready: true}); ok {
		t.Fatal("repeated join announced twice")
	}

	others, ok = rm.Announce("r", RoomMember{ConnID: "b", PeerID: "pb", Ready: true})
	if !ok || !slices.Equal(others, []core.ConnID{"a"}) {
		t.Fatalf("second member others = %v, %v", others, ok)
	}

	// a fresh peer id on the same connection is a new announcement
	others, ok = rm.Announce("r", RoomMember{ConnID: "a", PeerID: "pa2", Ready: true})
	if !ok || !slices.Equal(others, []core.ConnID{"b"}) {
		t.Fatalf("rejoin with new peer = %v, %v", others, ok)
	}
	if conns := rm.PeerConns("r", "pa"); len(conns) != 0 {
		t.Errorf("old peer id still routable: %v", conns)
	}
}

func TestLeaveDropsEmptyRooms(t *testing.T) {
	rm := NewRoomManager()
	rm.Announce("r1", RoomMember{ConnID: "a", PeerID: "pa", Ready: true})
	rm.Announce("r1", RoomMember{ConnID: "b", PeerID: "pb", Ready: true})
	rm.Announce("r2", RoomMember{ConnID: "a", PeerID: "pa", Ready: true})

	m, others, ok := rm.Leave("r1", "b")
	if !ok || m.PeerID != "pb" || !slices.Equal(others, []core.ConnID{"a"}) {
		t.Fatalf("leave = %+v %v %v", m, others, ok)
	}
	if _, _, ok := rm.Leave("r1", "b"); ok {
		t.Fatal("second leave should fail")
	}

	deps := rm.LeaveAll("a")
	if len(deps) != 2 {
		t.Fatalf("departures = %+v", deps)
	}
	if rooms := rm.List(); len(rooms) != 0 {
		t.Fatalf("rooms left behind: %+v", rooms)
	}
}

func TestCloseRoom(t *testing.T) {
	rm := NewRoomManager()
	for _, id := range []core.ConnID{"a", "b", "c"} {
		rm.Announce("r", RoomMember{ConnID: id, PeerID: domain.PeerID("p" + string(id)), Ready: true})
	}
	if got, ok := rm.Close("r", "x"); ok || len(got) != 0 {
		t.Fatalf("outsider closed the room: %v", got)
	}
	others, ok := rm.Close("r", "a")
	slices.Sort(others)
	if !ok || !slices.Equal(others, []core.ConnID{"b", "c"}) {
		t.Fatalf("others = %v, %v", others, ok)
	}
	if got, ok := rm.Close("r", "a"); ok || len(got) != 0 {
		t.Fatalf("closing twice = %v", got)
	}
	if _, ok := rm.Member("r", "b"); ok {
		t.Fatal("membership survived close")
	}
}
