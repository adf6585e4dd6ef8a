package app

import (
	"testing"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
)

func TestRouteTargets(t *testing.T) {
	reg := NewRegistry()
	r := NewRouter(reg, nil)
	a1, a2, b := &fakeConn{}, &fakeConn{}, &fakeConn{}
	reg.Add(&core.Session{ConnID: "a1", UserID: "alice", Conn: a1})
	reg.Add(&core.Session{ConnID: "a2", UserID: "alice", Conn: a2})
	reg.Add(&core.Session{ConnID: "b", UserID: "bob", Conn: b})

	tests := []struct {
		name   string
		target Target
		want   int
	}{
		{"user with two devices", ToUsers("alice"), 2},
		{"repeated user", ToUsers("alice", "alice"), 2},
		{"offline user", ToUsers("carol"), 0},
		{"conns", ToConns("a1", "b", "gone"), 2},
		{"users and conns overlap", Target{Users: []domain.UserID{"alice"}, Conns: []core.ConnID{"a1"}}, 2},
		{"everyone", Everyone(), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Route(core.EventPong, tt.target, nil); got != tt.want {
				t.Errorf("Route() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRouteBackpressure(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		wantClosed int
	}{
		{"drop", DropPolicy{}, 0},
		{"kick", KickPolicy{}, 1},
		{"by name", PolicyByName("kick"), 1},
		{"unknown name", PolicyByName("bogus"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			r := NewRouter(reg, tt.policy)
			slow := &fakeConn{limit: 1}
			fast := &fakeConn{}
			reg.Add(&core.Session{ConnID: "slow", UserID: "alice", Conn: slow})
			reg.Add(&core.Session{ConnID: "fast", UserID: "bob", Conn: fast})

			r.Route(core.EventPong, Everyone(), nil)
			if got := r.Route(core.EventPong, Everyone(), nil); got != 1 {
				t.Fatalf("second route delivered %d, want 1", got)
			}
			if slow.closed != tt.wantClosed {
				t.Errorf("closed = %d, want %d", slow.closed, tt.wantClosed)
			}
			if fast.count(core.EventPong) != 2 {
				t.Errorf("fast session missed events: %d", fast.count(core.EventPong))
			}
		})
	}
}

func TestRouteSkipsPolicyForClosingConn(t *testing.T) {
	reg := NewRegistry()
	r := NewRouter(reg, KickPolicy{})
	closing := &fakeConn{gone: true}
	reg.Add(&core.Session{ConnID: "c", UserID: "alice", Conn: closing})

	if got := r.Route(core.EventPong, ToUsers("alice"), nil); got != 0 {
		t.Fatalf("delivered %d to a closing connection", got)
	}
	if closing.closed != 0 {
		t.Fatalf("policy closed a connection that was already closing: %d", closing.closed)
	}
}

func TestRouteEncodeFailure(t *testing.T) {
	reg := NewRegistry()
	r := NewRouter(reg, nil)
	c := &fakeConn{}
	reg.Add(&core.Session{ConnID: "a", UserID: "alice", Conn: c})
	if got := r.Route(core.EventPong, Everyone(), make(chan int)); got != 0 {
		t.Fatalf("unencodable payload delivered %d", got)
	}
}
