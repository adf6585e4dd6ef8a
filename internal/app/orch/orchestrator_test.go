package orch

import (
	"sync"
	"testing"

	"github.com/dkeye/Hamlet/internal/core"
)

type recordingConn struct {
	mu    sync.Mutex
	types []string
}

func (c *recordingConn) TrySend(f core.Frame) error {
	env, err := core.Decode(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, env.Type)
	return nil
}

func (c *recordingConn) Close() {}

func (c *recordingConn) since(kind string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.types {
		if t == kind {
			return append([]string(nil), c.types[i:]...)
		}
	}
	return nil
}

func TestDisconnectLeavesRoomsBeforePresence(t *testing.T) {
	o := New(nil, nil, Options{})
	ca, cb := &recordingConn{}, &recordingConn{}
	a := o.OnConnect("alice", ca)
	b := o.OnConnect("bob", cb)

	if err := o.Calls.Join(a, "room", "pa", true); err != nil {
		t.Fatal(err)
	}
	if err := o.Calls.Join(b, "room", "pb", true); err != nil {
		t.Fatal(err)
	}
	if s := o.Stats(); s.Users != 2 || s.Sessions != 2 || len(s.Rooms) != 1 {
		t.Fatalf("stats = %+v", s)
	}

	o.OnDisconnect(b.ConnID)
	got := ca.since(core.EventPeerLeft)
	if len(got) != 2 || got[1] != core.EventOnlineUsers {
		t.Fatalf("events after disconnect = %v", got)
	}

	o.OnDisconnect(b.ConnID)
	o.OnDisconnect(a.ConnID)
	if s := o.Stats(); s.Users != 0 || s.Sessions != 0 || len(s.Rooms) != 0 {
		t.Fatalf("stats after cleanup = %+v", s)
	}
}
