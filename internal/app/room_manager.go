package app

import (
	"sync"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
)

// RoomMember is one connection that announced itself in a call room.
type RoomMember struct {
	ConnID    core.ConnID
	UserID    domain.UserID
	PeerID    domain.PeerID
	Ready     bool
	announced bool
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

// RoomManager keeps in-memory call room membership. Rooms appear on the first
// join and vanish with their last member; nothing is persisted.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[core.ConnID]*RoomMember
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomID]map[core.ConnID]*RoomMember)}
}

// Announce records m in room. It returns the other connections of the room
// and whether m must be announced to them now: true exactly once per
// connection and peer id, the first time the member is ready.
func (f *RoomManager) Announce(room domain.RoomID, m RoomMember) ([]core.ConnID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.rooms[room]
	if !ok {
		members = make(map[core.ConnID]*RoomMember)
		f.rooms[room] = members
	}
	cur, ok := members[m.ConnID]
	if !ok || cur.PeerID != m.PeerID {
		cur = &RoomMember{ConnID: m.ConnID, UserID: m.UserID, PeerID: m.PeerID}
		members[m.ConnID] = cur
	}
	cur.Ready = cur.Ready || m.Ready
	if !cur.Ready || cur.announced {
		return nil, false
	}
	cur.announced = true
	return othersLocked(members, m.ConnID), true
}

// Member returns the membership of conn in room.
func (f *RoomManager) Member(room domain.RoomID, conn core.ConnID) (RoomMember, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.rooms[room][conn]
	if !ok {
		return RoomMember{}, false
	}
	return *m, true
}

// Others returns every connection in room except conn.
func (f *RoomManager) Others(room domain.RoomID, conn core.ConnID) []core.ConnID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return othersLocked(f.rooms[room], conn)
}

// PeerConns returns the connections that announced peer in room.
func (f *RoomManager) PeerConns(room domain.RoomID, peer domain.PeerID) []core.ConnID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []core.ConnID
	for id, m := range f.rooms[room] {
		if m.PeerID == peer {
			out = append(out, id)
		}
	}
	return out
}

// Leave removes conn from room and returns what is needed to tell the rest.
func (f *RoomManager) Leave(room domain.RoomID, conn core.ConnID) (RoomMember, []core.ConnID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.rooms[room]
	if !ok {
		return RoomMember{}, nil, false
	}
	m, ok := members[conn]
	if !ok {
		return RoomMember{}, nil, false
	}
	delete(members, conn)
	others := othersLocked(members, conn)
	if len(members) == 0 {
		delete(f.rooms, room)
	}
	return *m, others, true
}

// Departure is one room membership dropped by LeaveAll.
type Departure struct {
	Room   domain.RoomID
	Member RoomMember
	Others []core.ConnID
}

// LeaveAll removes conn from every room it joined.
func (f *RoomManager) LeaveAll(conn core.ConnID) []Departure {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Departure
	for room, members := range f.rooms {
		m, ok := members[conn]
		if !ok {
			continue
		}
		delete(members, conn)
		out = append(out, Departure{Room: room, Member: *m, Others: othersLocked(members, conn)})
		if len(members) == 0 {
			delete(f.rooms, room)
		}
	}
	return out
}

// Close drops the room and returns every connection but conn. Only a member
// may close a room; ok is false otherwise and the room is left alone.
func (f *RoomManager) Close(room domain.RoomID, conn core.ConnID) ([]core.ConnID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.rooms[room]
	if _, ok := members[conn]; !ok {
		return nil, false
	}
	others := othersLocked(members, conn)
	delete(f.rooms, room)
	return others, true
}

func (f *RoomManager) List() []RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]RoomInfo, 0, len(f.rooms))
	for id, members := range f.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(members)})
	}
	return out
}

func othersLocked(members map[core.ConnID]*RoomMember, except core.ConnID) []core.ConnID {
	out := make([]core.ConnID, 0, len(members))
	for id := range members {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}
