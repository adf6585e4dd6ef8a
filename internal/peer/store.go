// Package peer is the call participant side: it tracks remote peers and
// their media streams, waits for local media and drives one call room from
// the server's events.
package peer

import (
	"sort"
	"sync"

	"github.com/dkeye/Hamlet/internal/domain"
)

// Stream is a media stream that can be stopped.
type Stream interface {
	ID() string
	Stop()
}

// Entry is one remote peer. Known and Stream are learned independently and in
// any order: the join announcement may come before or after the media.
type Entry struct {
	PeerID domain.PeerID
	Known  bool
	Stream Stream
}

// Ready reports whether the peer is both announced and streaming.
func (e Entry) Ready() bool { return e.Known && e.Stream != nil }

// Store maps peer ids to their streams. Inserts are keyed and idempotent.
type Store struct {
	mu      sync.Mutex
	entries map[domain.PeerID]*Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[domain.PeerID]*Entry)}
}

func (s *Store) entry(id domain.PeerID) *Entry {
	e, ok := s.entries[id]
	if !ok {
		e = &Entry{PeerID: id}
		s.entries[id] = e
	}
	return e
}

// AddPeer marks id as announced.
func (s *Store) AddPeer(id domain.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(id).Known = true
}

// AddOrReplace attaches stream to id. A different stream already attached is
// stopped.
func (s *Store) AddOrReplace(id domain.PeerID, stream Stream) {
	s.mu.Lock()
	e := s.entry(id)
	old := e.Stream
	e.Stream = stream
	s.mu.Unlock()
	if old != nil && old != stream {
		old.Stop()
	}
}

// RemovePeer drops id and stops its stream.
func (s *Store) RemovePeer(id domain.PeerID) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok && e.Stream != nil {
		e.Stream.Stop()
	}
	return ok
}

func (s *Store) Get(id domain.PeerID) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Ready returns the entries that can be rendered, sorted by peer id.
func (s *Store) Ready() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Ready() {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear stops every stream and empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[domain.PeerID]*Entry)
	s.mu.Unlock()
	for _, e := range entries {
		if e.Stream != nil {
			e.Stream.Stop()
		}
	}
}
