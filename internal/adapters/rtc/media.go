package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// LocalMedia is our own audio and optional video track. Senders bound to
// peer connections are removed on Stop.
type LocalMedia struct {
	id     string
	tracks map[domain.MediaKind]*webrtc.TrackLocalStaticSample

	mu       sync.Mutex
	enabled  map[domain.MediaKind]bool
	bindings []binding
	stopped  bool
}

type binding struct {
	pc     *webrtc.PeerConnection
	sender *webrtc.RTPSender
}

func NewLocalMedia(streamID string, video bool) (*LocalMedia, error) {
	m := &LocalMedia{
		id:      streamID,
		tracks:  make(map[domain.MediaKind]*webrtc.TrackLocalStaticSample),
		enabled: make(map[domain.MediaKind]bool),
	}
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	m.tracks[domain.MediaAudio] = audio
	m.enabled[domain.MediaAudio] = true
	if video {
		v, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return nil, err
		}
		m.tracks[domain.MediaVideo] = v
		m.enabled[domain.MediaVideo] = true
	}
	return m, nil
}

func (m *LocalMedia) ID() string { return m.id }

// SetEnabled pauses or resumes sending one kind. The track stays negotiated.
func (m *LocalMedia) SetEnabled(kind domain.MediaKind, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracks[kind]; ok {
		m.enabled[kind] = on
	}
}

func (m *LocalMedia) Enabled(kind domain.MediaKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[kind]
}

// WriteSample sends one sample on kind; disabled or stopped kinds drop it.
func (m *LocalMedia) WriteSample(kind domain.MediaKind, s media.Sample) error {
	m.mu.Lock()
	track, ok := m.tracks[kind]
	send := ok && m.enabled[kind] && !m.stopped
	m.mu.Unlock()
	if !send {
		return nil
	}
	return track.WriteSample(s)
}

// attach adds every track to pc.
func (m *LocalMedia) attach(pc *webrtc.PeerConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, track := range m.tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			return err
		}
		m.bindings = append(m.bindings, binding{pc: pc, sender: sender})
		go drainRTCP(sender)
	}
	return nil
}

// Stop removes the tracks from every connection. Safe to call twice.
func (m *LocalMedia) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	bindings := m.bindings
	m.bindings = nil
	m.mu.Unlock()
	for _, b := range bindings {
		if err := b.pc.RemoveTrack(b.sender); err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Msg("remove track")
		}
	}
	log.Info().Str("module", "webrtc").Str("stream", m.id).Msg("local media stopped")
}

func (m *LocalMedia) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// RemoteStream groups the tracks a peer sends under one stream id and keeps
// reading them so pion's buffers never fill.
type RemoteStream struct {
	id     string
	peer   domain.PeerID
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	kinds   map[string]struct{}
	packets atomic.Uint64
}

func newRemoteStream(peer domain.PeerID, id string) *RemoteStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &RemoteStream{id: id, peer: peer, ctx: ctx, cancel: cancel, kinds: make(map[string]struct{})}
}

func (s *RemoteStream) ID() string { return s.id }

func (s *RemoteStream) Peer() domain.PeerID { return s.peer }

// Packets is the number of RTP packets received so far.
func (s *RemoteStream) Packets() uint64 { return s.packets.Load() }

func (s *RemoteStream) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.kinds))
	for k := range s.kinds {
		out = append(out, k)
	}
	return out
}

// Stop stops counting; the reader exits when the negotiator closes the
// peer connection.
func (s *RemoteStream) Stop() { s.cancel() }

func (s *RemoteStream) addTrack(track *webrtc.TrackRemote) {
	s.mu.Lock()
	s.kinds[track.Kind().String()] = struct{}{}
	s.mu.Unlock()
	go func() {
		// ReadRTP fails once the peer connection closes.
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
			if s.ctx.Err() == nil {
				s.packets.Add(1)
			}
		}
	}()
}
