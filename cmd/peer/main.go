// Command peer is a headless call participant. It connects to the Hamlet
// server, places or answers calls and streams synthetic media over pion.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Hamlet/internal/adapters/rtc"
	"github.com/dkeye/Hamlet/internal/auth"
	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/dkeye/Hamlet/internal/peer"
)

type options struct {
	Server  string
	Token   string
	Secret  string
	Cookie  string
	User    domain.UserID
	Call    domain.UserID
	Video   bool
	Answer  bool
	Timeout time.Duration
}

func loadOptions() (options, error) {
	fs := pflag.NewFlagSet("peer", pflag.ExitOnError)
	fs.String("server", "ws://localhost:8080/api/ws", "websocket endpoint")
	fs.String("token", "", "session token; issued locally from --secret and --user when empty")
	fs.String("secret", "", "jwt secret shared with the server")
	fs.String("cookie", "jwt", "auth cookie name configured on the server")
	fs.String("user", "", "user id to act as")
	fs.String("call", "", "user id to call right away")
	fs.Bool("video", false, "send video as well as audio")
	fs.Bool("answer", true, "join incoming calls automatically")
	fs.Duration("media-timeout", 5*time.Second, "how long to wait for local media")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return options{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("HAMLET_PEER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return options{}, err
	}
	return options{
		Server:  v.GetString("server"),
		Token:   v.GetString("token"),
		Secret:  v.GetString("secret"),
		Cookie:  v.GetString("cookie"),
		User:    domain.UserID(v.GetString("user")),
		Call:    domain.UserID(v.GetString("call")),
		Video:   v.GetBool("video"),
		Answer:  v.GetBool("answer"),
		Timeout: v.GetDuration("media-timeout"),
	}, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	opts, err := loadOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	verifier := auth.NewVerifier(opts.Secret, opts.Cookie)
	if opts.Token == "" {
		if opts.Secret == "" || opts.User == "" {
			log.Fatal().Msg("either --token or --secret with --user is required")
		}
		opts.Token, err = verifier.Issue(opts.User, 24*time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
	}

	client, err := peer.Dial(ctx, peer.ClientConfig{
		URL:    opts.Server,
		Token:  opts.Token,
		Cookie: verifier.Cookie(),
		Self:   opts.User,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("dial server")
	}
	p := &participant{opts: opts, client: client}

	g, gctx := errgroup.WithContext(ctx)
	client.OnOnline = func(ids []domain.UserID) {
		log.Info().Int("online", len(ids)).Msg("presence")
	}
	client.OnIncomingCall = func(ev core.IncomingCall) {
		log.Info().Str("room", string(ev.RoomID)).Str("from", string(ev.Sender.ID)).Str("kind", string(ev.Kind)).Msg("incoming call")
		if !opts.Answer {
			return
		}
		g.Go(func() error { return p.join(gctx, ev.RoomID, true) })
	}
	g.Go(func() error { return client.Run(gctx) })

	if opts.Call != "" {
		g.Go(func() error {
			kind := domain.KindCall
			if opts.Video {
				kind = domain.KindVideoCall
			}
			room, err := client.Invite(gctx, opts.Call, kind)
			if err != nil {
				return err
			}
			log.Info().Str("room", string(room)).Str("callee", string(opts.Call)).Msg("ringing")
			return p.join(gctx, room, false)
		})
	}

	<-gctx.Done()
	p.hangup()
	_ = client.Close()
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("peer stopped")
		os.Exit(1)
	}
}

// participant holds the rooms this process is in.
type participant struct {
	opts   options
	client *peer.Client

	mu    sync.Mutex
	rooms []*peer.Room
}

func (p *participant) join(ctx context.Context, id domain.RoomID, invited bool) error {
	local, err := rtc.NewLocalMedia(uuid.NewString(), p.opts.Video)
	gate := peer.NewMediaGate()
	if err != nil {
		gate.Fail(err)
	} else {
		gate.Resolve(local)
		go pumpSamples(ctx, local, p.opts.Video)
	}

	neg := rtc.NewNegotiator(rtc.DefaultWebRTCConfig(), func(to domain.PeerID, data json.RawMessage) error {
		return p.client.Send(core.EventSignal, core.SignalRequest{RoomID: id, To: to, Data: data})
	})
	room := peer.NewRoom(peer.RoomConfig{
		RoomID:       id,
		Self:         domain.PeerID(uuid.NewString()),
		Sender:       p.client,
		Negotiator:   neg,
		Gate:         gate,
		MediaTimeout: p.opts.Timeout,
	})
	if invited {
		room.Invite()
	}
	p.client.Attach(room)
	p.mu.Lock()
	p.rooms = append(p.rooms, room)
	p.mu.Unlock()

	if err := room.Join(ctx); err != nil {
		// the call stays open for other participants
		log.Error().Err(err).Str("room", string(id)).Msg("join")
		return nil
	}
	log.Info().Str("room", string(id)).Str("self", string(room.Self())).Msg("in call")
	reportStreams(ctx, room)
	return nil
}

// reportStreams logs what each connected peer is sending until the call ends.
func reportStreams(ctx context.Context, room *peer.Room) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if room.State() == peer.Ended {
				return
			}
			for _, e := range room.Store().Ready() {
				rs, ok := e.Stream.(*rtc.RemoteStream)
				if !ok {
					continue
				}
				flags := room.Flags(e.PeerID)
				log.Info().
					Str("room", string(room.ID())).
					Str("peer", string(e.PeerID)).
					Strs("kinds", rs.Kinds()).
					Uint64("packets", rs.Packets()).
					Bool("audio", flags.Audio).
					Bool("video", flags.Video).
					Msg("stream stats")
			}
		}
	}
}

func (p *participant) hangup() {
	p.mu.Lock()
	rooms := p.rooms
	p.rooms = nil
	p.mu.Unlock()
	for _, r := range rooms {
		if err := r.Hangup(); err != nil {
			log.Warn().Err(err).Str("room", string(r.ID())).Msg("hangup")
		}
		p.client.Detach(r.ID())
	}
}

// pumpSamples feeds placeholder frames so the remote side sees RTP flowing.
func pumpSamples(ctx context.Context, m *rtc.LocalMedia, video bool) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	silence := []byte{0xf8, 0xff, 0xfe}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Stopped() {
				return
			}
			_ = m.WriteSample(domain.MediaAudio, media.Sample{Data: silence, Duration: 20 * time.Millisecond})
			if video {
				_ = m.WriteSample(domain.MediaVideo, media.Sample{Data: []byte{0x00}, Duration: 20 * time.Millisecond})
			}
		}
	}
}
