package peer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Hamlet/internal/core"
	"github.com/dkeye/Hamlet/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var ErrClientClosed = errors.New("client closed")

type ClientConfig struct {
	URL string
	// Token is presented in the auth cookie named Cookie.
	Token        string
	Cookie       string
	Self         domain.UserID
	WriteTimeout time.Duration
}

// Client is a participant's websocket to the coordination server. It routes
// room-scoped events to attached rooms and everything else to the handlers.
type Client struct {
	cfg  ClientConfig
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	rooms   map[domain.RoomID]*Room
	waiters []chan domain.Message
	closed  bool

	OnIncomingCall func(core.IncomingCall)
	OnMessage      func(domain.Message)
	OnOnline       func([]domain.UserID)
}

// Dial opens the websocket. Handlers must be set before Run.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Cookie == "" {
		cfg.Cookie = "jwt"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Cookie", (&http.Cookie{Name: cfg.Cookie, Value: cfg.Token}).String())
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.New("dial: unauthorized")
		}
		return nil, err
	}
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	log.Debug().Str("module", "peer.client").Str("url", cfg.URL).Msg("websocket connected")
	return &Client{cfg: cfg, conn: conn, rooms: make(map[domain.RoomID]*Room)}, nil
}

// Send encodes one event and writes it.
func (c *Client) Send(kind string, payload any) error {
	frame, err := core.Encode(kind, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Attach routes the room's events to it until the call ends.
func (c *Client) Attach(r *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[r.ID()] = r
}

func (c *Client) Detach(id domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, id)
}

func (c *Client) room(id domain.RoomID) (*Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[id]
	return r, ok
}

// Invite rings callee and returns the room id, which is the id of the call
// message the server echoes back to us.
func (c *Client) Invite(ctx context.Context, callee domain.UserID, kind domain.MessageKind) (domain.RoomID, error) {
	ch := make(chan domain.Message, 4)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	defer c.dropWaiter(ch)

	if err := c.Send(core.EventCallInvite, core.CallInviteRequest{Recipient: callee, Kind: kind}); err != nil {
		return "", err
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case msg := <-ch:
			if msg.Kind == kind && msg.Sender.ID == c.cfg.Self && msg.Recipient.ID == callee {
				return domain.RoomID(msg.ID), nil
			}
		}
	}
}

func (c *Client) dropWaiter(ch chan domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Run reads until the connection drops or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		env, err := core.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "peer.client").Msg("bad frame")
			continue
		}
		if err := c.route(ctx, env); err != nil {
			log.Warn().Err(err).Str("module", "peer.client").Str("type", env.Type).Msg("handle event")
		}
	}
}

func (c *Client) route(ctx context.Context, env core.Envelope) error {
	switch env.Type {
	case core.EventPeerJoined, core.EventPeerLeft, core.EventMediaToggled, core.EventCallEnded, core.EventSignal:
		id := domain.RoomID(gjson.GetBytes(env.Data, "roomId").String())
		r, ok := c.room(id)
		if !ok {
			return nil
		}
		if env.Type == core.EventCallEnded {
			c.Detach(id)
		}
		return r.Dispatch(ctx, env)
	case core.EventIncomingCall:
		var ev core.IncomingCall
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		if c.OnIncomingCall != nil {
			c.OnIncomingCall(ev)
		}
	case core.EventMessage:
		var msg domain.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		c.mu.Lock()
		for _, w := range c.waiters {
			select {
			case w <- msg:
			default:
			}
		}
		c.mu.Unlock()
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	case core.EventOnlineUsers:
		var ids []domain.UserID
		if err := json.Unmarshal(env.Data, &ids); err != nil {
			return err
		}
		if c.OnOnline != nil {
			c.OnOnline(ids)
		}
	case core.EventError:
		var p core.ErrorPayload
		_ = json.Unmarshal(env.Data, &p)
		log.Warn().Str("module", "peer.client").Str("error", p.Error).Msg("server error")
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}
