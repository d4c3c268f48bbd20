package blive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/timchenkailiang/bilibili-live-bot/pkg/log"
)

var (
	ErrClientClosed     = errors.New("blive: client closed")
	ErrAlreadyConnected = errors.New("blive: already connected")
	ErrNotConnected     = errors.New("blive: not connected")
	ErrAuthFailed       = errors.New("blive: auth rejected")
)

const (
	defaultHeartbeat = 30 * time.Second
	defaultTimeout   = 10 * time.Second
	writeWait        = 10 * time.Second
)

// Command is the payload of an OpCommand packet. Cmd discriminates the
// message kind; depending on it the fields live under data or info.
type Command struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
	Info json.RawMessage `json:"info"`
}

// Config configures a Client.
type Config struct {
	UID       int64         // uid to authenticate as, 0 for anonymous
	SessData  string        // optional SESSDATA cookie for the info APIs
	Heartbeat time.Duration // app-level heartbeat interval
	Timeout   time.Duration // HTTP and handshake timeout
}

// Client speaks the live danmaku protocol for a single room: one
// websocket connection, the auth handshake, app-level heartbeats, and
// decoding of inbound packets. It performs no reconnection; a broken
// connection surfaces as an error from Run and the owner decides.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	room      roomInfo
	connected bool
	closed    bool
	seq       uint32

	onCommand    []func(Command)
	onPopularity []func(uint32)
}

type authBody struct {
	UID      int64  `json:"uid"`
	RoomID   int64  `json:"roomid"`
	ProtoVer int    `json:"protover"`
	Platform string `json:"platform"`
	Type     int    `json:"type"`
	Key      string `json:"key"`
}

// New creates a Client. The zero Config is usable (anonymous session).
func New(cfg Config) *Client {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log.L(),
	}
}

// OnCommand registers a callback for inbound command packets.
// Register before Run; callbacks run on the read goroutine.
func (c *Client) OnCommand(fn func(Command)) {
	c.onCommand = append(c.onCommand, fn)
}

// OnPopularity registers a callback for heartbeat-reply popularity values.
func (c *Client) OnPopularity(fn func(uint32)) {
	c.onPopularity = append(c.onPopularity, fn)
}

// Connect resolves the room, fetches the danmaku token, dials a
// danmaku host and completes the auth handshake.
func (c *Client) Connect(ctx context.Context, roomID int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	room, err := c.resolveRoom(ctx, roomID)
	if err != nil {
		return err
	}
	token, hosts, err := c.fetchDanmuInfo(ctx, room.RoomID)
	if err != nil {
		return err
	}

	connID := uuid.New().String()
	logger := log.L().With().
		Str(log.FieldConnID, connID).
		Int64(log.FieldRoomID, room.RoomID).
		Logger()

	conn, host, err := c.dial(ctx, hosts)
	if err != nil {
		return err
	}
	logger.Debug().Str("host", host).Msg("danmaku server connected")

	if err := c.authenticate(conn, room.RoomID, token); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.room = room
	c.connected = true
	c.logger = logger
	c.mu.Unlock()

	logger.Info().Int("live_status", room.LiveStatus).Msg("room authenticated")
	return nil
}

func (c *Client) dial(ctx context.Context, hosts []danmuHost) (*websocket.Conn, string, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}

	var lastErr error
	for _, h := range hosts {
		port := h.WssPort
		if port == 0 {
			port = 443
		}
		u := fmt.Sprintf("wss://%s:%d/sub", h.Host, port)
		conn, _, err := dialer.DialContext(ctx, u, nil)
		if err == nil {
			return conn, h.Host, nil
		}
		lastErr = err
		log.L().Warn().Err(err).Str("host", h.Host).Msg("danmaku host dial failed, trying next")
	}
	return nil, "", fmt.Errorf("dial danmaku servers: %w", lastErr)
}

func (c *Client) authenticate(conn *websocket.Conn, roomID int64, token string) error {
	body, err := json.Marshal(authBody{
		UID:      c.cfg.UID,
		RoomID:   roomID,
		ProtoVer: int(ProtoBrotli),
		Platform: "web",
		Type:     2,
		Key:      token,
	})
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.BinaryMessage,
		Encode(Packet{ProtoVer: ProtoBinary, Op: OpAuth, Seq: c.nextSeq(), Body: body})); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	pkts, err := Decode(frame)
	if err != nil {
		return fmt.Errorf("decode auth reply: %w", err)
	}
	for _, p := range pkts {
		if p.Op != OpAuthReply {
			continue
		}
		var reply struct {
			Code int `json:"code"`
		}
		if err := json.Unmarshal(p.Body, &reply); err != nil {
			return fmt.Errorf("parse auth reply: %w", err)
		}
		if reply.Code != 0 {
			return fmt.Errorf("%w: code %d", ErrAuthFailed, reply.Code)
		}
		return nil
	}
	return fmt.Errorf("%w: no auth reply in first frame", ErrAuthFailed)
}

// Run reads and dispatches packets until the context is cancelled, the
// client is closed, or the connection breaks. Only the last case
// returns a non-nil error.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	logger := c.logger
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)

	go c.heartbeatLoop(conn, logger, done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	// Hold the server to its heartbeat replies.
	readWait := 3 * c.cfg.Heartbeat
	conn.SetReadDeadline(time.Now().Add(readWait))

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.markDisconnected()
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			conn.Close()
			return fmt.Errorf("read danmaku frame: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		pkts, err := Decode(frame)
		if err != nil {
			logger.Warn().Err(err).Msg("undecodable frame dropped")
			continue
		}
		for _, p := range pkts {
			c.dispatch(p, logger)
		}
	}
}

func (c *Client) dispatch(p Packet, logger zerolog.Logger) {
	switch p.Op {
	case OpHeartbeatReply:
		if pop, ok := Popularity(p); ok {
			for _, fn := range c.onPopularity {
				fn(pop)
			}
		}
	case OpCommand:
		var cmd Command
		if err := json.Unmarshal(p.Body, &cmd); err != nil {
			logger.Warn().Err(err).Msg("unparseable command dropped")
			return
		}
		for _, fn := range c.onCommand {
			fn(cmd)
		}
	case OpAuthReply:
		logger.Debug().Msg("late auth reply ignored")
	default:
		logger.Debug().Uint32("op", p.Op).Msg("unhandled op")
	}
}

func (c *Client) heartbeatLoop(conn *websocket.Conn, logger zerolog.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			pkt := Encode(Packet{ProtoVer: ProtoBinary, Op: OpHeartbeat, Seq: c.nextSeq()})
			if err := conn.WriteMessage(websocket.BinaryMessage, pkt); err != nil {
				logger.Warn().Err(err).Msg("heartbeat write failed")
				return
			}
		case <-done:
			return
		}
	}
}

// Close tears the connection down. Idempotent and safe from any goroutine.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// RoomID returns the resolved real room id, 0 before Connect.
func (c *Client) RoomID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room.RoomID
}

// IsConnected reports whether the connection is established and alive.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) nextSeq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}
