// Package parley provides a Go client for the Parley chat platform. It keeps
// a single persistent WebSocket to the gateway, multiplexes it into logical
// topics (personal inbox, per-group channels), and layers ordered,
// deduplicated conversation state on top of the REST API.
package parley

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ParleyChat/parley-go-sdk/frame"
	"github.com/ParleyChat/parley-go-sdk/wire"
)

// ErrNotConnected is returned by Publish when the connection is not in the
// Connected state. Sends are never queued while offline.
var ErrNotConnected = errors.New("parley: not connected")

// ConnState is the connection lifecycle state. It transitions only through
// Connect/Disconnect calls and transport-level failures.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	// DefaultReconnectDelay is the fixed delay between automatic reconnect
	// attempts after an established connection drops.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultHeartbeatInterval is the client ping cadence. A connection that
	// stays silent for three intervals is treated as dead.
	DefaultHeartbeatInterval = 4 * time.Second

	authReadTimeout = 10 * time.Second
)

// StatusHandler observes connection status changes.
type StatusHandler func(connected bool)

// Config holds connection parameters.
type Config struct {
	Endpoint          string        // WebSocket URL (e.g. "ws://localhost:8080/ws/chat")
	ReconnectDelay    time.Duration // defaults to DefaultReconnectDelay
	HeartbeatInterval time.Duration // defaults to DefaultHeartbeatInterval
	Logger            zerolog.Logger
}

// Conn owns the single realtime socket of a client process. It handles the
// credential handshake, heartbeating, automatic reconnects with a fixed
// delay, and frame dispatch into the topic registry. One authenticated
// session at a time: a second login must Disconnect first.
type Conn struct {
	cfg      Config
	log      zerolog.Logger
	clientID string
	gen      *frame.ULIDGen
	registry *Registry
	subs     *SubTracker

	// connectMu serializes Connect, Disconnect and reconnect attempts so the
	// state machine always settles in a terminal state.
	connectMu sync.Mutex

	mu           sync.Mutex
	state        ConnState
	sock         net.Conn
	sendCh       chan []byte
	stop         chan struct{} // closed by Disconnect, outlives socket churn
	userID       int64
	credential   string
	reconnecting bool

	statusMu       sync.Mutex
	statusHandlers []StatusHandler
}

// NewConn creates a connection in the Disconnected state.
func NewConn(cfg Config) *Conn {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Conn{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "conn").Logger(),
		clientID: uuid.NewString(),
		gen:      frame.NewULIDGen(),
		registry: NewRegistry(),
		subs:     NewSubTracker(),
	}
}

// Registry returns the topic registry frames are dispatched through.
func (c *Conn) Registry() *Registry { return c.registry }

// Subscriptions returns the tracked group subscription set.
func (c *Conn) Subscriptions() *SubTracker { return c.subs }

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the connection is established.
func (c *Conn) Connected() bool { return c.State() == StateConnected }

// OnStatus registers a connection-status listener and immediately invokes
// it with the current status. Listeners run synchronously on the connection
// lifecycle paths: keep them fast, and never call Connect or Disconnect
// from inside one — that deadlocks.
func (c *Conn) OnStatus(h StatusHandler) {
	c.statusMu.Lock()
	c.statusHandlers = append(c.statusHandlers, h)
	c.statusMu.Unlock()
	h(c.Connected())
}

func (c *Conn) notify(connected bool) {
	c.statusMu.Lock()
	handlers := make([]StatusHandler, len(c.statusHandlers))
	copy(handlers, c.statusHandlers)
	c.statusMu.Unlock()
	for _, h := range handlers {
		h(connected)
	}
}

// Connect establishes the socket and performs the credential handshake.
// Idempotent: a no-op when already Connected. A rejected handshake surfaces
// as the returned error and is not retried; only drops of an established
// connection trigger the automatic reconnect timer.
func (c *Conn) Connect(ctx context.Context, userID int64, credential string) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.State() == StateConnected {
		return nil
	}

	c.mu.Lock()
	c.userID = userID
	c.credential = credential
	c.state = StateConnecting
	if c.stop == nil {
		c.stop = make(chan struct{})
	}
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.notify(false)
		return err
	}
	return nil
}

// dial performs one connection attempt. Callers hold connectMu.
func (c *Conn) dial(ctx context.Context) error {
	sock, _, _, err := ws.Dial(ctx, c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	userID, credential := c.userID, c.credential
	c.mu.Unlock()

	payload, _ := json.Marshal(wire.ConnectPayload{
		UserID:   userID,
		Token:    credential,
		ClientID: c.clientID,
	})
	encoded, _ := frame.Encode(frame.Header{Type: frame.TypeConnect, MsgID: c.gen.Next()}, payload)
	if err := wsutil.WriteClientBinary(sock, encoded); err != nil {
		sock.Close()
		return fmt.Errorf("send connect: %w", err)
	}

	sock.SetReadDeadline(time.Now().Add(authReadTimeout))
	data, err := wsutil.ReadServerBinary(sock)
	if err != nil {
		sock.Close()
		return fmt.Errorf("read auth: %w", err)
	}
	sock.SetReadDeadline(time.Time{})

	h, body, err := frame.Decode(data)
	if err != nil {
		sock.Close()
		return fmt.Errorf("decode auth: %w", err)
	}

	switch h.Type {
	case frame.TypeAuthOK:
	case frame.TypeAuthFail:
		var result wire.AuthResultPayload
		json.Unmarshal(body, &result)
		sock.Close()
		return fmt.Errorf("auth failed: %s", result.Reason)
	default:
		sock.Close()
		return fmt.Errorf("unexpected frame type %d", h.Type)
	}

	sendCh := make(chan []byte, 256)
	c.mu.Lock()
	c.sock = sock
	c.sendCh = sendCh
	c.state = StateConnected
	// Cleared here, not in reconnectLoop: the new readLoop may lose this very
	// socket before the loop that dialed it returns, and that failure must be
	// able to spawn the next loop.
	c.reconnecting = false
	stop := c.stop
	c.mu.Unlock()

	go c.readLoop(sock, stop)
	go c.writeLoop(sock, sendCh, stop)

	c.log.Info().Str("endpoint", c.cfg.Endpoint).Msg("connected to gateway")
	c.notify(true)

	// Open the personal inbox, then reconcile tracked group channels so the
	// open set equals the desired set exactly.
	c.sendFrame(frame.TypeSubscribe, wire.SubscribePayload{Topic: wire.InboxTopic(userID)})
	c.reconcileSubscriptions()
	return nil
}

// Disconnect tears the socket down deterministically and empties the
// tracked subscription set; the set must be rebuilt if the connection is
// reused. Idempotent.
func (c *Conn) Disconnect() {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	stop := c.stop
	sock := c.sock
	prev := c.state
	c.stop = nil
	c.sock = nil
	c.sendCh = nil
	c.state = StateDisconnected
	c.reconnecting = false
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if sock != nil {
		sock.Close()
	}
	c.subs.Clear()

	if prev != StateDisconnected {
		c.log.Info().Msg("disconnected")
		c.notify(false)
	}
}

// Publish enqueues body on the wire for topic. Fire-and-forget: no delivery
// acknowledgment is surfaced. Fails fast with ErrNotConnected when the
// connection is not established.
func (c *Conn) Publish(topic string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.sendFrame(frame.TypePublish, wire.Envelope{Topic: topic, Body: raw})
}

// SubscribeGroup adds groupID to the tracked set. When connected the
// channel opens immediately; otherwise it opens automatically on the next
// successful connect.
func (c *Conn) SubscribeGroup(groupID int64) {
	c.subs.Track(groupID)
	if c.Connected() {
		c.sendFrame(frame.TypeSubscribe, wire.SubscribePayload{Topic: wire.GroupTopic(groupID)})
	}
}

// UnsubscribeGroup removes groupID from the tracked set and closes the
// channel if connected. Idempotent.
func (c *Conn) UnsubscribeGroup(groupID int64) {
	if !c.subs.Untrack(groupID) {
		return
	}
	if c.Connected() {
		c.sendFrame(frame.TypeUnsubscribe, wire.SubscribePayload{Topic: wire.GroupTopic(groupID)})
	}
}

// reconcileSubscriptions replays every tracked group subscription. Invoked
// on each transition into Connected.
func (c *Conn) reconcileSubscriptions() {
	for _, id := range c.subs.Tracked() {
		c.sendFrame(frame.TypeSubscribe, wire.SubscribePayload{Topic: wire.GroupTopic(id)})
	}
}

func (c *Conn) sendFrame(typ uint8, v any) error {
	var payload []byte
	if v != nil {
		var err error
		payload, err = json.Marshal(v)
		if err != nil {
			return err
		}
	}

	var flags uint8
	if compressed, ok := frame.Compress(payload); ok {
		payload = compressed
		flags |= frame.FlagCompressed
	}
	encoded, err := frame.Encode(frame.Header{Type: typ, Flags: flags, MsgID: c.gen.Next()}, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	sendCh, stop := c.sendCh, c.stop
	c.mu.Unlock()

	select {
	case sendCh <- encoded:
		return nil
	case <-stop:
		return ErrNotConnected
	}
}

// --- Internal loops ---

func (c *Conn) readLoop(sock net.Conn, stop chan struct{}) {
	readTimeout := 3 * c.cfg.HeartbeatInterval
	for {
		sock.SetReadDeadline(time.Now().Add(readTimeout))
		data, err := wsutil.ReadServerBinary(sock)
		if err != nil {
			select {
			case <-stop:
			default:
				c.log.Warn().Err(err).Msg("read error, connection lost")
				c.connectionLost(sock, stop)
			}
			return
		}

		h, payload, err := frame.Decode(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("bad frame")
			continue
		}

		if h.IsCompressed() {
			decompressed, err := frame.Decompress(payload)
			if err != nil {
				continue
			}
			payload = decompressed
		}

		switch h.Type {
		case frame.TypeDelivery:
			var env wire.Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				c.log.Debug().Err(err).Msg("bad delivery envelope")
				continue
			}
			c.registry.Dispatch(env.Topic, env.Body)

		case frame.TypePing:
			c.sendFrame(frame.TypePong, nil)

		case frame.TypePong:
			// any inbound frame refreshes the read deadline

		case frame.TypeClose:
			c.log.Info().Msg("server closed connection")
			c.connectionLost(sock, stop)
			return
		}
	}
}

func (c *Conn) writeLoop(sock net.Conn, sendCh chan []byte, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-sendCh:
			if err := wsutil.WriteClientBinary(sock, data); err != nil {
				c.log.Warn().Err(err).Msg("write error")
				c.connectionLost(sock, stop)
				return
			}
		case <-ticker.C:
			ping, _ := frame.Encode(frame.Header{Type: frame.TypePing, MsgID: c.gen.Next()}, nil)
			if err := wsutil.WriteClientBinary(sock, ping); err != nil {
				c.connectionLost(sock, stop)
				return
			}
		case <-stop:
			return
		}
	}
}

// connectionLost handles a transport-level failure of the current socket.
// The tracked subscription set is left intact so the reconnect can replay
// it; only Disconnect clears it.
func (c *Conn) connectionLost(sock net.Conn, stop chan struct{}) {
	sock.Close()

	c.mu.Lock()
	if c.sock != sock {
		// a newer socket already took over
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.sendCh = nil
	c.state = StateDisconnected
	spawn := !c.reconnecting
	c.reconnecting = true
	c.mu.Unlock()

	c.notify(false)
	if spawn {
		go c.reconnectLoop(stop)
	}
}

// reconnectLoop retries with a fixed delay until the connection is restored
// or Disconnect is called. Attempts are transparent to callers. The
// reconnecting flag is cleared by dial on success and by Disconnect, never
// here.
func (c *Conn) reconnectLoop(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		c.connectMu.Lock()
		if c.State() == StateConnected {
			c.connectMu.Unlock()
			return
		}
		select {
		case <-stop:
			c.connectMu.Unlock()
			return
		default:
		}

		c.mu.Lock()
		c.state = StateConnecting
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.dial(ctx)
		cancel()
		if err != nil {
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			c.log.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectDelay).Msg("reconnect failed")
		}
		c.connectMu.Unlock()

		if err == nil {
			return
		}
	}
}
