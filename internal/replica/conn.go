package replica

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"quicklabel/internal/ws"
)

const (
	dialTimeout       = 5 * time.Second
	heartbeatInterval = 30 * time.Second
	connWriteWait     = 10 * time.Second
)

// ConnConfig configures the server link.
type ConnConfig struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:8000/ws.
	URL       string
	Policy    ReconnectPolicy
	Heartbeat time.Duration
	Log       *slog.Logger
}

// Conn keeps one replica connected to the server: it dials, pumps
// messages into the mirror, heartbeats, and reconnects with backoff when
// the link drops. While disconnected the replica is marked degraded and
// outbound sends fail fast.
type Conn struct {
	cfg     ConnConfig
	replica *Replica
	log     *slog.Logger

	outbound chan ws.Envelope
	events   chan Event
}

func NewConn(cfg ConnConfig, r *Replica) *Conn {
	if cfg.Policy.InitialDelay == 0 {
		cfg.Policy = DefaultReconnectPolicy()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = heartbeatInterval
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Conn{
		cfg:      cfg,
		replica:  r,
		log:      cfg.Log,
		outbound: make(chan ws.Envelope, 32),
		events:   make(chan Event, 64),
	}
}

// Events delivers one Event per reconciled server message. The channel is
// buffered; if the UI falls behind, events are dropped rather than
// blocking the read pump (state is re-readable at any time).
func (c *Conn) Events() <-chan Event { return c.events }

// Send enqueues a client message. It fails fast while degraded so a
// keypress during an outage surfaces immediately instead of queueing.
func (c *Conn) Send(typ string, payload any) error {
	if c.replica.Degraded() {
		return ConnectionError{URL: c.cfg.URL, Err: errors.New("not connected")}
	}
	env, err := ws.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- env:
		return nil
	default:
		return ConnectionError{URL: c.cfg.URL, Err: errors.New("outbound queue full")}
	}
}

// Run connects and keeps the link alive until ctx is cancelled. Backoff
// doubles per consecutive failure up to the policy cap and resets after a
// successful connect.
func (c *Conn) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			c.replica.setDegraded(true)
			delay := c.cfg.Policy.NextDelay(attempt)
			c.log.Warn("connect failed, retrying", "url", c.cfg.URL, "attempt", attempt, "delay", delay)
			c.emit(Event{Type: "degraded", Message: err.Error()})
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attempt = 0
		c.replica.setDegraded(false)
		c.log.Info("connected", "url", c.cfg.URL)
		c.emit(Event{Type: "connected"})

		// A fresh link starts from authoritative state.
		c.requestSync()

		err = c.pump(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.replica.setDegraded(true)
		c.log.Warn("connection lost", "url", c.cfg.URL, "error", err)
		c.emit(Event{Type: "degraded", Message: "connection lost"})
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, c.cfg.URL, nil)
	if err != nil {
		return nil, ConnectionError{URL: c.cfg.URL, Err: err}
	}
	return conn, nil
}

// pump runs the read loop and multiplexes outbound sends and heartbeats
// until the connection breaks.
func (c *Conn) pump(ctx context.Context, conn *websocket.Conn) error {
	readErr := make(chan error, 1)
	incoming := make(chan ws.Envelope, 32)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			env, err := ws.Decode(data)
			if err != nil {
				c.log.Warn("dropping malformed server message", "error", err)
				continue
			}
			incoming <- env
		}
	}()

	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case env := <-incoming:
			ev, needSync, err := c.replica.Apply(env)
			if err != nil {
				c.log.Warn("failed to apply server message", "type", env.Type, "error", err)
				continue
			}
			c.emit(ev)
			if needSync {
				c.requestSync()
			}
		case env := <-c.outbound:
			data, err := env.Encode()
			if err != nil {
				c.log.Error("failed to encode outbound message", "type", env.Type, "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(connWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-ticker.C:
			c.requestSync()
		}
	}
}

// requestSync enqueues a sync message; the server answers with a full
// state_update.
func (c *Conn) requestSync() {
	env, _ := ws.NewEnvelope(ws.TypeSync, nil)
	select {
	case c.outbound <- env:
	default:
	}
}

func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
