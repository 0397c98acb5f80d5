// Package janus implements the signaling transport contract against a Janus
// videoroom server over websocket.
package janus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/core"
)

var errClosed = errors.New("signaling connection closed")

// Client is one websocket connection to the server. It multiplexes request
// replies by transaction id and routes asynchronous plugin events to the
// owning handle.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan wireMsg
	handles map[int64]*Handle
	closed  bool

	done chan struct{}
}

// Dial connects and starts the read pump. The context bounds the handshake
// only, not the connection lifetime.
func Dial(ctx context.Context, server string) (*Client, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{"janus-protocol"},
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, server, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan wireMsg),
		handles: make(map[int64]*Handle),
		done:    make(chan struct{}),
	}
	go c.readPump()
	log.Info().Str("module", "adapters.janus").Str("server", server).Msg("connected")
	return c, nil
}

// DialSignal adapts Dial to the lifecycle controller's dial contract.
func DialSignal(ctx context.Context, server string) (core.SignalClient, error) {
	return Dial(ctx, server)
}

func (c *Client) CreateSession(ctx context.Context) (core.Session, error) {
	resp, err := c.request(ctx, wireMsg{Janus: "create"}, false)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.New("create: no session id in reply")
	}
	s := &Session{client: c, id: resp.Data.ID, stop: make(chan struct{})}
	go s.keepalive()
	return s, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	return c.conn.Close()
}

func (c *Client) write(msg wireMsg) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// request sends one request and waits for its reply. With waitAck set the
// first reply of any kind completes the call (plugin requests are ack'd
// immediately, the real outcome arrives later as an event); otherwise acks
// are skipped and the first success/error reply is returned.
func (c *Client) request(ctx context.Context, msg wireMsg, waitAck bool) (wireMsg, error) {
	msg.Transaction = uuid.NewString()
	ch := make(chan wireMsg, 4)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wireMsg{}, errClosed
	}
	c.pending[msg.Transaction] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.Transaction)
		c.mu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return wireMsg{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return wireMsg{}, ctx.Err()
		case <-c.done:
			return wireMsg{}, errClosed
		case resp := <-ch:
			if resp.Error != nil {
				return wireMsg{}, resp.Error.Err()
			}
			if resp.Janus == "ack" && !waitAck {
				continue
			}
			return resp, nil
		}
	}
}

// fire sends a request without waiting for any reply.
func (c *Client) fire(msg wireMsg) {
	msg.Transaction = uuid.NewString()
	if err := c.write(msg); err != nil {
		log.Warn().Err(err).Str("module", "adapters.janus").Str("kind", msg.Janus).Msg("fire-and-forget write failed")
	}
}

func (c *Client) readPump() {
	defer func() {
		_ = c.Close()
		c.mu.Lock()
		handles := make([]*Handle, 0, len(c.handles))
		for _, h := range c.handles {
			handles = append(handles, h)
		}
		c.handles = make(map[int64]*Handle)
		c.mu.Unlock()
		for _, h := range handles {
			h.closeStreams()
		}
		log.Info().Str("module", "adapters.janus").Msg("readPump closing")
	}()

	for {
		var msg wireMsg
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				log.Error().Err(err).Str("module", "adapters.janus").Msg("readPump read error")
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg wireMsg) {
	switch msg.Janus {
	case "event":
		c.routeEvent(msg)
	case "webrtcup", "media", "slowlink", "hangup", "trickle":
		log.Debug().Str("module", "adapters.janus").Str("kind", msg.Janus).Int64("sender", msg.Sender).Msg("transport notification")
	case "detached":
		c.mu.Lock()
		h, ok := c.handles[msg.Sender]
		delete(c.handles, msg.Sender)
		c.mu.Unlock()
		if ok {
			h.closeStreams()
		}
	case "timeout":
		log.Warn().Str("module", "adapters.janus").Int64("session", msg.SessionID).Msg("session timed out")
	default:
		c.resolve(msg)
	}
}

func (c *Client) resolve(msg wireMsg) {
	c.mu.Lock()
	ch, ok := c.pending[msg.Transaction]
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "adapters.janus").Str("kind", msg.Janus).Str("transaction", msg.Transaction).Msg("reply without waiter")
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (c *Client) routeEvent(msg wireMsg) {
	c.mu.Lock()
	h, ok := c.handles[msg.Sender]
	c.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "adapters.janus").Int64("sender", msg.Sender).Msg("event for unknown handle")
		return
	}
	var data map[string]any
	if msg.Plugindata != nil {
		data = msg.Plugindata.Data
	}
	h.deliverMessage(core.MessageEvent{Message: data, Jsep: msg.Jsep})
}

func (c *Client) register(h *Handle) {
	c.mu.Lock()
	c.handles[h.id] = h
	c.mu.Unlock()
}

func (c *Client) deregister(id int64) {
	c.mu.Lock()
	delete(c.handles, id)
	c.mu.Unlock()
}
