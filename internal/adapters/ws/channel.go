// Package ws implements core.SignalChannel over a gorilla websocket
// connection to the signaling relay.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/config"
	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

// wsConn is one live connection. Kept separate from Channel so the pumps of
// a replaced connection cannot touch the new one.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func (c *wsConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Channel multiplexes named events over one websocket keyed by the current
// user identity. Any number of handlers may subscribe to the same event
// name; delivery runs on the read goroutine, serialized per connection.
type Channel struct {
	relayURL     string
	readLimit    int64
	pingPeriod   time.Duration
	writeTimeout time.Duration
	sendBuffer   int

	mu       sync.RWMutex
	cur      *wsConn
	identity domain.UserID
	state    core.ChannelState
	subs     map[string]map[int]core.Handler
	nextSub  int
}

func New(cfg *config.Config) *Channel {
	return &Channel{
		relayURL:     cfg.RelayURL,
		readLimit:    cfg.ReadLimit,
		pingPeriod:   cfg.PingPeriod,
		writeTimeout: cfg.WriteTimeout,
		sendBuffer:   cfg.SendBuffer,
		state:        core.ChannelClosed,
		subs:         make(map[string]map[int]core.Handler),
	}
}

func (c *Channel) Open(ctx context.Context, identity domain.UserID) error {
	c.mu.Lock()
	if c.state == core.ChannelOpen && c.identity == identity {
		c.mu.Unlock()
		return nil
	}
	prev := c.cur
	c.cur = nil
	c.identity = identity
	c.state = core.ChannelConnecting
	c.mu.Unlock()

	if prev != nil {
		prev.shutdown()
		// The replaced connection's readPump sees c.cur != cc and stays
		// silent, so subscribers learn about the old session's end here.
		// Room membership never carries over to the new connection.
		c.dispatch(core.EventChannelClosed, nil)
	}

	u, err := url.Parse(c.relayURL)
	if err != nil {
		c.setClosed()
		return fmt.Errorf("%w: bad relay url: %v", core.ErrTransport, err)
	}
	// Identity travels as a handshake query param; the relay keys its
	// identity-to-connection map on it for addressed call signaling.
	q := u.Query()
	q.Set("userId", string(identity))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		c.setClosed()
		return fmt.Errorf("%w: dial: %v", core.ErrTransport, err)
	}

	conn.SetReadLimit(c.readLimit)
	pongWait := c.pingPeriod * 10 / 9
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &wsConn{
		ws:   conn,
		send: make(chan []byte, c.sendBuffer),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.cur = cc
	c.state = core.ChannelOpen
	c.mu.Unlock()

	log.Info().Str("module", "adapters.ws").Str("identity", string(identity)).Msg("channel open")

	go c.readPump(cc)
	go c.writePump(cc)
	return nil
}

func (c *Channel) setClosed() {
	c.mu.Lock()
	c.state = core.ChannelClosed
	c.mu.Unlock()
}

func (c *Channel) readPump(cc *wsConn) {
	defer func() {
		cc.shutdown()
		c.handleDrop(cc)
	}()

	for {
		_, data, err := cc.ws.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.ws").Msg("readPump read error")
			return
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "adapters.ws").Msg("bad envelope")
			continue
		}
		c.dispatch(env.Event, env.Payload)
	}
}

func (c *Channel) writePump(cc *wsConn) {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		cc.shutdown()
	}()

	for {
		select {
		case <-cc.done:
			_ = cc.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = cc.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-cc.send:
			_ = cc.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := cc.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = cc.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := cc.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleDrop marks the channel closed after a transport failure and tells
// subscribers through the synthetic channelClosed event. A connection that
// was already replaced by a newer Open is ignored.
func (c *Channel) handleDrop(cc *wsConn) {
	c.mu.Lock()
	if c.cur != cc {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	c.state = core.ChannelClosed
	c.mu.Unlock()

	log.Warn().Str("module", "adapters.ws").Msg("channel closed by transport")
	c.dispatch(core.EventChannelClosed, nil)
}

func (c *Channel) Subscribe(event string, h core.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[event] == nil {
		c.subs[event] = make(map[int]core.Handler)
	}
	id := c.nextSub
	c.nextSub++
	c.subs[event][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if hs, ok := c.subs[event]; ok {
			delete(hs, id)
		}
	}
}

func (c *Channel) dispatch(event string, payload json.RawMessage) {
	c.mu.RLock()
	hs := make([]core.Handler, 0, len(c.subs[event]))
	for _, h := range c.subs[event] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}

func (c *Channel) Emit(event string, payload any) error {
	return c.emit(event, "", payload)
}

func (c *Channel) EmitTo(event string, to domain.UserID, payload any) error {
	return c.emit(event, to, payload)
}

func (c *Channel) emit(event string, to domain.UserID, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event, err)
		}
		raw = b
	}
	frame, err := json.Marshal(core.Envelope{Event: event, To: to, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.mu.RLock()
	cc, state := c.cur, c.state
	c.mu.RUnlock()
	if state != core.ChannelOpen || cc == nil {
		return core.ErrChannelClosed
	}
	select {
	case cc.send <- frame:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *Channel) Identity() domain.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Channel) State() core.ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Channel) Close() {
	c.mu.Lock()
	prev := c.cur
	c.cur = nil
	c.state = core.ChannelClosed
	c.subs = make(map[string]map[int]core.Handler)
	c.mu.Unlock()

	if prev != nil {
		prev.shutdown()
		log.Info().Str("module", "adapters.ws").Msg("channel closed")
	}
}
