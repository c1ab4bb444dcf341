package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

// conn is one connected client. The send channel decouples fan-out from
// slow sockets; a full buffer drops the frame instead of blocking the
// relay.
type conn struct {
	id   domain.UserID
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newConn(id domain.UserID, ws *websocket.Conn, buffer int) *conn {
	return &conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, buffer),
	}
}

func (c *conn) trySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

func (r *Relay) writePump(c *conn) {
	defer c.close()
	for data := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(r.writeTimeout)); err != nil {
			log.Error().Err(err).Str("module", "relay").Msg("writePump set deadline")
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "relay").Msg("writePump write error")
			return
		}
	}
}

func (r *Relay) readPump(c *conn) {
	defer func() {
		log.Info().Str("module", "relay").Str("user", string(c.id)).Msg("readPump closing")
		c.close()
		r.unregister(c)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		r.handleFrame(c, data)
	}
}
