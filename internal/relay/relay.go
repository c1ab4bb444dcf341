// Package relay is a development stand-in for the production signaling
// relay: one websocket per user identity, room-scoped message fan-out, and
// identity-addressed call signaling. Used by cmd/devrelay and the
// integration tests; it is not the production server.
package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/config"
	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

type Relay struct {
	readLimit    int64
	writeTimeout time.Duration
	sendBuffer   int

	mu sync.RWMutex
	// conns maps identity to its one live connection; a reconnect replaces
	// the previous socket.
	conns map[domain.UserID]*conn
	// rooms holds the identities joined to each room. Map semantics make
	// repeated joins idempotent.
	rooms map[domain.RoomID]map[domain.UserID]struct{}
}

func New(cfg *config.Config) *Relay {
	return &Relay{
		readLimit:    cfg.ReadLimit,
		writeTimeout: cfg.WriteTimeout,
		sendBuffer:   cfg.SendBuffer,
		conns:        make(map[domain.UserID]*conn),
		rooms:        make(map[domain.RoomID]map[domain.UserID]struct{}),
	}
}

// register binds the identity to a new connection, replacing any previous
// one: exactly one live session per identity.
func (r *Relay) register(c *conn) {
	r.mu.Lock()
	prev := r.conns[c.id]
	r.conns[c.id] = c
	r.mu.Unlock()

	if prev != nil {
		log.Info().Str("module", "relay").Str("user", string(c.id)).Msg("replacing previous session")
		prev.close()
	}
	log.Info().Str("module", "relay").Str("user", string(c.id)).Msg("registered")
}

func (r *Relay) unregister(c *conn) {
	r.mu.Lock()
	if r.conns[c.id] == c {
		delete(r.conns, c.id)
		for _, members := range r.rooms {
			delete(members, c.id)
		}
	}
	r.mu.Unlock()
	log.Info().Str("module", "relay").Str("user", string(c.id)).Msg("unregistered")
}

func (r *Relay) joinRoom(id domain.RoomID, user domain.UserID) {
	r.mu.Lock()
	if r.rooms[id] == nil {
		r.rooms[id] = make(map[domain.UserID]struct{})
	}
	r.rooms[id][user] = struct{}{}
	r.mu.Unlock()
	log.Info().Str("module", "relay").Str("room", string(id)).Str("user", string(user)).Msg("joined")
}

// broadcast fans a frame out to every member of a room, the sender
// included: the sender's own copy is its delivery confirmation.
func (r *Relay) broadcast(room domain.RoomID, frame []byte) {
	r.mu.RLock()
	targets := make([]*conn, 0, len(r.rooms[room]))
	for uid := range r.rooms[room] {
		if c, ok := r.conns[uid]; ok {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.trySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "relay").Str("user", string(c.id)).Msg("dropping frame")
		}
	}
}

// forward sends one addressed event to a single identity. Unknown targets
// are dropped; absence of a reply is the only failure signal in this
// protocol.
func (r *Relay) forward(to domain.UserID, event string, payload json.RawMessage) {
	frame, err := json.Marshal(core.Envelope{Event: event, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("marshal forward")
		return
	}

	r.mu.RLock()
	c, ok := r.conns[to]
	r.mu.RUnlock()
	if !ok {
		log.Warn().Str("module", "relay").Str("to", string(to)).Str("event", event).Msg("no session for target")
		return
	}
	if err := c.trySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("to", string(to)).Msg("dropping frame")
	}
}

func (r *Relay) handleFrame(c *conn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("bad envelope")
		return
	}

	switch env.Event {
	case core.EventJoinRoom:
		var p core.JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Error().Err(err).Str("module", "relay").Msg("bad join payload")
			return
		}
		r.joinRoom(p.RoomID, c.id)

	case core.EventSendMessage:
		r.handleSendMessage(c, env.Payload)

	case core.EventCallUser:
		// Stamp the sender so the callee knows whom to answer.
		var p core.CallOfferPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Error().Err(err).Str("module", "relay").Msg("bad offer payload")
			return
		}
		p.From = c.id
		stamped, err := json.Marshal(p)
		if err != nil {
			log.Error().Err(err).Str("module", "relay").Msg("marshal offer")
			return
		}
		r.forward(env.To, core.EventIncomingCall, stamped)

	case core.EventAnswerCall:
		r.forward(env.To, core.EventCallAccepted, env.Payload)

	case core.EventICECandidate:
		r.forward(env.To, core.EventICECandidate, env.Payload)

	case core.EventEndCall:
		r.forward(env.To, core.EventCallEnded, env.Payload)

	default:
		log.Warn().Str("module", "relay").Str("event", env.Event).Msg("unknown event")
	}
}

func (r *Relay) handleSendMessage(c *conn, payload json.RawMessage) {
	var p core.SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("bad message payload")
		return
	}
	if err := p.Message.Validate(); err != nil {
		log.Error().Err(err).Str("module", "relay").Str("sender", string(c.id)).Msg("dropping invalid message")
		return
	}

	body, err := json.Marshal(p.Message)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("marshal message")
		return
	}
	frame, err := json.Marshal(core.Envelope{Event: core.EventReceiveMessage, Payload: body})
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("marshal envelope")
		return
	}
	r.broadcast(p.RoomID, frame)
}
