package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

// Router computes room ids, issues join requests, and files inbound
// messages into the correct conversation history. It subscribes to the
// channel once at construction.
//
// Joins are deduplicated per connection: the relay scopes delivery to
// joined rooms, which may grow to a superset over a session's lifetime and
// resets on reconnection, so no leave is issued when switching away.
type Router struct {
	ch      core.SignalChannel
	state   *State
	history core.HistoryFetcher
	upload  core.Uploader
	notify  core.Notifier

	mu      sync.Mutex
	joined  map[domain.RoomID]bool
	cancels []func()
}

func NewRouter(ch core.SignalChannel, state *State, history core.HistoryFetcher, upload core.Uploader, notify core.Notifier) *Router {
	r := &Router{
		ch:      ch,
		state:   state,
		history: history,
		upload:  upload,
		notify:  notify,
		joined:  make(map[domain.RoomID]bool),
	}
	r.cancels = append(r.cancels,
		ch.Subscribe(core.EventReceiveMessage, r.handleReceive),
		ch.Subscribe(core.EventChannelClosed, r.handleClosed),
	)
	return r
}

func (r *Router) Close() {
	for _, cancel := range r.cancels {
		cancel()
	}
}

// DeriveRoomID is the pure room derivation; both direct participants
// compute the same id regardless of who initiates.
func (r *Router) DeriveRoomID(c domain.Conversation) domain.RoomID {
	return c.RoomID(r.ch.Identity())
}

// Select makes the conversation active: fetches its history and joins its
// room. A history failure surfaces a notice but does not block the join.
func (r *Router) Select(ctx context.Context, c domain.Conversation) {
	r.state.SetSelected(c)

	switch c.Kind {
	case domain.ConversationGroup:
		msgs, err := r.history.GroupHistory(ctx, c.Group)
		if err != nil {
			log.Error().Err(err).Str("module", "app.router").Str("group", string(c.Group)).Msg("history fetch")
			r.notify.Error("Failed to load message history")
		} else {
			r.state.SetGroupHistory(c.Group, msgs)
		}
	default:
		msgs, err := r.history.DirectHistory(ctx, c.Peer)
		if err != nil {
			log.Error().Err(err).Str("module", "app.router").Str("contact", string(c.Peer)).Msg("history fetch")
			r.notify.Error("Failed to load message history")
		} else {
			r.state.SetDirectHistory(c.Peer, msgs)
		}
	}

	r.joinRoom(c)
}

func (r *Router) joinRoom(c domain.Conversation) {
	id := r.DeriveRoomID(c)

	r.mu.Lock()
	already := r.joined[id]
	if !already {
		r.joined[id] = true
	}
	r.mu.Unlock()
	if already {
		return
	}

	if err := r.ch.Emit(core.EventJoinRoom, core.JoinRoomPayload{RoomID: id}); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("room", string(id)).Msg("join emit")
		r.mu.Lock()
		delete(r.joined, id)
		r.mu.Unlock()
		return
	}
	log.Info().Str("module", "app.router").Str("room", string(id)).Msg("joined room")
}

// handleClosed resets the join set; room membership on the relay does not
// survive a reconnect.
func (r *Router) handleClosed(json.RawMessage) {
	r.mu.Lock()
	r.joined = make(map[domain.RoomID]bool)
	r.mu.Unlock()
}

// SendText emits a text message. Delivery confirmation is the routed
// self-echo; no separate optimistic path is needed for messages.
func (r *Router) SendText(c domain.Conversation, content string) error {
	return r.send(c, domain.Message{
		Content: content,
		Type:    domain.MessageText,
	})
}

// SendFile uploads the attachment first; the stored reference and detected
// media type come back from the upload collaborator. Upload failure
// surfaces a notice and emits nothing.
func (r *Router) SendFile(ctx context.Context, c domain.Conversation, name string, f io.Reader) error {
	res, err := r.upload.Upload(ctx, name, f)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("file", name).Msg("upload")
		r.notify.Error("Failed to upload file")
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return r.send(c, domain.Message{
		Type:    res.MessageType,
		FileURL: res.FileURL,
	})
}

func (r *Router) send(c domain.Conversation, m domain.Message) error {
	self := r.ch.Identity()
	m.ID = uuid.NewString()
	m.Sender = self
	m.CreatedAt = time.Now().UTC()
	if c.Kind == domain.ConversationGroup {
		m.GroupID = c.Group
	} else {
		m.Receiver = c.Peer
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("draft message: %w", err)
	}

	// First send to a conversation may happen before any Select.
	r.joinRoom(c)

	err := r.ch.Emit(core.EventSendMessage, core.SendMessagePayload{
		RoomID:  r.DeriveRoomID(c),
		Message: m,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// handleReceive files an inbound message under its conversation. For
// direct messages the conversation key is the other participant, whether
// the local user sent or received it.
func (r *Router) handleReceive(payload json.RawMessage) {
	var m domain.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("bad message payload")
		return
	}
	if err := m.Validate(); err != nil {
		log.Error().
			Err(fmt.Errorf("%w: %v", core.ErrRouting, err)).
			Str("module", "app.router").
			Str("sender", string(m.Sender)).
			Msg("dropping unroutable message")
		return
	}

	if m.IsGroup() {
		r.state.AddGroupMessage(m.GroupID, m)
		return
	}
	r.state.AddDirectMessage(m.Contact(r.ch.Identity()), m)
}
