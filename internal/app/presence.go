package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

// Presence converts friend-graph notifications into user-visible notices
// and contact-list refreshes. No state machine, just a dispatch table over
// two events.
type Presence struct {
	ch       core.SignalChannel
	state    *State
	contacts core.ContactsService
	notify   core.Notifier

	cancels []func()
}

func NewPresence(ch core.SignalChannel, state *State, contacts core.ContactsService, notify core.Notifier) *Presence {
	p := &Presence{ch: ch, state: state, contacts: contacts, notify: notify}
	p.cancels = append(p.cancels,
		ch.Subscribe(core.EventNewFriendRequest, p.handleNewRequest),
		ch.Subscribe(core.EventFriendRequestAccepted, p.handleAccepted),
	)
	return p
}

func (p *Presence) Close() {
	for _, cancel := range p.cancels {
		cancel()
	}
}

func (p *Presence) handleNewRequest(payload json.RawMessage) {
	var req domain.FriendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("bad friend request payload")
		return
	}
	p.state.AddPendingRequest(req)
	p.notify.Info("New friend request from " + req.Sender.Username)
	p.refresh()
}

func (p *Presence) handleAccepted(payload json.RawMessage) {
	var body core.FriendRequestAcceptedPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("bad acceptance payload")
		return
	}
	p.notify.Success(body.FriendName + " accepted your friend request!")
	p.refresh()
}

func (p *Presence) refresh() {
	if err := p.contacts.RefreshContacts(context.Background()); err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Msg("contacts refresh")
	}
}

// Accept confirms a pending request: the pending entry disappears
// immediately and is restored if the backend write fails.
func (p *Presence) Accept(ctx context.Context, requestID string) error {
	var removed domain.FriendRequest
	var had bool
	return Optimistically(ctx,
		func(string) {
			removed, had = p.state.RemovePendingRequest(requestID)
		},
		func(string) {
			if had {
				p.state.AddPendingRequest(removed)
			}
		},
		func(ctx context.Context) error {
			return p.contacts.AcceptFriendRequest(ctx, requestID)
		},
	)
}
