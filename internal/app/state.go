// Package app holds the client-side application layer: the shared state
// object, the room router, and the presence relay.
package app

import (
	"sync"

	"github.com/arlev/tether/internal/domain"
)

// State is the single source of truth for cross-cutting UI state: the
// selected conversation, per-conversation message history, and pending
// friend requests. All mutation goes through methods; nothing hands out
// internal slices or maps.
type State struct {
	mu sync.RWMutex

	selected    *domain.Conversation
	dmMessages  map[domain.UserID][]domain.Message
	grpMessages map[domain.GroupID][]domain.Message
	pending     []domain.FriendRequest
}

func NewState() *State {
	return &State{
		dmMessages:  make(map[domain.UserID][]domain.Message),
		grpMessages: make(map[domain.GroupID][]domain.Message),
	}
}

func (s *State) SetSelected(c domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = &c
}

func (s *State) Selected() (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return domain.Conversation{}, false
	}
	return *s.selected, true
}

// SetDirectHistory replaces the stored history for one contact.
func (s *State) SetDirectHistory(contact domain.UserID, msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dmMessages[contact] = append([]domain.Message(nil), msgs...)
}

func (s *State) AddDirectMessage(contact domain.UserID, m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dmMessages[contact] = append(s.dmMessages[contact], m)
}

func (s *State) DirectMessages(contact domain.UserID) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.dmMessages[contact]...)
}

func (s *State) SetGroupHistory(group domain.GroupID, msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grpMessages[group] = append([]domain.Message(nil), msgs...)
}

func (s *State) AddGroupMessage(group domain.GroupID, m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grpMessages[group] = append(s.grpMessages[group], m)
}

func (s *State) GroupMessages(group domain.GroupID) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.grpMessages[group]...)
}

func (s *State) SetPendingRequests(reqs []domain.FriendRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append([]domain.FriendRequest(nil), reqs...)
}

func (s *State) AddPendingRequest(r domain.FriendRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append([]domain.FriendRequest{r}, s.pending...)
}

// RemovePendingRequest removes the request with the given id and returns
// it, so callers can restore it on a failed remote write.
func (s *State) RemovePendingRequest(id string) (domain.FriendRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.pending {
		if r.ID == id {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			return r, true
		}
	}
	return domain.FriendRequest{}, false
}

func (s *State) PendingRequests() []domain.FriendRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FriendRequest(nil), s.pending...)
}
