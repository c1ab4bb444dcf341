package app

import (
	"context"
	"errors"
	"testing"

	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

func TestNewFriendRequestNotifiesAndRefreshes(t *testing.T) {
	ch := newFakeChannel("alice")
	state := NewState()
	contacts := &fakeContacts{}
	notify := &fakeNotifier{}
	p := NewPresence(ch, state, contacts, notify)
	defer p.Close()

	ch.dispatch(t, core.EventNewFriendRequest, domain.FriendRequest{
		ID:     "r1",
		Sender: domain.User{ID: "u9", Username: "carol"},
	})

	if got := state.PendingRequests(); len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("pending = %+v", got)
	}
	if len(notify.infos) != 1 || notify.infos[0] != "New friend request from carol" {
		t.Fatalf("infos = %v", notify.infos)
	}
	if contacts.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", contacts.refreshes)
	}
}

func TestFriendRequestAcceptedNotifies(t *testing.T) {
	ch := newFakeChannel("alice")
	contacts := &fakeContacts{}
	notify := &fakeNotifier{}
	p := NewPresence(ch, NewState(), contacts, notify)
	defer p.Close()

	ch.dispatch(t, core.EventFriendRequestAccepted, core.FriendRequestAcceptedPayload{FriendName: "dave"})

	if len(notify.succ) != 1 || notify.succ[0] != "dave accepted your friend request!" {
		t.Fatalf("successes = %v", notify.succ)
	}
	if contacts.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", contacts.refreshes)
	}
}

func TestAcceptRemovesPendingOptimistically(t *testing.T) {
	ch := newFakeChannel("alice")
	state := NewState()
	contacts := &fakeContacts{}
	p := NewPresence(ch, state, contacts, &fakeNotifier{})
	defer p.Close()

	state.AddPendingRequest(domain.FriendRequest{ID: "r1"})

	if err := p.Accept(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	if got := state.PendingRequests(); len(got) != 0 {
		t.Fatalf("pending after accept = %+v", got)
	}
	if len(contacts.accepted) != 1 || contacts.accepted[0] != "r1" {
		t.Fatalf("backend calls = %v", contacts.accepted)
	}
}

func TestAcceptRestoresPendingOnBackendFailure(t *testing.T) {
	ch := newFakeChannel("alice")
	state := NewState()
	contacts := &fakeContacts{acceptErr: errors.New("api down")}
	p := NewPresence(ch, state, contacts, &fakeNotifier{})
	defer p.Close()

	state.AddPendingRequest(domain.FriendRequest{ID: "r1", Sender: domain.User{Username: "carol"}})

	if err := p.Accept(context.Background(), "r1"); err == nil {
		t.Fatal("expected error")
	}
	got := state.PendingRequests()
	if len(got) != 1 || got[0].ID != "r1" || got[0].Sender.Username != "carol" {
		t.Fatalf("pending not restored: %+v", got)
	}
}
