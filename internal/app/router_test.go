package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

func newTestRouter(t *testing.T) (*Router, *fakeChannel, *State, *fakeNotifier) {
	t.Helper()
	ch := newFakeChannel("alice")
	state := NewState()
	notify := &fakeNotifier{}
	r := NewRouter(ch, state, &fakeHistory{}, &fakeUploader{}, notify)
	t.Cleanup(r.Close)
	return r, ch, state, notify
}

func TestSelectJoinsDerivedRoom(t *testing.T) {
	r, ch, _, _ := newTestRouter(t)

	r.Select(context.Background(), domain.DirectConversation("bob"))

	recs := ch.emitted()
	if len(recs) != 1 || recs[0].event != core.EventJoinRoom {
		t.Fatalf("emitted = %+v, want one joinRoom", recs)
	}
	join := recs[0].payload.(core.JoinRoomPayload)
	if join.RoomID != "dm_alice_bob" {
		t.Fatalf("joined %q, want dm_alice_bob", join.RoomID)
	}
}

func TestJoinIsDeduplicatedPerConnection(t *testing.T) {
	r, ch, _, _ := newTestRouter(t)
	conv := domain.DirectConversation("bob")

	r.Select(context.Background(), conv)
	r.Select(context.Background(), conv)

	if got := ch.emittedEvents(); len(got) != 1 {
		t.Fatalf("joinRoom emitted %d times, want 1: %v", len(got), got)
	}

	// A reconnect voids relay-side membership, so the dedup set resets.
	ch.dispatch(t, core.EventChannelClosed, struct{}{})
	r.Select(context.Background(), conv)

	if got := ch.emittedEvents(); len(got) != 2 {
		t.Fatalf("joinRoom not re-emitted after channel loss: %v", got)
	}
}

func TestSendTextJoinsThenEmits(t *testing.T) {
	r, ch, _, _ := newTestRouter(t)

	if err := r.SendText(domain.DirectConversation("bob"), "hi"); err != nil {
		t.Fatal(err)
	}

	got := ch.emittedEvents()
	want := []string{core.EventJoinRoom, core.EventSendMessage}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("emitted %v, want %v", got, want)
	}

	send := ch.emitted()[1].payload.(core.SendMessagePayload)
	if send.RoomID != "dm_alice_bob" {
		t.Errorf("room = %q", send.RoomID)
	}
	m := send.Message
	if m.Sender != "alice" || m.Receiver != "bob" || m.Content != "hi" || m.Type != domain.MessageText {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.ID == "" || m.CreatedAt.IsZero() {
		t.Errorf("message missing id or timestamp: %+v", m)
	}
}

func TestSendToGroupSetsGroupDestination(t *testing.T) {
	r, ch, _, _ := newTestRouter(t)

	if err := r.SendText(domain.GroupConversation("g1"), "yo"); err != nil {
		t.Fatal(err)
	}

	send := ch.emitted()[1].payload.(core.SendMessagePayload)
	if send.RoomID != "group_g1" {
		t.Errorf("room = %q, want group_g1", send.RoomID)
	}
	if send.Message.GroupID != "g1" || send.Message.Receiver != "" {
		t.Errorf("unexpected destination: %+v", send.Message)
	}
}

func TestReceiveFilesUnderContact(t *testing.T) {
	_, ch, state, _ := newTestRouter(t)

	// Inbound from bob and the routed self-echo of alice's own message both
	// land under the bob conversation.
	ch.dispatch(t, core.EventReceiveMessage, domain.Message{
		ID: "1", Sender: "bob", Receiver: "alice", Content: "hey", Type: domain.MessageText,
	})
	ch.dispatch(t, core.EventReceiveMessage, domain.Message{
		ID: "2", Sender: "alice", Receiver: "bob", Content: "hi back", Type: domain.MessageText,
	})

	msgs := state.DirectMessages("bob")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages under bob, want 2", len(msgs))
	}
}

func TestReceiveGroupMessage(t *testing.T) {
	_, ch, state, _ := newTestRouter(t)

	ch.dispatch(t, core.EventReceiveMessage, domain.Message{
		ID: "1", Sender: "bob", GroupID: "g1", Content: "all", Type: domain.MessageText,
	})

	if got := state.GroupMessages("g1"); len(got) != 1 {
		t.Fatalf("group history = %+v", got)
	}
	if got := state.DirectMessages("bob"); len(got) != 0 {
		t.Fatalf("group message leaked into direct history: %+v", got)
	}
}

func TestUnroutableMessageIsDropped(t *testing.T) {
	_, ch, state, _ := newTestRouter(t)

	ch.dispatch(t, core.EventReceiveMessage, domain.Message{
		ID: "1", Sender: "bob", Receiver: "alice", GroupID: "g1", Type: domain.MessageText,
	})

	if len(state.DirectMessages("bob")) != 0 || len(state.GroupMessages("g1")) != 0 {
		t.Fatal("message with two destinations was filed")
	}
}

func TestHistoryFailureStillJoins(t *testing.T) {
	ch := newFakeChannel("alice")
	notify := &fakeNotifier{}
	r := NewRouter(ch, NewState(), &fakeHistory{err: errors.New("api down")}, &fakeUploader{}, notify)
	defer r.Close()

	r.Select(context.Background(), domain.DirectConversation("bob"))

	if got := ch.emittedEvents(); len(got) != 1 || got[0] != core.EventJoinRoom {
		t.Fatalf("join not emitted after history failure: %v", got)
	}
	if len(notify.errors) == 0 {
		t.Error("history failure surfaced no notice")
	}
}

func TestSendFileUploadsFirst(t *testing.T) {
	ch := newFakeChannel("alice")
	up := &fakeUploader{result: core.UploadResult{FileURL: "https://cdn/x.png", MessageType: domain.MessageImage}}
	r := NewRouter(ch, NewState(), &fakeHistory{}, up, &fakeNotifier{})
	defer r.Close()

	err := r.SendFile(context.Background(), domain.DirectConversation("bob"), "x.png", strings.NewReader("data"))
	if err != nil {
		t.Fatal(err)
	}

	send := ch.emitted()[1].payload.(core.SendMessagePayload)
	if send.Message.FileURL != "https://cdn/x.png" || send.Message.Type != domain.MessageImage {
		t.Fatalf("unexpected file message: %+v", send.Message)
	}
}

func TestSendFileUploadFailureEmitsNothing(t *testing.T) {
	ch := newFakeChannel("alice")
	up := &fakeUploader{err: errors.New("storage full")}
	notify := &fakeNotifier{}
	r := NewRouter(ch, NewState(), &fakeHistory{}, up, notify)
	defer r.Close()

	err := r.SendFile(context.Background(), domain.DirectConversation("bob"), "x.png", strings.NewReader("data"))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ch.emittedEvents(); len(got) != 0 {
		t.Fatalf("emitted %v after failed upload", got)
	}
	if len(notify.errors) == 0 {
		t.Error("upload failure surfaced no notice")
	}
}
