package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMessageValidate(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want error
	}{
		{"direct text", Message{Sender: "a", Receiver: "b", Type: MessageText}, nil},
		{"group file", Message{Sender: "a", GroupID: "g1", Type: MessageFile, FileURL: "u"}, nil},
		{"no destination", Message{Sender: "a", Type: MessageText}, ErrNoDestination},
		{"both destinations", Message{Sender: "a", Receiver: "b", GroupID: "g1", Type: MessageText}, ErrTwoDestinations},
		{"unknown type", Message{Sender: "a", Receiver: "b", Type: "sticker"}, ErrBadMessageType},
		{"empty type", Message{Sender: "a", Receiver: "b"}, ErrBadMessageType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.msg.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMessageContactIsSymmetric(t *testing.T) {
	m := Message{Sender: "alice", Receiver: "bob", Type: MessageText}

	if got := m.Contact("alice"); got != "bob" {
		t.Fatalf("sender's contact = %q, want bob", got)
	}
	if got := m.Contact("bob"); got != "alice" {
		t.Fatalf("receiver's contact = %q, want alice", got)
	}
}

func TestMessageWireFieldNames(t *testing.T) {
	m := Message{Sender: "a", Receiver: "b", Type: MessageImage, FileURL: "https://x/y.png"}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"sender", "receiver", "messageType", "fileUrl"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("marshalled message missing %q field", field)
		}
	}
	if _, ok := raw["groupId"]; ok {
		t.Error("empty groupId should be omitted")
	}
}

func TestRoomIDIsOrderIndependent(t *testing.T) {
	a := DirectConversation("bob").RoomID("alice")
	b := DirectConversation("alice").RoomID("bob")

	if a != b {
		t.Fatalf("room ids differ by initiator: %q vs %q", a, b)
	}
	if a != "dm_alice_bob" {
		t.Fatalf("room id = %q, want dm_alice_bob", a)
	}
}

func TestRoomIDGroup(t *testing.T) {
	got := GroupConversation("g42").RoomID("alice")
	if got != "group_g42" {
		t.Fatalf("room id = %q, want group_g42", got)
	}
}
