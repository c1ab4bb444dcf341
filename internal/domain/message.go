package domain

import (
	"errors"
	"time"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
	MessageFile  MessageType = "file"
)

var (
	ErrNoDestination   = errors.New("message has neither receiver nor group")
	ErrTwoDestinations = errors.New("message has both receiver and group")
	ErrBadMessageType  = errors.New("unknown message type")
)

// Message is a single chat message. Exactly one of Receiver and GroupID is
// set. Messages are immutable once received; no local edit or delete.
type Message struct {
	ID        string      `json:"id,omitempty"`
	Sender    UserID      `json:"sender"`
	Receiver  UserID      `json:"receiver,omitempty"`
	GroupID   GroupID     `json:"groupId,omitempty"`
	Content   string      `json:"content"`
	Type      MessageType `json:"messageType"`
	FileURL   string      `json:"fileUrl,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

func (m *Message) Validate() error {
	if m.Receiver == "" && m.GroupID == "" {
		return ErrNoDestination
	}
	if m.Receiver != "" && m.GroupID != "" {
		return ErrTwoDestinations
	}
	switch m.Type {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageFile:
	default:
		return ErrBadMessageType
	}
	return nil
}

// IsGroup reports whether the message belongs to a group conversation.
func (m *Message) IsGroup() bool { return m.GroupID != "" }

// Contact returns the direct conversation this message files under from the
// point of view of self: the other participant, whether self sent or
// received it. Only meaningful for direct messages.
func (m *Message) Contact(self UserID) UserID {
	if m.Sender == self {
		return m.Receiver
	}
	return m.Sender
}
