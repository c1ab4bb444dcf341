package core

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/arlev/tether/internal/domain"
)

// Wire event names. Server-to-client and client-to-server events share one
// namespace; the relay routes addressed events by the envelope To field and
// room events by membership.
const (
	// server -> client
	EventReceiveMessage        = "receiveMessage"
	EventIncomingCall          = "incomingCall"
	EventCallAccepted          = "callAccepted"
	EventICECandidate          = "iceCandidate"
	EventCallEnded             = "callEnded"
	EventNewFriendRequest      = "newFriendRequest"
	EventFriendRequestAccepted = "friendRequestAccepted"

	// client -> server
	EventJoinRoom    = "joinRoom"
	EventSendMessage = "sendMessage"
	EventCallUser    = "callUser"
	EventAnswerCall  = "answerCall"
	EventEndCall     = "endCall"

	// EventChannelClosed is synthetic: published locally when the transport
	// drops so upper layers observe closure through the same subscription
	// mechanism as real events. It never travels over the wire.
	EventChannelClosed = "channelClosed"
)

// Envelope frames every wire event. To addresses direct call signaling;
// room-scoped events leave it empty.
type Envelope struct {
	Event   string          `json:"event"`
	To      domain.UserID   `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoomPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID  domain.RoomID  `json:"roomId"`
	Message domain.Message `json:"message"`
}

// CallOfferPayload is emitted by the caller (callUser) and delivered to the
// callee (incomingCall). The relay stamps From with the sender's identity.
type CallOfferPayload struct {
	From  domain.UserID             `json:"from"`
	Offer webrtc.SessionDescription `json:"offer"`
}

type CallAnswerPayload struct {
	Answer webrtc.SessionDescription `json:"answer"`
}

type CandidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type FriendRequestAcceptedPayload struct {
	FriendName string `json:"friendName"`
}
