package domain

import (
	"sort"
	"strings"
)

type (
	GroupID string
	RoomID  string
)

type ConversationKind int

const (
	ConversationDirect ConversationKind = iota
	ConversationGroup
)

// Conversation identifies one chat target: either a direct contact or a
// group. Rooms are derived from it, never stored.
type Conversation struct {
	Kind  ConversationKind
	Peer  UserID
	Group GroupID
}

func DirectConversation(peer UserID) Conversation {
	return Conversation{Kind: ConversationDirect, Peer: peer}
}

func GroupConversation(id GroupID) Conversation {
	return Conversation{Kind: ConversationGroup, Group: id}
}

// RoomID derives the wire room identifier. Direct rooms sort the two
// participant ids so both sides compute the same room no matter who joins
// first; group rooms use the group id verbatim.
func (c Conversation) RoomID(self UserID) RoomID {
	if c.Kind == ConversationGroup {
		return RoomID("group_" + string(c.Group))
	}
	pair := []string{string(self), string(c.Peer)}
	sort.Strings(pair)
	return RoomID("dm_" + strings.Join(pair, "_"))
}
