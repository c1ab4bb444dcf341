// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxUserIDLen = 36

var (
	ErrUserIDTooLong = errors.New("user id too long")
	ErrUserIDEmpty   = errors.New("user id empty")
)

type UserID string

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// ParseUserID validates an identity arriving from the websocket handshake
// or the command line before it keys any registry.
func ParseUserID(s string) (UserID, error) {
	if len(s) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(s) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(s), nil
}

// FriendRequest is a pending friend request relayed from the contacts
// backend. Only the fields the realtime layer needs to surface it.
type FriendRequest struct {
	ID     string `json:"id"`
	Sender User   `json:"sender"`
}
