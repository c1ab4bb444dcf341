// Package call negotiates one peer-to-peer media session per call attempt
// over the shared signal channel, and guarantees resource cleanup on every
// terminal transition.
package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/arlev/tether/internal/domain"
)

// State is the negotiation state of the active call attempt. Ended is
// reachable from any state; there is no reconnecting state, transport and
// negotiation failures are terminal.
type State int

const (
	StateIdle State = iota
	StateNegotiatingCaller
	StateNegotiatingCallee
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiatingCaller:
		return "negotiating(caller)"
	case StateNegotiatingCallee:
		return "negotiating(callee)"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// vacant reports whether a new call attempt may start from s.
func (s State) vacant() bool { return s == StateIdle || s == StateEnded }

func (s State) negotiating() bool {
	return s == StateNegotiatingCaller || s == StateNegotiatingCallee
}

type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

// IncomingOffer is the transient pending decision surfaced to the user
// between receipt of an incoming call and accept/reject. Destroyed by
// either action or by the caller hanging up.
type IncomingOffer struct {
	From  domain.UserID
	Offer webrtc.SessionDescription
}
