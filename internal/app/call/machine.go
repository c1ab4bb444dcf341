package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

// ConnFactory builds the media connection toward one peer. Injected so
// tests run the machine against fakes.
type ConnFactory func(peer domain.UserID) (core.MediaConnection, error)

// session is the per-call state. Exclusively owned by the Machine; the
// ended flag is atomic so pion callbacks can check liveness without taking
// the machine lock.
type session struct {
	peer  domain.UserID
	role  Role
	conn  core.MediaConnection
	local core.MediaStream

	remote []core.RemoteTrack

	pending   *IncomingOffer
	candBuf   []webrtc.ICECandidateInit
	peerEnded bool
	timer     *time.Timer
	ended     atomic.Bool
}

// Machine is the call signaling state machine. One call at a time; every
// transition is a compare-and-set on the state field under one lock, so an
// event arriving while an asynchronous negotiation step is in flight
// observes a consistent state instead of racing it.
type Machine struct {
	ch      core.SignalChannel
	device  core.MediaDevice
	newConn ConnFactory
	notify  core.Notifier
	timeout time.Duration

	mu      sync.Mutex
	state   State
	sess    *session
	cancels []func()
}

func NewMachine(ch core.SignalChannel, device core.MediaDevice, newConn ConnFactory, notify core.Notifier, timeout time.Duration) *Machine {
	m := &Machine{
		ch:      ch,
		device:  device,
		newConn: newConn,
		notify:  notify,
		timeout: timeout,
		state:   StateIdle,
	}
	m.cancels = append(m.cancels,
		ch.Subscribe(core.EventIncomingCall, m.handleIncoming),
		ch.Subscribe(core.EventCallAccepted, m.handleAnswer),
		ch.Subscribe(core.EventICECandidate, m.handleCandidate),
		ch.Subscribe(core.EventCallEnded, m.handleRemoteEnd),
		ch.Subscribe(core.EventChannelClosed, m.handleTransportLost),
	)
	return m
}

// Close drops subscriptions and hangs up any active call.
func (m *Machine) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.Hangup()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns the incoming offer awaiting an accept/reject decision.
func (m *Machine) Pending() *IncomingOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || m.sess.ended.Load() {
		return nil
	}
	return m.sess.pending
}

// Peer returns the other party of the active call attempt.
func (m *Machine) Peer() (domain.UserID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || m.sess.ended.Load() {
		return "", false
	}
	return m.sess.peer, true
}

// LocalStream is the local media handle for attachment to playback.
func (m *Machine) LocalStream() core.MediaStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	return m.sess.local
}

// RemoteTracks are the peer tracks received so far.
func (m *Machine) RemoteTracks() []core.RemoteTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	return append([]core.RemoteTrack(nil), m.sess.remote...)
}

// StartCall places an outbound call. Media is acquired before any
// signaling: an acquisition failure aborts with nothing emitted.
func (m *Machine) StartCall(ctx context.Context, peer domain.UserID) error {
	m.mu.Lock()
	if !m.state.vacant() {
		m.mu.Unlock()
		return core.ErrCallBusy
	}
	sess := &session{peer: peer, role: RoleCaller}
	m.sess = sess
	m.state = StateNegotiatingCaller
	m.mu.Unlock()

	log.Info().Str("module", "app.call").Str("peer", string(peer)).Msg("starting call")

	stream, err := m.device.GetUserMedia(true, true)
	if err != nil {
		m.notify.Error("Could not access camera or microphone")
		m.teardown(sess, false, "media acquisition failed")
		return err
	}
	if !m.attachLocal(sess, stream) {
		return core.ErrNegotiation
	}

	conn, err := m.setupConn(ctx, sess)
	if err != nil {
		m.teardown(sess, false, "peer connection setup failed")
		return fmt.Errorf("%w: %v", core.ErrNegotiation, err)
	}

	offer, err := conn.CreateAndSetOffer()
	if err != nil {
		m.teardown(sess, false, "offer failed")
		return fmt.Errorf("%w: %v", core.ErrNegotiation, err)
	}
	if sess.ended.Load() {
		return core.ErrNegotiation
	}

	err = m.ch.EmitTo(core.EventCallUser, peer, core.CallOfferPayload{
		From:  m.ch.Identity(),
		Offer: *offer,
	})
	if err != nil {
		m.teardown(sess, false, "offer emit failed")
		return fmt.Errorf("%w: %v", core.ErrTransport, err)
	}

	m.armTimer(sess)
	return nil
}

// Accept answers the pending incoming call. This is the only path that
// acquires media for the callee; a rejected call never touches the camera.
func (m *Machine) Accept(ctx context.Context) error {
	m.mu.Lock()
	sess := m.sess
	if sess == nil || sess.ended.Load() || m.state != StateNegotiatingCallee || sess.pending == nil {
		m.mu.Unlock()
		return errors.New("no incoming call to accept")
	}
	offer := sess.pending.Offer
	peer := sess.peer
	m.mu.Unlock()

	log.Info().Str("module", "app.call").Str("peer", string(peer)).Msg("accepting call")

	stream, err := m.device.GetUserMedia(true, true)
	if err != nil {
		m.notify.Error("Could not access camera or microphone")
		m.teardown(sess, true, "media acquisition failed")
		return err
	}
	if !m.attachLocal(sess, stream) {
		return core.ErrNegotiation
	}

	conn, err := m.setupConn(ctx, sess)
	if err != nil {
		m.teardown(sess, true, "peer connection setup failed")
		return fmt.Errorf("%w: %v", core.ErrNegotiation, err)
	}

	if err := conn.SetRemoteDescription(offer); err != nil {
		m.teardown(sess, true, "remote offer rejected")
		return fmt.Errorf("%w: %v", core.ErrNegotiation, err)
	}
	answer, err := conn.CreateAndSetAnswer()
	if err != nil {
		m.teardown(sess, true, "answer failed")
		return fmt.Errorf("%w: %v", core.ErrNegotiation, err)
	}
	if err := m.flushCandidates(sess); err != nil {
		m.teardown(sess, true, "buffered candidate rejected")
		return fmt.Errorf("%w: %v", core.ErrNegotiation, err)
	}

	if err := m.ch.EmitTo(core.EventAnswerCall, peer, core.CallAnswerPayload{Answer: *answer}); err != nil {
		m.teardown(sess, true, "answer emit failed")
		return fmt.Errorf("%w: %v", core.ErrTransport, err)
	}

	m.mu.Lock()
	if m.sess == sess && !sess.ended.Load() {
		sess.pending = nil
		m.state = StateConnected
		m.stopTimer(sess)
	}
	m.mu.Unlock()
	log.Info().Str("module", "app.call").Str("peer", string(peer)).Msg("connected")
	return nil
}

// Reject discards the pending offer. Nothing is emitted; the caller's wait
// state is the relay's concern.
func (m *Machine) Reject() {
	m.mu.Lock()
	sess := m.sess
	if sess == nil || sess.pending == nil || sess.ended.Load() {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.teardown(sess, false, "rejected")
}

// Hangup ends the active call or cancels the outbound attempt. Idempotent;
// emits endCall only when the peer has not already ended.
func (m *Machine) Hangup() {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return
	}
	m.teardown(sess, true, "hangup")
}

// SetAudioEnabled and SetVideoEnabled flip track-enabled state on the local
// media without renegotiation.
func (m *Machine) SetAudioEnabled(on bool) { m.setEnabled(core.TrackAudio, on) }
func (m *Machine) SetVideoEnabled(on bool) { m.setEnabled(core.TrackVideo, on) }

func (m *Machine) setEnabled(kind core.TrackKind, on bool) {
	m.mu.Lock()
	sess := m.sess
	if sess == nil || sess.ended.Load() || sess.local == nil {
		m.mu.Unlock()
		return
	}
	for _, t := range sess.local.TracksByKind(kind) {
		t.SetEnabled(on)
	}
	conn := sess.conn
	m.mu.Unlock()

	if conn != nil {
		if err := conn.SetLocalEnabled(kind, on); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Str("kind", string(kind)).Msg("toggle sender")
		}
	}
}

// attachLocal stores the acquired stream, releasing it instead when the
// call was torn down while acquisition was in flight.
func (m *Machine) attachLocal(sess *session, stream core.MediaStream) bool {
	m.mu.Lock()
	if m.sess != sess || sess.ended.Load() {
		m.mu.Unlock()
		stream.StopAll()
		return false
	}
	sess.local = stream
	m.mu.Unlock()
	return true
}

// setupConn builds and starts the peer connection, registers the candidate
// and remote-track callbacks, and attaches local media.
func (m *Machine) setupConn(ctx context.Context, sess *session) (core.MediaConnection, error) {
	conn, err := m.newConn(sess.peer)
	if err != nil {
		return nil, fmt.Errorf("new connection: %w", err)
	}

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		// A candidate gathered after hang-up must not be emitted.
		if sess.ended.Load() {
			return
		}
		if err := m.ch.EmitTo(core.EventICECandidate, sess.peer, core.CandidatePayload{Candidate: ci}); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Msg("candidate emit")
		}
	})
	conn.OnRemoteTrack(func(t core.RemoteTrack) {
		m.mu.Lock()
		if m.sess == sess && !sess.ended.Load() {
			sess.remote = append(sess.remote, t)
		}
		m.mu.Unlock()
	})

	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("start connection: %w", err)
	}

	m.mu.Lock()
	if m.sess != sess || sess.ended.Load() {
		m.mu.Unlock()
		conn.Close()
		return nil, errors.New("call ended during setup")
	}
	sess.conn = conn
	local := sess.local
	m.mu.Unlock()

	if err := conn.AddLocalMedia(local); err != nil {
		return nil, fmt.Errorf("add local media: %w", err)
	}
	return conn, nil
}

func (m *Machine) handleIncoming(payload json.RawMessage) {
	var body core.CallOfferPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		log.Error().Err(err).Str("module", "app.call").Msg("bad incoming call payload")
		return
	}

	m.mu.Lock()
	if !m.state.vacant() {
		m.mu.Unlock()
		log.Warn().Str("module", "app.call").Str("from", string(body.From)).Msg("busy, ignoring incoming call")
		return
	}
	sess := &session{
		peer:    body.From,
		role:    RoleCallee,
		pending: &IncomingOffer{From: body.From, Offer: body.Offer},
	}
	m.sess = sess
	m.state = StateNegotiatingCallee
	m.mu.Unlock()

	m.armTimer(sess)
	m.notify.Info("Incoming video call from " + string(body.From))
}

func (m *Machine) handleAnswer(payload json.RawMessage) {
	var body core.CallAnswerPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		log.Error().Err(err).Str("module", "app.call").Msg("bad answer payload")
		return
	}

	m.mu.Lock()
	sess := m.sess
	if sess == nil || sess.ended.Load() || m.state != StateNegotiatingCaller || sess.conn == nil {
		m.mu.Unlock()
		log.Warn().Str("module", "app.call").Msg("ignoring out-of-sequence answer")
		return
	}
	conn := sess.conn
	m.mu.Unlock()

	if err := conn.SetRemoteDescription(body.Answer); err != nil {
		log.Error().Err(err).Str("module", "app.call").Msg("apply answer")
		m.notify.Error("Call failed")
		m.teardown(sess, true, "answer rejected")
		return
	}
	if err := m.flushCandidates(sess); err != nil {
		log.Error().Err(err).Str("module", "app.call").Msg("flush candidates")
		m.notify.Error("Call failed")
		m.teardown(sess, true, "buffered candidate rejected")
		return
	}

	m.mu.Lock()
	if m.sess == sess && !sess.ended.Load() {
		m.state = StateConnected
		m.stopTimer(sess)
	}
	m.mu.Unlock()
	log.Info().Str("module", "app.call").Str("peer", string(sess.peer)).Msg("connected")
}

// handleCandidate applies a remote candidate, or buffers it when the
// remote description is not set yet. Candidates race the answer/offer over
// the same transport, so buffering is mandatory; buffered candidates are
// applied in receipt order right after the remote description lands.
func (m *Machine) handleCandidate(payload json.RawMessage) {
	var body core.CandidatePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		log.Error().Err(err).Str("module", "app.call").Msg("bad candidate payload")
		return
	}

	m.mu.Lock()
	sess := m.sess
	if sess == nil || sess.ended.Load() {
		m.mu.Unlock()
		log.Debug().Str("module", "app.call").Msg("candidate with no active call, dropping")
		return
	}
	if sess.conn == nil || !sess.conn.HasRemoteDescription() {
		sess.candBuf = append(sess.candBuf, body.Candidate)
		m.mu.Unlock()
		return
	}
	conn := sess.conn
	err := conn.AddICECandidate(body.Candidate)
	m.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("module", "app.call").Msg("add candidate")
		m.notify.Error("Call failed")
		m.teardown(sess, true, "candidate rejected")
	}
}

func (m *Machine) flushCandidates(sess *session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != sess || sess.ended.Load() || sess.conn == nil {
		return nil
	}
	for _, ci := range sess.candBuf {
		if err := sess.conn.AddICECandidate(ci); err != nil {
			return err
		}
	}
	sess.candBuf = nil
	return nil
}

func (m *Machine) handleRemoteEnd(json.RawMessage) {
	m.mu.Lock()
	sess := m.sess
	if sess == nil || sess.ended.Load() {
		m.mu.Unlock()
		return
	}
	sess.peerEnded = true
	m.mu.Unlock()
	m.teardown(sess, false, "peer ended")
}

func (m *Machine) handleTransportLost(json.RawMessage) {
	m.mu.Lock()
	sess := m.sess
	active := sess != nil && !sess.ended.Load()
	m.mu.Unlock()
	if !active {
		return
	}
	m.notify.Error("Call failed")
	m.teardown(sess, false, "transport lost")
}

func (m *Machine) armTimer(sess *session) {
	if m.timeout <= 0 {
		return
	}
	m.mu.Lock()
	if m.sess == sess && !sess.ended.Load() && m.state.negotiating() {
		sess.timer = time.AfterFunc(m.timeout, func() { m.onTimeout(sess) })
	}
	m.mu.Unlock()
}

func (m *Machine) onTimeout(sess *session) {
	m.mu.Lock()
	expired := m.sess == sess && !sess.ended.Load() && m.state.negotiating()
	m.mu.Unlock()
	if !expired {
		return
	}
	log.Warn().Str("module", "app.call").Str("peer", string(sess.peer)).Err(core.ErrNegotiation).Msg("negotiation timed out")
	m.notify.Error("Call failed: no answer")
	m.teardown(sess, true, "negotiation timeout")
}

func (m *Machine) stopTimer(sess *session) {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
}

// teardown is the single exit path: stops local tracks, closes the peer
// connection, clears the pending offer, and emits endCall when the end is
// locally initiated. Safe against concurrent and repeated invocation.
func (m *Machine) teardown(sess *session, emitEnd bool, reason string) {
	m.mu.Lock()
	if m.sess != sess || !sess.ended.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return
	}
	m.state = StateEnded
	m.stopTimer(sess)
	sess.pending = nil
	sess.candBuf = nil
	conn := sess.conn
	local := sess.local
	peer := sess.peer
	peerEnded := sess.peerEnded
	m.mu.Unlock()

	if local != nil {
		local.StopAll()
	}
	if conn != nil {
		conn.Close()
	}
	if emitEnd && !peerEnded {
		if err := m.ch.EmitTo(core.EventEndCall, peer, struct{}{}); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Msg("endCall emit")
		}
	}
	log.Info().Str("module", "app.call").Str("peer", string(peer)).Str("reason", reason).Msg("call ended")
}
