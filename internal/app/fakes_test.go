package app

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

type emitRecord struct {
	event   string
	to      domain.UserID
	payload any
}

// fakeChannel records emissions and lets tests inject inbound events.
type fakeChannel struct {
	mu       sync.Mutex
	identity domain.UserID
	nextSub  int
	subs     map[string]map[int]core.Handler
	records  []emitRecord
	emitErr  error
}

func newFakeChannel(identity domain.UserID) *fakeChannel {
	return &fakeChannel{
		identity: identity,
		subs:     make(map[string]map[int]core.Handler),
	}
}

func (f *fakeChannel) Open(context.Context, domain.UserID) error { return nil }

func (f *fakeChannel) Subscribe(event string, h core.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[event] == nil {
		f.subs[event] = make(map[int]core.Handler)
	}
	id := f.nextSub
	f.nextSub++
	f.subs[event][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[event], id)
	}
}

func (f *fakeChannel) Emit(event string, payload any) error {
	return f.EmitTo(event, "", payload)
}

func (f *fakeChannel) EmitTo(event string, to domain.UserID, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.records = append(f.records, emitRecord{event: event, to: to, payload: payload})
	return nil
}

func (f *fakeChannel) Identity() domain.UserID  { return f.identity }
func (f *fakeChannel) State() core.ChannelState { return core.ChannelOpen }
func (f *fakeChannel) Close()                   {}

// dispatch marshals v and delivers it to every subscriber of event, the way
// the real channel's read pump would.
func (f *fakeChannel) dispatch(t *testing.T, event string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	f.mu.Lock()
	handlers := make([]core.Handler, 0, len(f.subs[event]))
	for _, h := range f.subs[event] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeChannel) emitted() []emitRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitRecord(nil), f.records...)
}

func (f *fakeChannel) emittedEvents() []string {
	var names []string
	for _, r := range f.emitted() {
		names = append(names, r.event)
	}
	return names
}

type fakeHistory struct {
	direct map[domain.UserID][]domain.Message
	group  map[domain.GroupID][]domain.Message
	err    error
}

func (f *fakeHistory) DirectHistory(_ context.Context, c domain.UserID) ([]domain.Message, error) {
	return f.direct[c], f.err
}

func (f *fakeHistory) GroupHistory(_ context.Context, g domain.GroupID) ([]domain.Message, error) {
	return f.group[g], f.err
}

type fakeUploader struct {
	result core.UploadResult
	err    error
	calls  int
}

func (f *fakeUploader) Upload(_ context.Context, _ string, r io.Reader) (core.UploadResult, error) {
	f.calls++
	_, _ = io.Copy(io.Discard, r)
	return f.result, f.err
}

type fakeContacts struct {
	acceptErr  error
	accepted   []string
	refreshes  int
	refreshErr error
}

func (f *fakeContacts) AcceptFriendRequest(_ context.Context, id string) error {
	f.accepted = append(f.accepted, id)
	return f.acceptErr
}

func (f *fakeContacts) RefreshContacts(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

type fakeNotifier struct {
	mu     sync.Mutex
	infos  []string
	succ   []string
	errors []string
}

func (f *fakeNotifier) Info(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos = append(f.infos, msg)
}

func (f *fakeNotifier) Success(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.succ = append(f.succ, msg)
}

func (f *fakeNotifier) Error(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}
