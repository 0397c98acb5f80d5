package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mivora/roomcast/internal/core"
	"github.com/mivora/roomcast/internal/domain"
)

// fakeHandle implements core.PluginHandle for state machine testing. Tests
// push events into msgs/tracks to simulate the server side.
type fakeHandle struct {
	mu   sync.Mutex
	role core.Role
	log  *[]string

	msgs   chan core.MessageEvent
	tracks chan core.TrackEvent

	participants []domain.Participant

	joinPubErr error
	joinSubErr error
	listErr    error
	offerErr   error
	answerErr  error
	publishErr error
	sendErr    error
	jsepErr    error
	detachErr  error

	joinedRoom  domain.RoomID
	display     string
	subscribed  []core.SubscribeStream
	offers      []core.OfferOptions
	answers     []core.AnswerOptions
	published   []core.PublishOptions
	sent        []map[string]any
	remoteJseps []*core.JSEP
	hangups     int
	detached    bool
}

func newFakeHandle(role core.Role, log *[]string) *fakeHandle {
	return &fakeHandle{
		role:   role,
		log:    log,
		msgs:   make(chan core.MessageEvent, 16),
		tracks: make(chan core.TrackEvent, 16),
	}
}

func (h *fakeHandle) ID() int64       { return 42 }
func (h *fakeHandle) Role() core.Role { return h.role }

func (h *fakeHandle) JoinAsPublisher(ctx context.Context, room domain.RoomID, opts core.JoinPublisherOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.joinPubErr != nil {
		return h.joinPubErr
	}
	h.joinedRoom = room
	h.display = opts.Display
	return nil
}

func (h *fakeHandle) JoinAsSubscriber(ctx context.Context, room domain.RoomID, streams []core.SubscribeStream) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.joinSubErr != nil {
		return h.joinSubErr
	}
	h.joinedRoom = room
	h.subscribed = append([]core.SubscribeStream(nil), streams...)
	return nil
}

func (h *fakeHandle) ListParticipants(ctx context.Context, room domain.RoomID) ([]domain.Participant, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	return h.participants, nil
}

func (h *fakeHandle) CreateOffer(ctx context.Context, opts core.OfferOptions) (*core.JSEP, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.offerErr != nil {
		return nil, h.offerErr
	}
	h.offers = append(h.offers, opts)
	return &core.JSEP{Type: "offer", SDP: "v=0 offer"}, nil
}

func (h *fakeHandle) CreateAnswer(ctx context.Context, opts core.AnswerOptions) (*core.JSEP, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.answerErr != nil {
		return nil, h.answerErr
	}
	h.answers = append(h.answers, opts)
	return &core.JSEP{Type: "answer", SDP: "v=0 answer"}, nil
}

func (h *fakeHandle) Publish(ctx context.Context, jsep *core.JSEP, opts core.PublishOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.publishErr != nil {
		return h.publishErr
	}
	h.published = append(h.published, opts)
	return nil
}

func (h *fakeHandle) Send(ctx context.Context, body map[string]any, jsep *core.JSEP) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, body)
	return nil
}

func (h *fakeHandle) HandleRemoteJsep(ctx context.Context, jsep *core.JSEP) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.jsepErr != nil {
		return h.jsepErr
	}
	h.remoteJseps = append(h.remoteJseps, jsep)
	return nil
}

func (h *fakeHandle) Hangup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hangups++
}

func (h *fakeHandle) Detach(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.log != nil {
		*h.log = append(*h.log, "detach")
	}
	if h.detachErr != nil {
		return h.detachErr
	}
	h.detached = true
	return nil
}

func (h *fakeHandle) Messages() <-chan core.MessageEvent   { return h.msgs }
func (h *fakeHandle) RemoteTracks() <-chan core.TrackEvent { return h.tracks }

func (h *fakeHandle) offerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.offers)
}

type fakeSession struct {
	mu         sync.Mutex
	handle     *fakeHandle
	log        *[]string
	attachErr  error
	destroyErr error
	destroyed  bool
	destroyOpt core.DestroyOptions
}

func (s *fakeSession) ID() int64       { return 7001 }
func (s *fakeSession) Connected() bool { return true }

func (s *fakeSession) Attach(ctx context.Context, role core.Role) (core.PluginHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	if s.handle == nil {
		s.handle = newFakeHandle(role, s.log)
	}
	s.handle.role = role
	return s.handle, nil
}

func (s *fakeSession) Destroy(ctx context.Context, opts core.DestroyOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log != nil {
		*s.log = append(*s.log, "destroy")
	}
	if s.destroyErr != nil {
		return s.destroyErr
	}
	s.destroyed = true
	s.destroyOpt = opts
	return nil
}

type fakeClient struct {
	mu         sync.Mutex
	session    *fakeSession
	sessionErr error
	closed     bool
}

func (c *fakeClient) CreateSession(ctx context.Context) (core.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionErr != nil {
		return nil, c.sessionErr
	}
	return c.session, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type registryCall struct {
	room        domain.RoomID
	description string
	feed        domain.FeedID
}

type fakeRegistry struct {
	mu         sync.Mutex
	createErr  error
	deleteErr  error
	created    []registryCall
	associated []registryCall
	deleted    []domain.RoomID
}

func (r *fakeRegistry) Create(ctx context.Context, room domain.RoomID, description string) (*domain.Mountpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.created = append(r.created, registryCall{room: room, description: description})
	return &domain.Mountpoint{ID: int64(len(r.created)), RoomID: room, Description: description, CreatedAt: time.Now()}, nil
}

func (r *fakeRegistry) List(ctx context.Context) ([]domain.Mountpoint, error) {
	return nil, nil
}

func (r *fakeRegistry) AssociatePublisher(ctx context.Context, room domain.RoomID, feed domain.FeedID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.associated = append(r.associated, registryCall{room: room, feed: feed})
	return nil
}

func (r *fakeRegistry) Delete(ctx context.Context, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deleted = append(r.deleted, room)
	return nil
}

func (r *fakeRegistry) deleteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deleted)
}

// fixture wires a lifecycle to fakes and returns the pieces tests poke at.
type fixture struct {
	lc       *Lifecycle
	client   *fakeClient
	session  *fakeSession
	registry *fakeRegistry
	log      []string
}

func newFixture() *fixture {
	f := &fixture{registry: &fakeRegistry{}}
	f.session = &fakeSession{log: &f.log}
	f.client = &fakeClient{session: f.session}
	f.lc = NewLifecycle(func(ctx context.Context, server string) (core.SignalClient, error) {
		return f.client, nil
	})
	return f
}

func (f *fixture) handle() *fakeHandle {
	f.session.mu.Lock()
	defer f.session.mu.Unlock()
	return f.session.handle
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
