package janus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/core"
	"github.com/mivora/roomcast/internal/domain"
)

// Handle is one videoroom plugin attachment. Messages and track events are
// delivered on buffered channels; a slow consumer drops events rather than
// stalling the read pump.
type Handle struct {
	session *Session
	client  *Client
	id      int64
	role    core.Role

	msgs   chan core.MessageEvent
	tracks chan core.TrackEvent

	mu        sync.Mutex
	peer      *Peer
	detached  bool
	closeOnce sync.Once
}

func newHandle(s *Session, id int64, role core.Role) *Handle {
	return &Handle{
		session: s,
		client:  s.client,
		id:      id,
		role:    role,
		msgs:    make(chan core.MessageEvent, 16),
		tracks:  make(chan core.TrackEvent, 16),
	}
}

func (h *Handle) ID() int64       { return h.id }
func (h *Handle) Role() core.Role { return h.role }

func (h *Handle) Messages() <-chan core.MessageEvent   { return h.msgs }
func (h *Handle) RemoteTracks() <-chan core.TrackEvent { return h.tracks }

func (h *Handle) deliverMessage(ev core.MessageEvent) {
	select {
	case h.msgs <- ev:
	default:
		log.Warn().Str("module", "adapters.janus").Int64("handle", h.id).Msg("message dropped, consumer too slow")
	}
}

func (h *Handle) deliverTrack(ev core.TrackEvent) {
	select {
	case h.tracks <- ev:
	default:
		log.Warn().Str("module", "adapters.janus").Int64("handle", h.id).Msg("track event dropped, consumer too slow")
	}
}

func (h *Handle) closeStreams() {
	h.closeOnce.Do(func() {
		close(h.msgs)
		close(h.tracks)
	})
}

// Send issues a plugin message. The server acks immediately; the outcome, if
// any, arrives later on the Messages channel.
func (h *Handle) Send(ctx context.Context, body map[string]any, jsep *core.JSEP) error {
	_, err := h.client.request(ctx, wireMsg{
		Janus:     "message",
		SessionID: h.session.id,
		HandleID:  h.id,
		Body:      body,
		Jsep:      jsep,
	}, true)
	return err
}

func (h *Handle) JoinAsPublisher(ctx context.Context, room domain.RoomID, opts core.JoinPublisherOptions) error {
	body := map[string]any{
		"request": "join",
		"ptype":   "publisher",
		"room":    int64(room),
	}
	if opts.Display != "" {
		body["display"] = opts.Display
	}
	return h.Send(ctx, body, nil)
}

func (h *Handle) JoinAsSubscriber(ctx context.Context, room domain.RoomID, streams []core.SubscribeStream) error {
	return h.Send(ctx, map[string]any{
		"request": "join",
		"ptype":   "subscriber",
		"room":    int64(room),
		"streams": streams,
	}, nil)
}

// ListParticipants is one of the few synchronous videoroom requests: the
// reply carries plugin data instead of an ack.
func (h *Handle) ListParticipants(ctx context.Context, room domain.RoomID) ([]domain.Participant, error) {
	resp, err := h.client.request(ctx, wireMsg{
		Janus:     "message",
		SessionID: h.session.id,
		HandleID:  h.id,
		Body: map[string]any{
			"request": "listparticipants",
			"room":    int64(room),
		},
	}, false)
	if err != nil {
		return nil, err
	}
	if resp.Plugindata == nil {
		return nil, errors.New("listparticipants: no plugin data in reply")
	}
	raw, err := json.Marshal(resp.Plugindata.Data["participants"])
	if err != nil {
		return nil, err
	}
	var participants []domain.Participant
	if err := json.Unmarshal(raw, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (h *Handle) ensurePeer() (*Peer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peer != nil {
		return h.peer, nil
	}
	p, err := NewPeer(DefaultRTCConfiguration(), h.deliverTrack)
	if err != nil {
		return nil, err
	}
	h.peer = p
	return p, nil
}

func (h *Handle) CreateOffer(ctx context.Context, opts core.OfferOptions) (*core.JSEP, error) {
	p, err := h.ensurePeer()
	if err != nil {
		return nil, err
	}
	return p.CreateOffer(opts.Tracks)
}

func (h *Handle) CreateAnswer(ctx context.Context, opts core.AnswerOptions) (*core.JSEP, error) {
	if opts.Jsep == nil {
		return nil, errors.New("create answer: no remote offer")
	}
	p, err := h.ensurePeer()
	if err != nil {
		return nil, err
	}
	return p.ApplyOfferCreateAnswer(opts.Jsep, opts.Tracks)
}

func (h *Handle) Publish(ctx context.Context, jsep *core.JSEP, opts core.PublishOptions) error {
	body := map[string]any{"request": "publish"}
	if opts.Bitrate > 0 {
		body["bitrate"] = opts.Bitrate
	}
	return h.Send(ctx, body, jsep)
}

func (h *Handle) HandleRemoteJsep(ctx context.Context, jsep *core.JSEP) error {
	h.mu.Lock()
	p := h.peer
	h.mu.Unlock()
	if p == nil {
		return errors.New("remote jsep without a local peer connection")
	}
	return p.ApplyRemote(jsep)
}

// Hangup tears the media session down but keeps the handle attached.
// Best-effort: the request is not awaited.
func (h *Handle) Hangup() {
	h.client.fire(wireMsg{Janus: "hangup", SessionID: h.session.id, HandleID: h.id})
	h.mu.Lock()
	p := h.peer
	h.peer = nil
	h.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

func (h *Handle) Detach(ctx context.Context) error {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return nil
	}
	h.detached = true
	p := h.peer
	h.peer = nil
	h.mu.Unlock()

	if p != nil {
		p.Close()
	}
	h.client.deregister(h.id)
	defer h.closeStreams()

	_, err := h.client.request(ctx, wireMsg{Janus: "detach", SessionID: h.session.id, HandleID: h.id}, false)
	if err != nil {
		return err
	}
	log.Info().Str("module", "adapters.janus").Int64("handle", h.id).Msg("detached")
	return nil
}
