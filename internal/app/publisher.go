package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/core"
	"github.com/mivora/roomcast/internal/domain"
)

// Target bitrate requested alongside every publish.
const publishBitrate = 2_000_000

type PublisherState int

const (
	PubIdle PublisherState = iota
	PubAttaching
	PubJoining
	PubJoined
	PubOffering
	PubPublishing
	PubLeft
	PubErrored
)

func (s PublisherState) String() string {
	switch s {
	case PubIdle:
		return "idle"
	case PubAttaching:
		return "attaching"
	case PubJoining:
		return "joining"
	case PubJoined:
		return "joined"
	case PubOffering:
		return "offering"
	case PubPublishing:
		return "publishing"
	case PubLeft:
		return "left"
	case PubErrored:
		return "errored"
	}
	return "unknown"
}

// Publisher drives join-as-publisher, offer creation and publish against one
// room, reacting to asynchronous join/configure confirmations. All public
// operations return a Result; nothing escapes the component boundary.
type Publisher struct {
	mu       sync.Mutex
	lc       *Lifecycle
	registry core.MountpointRegistry

	state  PublisherState
	status core.Status
	feed   domain.FeedID
	events context.CancelFunc
}

func NewPublisher(lc *Lifecycle, registry core.MountpointRegistry) *Publisher {
	return &Publisher{lc: lc, registry: registry}
}

func (p *Publisher) Init(ctx context.Context, server string) core.Result {
	if err := p.lc.Init(ctx, server); err != nil {
		p.mu.Lock()
		p.status.Err = err.Error()
		p.mu.Unlock()
		return core.Fail(err)
	}
	return core.OK()
}

// Status returns a snapshot of the observable state surface.
func (p *Publisher) Status() core.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Publisher) State() PublisherState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// JoinRoom attaches a publisher handle and sends a join-as-publisher request.
// Completion is asynchronous: a later "joined" message flips Connected, a
// later configured-ok event flips Publishing. Event delivery is subscribed
// before the join request goes out so early events are not lost.
func (p *Publisher) JoinRoom(ctx context.Context, room domain.RoomID, display string) core.Result {
	p.mu.Lock()
	if p.status.Connecting {
		p.mu.Unlock()
		return core.Fail(core.ErrOperationInProgress)
	}
	if !p.lc.Initialized() {
		p.status.Err = core.ErrNotInitialized.Error()
		p.mu.Unlock()
		return core.Fail(core.ErrNotInitialized)
	}
	p.status.Connecting = true
	p.status.Err = ""
	p.state = PubAttaching
	p.mu.Unlock()

	handle, err := p.lc.Attach(ctx, core.RolePublisher)
	if err != nil {
		return p.abortJoin(err)
	}

	if display == "" {
		display = fmt.Sprintf("Publisher-%d", time.Now().UnixMilli())
	}

	evCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.events = cancel
	p.state = PubJoining
	p.mu.Unlock()
	go p.dispatchMessages(evCtx, handle)

	if err := handle.JoinAsPublisher(ctx, room, core.JoinPublisherOptions{Display: display}); err != nil {
		cancel()
		p.mu.Lock()
		p.events = nil
		p.mu.Unlock()
		// Release the handle so a retry can attach again; session and client
		// survive the rejected join.
		if derr := p.lc.Teardown(ctx, false); derr != nil {
			log.Warn().Err(derr).Str("module", "app.publisher").Msg("detach after rejected join")
		}
		return p.abortJoin(err)
	}
	log.Info().Str("module", "app.publisher").Int64("room", int64(room)).Str("display", display).Msg("join requested")
	return core.OK()
}

func (p *Publisher) abortJoin(err error) core.Result {
	p.mu.Lock()
	p.status.Connecting = false
	p.status.Err = err.Error()
	p.state = PubErrored
	p.mu.Unlock()
	return core.Fail(err)
}

func (p *Publisher) dispatchMessages(ctx context.Context, handle core.PluginHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-handle.Messages():
			if !ok {
				return
			}
			p.handleMessage(ctx, handle, ev)
		}
	}
}

func (p *Publisher) handleMessage(ctx context.Context, handle core.PluginHandle, ev core.MessageEvent) {
	switch {
	case ev.Message["videoroom"] == "joined":
		p.mu.Lock()
		p.status.Connected = true
		p.status.Connecting = false
		if p.state == PubJoining {
			p.state = PubJoined
		}
		if id, ok := numericField(ev.Message, "id"); ok {
			p.feed = domain.FeedID(id)
		}
		p.mu.Unlock()
		log.Info().Str("module", "app.publisher").Msg("joined room")
	case ev.Message["videoroom"] == "event" && ev.Message["configured"] == "ok":
		p.mu.Lock()
		p.status.Publishing = true
		p.state = PubPublishing
		p.mu.Unlock()
		log.Info().Str("module", "app.publisher").Msg("publish configured")
	}
	if ev.Jsep != nil {
		// The remote description must be applied or the publish path never
		// completes; handler failures are recorded, never propagated.
		if err := handle.HandleRemoteJsep(ctx, ev.Jsep); err != nil {
			p.mu.Lock()
			p.status.Err = err.Error()
			p.mu.Unlock()
			log.Error().Err(err).Str("module", "app.publisher").Msg("handle remote jsep")
		}
	}
}

// PublishStream registers the mountpoint for the room and, only on registry
// success, proceeds to offer creation. A registry failure skips negotiation
// entirely.
func (p *Publisher) PublishStream(ctx context.Context, stream *core.LocalStream, room domain.RoomID, description string) core.Result {
	handle := p.lc.Handle()
	if handle == nil || stream == nil {
		return p.failPublish(fmt.Errorf("%w: publisher or stream are not initialized", core.ErrNegotiation))
	}
	if len(stream.VideoTracks()) == 0 && len(stream.AudioTracks()) == 0 {
		return p.failPublish(fmt.Errorf("%w: capture stream has no usable tracks", core.ErrNegotiation))
	}

	if description == "" {
		description = "No description"
	}
	if _, err := p.registry.Create(ctx, room, description); err != nil {
		return p.failPublish(fmt.Errorf("%w: %v", core.ErrRegistry, err))
	}

	p.mu.Lock()
	feed := p.feed
	p.mu.Unlock()
	if feed != 0 {
		// Best-effort: discovery works without the association.
		if err := p.registry.AssociatePublisher(ctx, room, feed); err != nil {
			log.Warn().Err(err).Str("module", "app.publisher").Msg("associate publisher")
		}
	}

	return p.CreateOffer(ctx, stream)
}

// CreateOffer builds an offer with one send-video and one send-audio track
// bound to the stream's first track of each kind (absent kinds are omitted),
// then publishes it with the fixed target bitrate.
func (p *Publisher) CreateOffer(ctx context.Context, stream *core.LocalStream) core.Result {
	handle := p.lc.Handle()
	if handle == nil || stream == nil {
		return p.failPublish(fmt.Errorf("%w: publisher or stream are not initialized", core.ErrNegotiation))
	}

	var tracks []core.TrackBinding
	if vs := stream.VideoTracks(); len(vs) > 0 {
		tracks = append(tracks, core.TrackBinding{Kind: core.TrackVideo, Capture: &vs[0]})
	}
	if as := stream.AudioTracks(); len(as) > 0 {
		tracks = append(tracks, core.TrackBinding{Kind: core.TrackAudio, Capture: &as[0]})
	}

	p.mu.Lock()
	p.state = PubOffering
	p.mu.Unlock()

	jsep, err := handle.CreateOffer(ctx, core.OfferOptions{Tracks: tracks})
	if err != nil {
		return p.failPublish(fmt.Errorf("%w: create offer: %v", core.ErrNegotiation, err))
	}
	if err := handle.Publish(ctx, jsep, core.PublishOptions{Bitrate: publishBitrate}); err != nil {
		return p.failPublish(fmt.Errorf("%w: publish: %v", core.ErrNegotiation, err))
	}
	log.Info().Str("module", "app.publisher").Int("bitrate", publishBitrate).Msg("offer published")
	return core.OK()
}

func (p *Publisher) failPublish(err error) core.Result {
	p.mu.Lock()
	p.status.Publishing = false
	p.status.Err = err.Error()
	p.state = PubErrored
	p.mu.Unlock()
	return core.Fail(err)
}

// LeaveRoom tears the publisher side down: detach and session destroy when
// destroy is set, then an unconditional mountpoint delete, then a local state
// reset. Step failures are captured but never stop later steps.
func (p *Publisher) LeaveRoom(ctx context.Context, room domain.RoomID, destroy bool) core.Result {
	p.mu.Lock()
	if p.events != nil {
		p.events()
		p.events = nil
	}
	p.mu.Unlock()

	var firstErr error
	if destroy {
		if err := p.lc.Teardown(ctx, true); err != nil {
			firstErr = err
		}
	}
	if err := p.registry.Delete(ctx, room); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", core.ErrRegistry, err)
		}
		log.Warn().Err(err).Str("module", "app.publisher").Int64("room", int64(room)).Msg("mountpoint delete failed")
	}

	p.mu.Lock()
	p.status = core.Status{}
	if firstErr != nil {
		p.status.Err = firstErr.Error()
	}
	p.feed = 0
	p.state = PubLeft
	p.mu.Unlock()

	if firstErr != nil {
		return core.Fail(firstErr)
	}
	log.Info().Str("module", "app.publisher").Int64("room", int64(room)).Bool("destroy", destroy).Msg("left room")
	return core.OK()
}

func numericField(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
