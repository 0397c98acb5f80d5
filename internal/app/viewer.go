package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/core"
	"github.com/mivora/roomcast/internal/domain"
)

type ViewerState int

const (
	ViewIdle ViewerState = iota
	ViewAttaching
	ViewDiscoveringFeed
	ViewJoining
	ViewAwaitingOffer
	ViewAnswering
	ViewPlaying
	ViewStopped
	ViewErrored
)

func (s ViewerState) String() string {
	switch s {
	case ViewIdle:
		return "idle"
	case ViewAttaching:
		return "attaching"
	case ViewDiscoveringFeed:
		return "discovering"
	case ViewJoining:
		return "joining"
	case ViewAwaitingOffer:
		return "awaiting-offer"
	case ViewAnswering:
		return "answering"
	case ViewPlaying:
		return "playing"
	case ViewStopped:
		return "stopped"
	case ViewErrored:
		return "errored"
	}
	return "unknown"
}

// Viewer drives join-as-subscriber, participant discovery, answer creation
// and start, and maintains the composed remote media surface from track
// events that may arrive in any order relative to the start confirmation.
type Viewer struct {
	mu sync.Mutex
	lc *Lifecycle

	state     ViewerState
	status    core.Status
	remote    *core.RemoteStream
	onStop    func()
	stopFired bool
	events    context.CancelFunc
}

func NewViewer(lc *Lifecycle) *Viewer {
	return &Viewer{lc: lc}
}

func (v *Viewer) Init(ctx context.Context, server string) core.Result {
	if err := v.lc.Init(ctx, server); err != nil {
		v.mu.Lock()
		v.status.Err = err.Error()
		v.mu.Unlock()
		return core.Fail(err)
	}
	return core.OK()
}

func (v *Viewer) Status() core.Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *Viewer) State() ViewerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// RemoteStream returns the current remote media surface, nil while nothing is
// being received. Safe to call at any time.
func (v *Viewer) RemoteStream() *core.RemoteStream {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.remote
}

// Play attaches a subscriber handle (reusing an existing session, and the
// existing handle after a Stop or a failed discovery), discovers the room's
// first participant and subscribes to its first two media lines. Convention:
// mid "0" is the video leg, mid "1" the audio leg. Event delivery is
// subscribed before the join request is issued.
func (v *Viewer) Play(ctx context.Context, room domain.RoomID, onStop func()) core.Result {
	v.mu.Lock()
	if v.status.Connecting {
		v.mu.Unlock()
		return core.Fail(core.ErrOperationInProgress)
	}
	if !v.lc.Initialized() {
		v.status.Err = core.ErrNotInitialized.Error()
		v.mu.Unlock()
		return core.Fail(core.ErrNotInitialized)
	}
	v.status.Connecting = true
	v.status.Err = ""
	v.onStop = onStop
	v.stopFired = false
	v.state = ViewAttaching
	v.mu.Unlock()

	handle := v.lc.Handle()
	if handle == nil {
		var err error
		handle, err = v.lc.Attach(ctx, core.RoleSubscriber)
		if err != nil {
			return v.abortPlay(err)
		}
	}

	// One dispatcher pair per handle lifetime; a replay after Stop or a
	// failed attempt finds them still running.
	v.mu.Lock()
	if v.events == nil {
		evCtx, cancel := context.WithCancel(context.Background())
		v.events = cancel
		go v.dispatchMessages(evCtx, handle)
		go v.dispatchTracks(evCtx, handle)
	}
	v.state = ViewDiscoveringFeed
	v.mu.Unlock()

	participants, err := handle.ListParticipants(ctx, room)
	if err != nil {
		return v.abortPlay(err)
	}
	if len(participants) == 0 {
		return v.abortPlay(core.ErrNoParticipants)
	}
	// First entry of the server-returned ordering, no further tie-break.
	feed := participants[0].ID

	v.mu.Lock()
	v.state = ViewJoining
	v.mu.Unlock()
	streams := []core.SubscribeStream{
		{Feed: feed, Mid: "0"},
		{Feed: feed, Mid: "1"},
	}
	if err := handle.JoinAsSubscriber(ctx, room, streams); err != nil {
		return v.abortPlay(err)
	}

	v.mu.Lock()
	v.state = ViewAwaitingOffer
	v.mu.Unlock()
	log.Info().Str("module", "app.viewer").Int64("room", int64(room)).Int64("feed", int64(feed)).Msg("subscribed to feed")
	return core.OK()
}

func (v *Viewer) abortPlay(err error) core.Result {
	v.mu.Lock()
	v.status.Connecting = false
	v.status.Err = err.Error()
	v.state = ViewErrored
	v.mu.Unlock()
	return core.Fail(err)
}

func (v *Viewer) dispatchMessages(ctx context.Context, handle core.PluginHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-handle.Messages():
			if !ok {
				return
			}
			v.handleMessage(ctx, handle, ev)
		}
	}
}

func (v *Viewer) dispatchTracks(ctx context.Context, handle core.PluginHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-handle.RemoteTracks():
			if !ok {
				return
			}
			v.handleTrack(ev)
		}
	}
}

func (v *Viewer) handleMessage(ctx context.Context, handle core.PluginHandle, ev core.MessageEvent) {
	if ev.Message["videoroom"] == "event" {
		if errVal, ok := ev.Message["error"]; ok {
			v.mu.Lock()
			v.status.Connecting = false
			v.status.Err = fmt.Sprint(errVal)
			v.state = ViewErrored
			v.mu.Unlock()
			log.Warn().Str("module", "app.viewer").Str("error", fmt.Sprint(errVal)).Msg("room event error")
			return
		}
	}
	if ev.Jsep == nil {
		return
	}

	v.mu.Lock()
	v.state = ViewAnswering
	v.mu.Unlock()

	answer, err := handle.CreateAnswer(ctx, core.AnswerOptions{
		Jsep: ev.Jsep,
		Tracks: []core.TrackBinding{
			{Kind: core.TrackVideo, Recv: true},
			{Kind: core.TrackAudio, Recv: true},
		},
	})
	if err != nil {
		v.recordAnswerFailure(err)
		return
	}
	if err := handle.Send(ctx, map[string]any{"request": "start"}, answer); err != nil {
		v.recordAnswerFailure(err)
		return
	}

	v.mu.Lock()
	v.status.Playing = true
	v.status.Connecting = false
	v.state = ViewPlaying
	v.mu.Unlock()
	log.Info().Str("module", "app.viewer").Msg("playback started")
}

// Failures in the message handler are recorded locally; the subscription
// stays alive.
func (v *Viewer) recordAnswerFailure(err error) {
	wrapped := fmt.Errorf("%w: %v", core.ErrNegotiation, err)
	v.mu.Lock()
	v.status.Connecting = false
	v.status.Err = wrapped.Error()
	v.mu.Unlock()
	log.Error().Err(err).Str("module", "app.viewer").Msg("answer failed")
}

func (v *Viewer) handleTrack(ev core.TrackEvent) {
	v.mu.Lock()
	if ev.On {
		if v.remote == nil {
			v.remote = core.NewRemoteStream()
		}
		v.remote.AddTrack(ev.Track)
		v.status.Playing = true
		v.stopFired = false
		v.mu.Unlock()
		log.Debug().Str("module", "app.viewer").Str("mid", ev.Mid).Str("kind", string(ev.Track.Kind)).Msg("track added")
		return
	}

	if v.remote != nil {
		v.remote.RemoveTrack(ev.Track.ID)
		if v.remote.TrackCount() == 0 {
			v.remote = nil
			v.status.Playing = false
			fire := !v.stopFired && v.onStop != nil
			v.stopFired = true
			onStop := v.onStop
			v.mu.Unlock()
			if fire {
				onStop()
			}
			log.Info().Str("module", "app.viewer").Msg("last track removed")
			return
		}
	}
	v.mu.Unlock()
}

// Stop requests a hangup on the handle (best-effort, not awaited) and clears
// the status flags. The remote surface drains asynchronously: the hangup
// produces removal events that empty it shortly after playing goes false, so
// readers may still observe tracks for a moment. The handle and session stay
// attached, ready for a later Play; Leave is the full teardown.
func (v *Viewer) Stop() core.Result {
	handle := v.lc.Handle()
	if handle != nil {
		handle.Hangup()
	}
	v.mu.Lock()
	v.status.Connecting = false
	v.status.Playing = false
	v.state = ViewStopped
	v.mu.Unlock()
	return core.OK()
}

// Leave detaches the handle, optionally destroys the session, and always
// resets local state. Safe mid-negotiation; always drives state terminal.
func (v *Viewer) Leave(ctx context.Context, destroy bool) core.Result {
	v.mu.Lock()
	if v.events != nil {
		v.events()
		v.events = nil
	}
	v.mu.Unlock()

	var firstErr error
	if err := v.lc.Teardown(ctx, destroy); err != nil {
		firstErr = err
	}

	v.mu.Lock()
	v.remote = nil
	v.onStop = nil
	v.status = core.Status{}
	if firstErr != nil {
		v.status.Err = firstErr.Error()
	}
	v.state = ViewStopped
	v.mu.Unlock()

	if firstErr != nil {
		return core.Fail(firstErr)
	}
	return core.OK()
}
