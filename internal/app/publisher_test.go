package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mivora/roomcast/internal/core"
)

func testStream() *core.LocalStream {
	return core.NewLocalStream(
		core.LocalTrack{ID: "cam0", Kind: core.TrackVideo},
		core.LocalTrack{ID: "mic0", Kind: core.TrackAudio},
	)
}

func joinedPublisher(t *testing.T, f *fixture) *Publisher {
	t.Helper()
	ctx := context.Background()
	p := NewPublisher(f.lc, f.registry)
	if res := p.Init(ctx, ""); !res.Success {
		t.Fatalf("init: %s", res.Error)
	}
	if res := p.JoinRoom(ctx, 7, "alice"); !res.Success {
		t.Fatalf("join: %s", res.Error)
	}
	f.handle().msgs <- core.MessageEvent{Message: map[string]any{"videoroom": "joined", "id": float64(555)}}
	eventually(t, func() bool { return p.Status().Connected }, "never connected")
	return p
}

func TestPublisher_JoinBeforeInit(t *testing.T) {
	f := newFixture()
	p := NewPublisher(f.lc, f.registry)
	res := p.JoinRoom(context.Background(), 7, "")
	if res.Success {
		t.Fatal("join succeeded without init")
	}
	if res.Error != core.ErrNotInitialized.Error() {
		t.Errorf("error = %q, want not initialized", res.Error)
	}
}

func TestPublisher_JoinedMessageSetsConnected(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)

	st := p.Status()
	if !st.Connected || st.Connecting {
		t.Errorf("status = %+v, want connected and not connecting", st)
	}
	if p.State() != PubJoined {
		t.Errorf("state = %s, want joined", p.State())
	}
	if f.handle().joinedRoom != 7 {
		t.Errorf("joined room = %d, want 7", f.handle().joinedRoom)
	}
}

func TestPublisher_JoinWhilePendingFailsFast(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := NewPublisher(f.lc, f.registry)
	if res := p.Init(ctx, ""); !res.Success {
		t.Fatal(res.Error)
	}
	if res := p.JoinRoom(ctx, 7, ""); !res.Success {
		t.Fatalf("first join: %s", res.Error)
	}
	// No joined message yet, the first join is still pending.
	res := p.JoinRoom(ctx, 7, "")
	if res.Success || res.Error != core.ErrOperationInProgress.Error() {
		t.Fatalf("second join = %+v, want operation in progress", res)
	}
}

func TestPublisher_JoinRetryAfterRejection(t *testing.T) {
	f := newFixture()
	h := newFakeHandle(core.RolePublisher, &f.log)
	h.joinPubErr = errors.New("room locked")
	f.session.handle = h

	ctx := context.Background()
	p := NewPublisher(f.lc, f.registry)
	if res := p.Init(ctx, ""); !res.Success {
		t.Fatalf("init: %s", res.Error)
	}

	res := p.JoinRoom(ctx, 7, "alice")
	if res.Success {
		t.Fatal("join succeeded despite server rejection")
	}
	// The rejected join must release the handle or no retry can attach.
	h.mu.Lock()
	if !h.detached {
		t.Error("handle not detached after rejected join")
	}
	h.joinPubErr = nil
	h.mu.Unlock()
	if f.lc.Handle() != nil {
		t.Error("lifecycle still holds the handle after rejected join")
	}

	if res := p.JoinRoom(ctx, 7, "alice"); !res.Success {
		t.Fatalf("retry join: %s", res.Error)
	}
	h.msgs <- core.MessageEvent{Message: map[string]any{"videoroom": "joined", "id": float64(555)}}
	eventually(t, func() bool { return p.Status().Connected }, "never connected on retry")
}

func TestPublisher_DefaultDisplayName(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := NewPublisher(f.lc, f.registry)
	if res := p.Init(ctx, ""); !res.Success {
		t.Fatal(res.Error)
	}
	if res := p.JoinRoom(ctx, 7, ""); !res.Success {
		t.Fatal(res.Error)
	}
	if !strings.HasPrefix(f.handle().display, "Publisher-") {
		t.Errorf("display = %q, want generated Publisher- name", f.handle().display)
	}
}

func TestPublisher_InboundJsepForwarded(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)
	h := f.handle()

	h.msgs <- core.MessageEvent{
		Message: map[string]any{"videoroom": "event"},
		Jsep:    &core.JSEP{Type: "answer", SDP: "v=0 remote"},
	}
	eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.remoteJseps) == 1
	}, "remote jsep never forwarded to handle")
	if err := p.Status().Err; err != "" {
		t.Errorf("unexpected error recorded: %s", err)
	}
}

func TestPublisher_PublishThenConfigureOK(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)
	h := f.handle()

	res := p.PublishStream(context.Background(), testStream(), 7, "demo feed")
	if !res.Success {
		t.Fatalf("publish: %s", res.Error)
	}

	h.mu.Lock()
	if len(h.offers) != 1 {
		t.Fatalf("offers = %d, want 1", len(h.offers))
	}
	tracks := h.offers[0].Tracks
	if len(tracks) != 2 || tracks[0].Kind != core.TrackVideo || tracks[1].Kind != core.TrackAudio {
		t.Fatalf("offer tracks = %+v, want send video then audio", tracks)
	}
	if tracks[0].Capture == nil || tracks[0].Capture.ID != "cam0" {
		t.Error("video binding not bound to first capture track")
	}
	if len(h.published) != 1 || h.published[0].Bitrate != 2_000_000 {
		t.Fatalf("published = %+v, want one publish at 2000000", h.published)
	}
	h.mu.Unlock()

	if p.Status().Publishing {
		t.Fatal("publishing flag set before configure-ok")
	}
	h.msgs <- core.MessageEvent{Message: map[string]any{"videoroom": "event", "configured": "ok"}}
	eventually(t, func() bool { return p.Status().Publishing }, "publishing never set after configure-ok")

	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()
	if len(f.registry.created) != 1 || f.registry.created[0].description != "demo feed" {
		t.Errorf("registry create calls = %+v", f.registry.created)
	}
	if len(f.registry.associated) != 1 || f.registry.associated[0].feed != 555 {
		t.Errorf("associate calls = %+v, want feed 555", f.registry.associated)
	}
}

func TestPublisher_RegistryFailureSkipsNegotiation(t *testing.T) {
	f := newFixture()
	f.registry.createErr = errors.New("room already has a mountpoint")
	p := joinedPublisher(t, f)

	res := p.PublishStream(context.Background(), testStream(), 7, "")
	if res.Success {
		t.Fatal("publish succeeded despite registry failure")
	}
	if !strings.Contains(res.Error, core.ErrRegistry.Error()) {
		t.Errorf("error = %q, want registry failure", res.Error)
	}
	if n := f.handle().offerCount(); n != 0 {
		t.Fatalf("offers = %d, negotiation must be skipped", n)
	}
	if p.Status().Publishing {
		t.Error("publishing flag set after registry failure")
	}
}

func TestPublisher_OfferOmitsAbsentKinds(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)

	audioOnly := core.NewLocalStream(core.LocalTrack{ID: "mic0", Kind: core.TrackAudio})
	if res := p.CreateOffer(context.Background(), audioOnly); !res.Success {
		t.Fatalf("offer: %s", res.Error)
	}
	h := f.handle()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.offers) != 1 || len(h.offers[0].Tracks) != 1 || h.offers[0].Tracks[0].Kind != core.TrackAudio {
		t.Fatalf("offers = %+v, want a single audio binding", h.offers)
	}
}

func TestPublisher_PublishEmptyStream(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)

	res := p.PublishStream(context.Background(), core.NewLocalStream(), 7, "")
	if res.Success {
		t.Fatal("publish succeeded with no usable tracks")
	}
	if !strings.Contains(res.Error, core.ErrNegotiation.Error()) {
		t.Errorf("error = %q, want negotiation failure", res.Error)
	}
}

func TestPublisher_NegotiationRejected(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)
	f.handle().offerErr = errors.New("codec mismatch")

	res := p.PublishStream(context.Background(), testStream(), 7, "")
	if res.Success {
		t.Fatal("publish succeeded despite offer rejection")
	}
	if !strings.Contains(res.Error, core.ErrNegotiation.Error()) {
		t.Errorf("error = %q, want negotiation failure", res.Error)
	}
	if p.State() != PubErrored {
		t.Errorf("state = %s, want errored", p.State())
	}
}

func TestPublisher_LeaveRoomFullTeardown(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)

	res := p.LeaveRoom(context.Background(), 7, true)
	if !res.Success {
		t.Fatalf("leave: %s", res.Error)
	}
	if !f.handle().detached {
		t.Error("handle not detached")
	}
	if !f.session.destroyed {
		t.Error("session not destroyed")
	}
	if f.registry.deleteCount() != 1 {
		t.Error("mountpoint delete not issued")
	}
	st := p.Status()
	if st.Connected || st.Connecting || st.Publishing || st.Err != "" {
		t.Errorf("status after leave = %+v, want cleared", st)
	}
	if p.State() != PubLeft {
		t.Errorf("state = %s, want left", p.State())
	}
}

func TestPublisher_LeaveIdempotent(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)

	if res := p.LeaveRoom(context.Background(), 7, true); !res.Success {
		t.Fatalf("first leave: %s", res.Error)
	}
	res := p.LeaveRoom(context.Background(), 7, true)
	if !res.Success {
		t.Fatalf("second leave: %s", res.Error)
	}
	st := p.Status()
	if st.Connected || st.Connecting || st.Publishing {
		t.Errorf("status after second leave = %+v, want cleared", st)
	}
}

func TestPublisher_LeaveContinuesPastFailures(t *testing.T) {
	f := newFixture()
	p := joinedPublisher(t, f)
	f.handle().detachErr = errors.New("server gone")

	res := p.LeaveRoom(context.Background(), 7, true)
	if res.Success {
		t.Fatal("leave reported success despite detach failure")
	}
	if f.registry.deleteCount() != 1 {
		t.Fatal("mountpoint delete skipped after detach failure")
	}
	st := p.Status()
	if st.Connected || st.Connecting || st.Publishing {
		t.Errorf("flags not cleared: %+v", st)
	}
	if st.Err == "" {
		t.Error("failure not captured in last-error field")
	}
}

// Full publisher walkthrough: init, join, publish, configure-ok, leave.
func TestPublisher_Scenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := NewPublisher(f.lc, f.registry)

	if res := p.Init(ctx, "wss://serverA/janus"); !res.Success {
		t.Fatal(res.Error)
	}
	if res := p.JoinRoom(ctx, 7, ""); !res.Success {
		t.Fatal(res.Error)
	}
	f.handle().msgs <- core.MessageEvent{Message: map[string]any{"videoroom": "joined"}}
	eventually(t, func() bool {
		st := p.Status()
		return st.Connected && !st.Connecting
	}, "joined message not applied")

	if res := p.PublishStream(ctx, testStream(), 7, ""); !res.Success {
		t.Fatal(res.Error)
	}
	f.registry.mu.Lock()
	if len(f.registry.created) != 1 || f.registry.created[0].description != "No description" {
		t.Errorf("registry create = %+v, want default description", f.registry.created)
	}
	f.registry.mu.Unlock()

	f.handle().msgs <- core.MessageEvent{Message: map[string]any{"videoroom": "event", "configured": "ok"}}
	eventually(t, func() bool { return p.Status().Publishing }, "configure-ok not applied")

	if res := p.LeaveRoom(ctx, 7, true); !res.Success {
		t.Fatal(res.Error)
	}
	if !f.handle().detached || !f.session.destroyed || f.registry.deleteCount() != 1 {
		t.Error("leave did not run detach, destroy and registry delete")
	}
	st := p.Status()
	if st.Connected || st.Connecting || st.Publishing || st.Err != "" {
		t.Errorf("status after scenario = %+v, want cleared", st)
	}
}
