package janus

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/core"
)

func DefaultRTCConfiguration() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Peer wraps the local PeerConnection backing one handle. Offers and answers
// are produced with full ICE gathering, so no trickling is needed.
type Peer struct {
	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	onTrack func(core.TrackEvent)
	closed  bool
}

func NewPeer(cfg webrtc.Configuration, onTrack func(core.TrackEvent)) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &Peer{pc: pc, onTrack: onTrack}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "adapters.janus").Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "adapters.janus").Str("peer_state", s.String()).Msg("peer state")
	})
	pc.OnTrack(p.handleTrack)

	return p, nil
}

func (p *Peer) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	mid := p.midOf(receiver)
	rt := core.RemoteTrack{
		ID:     track.ID(),
		Mid:    mid,
		Kind:   kindOf(track.Kind()),
		Remote: track,
	}
	log.Info().
		Str("module", "adapters.janus").
		Str("kind", string(rt.Kind)).
		Str("track_id", rt.ID).
		Str("mid", mid).
		Msg("remote track")
	if p.onTrack != nil {
		p.onTrack(core.TrackEvent{Track: rt, On: true, Mid: mid})
	}

	// Drain the track to observe its end; the removal event fires when the
	// read loop breaks.
	go func() {
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				break
			}
		}
		if p.onTrack != nil {
			p.onTrack(core.TrackEvent{Track: rt, On: false, Mid: mid})
		}
	}()
}

func (p *Peer) midOf(receiver *webrtc.RTPReceiver) string {
	for _, tr := range p.pc.GetTransceivers() {
		if tr.Receiver() == receiver {
			return tr.Mid()
		}
	}
	return ""
}

func (p *Peer) CreateOffer(tracks []core.TrackBinding) (*core.JSEP, error) {
	for _, tb := range tracks {
		if tb.Recv {
			if _, err := p.pc.AddTransceiverFromKind(codecTypeOf(tb.Kind), webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return nil, err
			}
			continue
		}
		if tb.Capture != nil && tb.Capture.Sample != nil {
			if _, err := p.pc.AddTrack(tb.Capture.Sample); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := p.pc.AddTransceiverFromKind(codecTypeOf(tb.Kind), webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		}); err != nil {
			return nil, err
		}
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete

	ld := p.pc.LocalDescription()
	return &core.JSEP{Type: ld.Type.String(), SDP: ld.SDP}, nil
}

// ApplyOfferCreateAnswer answers a remote offer. The answer directions come
// from the offer's media lines; recv-only bindings need no local capture.
func (p *Peer) ApplyOfferCreateAnswer(jsep *core.JSEP, tracks []core.TrackBinding) (*core.JSEP, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(jsep.Type),
		SDP:  jsep.SDP,
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	ld := p.pc.LocalDescription()
	return &core.JSEP{Type: ld.Type.String(), SDP: ld.SDP}, nil
}

func (p *Peer) ApplyRemote(jsep *core.JSEP) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(jsep.Type),
		SDP:  jsep.SDP,
	})
}

func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "adapters.janus").Msg("peer close error")
	}
}

func kindOf(t webrtc.RTPCodecType) core.TrackKind {
	if t == webrtc.RTPCodecTypeAudio {
		return core.TrackAudio
	}
	return core.TrackVideo
}

func codecTypeOf(k core.TrackKind) webrtc.RTPCodecType {
	if k == core.TrackAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}
