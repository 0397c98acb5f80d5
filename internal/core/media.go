package core

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// LocalTrack is one captured media track offered for sending. Sample is the
// underlying pion track when the capture comes from a live source; it may be
// nil when only the binding matters.
type LocalTrack struct {
	ID     string
	Kind   TrackKind
	Sample *webrtc.TrackLocalStaticSample
}

// TrackBinding is one requested media line of an offer or answer.
// A send binding carries a capture track; a recv binding carries none.
type TrackBinding struct {
	Kind    TrackKind
	Recv    bool
	Capture *LocalTrack
}

// LocalStream is the capture-side container handed to the publisher.
// Either kind may be absent; callers tolerate that per-track.
type LocalStream struct {
	tracks []LocalTrack
}

func NewLocalStream(tracks ...LocalTrack) *LocalStream {
	return &LocalStream{tracks: tracks}
}

func (s *LocalStream) byKind(kind TrackKind) []LocalTrack {
	var out []LocalTrack
	for _, t := range s.tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (s *LocalStream) VideoTracks() []LocalTrack { return s.byKind(TrackVideo) }
func (s *LocalStream) AudioTracks() []LocalTrack { return s.byKind(TrackAudio) }

// RemoteTrack identifies one inbound media track. Remote is the underlying
// pion track when the event comes from a live connection.
type RemoteTrack struct {
	ID     string
	Mid    string
	Kind   TrackKind
	Remote *webrtc.TrackRemote
}

// RemoteStream accumulates inbound tracks as track events arrive.
// Safe to read from any goroutine; possibly empty at any time.
type RemoteStream struct {
	mu     sync.RWMutex
	tracks map[string]RemoteTrack
}

func NewRemoteStream() *RemoteStream {
	return &RemoteStream{tracks: make(map[string]RemoteTrack)}
}

func (s *RemoteStream) AddTrack(t RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[t.ID] = t
}

func (s *RemoteStream) RemoveTrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, id)
}

func (s *RemoteStream) TrackCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

func (s *RemoteStream) Tracks() []RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RemoteTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}
