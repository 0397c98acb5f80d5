package core

import (
	"context"

	"github.com/mivora/roomcast/internal/domain"
)

// Role of a plugin handle within a room.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// JSEP is an opaque session description as relayed by the signaling server.
type JSEP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// MessageEvent is one asynchronous plugin message, optionally carrying a
// remote session description that must be fed back into the handle.
type MessageEvent struct {
	Message map[string]any
	Jsep    *JSEP
}

// TrackEvent reports a remote track appearing (On) or going away.
type TrackEvent struct {
	Track RemoteTrack
	On    bool
	Mid   string
}

// SignalClient abstracts the transport-level signaling client.
// Owned by the lifecycle controller; the controller must Close() it.
type SignalClient interface {
	CreateSession(ctx context.Context) (Session, error)
	Close() error
}

type DestroyOptions struct {
	// Notify asks the server to announce the destruction to attached handles.
	Notify bool
}

// Session is one signaling connection to the server.
type Session interface {
	ID() int64
	Connected() bool
	Attach(ctx context.Context, role Role) (PluginHandle, error)
	Destroy(ctx context.Context, opts DestroyOptions) error
}

type JoinPublisherOptions struct {
	Display string
}

// SubscribeStream selects one media line of a published feed.
type SubscribeStream struct {
	Feed domain.FeedID `json:"feed"`
	Mid  string        `json:"mid"`
}

type OfferOptions struct {
	Tracks []TrackBinding
}

type AnswerOptions struct {
	Jsep   *JSEP
	Tracks []TrackBinding
}

type PublishOptions struct {
	Bitrate int
}

// PluginHandle is a server-side resource bound to one Session, representing
// this participant's presence in a room. Messages and track events for a
// handle are delivered in server order on their respective channels; no
// ordering holds across the two channels.
type PluginHandle interface {
	ID() int64
	Role() Role

	JoinAsPublisher(ctx context.Context, room domain.RoomID, opts JoinPublisherOptions) error
	JoinAsSubscriber(ctx context.Context, room domain.RoomID, streams []SubscribeStream) error
	ListParticipants(ctx context.Context, room domain.RoomID) ([]domain.Participant, error)

	CreateOffer(ctx context.Context, opts OfferOptions) (*JSEP, error)
	CreateAnswer(ctx context.Context, opts AnswerOptions) (*JSEP, error)
	Publish(ctx context.Context, jsep *JSEP, opts PublishOptions) error
	Send(ctx context.Context, body map[string]any, jsep *JSEP) error
	HandleRemoteJsep(ctx context.Context, jsep *JSEP) error

	Hangup()
	Detach(ctx context.Context) error

	Messages() <-chan MessageEvent
	RemoteTracks() <-chan TrackEvent
}
