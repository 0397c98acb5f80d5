// Package domain contains entity without logic, just meta-data
package domain

type (
	RoomID int64
	FeedID int64
)

// Participant is a read-only snapshot of a room member as reported by the
// signaling server. Used only to discover the feed to subscribe to.
type Participant struct {
	ID        FeedID `json:"id"`
	Display   string `json:"display"`
	Talking   bool   `json:"talking"`
	Publisher bool   `json:"publisher"`
}
