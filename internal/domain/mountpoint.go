package domain

import "time"

// Mountpoint binds a room to its active publisher for discovery.
// At most one active record per room at a time.
type Mountpoint struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	RoomID      RoomID    `json:"roomId"`
	FeedID      *FeedID   `json:"feedId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
