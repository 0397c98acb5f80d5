package core

import (
	"context"

	"github.com/mivora/roomcast/internal/domain"
)

// MountpointRegistry is the out-of-process store mapping a room to its active
// publisher. Shared across clients; concurrent publishes to the same room are
// serialized by the registry, not here.
type MountpointRegistry interface {
	Create(ctx context.Context, room domain.RoomID, description string) (*domain.Mountpoint, error)
	List(ctx context.Context) ([]domain.Mountpoint, error)
	AssociatePublisher(ctx context.Context, room domain.RoomID, feed domain.FeedID) error
	Delete(ctx context.Context, room domain.RoomID) error
}
