package room

import (
	"context"

	"github.com/wfunc/islandserver/game"
)

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
}

// Archiver stores finished games.
type Archiver interface {
	Archive(ctx context.Context, roomID string, summary game.Summary) error
}
