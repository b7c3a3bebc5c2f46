// state/interfaces.go
package state

import (
	"github.com/wfunc/islandserver/game"
)

// Player is the acting client as seen by a state.
type Player interface {
	GetID() string
	PlayerID() game.PlayerID
}

// RoomContext is what a state needs from its room. The room holds its game lock
// for every call into a state, so implementations must not take it again.
type RoomContext interface {
	GetID() string
	GetMinPlayers() int
	GetMaxPlayers() int
	Game() *game.GameState
	ChangeState(newState State) error
	Broadcast(msgID uint16, data []byte) error
	ScheduleTurnTimeout()
	CancelTurnTimeout()
	Archive(summary game.Summary)
}
