package game

import (
	"github.com/wfunc/islandserver/weather"
)

// BoardState is the snapshot sent to clients. It carries only the weather of the
// current turn; the rest of the schedule and the storm turn stay on the server.
type BoardState struct {
	Weather       weather.Code        `json:"weather"`
	Storm         bool                `json:"storm"`
	Players       map[PlayerID]Player `json:"players"`
	CurrentWater  uint8               `json:"currentWater"`
	CurrentWood   uint8               `json:"currentWood"`
	CurrentFood   uint8               `json:"currentFood"`
	CurrentPlayer PlayerID            `json:"currentPlayer"`
	TurnCount     uint8               `json:"turnCount"`
	Started       bool                `json:"started"`
	Finished      bool                `json:"finished"`
}

// ToBoardState renders the public snapshot. It fails only when the turn counter
// has left the schedule.
func (g *GameState) ToBoardState() (BoardState, error) {
	code, err := g.schedule.At(g.turnCount)
	if err != nil {
		return BoardState{}, err
	}

	players := make(map[PlayerID]Player, len(g.players))
	for id, p := range g.players {
		players[id] = *p
	}

	return BoardState{
		Weather:       code,
		Storm:         g.schedule.IsStorm(g.turnCount),
		Players:       players,
		CurrentWater:  g.water,
		CurrentWood:   g.wood,
		CurrentFood:   g.food,
		CurrentPlayer: g.currentPlayer,
		TurnCount:     uint8(g.turnCount),
		Started:       g.started,
		Finished:      g.finished,
	}, nil
}

// Summary is the full record of a finished game, hidden weather included.
type Summary struct {
	Board     BoardState     `json:"board"`
	Schedule  []weather.Code `json:"schedule"`
	StormTurn int            `json:"stormTurn"`
}

// Reveal exposes the schedule once the game is over.
func (g *GameState) Reveal() (Summary, error) {
	if !g.finished {
		return Summary{}, ErrNotFinished
	}
	board, err := g.ToBoardState()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Board:     board,
		Schedule:  append([]weather.Code(nil), g.schedule.Codes...),
		StormTurn: g.schedule.StormTurn,
	}, nil
}
