// Package game holds the authoritative state of one island survival game: the
// shared food, water and wood stock, the roster, the turn counter and the
// weather schedule.
//
// A GameState does no locking of its own. Its owner must serialize every call,
// reads included.
package game

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/wfunc/islandserver/weather"
)

// PlayerID identifies a player within one game.
type PlayerID uint8

// Player is the per-player state visible to every client.
type Player struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

const (
	// MaxWoodDraws caps the extra bag draws of a single CollectWood.
	MaxWoodDraws = 5
	// woodBagSize is the number of balls in the bag, one of them the snake.
	woodBagSize = 6
	// MaxNameLength bounds a player name in bytes so a full roster still fits
	// in one board frame.
	MaxNameLength = 32
)

var (
	ErrGameStarted   = errors.New("game already started")
	ErrGameFinished  = errors.New("game finished")
	ErrNotStarted    = errors.New("game not started")
	ErrNotFinished   = errors.New("game not finished")
	ErrNoPlayers     = errors.New("no players joined")
	ErrPlayerExists  = errors.New("player already joined")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrNotYourTurn   = errors.New("not the player's turn")
	ErrUnknownAction = errors.New("unknown action")
	ErrNameTooLong   = errors.New("player name too long")
)

// GameState is the mutable state of a single game session.
type GameState struct {
	schedule      weather.Schedule
	players       map[PlayerID]*Player
	water         uint8
	wood          uint8
	food          uint8
	currentPlayer PlayerID
	turnCount     int
	started       bool
	finished      bool
	rng           weather.Rand
}

// New creates a game with a freshly generated weather schedule and no players.
// rng is kept for the resource draws.
func New(rng weather.Rand) *GameState {
	return NewWithSchedule(weather.Generate(rng), rng)
}

// NewWithSchedule creates a game on a fixed schedule.
func NewWithSchedule(schedule weather.Schedule, rng weather.Rand) *GameState {
	return &GameState{
		schedule: schedule,
		players:  make(map[PlayerID]*Player),
		rng:      rng,
	}
}

// AddPlayer registers a connected player. Joining a started game or reusing an
// id changes nothing and reports why. The first player to join takes the first turn.
func (g *GameState) AddPlayer(name string, id PlayerID) error {
	if g.started {
		return ErrGameStarted
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if _, exists := g.players[id]; exists {
		return ErrPlayerExists
	}

	wasEmpty := len(g.players) == 0
	g.players[id] = &Player{Name: name, Connected: true}
	if wasEmpty {
		g.currentPlayer = id
	}
	return nil
}

// PerformAction applies one player action.
func (g *GameState) PerformAction(action Action, actor PlayerID) error {
	if g.finished {
		return ErrGameFinished
	}

	if _, ok := action.(LogIn); !ok && !g.HasPlayer(actor) {
		return ErrUnknownPlayer
	}

	switch a := action.(type) {
	case LogIn:
		return g.AddPlayer(a.PlayerName, actor)
	case CollectFood:
		g.DrawFood()
		return nil
	case CollectWater:
		_, err := g.CollectWater()
		return err
	case CollectWood:
		_, err := g.DrawWood(actor, a.Draws)
		return err
	case EndTurn:
		return g.EndTurn(actor)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}
}

// DrawFood adds 1 (p=1/2), 2 (p=1/3) or 3 (p=1/6) food and returns the amount.
func (g *GameState) DrawFood() uint8 {
	var n uint8
	switch u := g.rng.Float64(); {
	case u < 0.5:
		n = 1
	case u < 5.0/6.0:
		n = 2
	default:
		n = 3
	}
	g.food = addSaturating(g.food, n)
	return n
}

// CollectWater adds the current turn's weather value to the water stock.
func (g *GameState) CollectWater() (uint8, error) {
	code, err := g.schedule.At(g.turnCount)
	if err != nil {
		return 0, err
	}
	g.water = addSaturating(g.water, uint8(code))
	return uint8(code), nil
}

// DrawWood collects one wood plus one per extra draw. Each draw comes from a bag
// of six balls holding a single snake; meeting the snake forfeits the extra wood.
func (g *GameState) DrawWood(actor PlayerID, draws uint8) (uint8, error) {
	if _, ok := g.players[actor]; !ok {
		return 0, ErrUnknownPlayer
	}
	if draws > MaxWoodDraws {
		draws = MaxWoodDraws
	}

	n := uint8(1)
	if draws > 0 && g.rng.Intn(woodBagSize) >= int(draws) {
		n += draws
	}
	g.wood = addSaturating(g.wood, n)
	return n, nil
}

// Start closes the roster. It can only happen once.
func (g *GameState) Start() error {
	if g.started {
		return ErrGameStarted
	}
	if len(g.players) == 0 {
		return ErrNoPlayers
	}
	g.started = true
	return nil
}

// EndTurn advances to the next turn and hands play to the next connected player
// in id order. Ending the last scheduled turn finishes the game.
func (g *GameState) EndTurn(actor PlayerID) error {
	switch {
	case !g.started:
		return ErrNotStarted
	case g.finished:
		return ErrGameFinished
	case actor != g.currentPlayer:
		return ErrNotYourTurn
	}

	if g.turnCount+1 >= g.schedule.Len() {
		g.finished = true
		return nil
	}
	g.turnCount++
	g.currentPlayer = g.nextPlayer()
	return nil
}

// nextPlayer picks the first connected player after the current one, wrapping
// around. With nobody else connected the current player keeps the turn.
func (g *GameState) nextPlayer() PlayerID {
	ids := g.sortedIDs()
	start := sort.Search(len(ids), func(i int) bool { return ids[i] > g.currentPlayer })
	for i := 0; i < len(ids); i++ {
		id := ids[(start+i)%len(ids)]
		if g.players[id].Connected {
			return id
		}
	}
	return g.currentPlayer
}

func (g *GameState) sortedIDs() []PlayerID {
	ids := make([]PlayerID, 0, len(g.players))
	for id := range g.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OnPlayerDisconnected marks a player offline. The record stays for reconnection.
func (g *GameState) OnPlayerDisconnected(id PlayerID) {
	if p, ok := g.players[id]; ok {
		p.Connected = false
	}
}

// Reconnect marks a known player online again.
func (g *GameState) Reconnect(id PlayerID) error {
	p, ok := g.players[id]
	if !ok {
		return ErrUnknownPlayer
	}
	p.Connected = true
	return nil
}

// PlayerByName finds the lowest id playing under name.
func (g *GameState) PlayerByName(name string) (PlayerID, bool) {
	for _, id := range g.sortedIDs() {
		if g.players[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// DisconnectedPlayerByName finds the lowest disconnected id playing under name.
// Names are not unique, so a connected namesake is skipped.
func (g *GameState) DisconnectedPlayerByName(name string) (PlayerID, bool) {
	for _, id := range g.sortedIDs() {
		if p := g.players[id]; p.Name == name && !p.Connected {
			return id, true
		}
	}
	return 0, false
}

// HasPlayer reports whether id has logged in.
func (g *GameState) HasPlayer(id PlayerID) bool {
	_, ok := g.players[id]
	return ok
}

func (g *GameState) PlayerCount() int {
	return len(g.players)
}

func (g *GameState) Started() bool {
	return g.started
}

func (g *GameState) Finished() bool {
	return g.finished
}

func (g *GameState) CurrentPlayer() PlayerID {
	return g.currentPlayer
}

func (g *GameState) TurnCount() int {
	return g.turnCount
}

func addSaturating(a, b uint8) uint8 {
	if int(a)+int(b) > math.MaxUint8 {
		return math.MaxUint8
	}
	return a + b
}
