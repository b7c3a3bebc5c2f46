package state

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/islandserver/game"
	"github.com/wfunc/islandserver/logger"
	"github.com/wfunc/islandserver/network"
)

// PlayingState runs the game turn by turn until the last turn ends.
type PlayingState struct {
	RoomStateBase
}

func NewPlayingState(room RoomContext) *PlayingState {
	return &PlayingState{
		RoomStateBase: RoomStateBase{
			ID:   IDPlaying,
			Room: room,
		},
	}
}

func (s *PlayingState) OnEnter() {
	board, err := s.Room.Game().ToBoardState()
	if err != nil {
		logger.Log.Errorf("Room %s has no board to start from: %v", s.Room.GetID(), err)
		return
	}
	data, err := json.Marshal(board)
	if err != nil {
		logger.Log.Errorf("Error marshalling game start: %v", err)
		return
	}
	s.Room.Broadcast(network.MsgTypeGameStart, data)
	s.Room.ScheduleTurnTimeout()
}

func (s *PlayingState) OnExit() {
	s.Room.CancelTurnTimeout()
}

func (s *PlayingState) HandleAction(player Player, action game.Action) error {
	if err := s.RoomStateBase.HandleAction(player, action); err != nil {
		return err
	}
	if _, ok := action.(game.EndTurn); ok {
		s.afterTurn()
	}
	return nil
}

// OnTurnTimeout ends the turn for a player who let the clock run out. A stale
// timer for an earlier turn does nothing.
func (s *PlayingState) OnTurnTimeout(turn int) {
	g := s.Room.Game()
	if g.Finished() || g.TurnCount() != turn {
		return
	}
	current := g.CurrentPlayer()
	if err := g.EndTurn(current); err != nil {
		logger.Log.Errorf("Room %s could not expire turn %d: %v", s.Room.GetID(), turn, err)
		return
	}
	logger.Log.Infof("Room %s turn %d timed out for player %d", s.Room.GetID(), turn, current)
	s.afterTurn()
}

func (s *PlayingState) afterTurn() {
	if !s.Room.Game().Finished() {
		s.Room.ScheduleTurnTimeout()
		return
	}
	if err := s.Room.ChangeState(NewSettlementState(s.Room)); err != nil {
		logger.Log.Errorf("Room %s could not settle: %v", s.Room.GetID(), err)
	}
}

// SettlementState archives a finished game and rejects further play.
type SettlementState struct {
	RoomStateBase
}

func NewSettlementState(room RoomContext) *SettlementState {
	return &SettlementState{
		RoomStateBase: RoomStateBase{
			ID:   IDSettlement,
			Room: room,
		},
	}
}

func (s *SettlementState) OnEnter() {
	summary, err := s.Room.Game().Reveal()
	if err != nil {
		logger.Log.Errorf("Room %s settled an unfinished game: %v", s.Room.GetID(), err)
		return
	}
	logger.Log.Infof("Room %s finished: water=%d wood=%d food=%d",
		s.Room.GetID(), summary.Board.CurrentWater, summary.Board.CurrentWood, summary.Board.CurrentFood)

	s.Room.Archive(summary)

	data, err := json.Marshal(summary)
	if err != nil {
		logger.Log.Errorf("Error marshalling game end: %v", err)
		return
	}
	s.Room.Broadcast(network.MsgTypeGameEnd, data)
}

func (s *SettlementState) HandleAction(player Player, action game.Action) error {
	return game.ErrGameFinished
}

// IsRejection reports whether err is an ordinary refusal of a client request
// rather than a server fault.
func IsRejection(err error) bool {
	return errors.Is(err, game.ErrGameStarted) ||
		errors.Is(err, game.ErrGameFinished) ||
		errors.Is(err, game.ErrNotStarted) ||
		errors.Is(err, game.ErrPlayerExists) ||
		errors.Is(err, game.ErrUnknownPlayer) ||
		errors.Is(err, game.ErrNotYourTurn) ||
		errors.Is(err, game.ErrNoPlayers) ||
		errors.Is(err, game.ErrNameTooLong) ||
		errors.Is(err, ErrStartNotAllowed) ||
		errors.Is(err, ErrTransitionNotAllowed)
}
