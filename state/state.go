package state

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/islandserver/game"
	"github.com/wfunc/islandserver/logger"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	OnUpdate()
	GetID() string
	HandleAction(player Player, action game.Action) error
	HandleStart() error
	OnTurnTimeout(turn int)
}

const (
	IDLobby      = "lobby"
	IDPlaying    = "playing"
	IDSettlement = "settlement"
)

var (
	// ErrTransitionNotAllowed is returned when a state transition is not allowed.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrStartNotAllowed is returned when a start request arrives outside the lobby.
	ErrStartNotAllowed = errors.New("game can only be started from the lobby")
)

// 基础状态机实现
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	// 检查是否有转换条件
	if conditions, exists := sm.transitions[currentID]; exists {
		if condition, exists := conditions[newID]; exists {
			if condition != nil && !condition() {
				return ErrTransitionNotAllowed
			}
		}
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

func (s *RoomStateBase) OnUpdate() {}

// HandleAction applies the action to the game unchanged.
func (s *RoomStateBase) HandleAction(player Player, action game.Action) error {
	return s.Room.Game().PerformAction(action, player.PlayerID())
}

func (s *RoomStateBase) HandleStart() error {
	return ErrStartNotAllowed
}

func (s *RoomStateBase) OnTurnTimeout(turn int) {}

// LobbyState collects players. Once the minimum has joined a countdown starts;
// a full room or an explicit start request skips it.
type LobbyState struct {
	RoomStateBase
	countdown int
	remaining int
}

// NewLobbyState creates a lobby whose countdown lasts the given number of ticks.
func NewLobbyState(room RoomContext, countdownTicks int) *LobbyState {
	return &LobbyState{
		RoomStateBase: RoomStateBase{
			ID:   IDLobby,
			Room: room,
		},
		countdown: countdownTicks,
	}
}

// LobbyTicks converts a countdown duration to room ticks, rounding up.
func LobbyTicks(countdown, tick time.Duration) int {
	if tick <= 0 {
		return 0
	}
	return int((countdown + tick - 1) / tick)
}

func (s *LobbyState) OnEnter() {
	s.remaining = s.countdown
}

func (s *LobbyState) OnUpdate() {
	if s.Room.Game().PlayerCount() < s.Room.GetMinPlayers() {
		s.remaining = s.countdown
		return
	}
	s.remaining--
	if s.remaining <= 0 {
		if err := s.HandleStart(); err != nil {
			logger.Log.Warnf("Room %s failed to start after countdown: %v", s.Room.GetID(), err)
		}
	}
}

func (s *LobbyState) HandleAction(player Player, action game.Action) error {
	if err := s.RoomStateBase.HandleAction(player, action); err != nil {
		return err
	}
	if _, ok := action.(game.LogIn); ok && s.Room.Game().PlayerCount() >= s.Room.GetMaxPlayers() {
		return s.HandleStart()
	}
	return nil
}

// HandleStart closes the roster and moves the room into play.
func (s *LobbyState) HandleStart() error {
	if err := s.Room.Game().Start(); err != nil {
		return err
	}
	logger.Log.Infof("Room %s started with %d players", s.Room.GetID(), s.Room.Game().PlayerCount())
	return s.Room.ChangeState(NewPlayingState(s.Room))
}
