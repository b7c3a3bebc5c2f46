package state

import (
	"testing"
	"time"

	"github.com/wfunc/islandserver/game"
	"github.com/wfunc/islandserver/network"
	"github.com/wfunc/islandserver/weather"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	RoomStateBase
	OnEnterCalled  bool
	OnExitCalled   bool
	OnUpdateCalled bool
}

func newMockState(id string) *MockState {
	return &MockState{RoomStateBase: RoomStateBase{ID: id}}
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

func (m *MockState) OnUpdate() {
	m.OnUpdateCalled = true
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
	m.OnUpdateCalled = false
}

// mockRoom is a RoomContext that runs its own state machine without timers or sockets.
type mockRoom struct {
	game       *game.GameState
	machine    *BaseStateMachine
	minPlayers int
	maxPlayers int
	broadcasts []uint16
	scheduled  int
	cancelled  int
	archived   []game.Summary
}

func newMockRoom(minPlayers, maxPlayers, countdown int) *mockRoom {
	schedule := weather.Schedule{Codes: []weather.Code{1, 2, 3}, StormTurn: 2}
	r := &mockRoom{
		game:       game.NewWithSchedule(schedule, weather.NewSeededRand(1)),
		minPlayers: minPlayers,
		maxPlayers: maxPlayers,
	}
	r.machine = NewBaseStateMachine(NewLobbyState(r, countdown))
	return r
}

func (r *mockRoom) GetID() string                      { return "mock" }
func (r *mockRoom) GetMinPlayers() int                 { return r.minPlayers }
func (r *mockRoom) GetMaxPlayers() int                 { return r.maxPlayers }
func (r *mockRoom) Game() *game.GameState              { return r.game }
func (r *mockRoom) ChangeState(newState State) error   { return r.machine.ChangeState(newState) }
func (r *mockRoom) ScheduleTurnTimeout()               { r.scheduled++ }
func (r *mockRoom) CancelTurnTimeout()                 { r.cancelled++ }
func (r *mockRoom) Archive(summary game.Summary)       { r.archived = append(r.archived, summary) }
func (r *mockRoom) current() State                     { return r.machine.GetCurrentState() }
func (r *mockRoom) act(id game.PlayerID, a game.Action) error {
	return r.current().HandleAction(mockPlayer(id), a)
}

func (r *mockRoom) Broadcast(msgID uint16, data []byte) error {
	r.broadcasts = append(r.broadcasts, msgID)
	return nil
}

type mockPlayer game.PlayerID

func (p mockPlayer) GetID() string             { return "session" }
func (p mockPlayer) PlayerID() game.PlayerID { return game.PlayerID(p) }

func TestStateMachine_InitialState(t *testing.T) {
	initialState := newMockState("initial")
	sm := NewBaseStateMachine(initialState)

	if !initialState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the initial state")
	}

	if sm.GetCurrentState() != initialState {
		t.Error("GetCurrentState should return the initial state")
	}
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := newMockState("initial")
	nextState := newMockState("next")

	sm := NewBaseStateMachine(initialState)
	initialState.reset()

	if err := sm.ChangeState(nextState); err != nil {
		t.Fatalf("ChangeState should not return an error, but got: %v", err)
	}

	if !initialState.OnExitCalled {
		t.Error("Expected OnExit to be called on the old state")
	}
	if !nextState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the new state")
	}
	if sm.GetCurrentState() != nextState {
		t.Error("GetCurrentState should return the new state")
	}
}

func TestStateMachine_BlockedTransition(t *testing.T) {
	stateA := newMockState("A")
	stateB := newMockState("B")

	sm := NewBaseStateMachine(stateA)
	if err := sm.AddTransition(stateA, stateB, func() bool { return false }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	stateA.reset()
	if err := sm.ChangeState(stateB); err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if sm.GetCurrentState().GetID() != "A" {
		t.Errorf("Expected current state to remain A, but got %s", sm.GetCurrentState().GetID())
	}
	if stateA.OnExitCalled || stateB.OnEnterCalled {
		t.Error("No hooks should run for a blocked transition")
	}
}

func TestLobbyTicks(t *testing.T) {
	if got := LobbyTicks(30*time.Second, time.Second); got != 30 {
		t.Errorf("Expected 30 ticks, got %d", got)
	}
	if got := LobbyTicks(2500*time.Millisecond, time.Second); got != 3 {
		t.Errorf("Expected 3 ticks, got %d", got)
	}
	if got := LobbyTicks(time.Second, 0); got != 0 {
		t.Errorf("Expected 0 ticks for a zero tick, got %d", got)
	}
}

func TestLobby_StartsWhenFull(t *testing.T) {
	r := newMockRoom(1, 2, 100)

	if err := r.act(0, game.LogIn{PlayerName: "alice"}); err != nil {
		t.Fatalf("LogIn failed: %v", err)
	}
	if r.current().GetID() != IDLobby {
		t.Fatalf("Room should wait for more players, got %s", r.current().GetID())
	}

	if err := r.act(1, game.LogIn{PlayerName: "bob"}); err != nil {
		t.Fatalf("LogIn failed: %v", err)
	}
	if r.current().GetID() != IDPlaying {
		t.Fatalf("A full room should start, got %s", r.current().GetID())
	}
	if !r.game.Started() {
		t.Error("Game should be started")
	}
	if len(r.broadcasts) != 1 || r.broadcasts[0] != network.MsgTypeGameStart {
		t.Errorf("Expected one game start broadcast, got %v", r.broadcasts)
	}
	if r.scheduled != 1 {
		t.Errorf("Expected the first turn timer to be scheduled, got %d", r.scheduled)
	}
}

func TestLobby_Countdown(t *testing.T) {
	r := newMockRoom(2, 4, 3)
	lobby := r.current()

	r.act(0, game.LogIn{PlayerName: "alice"})
	for i := 0; i < 5; i++ {
		lobby.OnUpdate()
	}
	if r.current().GetID() != IDLobby {
		t.Fatal("Countdown should not run below the minimum player count")
	}

	r.act(1, game.LogIn{PlayerName: "bob"})
	lobby.OnUpdate()
	lobby.OnUpdate()
	if r.current().GetID() != IDLobby {
		t.Fatal("Countdown should not have finished yet")
	}
	lobby.OnUpdate()
	if r.current().GetID() != IDPlaying {
		t.Fatalf("Countdown should have started the game, got %s", r.current().GetID())
	}
}

func TestLobby_ExplicitStart(t *testing.T) {
	r := newMockRoom(1, 4, 100)
	if err := r.current().HandleStart(); err != game.ErrNoPlayers {
		t.Errorf("Expected ErrNoPlayers, got %v", err)
	}

	r.act(3, game.LogIn{PlayerName: "alice"})
	if err := r.current().HandleStart(); err != nil {
		t.Fatalf("HandleStart failed: %v", err)
	}
	if err := r.current().HandleStart(); err != ErrStartNotAllowed {
		t.Errorf("Expected ErrStartNotAllowed once playing, got %v", err)
	}
}

func TestPlaying_RunsToSettlement(t *testing.T) {
	r := newMockRoom(1, 1, 100)
	r.act(0, game.LogIn{PlayerName: "alice"})

	if err := r.act(0, game.CollectWater{}); err != nil {
		t.Fatalf("CollectWater failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := r.act(0, game.EndTurn{}); err != nil {
			t.Fatalf("EndTurn %d failed: %v", i, err)
		}
	}

	if r.current().GetID() != IDSettlement {
		t.Fatalf("Expected settlement, got %s", r.current().GetID())
	}
	if len(r.archived) != 1 {
		t.Fatalf("Expected one archived summary, got %d", len(r.archived))
	}
	if r.archived[0].Board.CurrentWater != 1 || r.archived[0].StormTurn != 2 {
		t.Errorf("Unexpected summary %+v", r.archived[0])
	}
	if r.cancelled == 0 {
		t.Error("Leaving play should cancel the turn timer")
	}
	if last := r.broadcasts[len(r.broadcasts)-1]; last != network.MsgTypeGameEnd {
		t.Errorf("Expected a game end broadcast last, got %d", last)
	}
	if err := r.act(0, game.CollectFood{}); err != game.ErrGameFinished {
		t.Errorf("Expected ErrGameFinished after settlement, got %v", err)
	}
}

func TestPlaying_TurnTimeout(t *testing.T) {
	r := newMockRoom(2, 2, 100)
	r.act(0, game.LogIn{PlayerName: "alice"})
	r.act(1, game.LogIn{PlayerName: "bob"})

	playing := r.current()
	playing.OnTurnTimeout(5)
	if r.game.TurnCount() != 0 {
		t.Fatal("A stale timeout should be ignored")
	}

	playing.OnTurnTimeout(0)
	if r.game.TurnCount() != 1 || r.game.CurrentPlayer() != 1 {
		t.Errorf("Expected turn 1 for player 1, got turn %d player %d", r.game.TurnCount(), r.game.CurrentPlayer())
	}
	if r.scheduled != 2 {
		t.Errorf("Expected the next turn timer to be scheduled, got %d", r.scheduled)
	}
}

func TestIsRejection(t *testing.T) {
	if !IsRejection(game.ErrNotYourTurn) {
		t.Error("ErrNotYourTurn is a rejection")
	}
	if IsRejection(weather.ErrTurnOutOfRange) {
		t.Error("ErrTurnOutOfRange is a fault")
	}
}
