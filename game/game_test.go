package game

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/islandserver/weather"
)

// fixedRand returns queued values, repeating the last one when the queue runs out.
type fixedRand struct {
	floats []float64
	ints   []int
}

func (r *fixedRand) Float64() float64 {
	v := r.floats[0]
	if len(r.floats) > 1 {
		r.floats = r.floats[1:]
	}
	return v
}

func (r *fixedRand) Intn(n int) int {
	v := r.ints[0]
	if len(r.ints) > 1 {
		r.ints = r.ints[1:]
	}
	return v % n
}

func testSchedule() weather.Schedule {
	return weather.Schedule{
		Codes:     []weather.Code{1, 0, 3, 2, 2, 1, 0, 2, 3, 1, 0, 2},
		StormTurn: 7,
	}
}

func newTestGame(rng weather.Rand) *GameState {
	if rng == nil {
		rng = weather.NewSeededRand(1)
	}
	return NewWithSchedule(testSchedule(), rng)
}

func startedGame(t *testing.T, ids ...PlayerID) *GameState {
	t.Helper()
	g := newTestGame(nil)
	for _, id := range ids {
		require.NoError(t, g.AddPlayer("p", id))
	}
	require.NoError(t, g.Start())
	return g
}

func TestNew_GeneratesSchedule(t *testing.T) {
	g := New(weather.NewSeededRand(3))

	assert.Equal(t, 12, g.schedule.Len())
	assert.GreaterOrEqual(t, g.schedule.StormTurn, weather.StormWindowStart)
	assert.Zero(t, g.PlayerCount())
	assert.False(t, g.Started())
}

func TestAddPlayer(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(g *GameState)
		id      PlayerID
		wantErr error
		wantLen int
	}{
		{name: "first join", id: 4, wantLen: 1},
		{
			name:    "duplicate id",
			setup:   func(g *GameState) { _ = g.AddPlayer("alice", 4) },
			id:      4,
			wantErr: ErrPlayerExists,
			wantLen: 1,
		},
		{
			name: "after start",
			setup: func(g *GameState) {
				_ = g.AddPlayer("alice", 1)
				_ = g.Start()
			},
			id:      2,
			wantErr: ErrGameStarted,
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(nil)
			if tt.setup != nil {
				tt.setup(g)
			}
			err := g.AddPlayer("bob", tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantLen, g.PlayerCount())
		})
	}
}

func TestAddPlayer_DuplicateKeepsFirstName(t *testing.T) {
	g := newTestGame(nil)
	require.NoError(t, g.AddPlayer("alice", 2))
	assert.ErrorIs(t, g.AddPlayer("mallory", 2), ErrPlayerExists)

	board, err := g.ToBoardState()
	require.NoError(t, err)
	assert.Equal(t, "alice", board.Players[2].Name)
}

func TestAddPlayer_FirstJoinerTakesTurn(t *testing.T) {
	g := newTestGame(nil)
	require.NoError(t, g.AddPlayer("alice", 9))
	require.NoError(t, g.AddPlayer("bob", 3))

	assert.Equal(t, PlayerID(9), g.CurrentPlayer())
}

func TestPerformAction_LogIn(t *testing.T) {
	g := newTestGame(nil)
	require.NoError(t, g.PerformAction(LogIn{PlayerName: "alice"}, 5))

	board, err := g.ToBoardState()
	require.NoError(t, err)
	assert.Equal(t, Player{Name: "alice", Connected: true}, board.Players[5])
	assert.Equal(t, PlayerID(5), board.CurrentPlayer)
}

func TestCollectWater_UsesCurrentWeather(t *testing.T) {
	g := newTestGame(nil)
	require.Equal(t, weather.Code(1), g.schedule.Codes[0])
	require.NoError(t, g.AddPlayer("alice", 0))

	require.NoError(t, g.PerformAction(CollectWater{}, 0))
	board, err := g.ToBoardState()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), board.CurrentWater)
}

func TestCollectWater_BrokenTurnCounter(t *testing.T) {
	g := newTestGame(nil)
	g.turnCount = 12

	_, err := g.CollectWater()
	assert.ErrorIs(t, err, weather.ErrTurnOutOfRange)
	_, err = g.ToBoardState()
	assert.ErrorIs(t, err, weather.ErrTurnOutOfRange)
	assert.Zero(t, g.water)
}

func TestDrawFood_Thresholds(t *testing.T) {
	tests := []struct {
		u    float64
		want uint8
	}{
		{0, 1},
		{0.49, 1},
		{0.5, 2},
		{0.83, 2},
		{5.0 / 6.0, 3},
		{0.99, 3},
	}
	for _, tt := range tests {
		g := newTestGame(&fixedRand{floats: []float64{tt.u}})
		assert.Equal(t, tt.want, g.DrawFood(), "u=%v", tt.u)
		assert.Equal(t, tt.want, g.food)
	}
}

func TestDrawFood_Distribution(t *testing.T) {
	g := newTestGame(weather.NewSeededRand(99))
	const calls = 10000
	total := 0
	for i := 0; i < calls; i++ {
		n := g.DrawFood()
		require.Contains(t, []uint8{1, 2, 3}, n)
		total += int(n)
	}
	// the stock saturates, so sum the draws themselves
	assert.InDelta(t, 5.0/3.0, float64(total)/calls, 0.05)
	assert.Equal(t, uint8(255), g.food)
}

func TestDrawWood(t *testing.T) {
	tests := []struct {
		name  string
		draws uint8
		roll  int
		want  uint8
	}{
		{name: "no draws", draws: 0, roll: 0, want: 1},
		{name: "safe draws", draws: 3, roll: 4, want: 4},
		{name: "snake", draws: 3, roll: 2, want: 1},
		{name: "clamped", draws: 200, roll: 5, want: 6},
		{name: "clamped snake", draws: 200, roll: 4, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(&fixedRand{ints: []int{tt.roll}})
			require.NoError(t, g.AddPlayer("alice", 1))

			require.NoError(t, g.PerformAction(CollectWood{Draws: tt.draws}, 1))
			assert.Equal(t, tt.want, g.wood)
		})
	}
}

func TestDrawWood_UnknownPlayer(t *testing.T) {
	g := newTestGame(nil)
	_, err := g.DrawWood(7, 1)
	assert.ErrorIs(t, err, ErrUnknownPlayer)
	assert.Zero(t, g.wood)
}

func TestSnapshot_StableAndStormFlag(t *testing.T) {
	g := startedGame(t, 0)
	for turn := 0; turn < g.schedule.Len(); turn++ {
		first, err := g.ToBoardState()
		require.NoError(t, err)
		second, err := g.ToBoardState()
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, g.schedule.Codes[turn], first.Weather)
		assert.Equal(t, turn == 7, first.Storm, "turn %d", turn)
		assert.Equal(t, uint8(turn), first.TurnCount)

		require.NoError(t, g.EndTurn(0))
	}
	assert.True(t, g.Finished())
}

func TestSnapshot_Redacted(t *testing.T) {
	g := startedGame(t, 0, 1)
	board, err := g.ToBoardState()
	require.NoError(t, err)

	data, err := json.Marshal(board)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.ElementsMatch(t, []string{
		"weather", "storm", "players", "currentWater", "currentWood",
		"currentFood", "currentPlayer", "turnCount", "started", "finished",
	}, keys(fields))
	assert.JSONEq(t, `false`, string(fields["storm"]))
	assert.JSONEq(t, `{"0":{"name":"p","connected":true},"1":{"name":"p","connected":true}}`, string(fields["players"]))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSnapshot_IsACopy(t *testing.T) {
	g := startedGame(t, 0)
	board, err := g.ToBoardState()
	require.NoError(t, err)

	g.OnPlayerDisconnected(0)
	assert.True(t, board.Players[0].Connected)
}

func TestOnPlayerDisconnected_Idempotent(t *testing.T) {
	g := newTestGame(nil)
	require.NoError(t, g.AddPlayer("alice", 1))

	for i := 0; i < 2; i++ {
		g.OnPlayerDisconnected(1)
		board, err := g.ToBoardState()
		require.NoError(t, err)
		assert.False(t, board.Players[1].Connected)
		assert.Equal(t, PlayerID(1), board.CurrentPlayer)
	}

	g.OnPlayerDisconnected(42)
	assert.Equal(t, 1, g.PlayerCount())
}

func TestReconnect(t *testing.T) {
	g := newTestGame(nil)
	require.NoError(t, g.AddPlayer("alice", 1))
	g.OnPlayerDisconnected(1)

	id, ok := g.PlayerByName("alice")
	require.True(t, ok)
	require.NoError(t, g.Reconnect(id))
	assert.True(t, g.players[1].Connected)

	assert.ErrorIs(t, g.Reconnect(8), ErrUnknownPlayer)
	_, ok = g.PlayerByName("nobody")
	assert.False(t, ok)
}

func TestStart(t *testing.T) {
	g := newTestGame(nil)
	assert.ErrorIs(t, g.Start(), ErrNoPlayers)

	require.NoError(t, g.AddPlayer("alice", 1))
	require.NoError(t, g.Start())
	assert.ErrorIs(t, g.Start(), ErrGameStarted)

	assert.ErrorIs(t, g.AddPlayer("late", 2), ErrGameStarted)
	assert.Equal(t, 1, g.PlayerCount())
}

func TestEndTurn_Guards(t *testing.T) {
	g := newTestGame(nil)
	require.NoError(t, g.AddPlayer("alice", 1))
	require.NoError(t, g.AddPlayer("bob", 2))
	assert.ErrorIs(t, g.EndTurn(1), ErrNotStarted)

	require.NoError(t, g.Start())
	assert.ErrorIs(t, g.EndTurn(2), ErrNotYourTurn)
	assert.Equal(t, 0, g.TurnCount())
}

func TestEndTurn_RotatesConnectedPlayers(t *testing.T) {
	g := startedGame(t, 5, 1, 9, 3)
	// 5 joined first and holds the turn
	require.Equal(t, PlayerID(5), g.CurrentPlayer())

	g.OnPlayerDisconnected(9)

	want := []PlayerID{1, 3, 5, 1}
	for i, id := range want {
		require.NoError(t, g.EndTurn(g.CurrentPlayer()))
		assert.Equal(t, id, g.CurrentPlayer(), "rotation %d", i)
		assert.Equal(t, i+1, g.TurnCount())
	}
}

func TestEndTurn_AloneKeepsTurn(t *testing.T) {
	g := startedGame(t, 1, 2)
	g.OnPlayerDisconnected(2)

	require.NoError(t, g.EndTurn(1))
	assert.Equal(t, PlayerID(1), g.CurrentPlayer())
}

func TestEndTurn_FinishesOnLastTurn(t *testing.T) {
	g := startedGame(t, 0)
	for i := 0; i < g.schedule.Len()-1; i++ {
		require.NoError(t, g.EndTurn(0))
	}
	require.Equal(t, g.schedule.Len()-1, g.TurnCount())
	require.False(t, g.Finished())

	require.NoError(t, g.EndTurn(0))
	assert.True(t, g.Finished())
	assert.Equal(t, g.schedule.Len()-1, g.TurnCount())

	assert.ErrorIs(t, g.PerformAction(CollectFood{}, 0), ErrGameFinished)
	assert.ErrorIs(t, g.EndTurn(0), ErrGameFinished)
}

func TestReveal(t *testing.T) {
	g := startedGame(t, 0)
	_, err := g.Reveal()
	assert.ErrorIs(t, err, ErrNotFinished)

	for !g.Finished() {
		require.NoError(t, g.EndTurn(0))
	}
	summary, err := g.Reveal()
	require.NoError(t, err)
	assert.Equal(t, testSchedule().Codes, summary.Schedule)
	assert.Equal(t, 7, summary.StormTurn)
	assert.True(t, summary.Board.Finished)
}

func TestAddSaturating(t *testing.T) {
	assert.Equal(t, uint8(255), addSaturating(250, 10))
	assert.Equal(t, uint8(12), addSaturating(10, 2))
}

func TestPerformAction_RequiresLoggedInActor(t *testing.T) {
	g := newTestGame(nil)
	require.NoError(t, g.AddPlayer("alice", 0))

	for _, action := range []Action{CollectFood{}, CollectWater{}, CollectWood{Draws: 2}, EndTurn{}} {
		assert.ErrorIs(t, g.PerformAction(action, 4), ErrUnknownPlayer, "%s", action.Kind())
	}
	assert.Zero(t, g.food)
	assert.Zero(t, g.water)
	assert.Zero(t, g.wood)
}

func TestAddPlayer_NameTooLong(t *testing.T) {
	g := newTestGame(nil)

	long := strings.Repeat("x", MaxNameLength+1)
	assert.ErrorIs(t, g.PerformAction(LogIn{PlayerName: long}, 0), ErrNameTooLong)
	assert.Zero(t, g.PlayerCount())

	require.NoError(t, g.AddPlayer(strings.Repeat("x", MaxNameLength), 0))
	assert.Equal(t, 1, g.PlayerCount())
}

func TestBoardState_FullRosterFitsOneFrame(t *testing.T) {
	g := newTestGame(nil)
	// json escapes '<' to six bytes, the worst case per name byte
	for id := 0; id <= math.MaxUint8; id++ {
		require.NoError(t, g.AddPlayer(strings.Repeat("<", MaxNameLength), PlayerID(id)))
		g.OnPlayerDisconnected(PlayerID(id))
	}
	board, err := g.ToBoardState()
	require.NoError(t, err)
	data, err := json.Marshal(board)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), math.MaxUint16)
}

func TestPlayerByName_Deterministic(t *testing.T) {
	g := newTestGame(nil)
	require.NoError(t, g.AddPlayer("alice", 7))
	require.NoError(t, g.AddPlayer("alice", 2))
	require.NoError(t, g.AddPlayer("alice", 5))
	g.OnPlayerDisconnected(5)
	g.OnPlayerDisconnected(7)

	for i := 0; i < 50; i++ {
		id, ok := g.PlayerByName("alice")
		require.True(t, ok)
		assert.Equal(t, PlayerID(2), id)

		id, ok = g.DisconnectedPlayerByName("alice")
		require.True(t, ok)
		assert.Equal(t, PlayerID(5), id)
	}

	require.NoError(t, g.Reconnect(5))
	require.NoError(t, g.Reconnect(7))
	_, ok := g.DisconnectedPlayerByName("alice")
	assert.False(t, ok)
}
