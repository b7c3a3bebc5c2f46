// room/room.go
package room

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/wfunc/islandserver/game"
	"github.com/wfunc/islandserver/logger"
	"github.com/wfunc/islandserver/network"
	"github.com/wfunc/islandserver/session"
	"github.com/wfunc/islandserver/state"
	"github.com/wfunc/islandserver/timer"
	"github.com/wfunc/islandserver/weather"
)

var (
	ErrRoomFull   = errors.New("room is full")
	ErrNoSeats    = errors.New("room has handed out every player id")
	ErrNotInRoom  = errors.New("session is not in this room")
	ErrRoomClosed = errors.New("room is closed")
)

const archiveTimeout = 10 * time.Second

// Options configures a room.
type Options struct {
	MinPlayers     int
	MaxPlayers     int
	LobbyCountdown time.Duration
	TurnTimeout    time.Duration       // 0 disables the turn timer
	TickInterval   time.Duration       // 0 disables the room loop
	Timers         *timer.TimerManager // required when TurnTimeout > 0
	Archiver       Archiver            // optional
	Rand           weather.Rand        // nil seeds a fresh generator
}

// Room is the single owner of one game. Every read and write of the game goes
// through gameMutex.
type Room struct {
	ID           string
	Name         string
	CreatedAt    time.Time
	StateMachine state.StateMachine
	opts         Options
	game         *game.GameState
	sessions     map[string]*session.Session // sessionID -> session
	nextPlayer   int
	turnTimer    int64
	closed       bool
	broadcaster  Broadcaster
	gameMutex    sync.Mutex
	playerMutex  sync.RWMutex
	closeChan    chan struct{}
	archiveWG    sync.WaitGroup
}

// NewRoom 创建一个新房间
func NewRoom(id, name string, opts Options, broadcaster Broadcaster) (*Room, error) {
	rng := opts.Rand
	if rng == nil {
		seeded, err := weather.NewRand()
		if err != nil {
			return nil, err
		}
		rng = seeded
	}

	r := &Room{
		ID:          id,
		Name:        name,
		CreatedAt:   time.Now(),
		opts:        opts,
		game:        game.New(rng),
		sessions:    make(map[string]*session.Session),
		broadcaster: broadcaster,
		closeChan:   make(chan struct{}),
	}

	lobby := state.NewLobbyState(r, state.LobbyTicks(opts.LobbyCountdown, opts.TickInterval))
	playing := state.NewPlayingState(r)
	settlement := state.NewSettlementState(r)

	machine := state.NewBaseStateMachine(lobby)
	machine.AddTransition(lobby, playing, r.game.Started)
	machine.AddTransition(playing, settlement, r.game.Finished)
	r.StateMachine = machine

	if opts.TickInterval > 0 {
		go r.loop(opts.TickInterval)
	}
	return r, nil
}

// --- 实现 state.RoomContext 接口 ---

func (r *Room) GetID() string {
	return r.ID
}

func (r *Room) GetMinPlayers() int {
	return r.opts.MinPlayers
}

func (r *Room) GetMaxPlayers() int {
	return r.opts.MaxPlayers
}

func (r *Room) Game() *game.GameState {
	return r.game
}

func (r *Room) ChangeState(newState state.State) error {
	return r.StateMachine.ChangeState(newState)
}

// Broadcast sends a message to all players in the room.
func (r *Room) Broadcast(msgID uint16, data []byte) error {
	return r.broadcaster.BroadcastToRoom(r.ID, msgID, data)
}

// ScheduleTurnTimeout restarts the clock for the current turn.
func (r *Room) ScheduleTurnTimeout() {
	r.CancelTurnTimeout()
	if r.opts.TurnTimeout <= 0 || r.opts.Timers == nil {
		return
	}
	turn := r.game.TurnCount()
	r.turnTimer = r.opts.Timers.AddTimer(r.opts.TurnTimeout, 0, func() {
		r.expireTurn(turn)
	})
}

func (r *Room) CancelTurnTimeout() {
	if r.turnTimer != 0 && r.opts.Timers != nil {
		r.opts.Timers.RemoveTimer(r.turnTimer)
	}
	r.turnTimer = 0
}

// Archive hands a finished game to the archiver without holding up the room.
func (r *Room) Archive(summary game.Summary) {
	if r.opts.Archiver == nil {
		return
	}
	r.archiveWG.Add(1)
	go func() {
		defer r.archiveWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := r.opts.Archiver.Archive(ctx, r.ID, summary); err != nil {
			logger.Log.Errorf("Room %s archive failed: %v", r.ID, err)
		}
	}()
}

// --- 房间核心逻辑 ---

// Join seats a session and hands it a fresh player id. The player enters the game
// with its LogIn action.
func (r *Room) Join(s *session.Session) (game.PlayerID, error) {
	r.gameMutex.Lock()
	defer r.gameMutex.Unlock()

	if r.closed {
		return 0, ErrRoomClosed
	}
	if r.PlayerCount() >= r.opts.MaxPlayers {
		return 0, ErrRoomFull
	}
	if r.nextPlayer > math.MaxUint8 {
		return 0, ErrNoSeats
	}

	id := game.PlayerID(r.nextPlayer)
	r.nextPlayer++

	r.playerMutex.Lock()
	r.sessions[s.ID] = s
	r.playerMutex.Unlock()
	s.Bind(r.ID, id)
	return id, nil
}

// Leave removes a session. Its player stays in the game, marked disconnected.
func (r *Room) Leave(s *session.Session) {
	r.gameMutex.Lock()
	defer r.gameMutex.Unlock()

	r.playerMutex.Lock()
	_, exists := r.sessions[s.ID]
	delete(r.sessions, s.ID)
	r.playerMutex.Unlock()
	if !exists {
		return
	}

	r.game.OnPlayerDisconnected(s.PlayerID())
	s.Unbind()
	r.broadcastBoard()
}

// PerformAction applies an action for a seated session and broadcasts the new
// board on success.
func (r *Room) PerformAction(s *session.Session, action game.Action) error {
	r.gameMutex.Lock()
	defer r.gameMutex.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if !r.isSeated(s) {
		return ErrNotInRoom
	}

	if login, ok := action.(game.LogIn); ok && r.reconnect(s, login.PlayerName) {
		r.broadcastBoard()
		return nil
	}

	if err := r.StateMachine.GetCurrentState().HandleAction(s, action); err != nil {
		return err
	}
	r.broadcastBoard()
	return nil
}

// reconnect rebinds s to a disconnected player of the same name. Only a session
// that has not logged in yet may take over a seat.
func (r *Room) reconnect(s *session.Session, name string) bool {
	if r.game.HasPlayer(s.PlayerID()) {
		return false
	}
	id, found := r.game.DisconnectedPlayerByName(name)
	if !found || r.hasSessionFor(id) {
		return false
	}
	if err := r.game.Reconnect(id); err != nil {
		return false
	}
	s.Bind(r.ID, id)
	logger.Log.Infof("Session %s reconnected to room %s as player %d", s.ID, r.ID, id)
	return true
}

// Start begins the game ahead of the lobby countdown.
func (r *Room) Start() error {
	r.gameMutex.Lock()
	defer r.gameMutex.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if err := r.StateMachine.GetCurrentState().HandleStart(); err != nil {
		return err
	}
	r.broadcastBoard()
	return nil
}

// BoardState returns the current public snapshot.
func (r *Room) BoardState() (game.BoardState, error) {
	r.gameMutex.Lock()
	defer r.gameMutex.Unlock()
	return r.game.ToBoardState()
}

// StateID names the phase the room is in.
func (r *Room) StateID() string {
	return r.StateMachine.GetCurrentState().GetID()
}

// Joinable reports whether a new session could take a seat in the lobby.
func (r *Room) Joinable() bool {
	r.gameMutex.Lock()
	defer r.gameMutex.Unlock()
	return !r.closed && r.StateID() == state.IDLobby && r.PlayerCount() < r.opts.MaxPlayers && r.nextPlayer <= math.MaxUint8
}

// PlayerCount is the number of seated sessions.
func (r *Room) PlayerCount() int {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return len(r.sessions)
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *Room) isSeated(s *session.Session) bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	_, ok := r.sessions[s.ID]
	return ok
}

func (r *Room) hasSessionFor(id game.PlayerID) bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	for _, s := range r.sessions {
		if s.PlayerID() == id {
			return true
		}
	}
	return false
}

// broadcastBoard sends the snapshot to the room. Callers hold gameMutex.
func (r *Room) broadcastBoard() {
	board, err := r.game.ToBoardState()
	if err != nil {
		logger.Log.Errorf("Room %s board is inconsistent: %v", r.ID, err)
		return
	}
	data, err := json.Marshal(board)
	if err != nil {
		logger.Log.Errorf("Error marshalling board for room %s: %v", r.ID, err)
		return
	}
	if err := r.Broadcast(network.MsgTypeBoardState, data); err != nil {
		logger.Log.Warnf("Broadcast to room %s failed: %v", r.ID, err)
	}
}

func (r *Room) expireTurn(turn int) {
	r.gameMutex.Lock()
	defer r.gameMutex.Unlock()

	if r.closed {
		return
	}
	before := r.game.TurnCount()
	finished := r.game.Finished()
	r.StateMachine.GetCurrentState().OnTurnTimeout(turn)
	if r.game.TurnCount() != before || r.game.Finished() != finished {
		r.broadcastBoard()
	}
}

// loop 是房间的主循环，定时驱动状态更新
func (r *Room) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Update()
		case <-r.closeChan:
			return
		}
	}
}

// Update 由主循环调用，驱动状态机更新
func (r *Room) Update() {
	r.gameMutex.Lock()
	defer r.gameMutex.Unlock()

	if r.closed {
		return
	}
	r.StateMachine.GetCurrentState().OnUpdate()
}

// Close stops the room loop and turn timer and waits for a pending archive write.
func (r *Room) Close() {
	r.gameMutex.Lock()
	if r.closed {
		r.gameMutex.Unlock()
		return
	}
	r.closed = true
	r.CancelTurnTimeout()
	close(r.closeChan)
	r.gameMutex.Unlock()

	r.archiveWG.Wait()
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// CreateRoom 创建一个新房间并添加到管理器
func (m *Manager) CreateRoom(id, name string, opts Options, broadcaster Broadcaster) (*Room, error) {
	room, err := NewRoom(id, name, opts, broadcaster)
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	m.rooms[id] = room
	m.mutex.Unlock()
	return room, nil
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	delete(m.rooms, id)
	m.mutex.Unlock()

	if exists {
		room.Close()
	}
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Rooms returns every open room. Room locks are taken only after the manager
// lock is released.
func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// FindAvailableRoom 查找一个可用的房间
func (m *Manager) FindAvailableRoom() *Room {
	for _, room := range m.Rooms() {
		if room.Joinable() {
			return room
		}
	}
	return nil
}

// CloseAll closes every room.
func (m *Manager) CloseAll() {
	for _, room := range m.Rooms() {
		m.RemoveRoom(room.ID)
	}
}
