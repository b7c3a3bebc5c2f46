package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/islandserver/broadcast"
	"github.com/wfunc/islandserver/config"
	"github.com/wfunc/islandserver/game"
	"github.com/wfunc/islandserver/logger"
	"github.com/wfunc/islandserver/monitor"
	"github.com/wfunc/islandserver/network"
	"github.com/wfunc/islandserver/room"
	"github.com/wfunc/islandserver/services"
	"github.com/wfunc/islandserver/session"
	"github.com/wfunc/islandserver/state"
	"github.com/wfunc/islandserver/timer"
)

const (
	heartbeatInterval = 30 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var (
	ErrAlreadyInRoom = errors.New("session is already in a room")
	ErrNoRoom        = errors.New("session is not in a room")
	ErrRoomNotFound  = errors.New("room not found")
)

// RoomRequest is the payload of create and join requests. An empty RoomID on
// join picks any room still in its lobby.
type RoomRequest struct {
	RoomID string `json:"room_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// RoomReply answers create and join requests.
type RoomReply struct {
	RoomID   string        `json:"room_id"`
	PlayerID game.PlayerID `json:"player_id"`
}

type GameServer struct {
	cfg            config.GameConfig
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	records        *services.RecordService
	broadcaster    broadcast.Broadcaster
	timers         *timer.TimerManager
	monitor        *monitor.Monitor
	heartbeat      time.Duration
	shutdownOnce   sync.Once
}

func NewGameServer(cfg config.GameConfig, records *services.RecordService, timers *timer.TimerManager, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		records:        records,
		timers:         timers,
		monitor:        mon,
		heartbeat:      heartbeatInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	return s
}

// Rooms exposes the room manager to the admin service.
func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

// Handler serves the websocket endpoint at /ws.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves websocket clients on addr until ctx is cancelled.
func (s *GameServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		s.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Infof("Game server listening on %s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drops every client and closes every room. Hijacked websocket
// connections are not tracked by http.Server, so they are closed here.
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		s.roomManager.CloseAll()
		s.monitor.SetActiveRooms(0)
	})
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.heartbeat)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.leaveRoom(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		wsConn.Close()
	}()

	for {
		packet, err := wsConn.ReadPacket()
		if errors.Is(err, io.ErrShortBuffer) {
			s.sendError(sess, 0, err)
			continue
		}
		if err != nil {
			return
		}
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	sess.Touch()

	var err error
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		err = sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeCreateRoom:
		err = s.handleCreateRoom(sess, packet)
	case network.MsgTypeJoinRoom:
		err = s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		err = s.handleLeaveRoom(sess)
	case network.MsgTypeStartGame:
		err = s.handleStartGame(sess)
	case network.MsgTypePlayerAction:
		err = s.handleGameAction(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		return
	}

	if err != nil {
		s.sendError(sess, packet.MsgID, err)
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, packet *network.Packet) error {
	if sess.RoomID() != "" {
		return ErrAlreadyInRoom
	}
	var req RoomRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			return err
		}
	}
	if req.Name == "" {
		req.Name = "New Room"
	}

	r, err := s.createRoom(req.Name)
	if err != nil {
		return err
	}
	logger.Log.Infof("Session %s created room %s", sess.GetID(), r.ID)
	return s.join(sess, r, network.MsgTypeCreateRoom)
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) error {
	if sess.RoomID() != "" {
		return ErrAlreadyInRoom
	}
	var req RoomRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			return err
		}
	}

	var r *room.Room
	if req.RoomID != "" {
		found, exists := s.roomManager.GetRoom(req.RoomID)
		if !exists {
			return ErrRoomNotFound
		}
		r = found
	} else if r = s.roomManager.FindAvailableRoom(); r == nil {
		created, err := s.createRoom("New Room")
		if err != nil {
			return err
		}
		r = created
	}

	logger.Log.Infof("Session %s joining room %s", sess.GetID(), r.ID)
	return s.join(sess, r, network.MsgTypeJoinRoom)
}

func (s *GameServer) join(sess *session.Session, r *room.Room, reply uint16) error {
	id, err := r.Join(sess)
	if err != nil {
		return err
	}
	data, err := json.Marshal(RoomReply{RoomID: r.ID, PlayerID: id})
	if err != nil {
		return err
	}
	return sess.Send(reply, data)
}

func (s *GameServer) handleLeaveRoom(sess *session.Session) error {
	if sess.RoomID() == "" {
		return ErrNoRoom
	}
	s.leaveRoom(sess)
	return sess.Send(network.MsgTypeLeaveRoom, nil)
}

func (s *GameServer) handleStartGame(sess *session.Session) error {
	r, err := s.currentRoom(sess)
	if err != nil {
		return err
	}
	return r.Start()
}

func (s *GameServer) handleGameAction(sess *session.Session, packet *network.Packet) error {
	r, err := s.currentRoom(sess)
	if err != nil {
		logger.Log.Warnf("Session %s sent game action but is not in a room", sess.GetID())
		return err
	}

	action, err := game.DecodeAction(packet.Data)
	if err != nil {
		s.monitor.ObserveAction("unknown", "rejected", 0)
		return err
	}

	begin := time.Now()
	err = r.PerformAction(sess, action)
	s.monitor.ObserveAction(string(action.Kind()), outcome(err), time.Since(begin))
	if err != nil {
		logger.Log.Debugf("Room %s rejected %s from session %s: %v", r.ID, action.Kind(), sess.GetID(), err)
	}
	return err
}

func (s *GameServer) createRoom(name string) (*room.Room, error) {
	opts := room.Options{
		MinPlayers:     s.cfg.MinPlayers,
		MaxPlayers:     s.cfg.MaxPlayers,
		LobbyCountdown: s.cfg.LobbyCountdown,
		TurnTimeout:    s.cfg.TurnTimeout,
		TickInterval:   s.cfg.TickInterval,
		Timers:         s.timers,
		Archiver:       &archiveReporter{records: s.records, monitor: s.monitor},
	}
	r, err := s.roomManager.CreateRoom(uuid.New().String(), name, opts, s.broadcaster)
	if err != nil {
		return nil, err
	}
	s.monitor.SetActiveRooms(s.roomManager.Count())
	return r, nil
}

func (s *GameServer) currentRoom(sess *session.Session) (*room.Room, error) {
	roomID := sess.RoomID()
	if roomID == "" {
		return nil, ErrNoRoom
	}
	r, exists := s.roomManager.GetRoom(roomID)
	if !exists {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// leaveRoom takes sess out of its room and closes the room once nobody is left.
func (s *GameServer) leaveRoom(sess *session.Session) {
	r, err := s.currentRoom(sess)
	if err != nil {
		return
	}
	r.Leave(sess)
	if r.PlayerCount() == 0 {
		logger.Log.Infof("Room %s is empty, closing", r.ID)
		s.roomManager.RemoveRoom(r.ID)
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}
}

func (s *GameServer) sendError(sess *session.Session, request uint16, cause error) {
	data, err := json.Marshal(network.ErrorMessage{Request: request, Message: cause.Error()})
	if err != nil {
		return
	}
	if err := sess.Send(network.MsgTypeError, data); err != nil {
		logger.Log.Debugf("Send error to session %s failed: %v", sess.GetID(), err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case state.IsRejection(err),
		errors.Is(err, room.ErrNotInRoom),
		errors.Is(err, room.ErrRoomClosed):
		return "rejected"
	default:
		return "error"
	}
}

// archiveReporter stores finished games and counts them.
type archiveReporter struct {
	records *services.RecordService
	monitor *monitor.Monitor
}

func (a *archiveReporter) Archive(ctx context.Context, roomID string, summary game.Summary) error {
	a.monitor.IncGamesFinished()
	if err := a.records.Archive(ctx, roomID, summary); err != nil {
		a.monitor.IncArchiveFailures()
		return err
	}
	return nil
}
