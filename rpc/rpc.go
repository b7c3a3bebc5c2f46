package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/islandserver/game"
	"github.com/wfunc/islandserver/logger"
	"github.com/wfunc/islandserver/models"
	"github.com/wfunc/islandserver/room"
	"github.com/wfunc/islandserver/services"
)

const callTimeout = 5 * time.Second

var ErrRoomNotFound = errors.New("room not found")

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers service under the name "GameService".
func NewServer(addr string, service *GameService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("GameService", service); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr is the address actually bound, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start serves RPC requests until Stop is called.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return nil
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// GameService exposes archived games and live boards to operators.
type GameService struct {
	records *services.RecordService
	rooms   *room.Manager
}

func NewGameService(records *services.RecordService, rooms *room.Manager) *GameService {
	return &GameService{records: records, rooms: rooms}
}

type GetRecentGamesArgs struct {
	Limit int // 0 uses services.DefaultRecentLimit
}

type GetRecentGamesReply struct {
	Games []models.GameRecord
}

// GetRecentGames lists the newest archived games.
func (gs *GameService) GetRecentGames(args *GetRecentGamesArgs, reply *GetRecentGamesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	games, err := gs.records.RecentGames(ctx, args.Limit)
	if err != nil {
		return err
	}
	reply.Games = games
	return nil
}

type GetGameArgs struct {
	RoomID string
}

type GetGameReply struct {
	Game models.GameRecord
}

// GetGame returns the archived record of one room.
func (gs *GameService) GetGame(args *GetGameArgs, reply *GetGameReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	record, err := gs.records.Game(ctx, args.RoomID)
	if err != nil {
		return err
	}
	reply.Game = *record
	return nil
}

type GetBoardStateArgs struct {
	RoomID string
}

type GetBoardStateReply struct {
	State string
	Board game.BoardState
}

// GetBoardState returns the public snapshot of a live room.
func (gs *GameService) GetBoardState(args *GetBoardStateArgs, reply *GetBoardStateReply) error {
	r, exists := gs.rooms.GetRoom(args.RoomID)
	if !exists {
		return ErrRoomNotFound
	}
	board, err := r.BoardState()
	if err != nil {
		return err
	}
	reply.State = r.StateID()
	reply.Board = board
	return nil
}
