package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/islandserver/config"
	"github.com/wfunc/islandserver/logger"
	"github.com/wfunc/islandserver/monitor"
	"github.com/wfunc/islandserver/persistence"
	"github.com/wfunc/islandserver/rpc"
	"github.com/wfunc/islandserver/server"
	"github.com/wfunc/islandserver/services"
	"github.com/wfunc/islandserver/timer"
)

const timerResolution = 100 * time.Millisecond

func main() {
	// Initialize logger, so configuration errors are reported
	if err := logger.Init("info"); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Log.Level); err != nil {
		logger.Log.Fatalf("Failed to set log level %q: %v", cfg.Log.Level, err)
	}

	// Initialize Database
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if cfg.Database.Enabled {
		logger.Log.Infof("Database connection successful (driver %s).", cfg.Database.Driver)
	} else {
		logger.Log.Info("Database disabled, finished games are kept in memory.")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mon := monitor.NewMonitor("island", registry)

	timers := timer.NewTimerManager(timerResolution)
	defer timers.Stop()

	records := services.NewRecordService(db)
	gameServer := server.NewGameServer(cfg.Game, records, timers, mon)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewGameService(records, gameServer.Rooms()))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gameServer.ListenAndServe(ctx, cfg.Server.HTTPAddress)
	})
	g.Go(rpcServer.Start)
	g.Go(func() error {
		<-ctx.Done()
		rpcServer.Stop()
		return nil
	})
	g.Go(func() error {
		return serveMetrics(ctx, cfg.Server.MetricsAddress, mon)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Errorf("Server stopped: %v", err)
		return
	}
	logger.Log.Info("Server stopped.")
}

func serveMetrics(ctx context.Context, addr string, mon *monitor.Monitor) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Infof("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
