package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"minigames-backend/internal/config"
	"minigames-backend/internal/handlers"
	"minigames-backend/internal/logger"
	"minigames-backend/internal/server"
	"minigames-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := services.NewLedger(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to open ledger", zap.Error(err))
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			zl.Error("failed to close ledger", zap.Error(err))
		}
	}()

	rng := services.NewRandom(time.Now().UnixNano())
	minesEngine := services.NewMinesEngine(ledger, cfg.Game.Mines, rng, zl)
	crashEngine := services.NewCrashEngine(ledger, cfg.Game.Crash, rng, zl)

	hub := handlers.NewWebSocketHub(crashEngine.Snapshot, zl)
	crashEngine.SetBroadcaster(hub)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := crashEngine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("crash scheduler stopped", zap.Error(err))
		}
	}()

	router := handlers.NewGameRouter(handlers.GameRouterDeps{
		Ledger:      ledger,
		Mines:       minesEngine,
		Crash:       crashEngine,
		Hub:         hub,
		CORSOrigins: cfg.CORSOrigins,
		Log:         zl,
	})

	zl.Info("game server configured",
		zap.String("env", cfg.Env),
		zap.String("ledger", cfg.LedgerBackend),
		zap.Int("grid_size", cfg.Game.Mines.GridSize),
		zap.Bool("provably_fair", cfg.Game.Crash.ProvablyFair))

	if err := server.Run(ctx, server.New(cfg.Port, router), zl); err != nil {
		zl.Error("server failed", zap.Error(err))
		stop()
	}

	wg.Wait()
	zl.Info("game server stopped")
}
