package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

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
	if cfg.LedgerBackend == config.LedgerHTTP {
		log.Fatalf("The user service cannot use the http ledger backend")
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

	router := handlers.NewUserServiceRouter(ledger, zl, cfg.CORSOrigins)

	if err := server.Run(ctx, server.New(cfg.UserServicePort, router), zl); err != nil {
		zl.Error("server failed", zap.Error(err))
	}

	zl.Info("user service stopped")
}
