package services

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"minigames-backend/internal/config"
)

// Ledger is the durable userId -> coins mapping shared by both games. Every mutation is
// persisted before the call returns.
type Ledger interface {
	// Get returns the balance, creating the account with the default balance if needed.
	Get(ctx context.Context, userID string) (float64, error)
	// Lookup returns the balance without creating the account.
	Lookup(ctx context.Context, userID string) (float64, bool, error)
	// Ensure creates the account with balance unless it already exists.
	Ensure(ctx context.Context, userID string, balance float64) (float64, error)
	// Credit adds delta (negative for a debit) and returns the new balance.
	Credit(ctx context.Context, userID string, delta float64) (float64, error)
	// Debit takes amount only if the balance covers it, in one atomic step. It fails
	// with ErrInsufficientFunds otherwise.
	Debit(ctx context.Context, userID string, amount float64) (float64, error)
	Close() error
}

func NewLedger(ctx context.Context, cfg *config.Config, log *zap.Logger) (Ledger, error) {
	log.Info("opening ledger", zap.String("backend", cfg.LedgerBackend))

	switch cfg.LedgerBackend {
	case config.LedgerFile:
		return NewFileStore(cfg.DataFile, cfg.DefaultBalance)
	case config.LedgerRedis:
		return NewRedisLedger(ctx, cfg)
	case config.LedgerPostgres:
		return NewPostgresLedger(ctx, cfg.PostgresDSN, cfg.DefaultBalance)
	case config.LedgerHTTP:
		return NewHTTPLedger(cfg.UserServiceURL), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.LedgerBackend)
	}
}

func validAmount(amount float64) bool {
	return amount > 0 && !math.IsNaN(amount) && !math.IsInf(amount, 0)
}
