package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"minigames-backend/internal/config"
	"minigames-backend/internal/models"
)

// MinesEngine runs one mines round per user. Calls for the same user are serialized by a
// per-user lock; different users never contend beyond the map lookups.
type MinesEngine struct {
	ledger   Ledger
	rng      Random
	log      *zap.Logger
	gridSize int
	step     decimal.Decimal

	mu     sync.Mutex
	rounds map[string]*models.MinesRound
	locks  map[string]*sync.Mutex
}

type MinesStartResult struct {
	RoundID    string
	NewBalance float64
	GridSize   int
	Multiplier float64
}

type MinesRevealResult struct {
	MineHit     bool
	MineIndex   int
	Mines       []int
	AutoCashOut bool
	Multiplier  float64
	Revealed    []int
	Winnings    float64
	NewBalance  float64
}

type MinesCashOutResult struct {
	Multiplier float64
	Winnings   float64
	NewBalance float64
}

func NewMinesEngine(ledger Ledger, cfg config.MinesConfig, rng Random, log *zap.Logger) *MinesEngine {
	return &MinesEngine{
		ledger:   ledger,
		rng:      rng,
		log:      log.Named("mines"),
		gridSize: cfg.GridSize,
		step:     decimal.NewFromFloat(cfg.MultiplierStep),
		rounds:   make(map[string]*models.MinesRound),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (e *MinesEngine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}
	return lock
}

func (e *MinesEngine) round(userID string) (*models.MinesRound, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	round, ok := e.rounds[userID]
	return round, ok
}

func (e *MinesEngine) setRound(userID string, round *models.MinesRound) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if round == nil {
		delete(e.rounds, userID)
		return
	}
	e.rounds[userID] = round
}

// sampleMines picks numMines distinct cells from the head of a random permutation.
func (e *MinesEngine) sampleMines(numMines int) []int {
	mines := e.rng.Perm(e.gridSize)[:numMines]
	sort.Ints(mines)
	return mines
}

func (e *MinesEngine) StartGame(ctx context.Context, userID string, betAmount float64, numMines int) (*MinesStartResult, error) {
	if userID == "" || !validAmount(betAmount) || numMines < 1 || numMines > e.gridSize-1 {
		return nil, fmt.Errorf("%w: bet %v with %d mines", ErrInvalidInput, betAmount, numMines)
	}

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := e.round(userID); ok {
		return nil, ErrRoundInProgress
	}

	balance, err := e.ledger.Debit(ctx, userID, betAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to debit bet: %w", err)
	}

	round := models.NewMinesRound(
		models.GenerateRoundID(models.GameTypeMines),
		userID,
		decimal.NewFromFloat(betAmount),
		e.sampleMines(numMines),
		e.gridSize,
	)
	e.setRound(userID, round)

	e.log.Info("round started",
		zap.String("user_id", userID),
		zap.String("round_id", round.ID),
		zap.Float64("bet", betAmount),
		zap.Int("mines", numMines))

	return &MinesStartResult{
		RoundID:    round.ID,
		NewBalance: balance,
		GridSize:   round.GridSize,
		Multiplier: round.Multiplier.InexactFloat64(),
	}, nil
}

func (e *MinesEngine) Reveal(ctx context.Context, userID string, cell int) (*MinesRevealResult, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	round, ok := e.round(userID)
	if !ok {
		return nil, ErrNoActiveRound
	}
	// A cleared round is still held only when its payout failed; settle it again.
	if round.Cleared() {
		return e.autoCashOut(ctx, round)
	}
	if cell < 0 || cell >= round.GridSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCell, cell)
	}
	if round.IsRevealed(cell) {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyRevealed, cell)
	}

	if round.IsMine(cell) {
		e.setRound(userID, nil)

		e.log.Info("mine hit",
			zap.String("user_id", userID),
			zap.String("round_id", round.ID),
			zap.Int("cell", cell),
			zap.Int("revealed", len(round.Revealed)))

		return &MinesRevealResult{
			MineHit:    true,
			MineIndex:  cell,
			Mines:      round.MinePositions(),
			Multiplier: round.Multiplier.InexactFloat64(),
			Revealed:   append([]int(nil), round.Revealed...),
		}, nil
	}

	round.MarkSafe(cell, e.step)

	if round.Cleared() {
		return e.autoCashOut(ctx, round)
	}

	return &MinesRevealResult{
		Multiplier: round.Multiplier.InexactFloat64(),
		Revealed:   append([]int(nil), round.Revealed...),
	}, nil
}

// autoCashOut settles a round with every safe cell revealed.
func (e *MinesEngine) autoCashOut(ctx context.Context, round *models.MinesRound) (*MinesRevealResult, error) {
	settled, err := e.settle(ctx, round)
	if err != nil {
		return nil, err
	}

	return &MinesRevealResult{
		Multiplier:  round.Multiplier.InexactFloat64(),
		Revealed:    append([]int(nil), round.Revealed...),
		AutoCashOut: true,
		Winnings:    settled.Winnings,
		NewBalance:  settled.NewBalance,
	}, nil
}

func (e *MinesEngine) CashOut(ctx context.Context, userID string) (*MinesCashOutResult, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	round, ok := e.round(userID)
	if !ok {
		return nil, ErrNoActiveRound
	}

	return e.settle(ctx, round)
}

// settle pays bet x multiplier and ends the round. On a ledger failure the round is kept
// so the player can cash out again.
func (e *MinesEngine) settle(ctx context.Context, round *models.MinesRound) (*MinesCashOutResult, error) {
	winnings := round.Payout().InexactFloat64()

	balance, err := e.ledger.Credit(ctx, round.UserID, winnings)
	if err != nil {
		e.log.Error("failed to credit winnings",
			zap.String("user_id", round.UserID),
			zap.String("round_id", round.ID),
			zap.Float64("winnings", winnings),
			zap.Error(err))
		return nil, fmt.Errorf("failed to credit winnings: %w", err)
	}

	e.setRound(round.UserID, nil)

	e.log.Info("round cashed out",
		zap.String("user_id", round.UserID),
		zap.String("round_id", round.ID),
		zap.String("multiplier", round.Multiplier.String()),
		zap.Float64("winnings", winnings))

	return &MinesCashOutResult{
		Multiplier: round.Multiplier.InexactFloat64(),
		Winnings:   winnings,
		NewBalance: balance,
	}, nil
}

// ActiveRound returns the player's running round without its mine layout.
func (e *MinesEngine) ActiveRound(userID string) (models.MinesView, bool) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	round, ok := e.round(userID)
	if !ok {
		return models.MinesView{}, false
	}
	return round.View(), true
}
