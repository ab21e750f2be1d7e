package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"minigames-backend/internal/config"
	"minigames-backend/internal/models"
)

// CrashEngine owns the single shared crash round. The scheduler in Run and incoming
// requests mutate the round only through engine methods, all under mu. Ledger calls and
// broadcasts happen after mu is released.
type CrashEngine struct {
	ledger      Ledger
	rng         Random
	log         *zap.Logger
	cfg         config.CrashConfig
	broadcaster Broadcaster

	after     func(time.Duration) <-chan time.Time
	newTicker func(time.Duration) (<-chan time.Time, func())

	mu      sync.Mutex
	round   *crashRound
	history []models.CrashRoundResult
}

type crashRound struct {
	id             string
	multiplier     float64
	active         bool
	crashed        bool
	crashPoint     float64
	serverSeed     string
	serverSeedHash string
	startedAt      time.Time
	crashedAt      time.Time

	bets    map[string]*models.CrashBet
	order   []string
	pending map[string]bool
}

type CrashOption func(*CrashEngine)

// WithTimers replaces the wall-clock timers used by Run.
func WithTimers(after func(time.Duration) <-chan time.Time, newTicker func(time.Duration) (<-chan time.Time, func())) CrashOption {
	return func(e *CrashEngine) {
		e.after = after
		e.newTicker = newTicker
	}
}

func WithBroadcaster(b Broadcaster) CrashOption {
	return func(e *CrashEngine) {
		e.broadcaster = b
	}
}

type CrashView struct {
	models.CrashStatus
	Coins float64
	Bet   *models.CrashBet
}

type CrashBetResult struct {
	Bet        models.CrashBet
	NewBalance float64
}

type CrashCashOutResult struct {
	Multiplier float64
	Winnings   float64
	NewBalance float64
}

func NewCrashEngine(ledger Ledger, cfg config.CrashConfig, rng Random, log *zap.Logger, opts ...CrashOption) *CrashEngine {
	e := &CrashEngine{
		ledger:      ledger,
		rng:         rng,
		log:         log.Named("crash"),
		cfg:         cfg,
		broadcaster: noopBroadcaster{},
		after:       time.After,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		round: &crashRound{multiplier: 1.0},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetBroadcaster must be called before Run.
func (e *CrashEngine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

func (r *crashRound) status() models.CrashStatus {
	return models.CrashStatus{
		RoundID:        r.id,
		Multiplier:     r.multiplier,
		Active:         r.active,
		Crashed:        r.crashed,
		ServerSeedHash: r.serverSeedHash,
		StartedAt:      r.startedAt,
		Bets:           len(r.bets),
	}
}

func (r *crashRound) result() models.CrashRoundResult {
	bets := make([]models.CrashBet, 0, len(r.order))
	for _, userID := range r.order {
		if r.pending[userID] {
			continue
		}
		bets = append(bets, *r.bets[userID])
	}

	return models.CrashRoundResult{
		RoundID:         r.id,
		CrashPoint:      r.crashPoint,
		FinalMultiplier: r.multiplier,
		ServerSeed:      r.serverSeed,
		ServerSeedHash:  r.serverSeedHash,
		Bets:            bets,
		CrashedAt:       r.crashedAt,
	}
}

func (r *crashRound) release(userID string) {
	delete(r.bets, userID)
	delete(r.pending, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func crashPayout(bet, multiplier float64) float64 {
	return models.CalculatePayout(decimal.NewFromFloat(bet), decimal.NewFromFloat(multiplier)).
		Round(2).
		InexactFloat64()
}

// StartRound resets the shared round: multiplier 1.0, empty bet set, betting open. The
// crash point is fixed here and stays hidden until the crash.
func (e *CrashEngine) StartRound() (models.CrashStatus, error) {
	seed, err := GenerateServerSeed()
	if err != nil {
		return models.CrashStatus{}, err
	}

	id := models.GenerateRoundID(models.GameTypeCrash)
	crashPoint := e.cfg.Ceiling
	if e.cfg.ProvablyFair {
		crashPoint = CrashPointFromSeed(seed, id, e.cfg.HouseEdge, e.cfg.Ceiling)
	}

	e.mu.Lock()
	e.round = &crashRound{
		id:             id,
		multiplier:     1.0,
		active:         true,
		crashPoint:     crashPoint,
		serverSeed:     seed,
		serverSeedHash: HashServerSeed(seed),
		startedAt:      time.Now(),
		bets:           make(map[string]*models.CrashBet),
		pending:        make(map[string]bool),
	}
	status := e.round.status()
	broadcaster := e.broadcaster
	e.mu.Unlock()

	e.log.Info("round started", zap.String("round_id", id), zap.String("server_seed_hash", status.ServerSeedHash))
	broadcaster.BroadcastRoundStart(status)

	return status, nil
}

// Tick advances the multiplier by a uniform step in [MinStep, MaxStep), settles auto
// cash-outs the new value reaches and crashes the round once the crash point is met.
// It reports whether the round is over; ticks on a finished round change nothing.
func (e *CrashEngine) Tick(ctx context.Context) bool {
	e.mu.Lock()
	r := e.round
	if !r.active || r.crashed {
		e.mu.Unlock()
		return true
	}

	r.multiplier += e.cfg.MinStep + e.rng.Float64()*(e.cfg.MaxStep-e.cfg.MinStep)
	reached := math.Min(r.multiplier, r.crashPoint)

	var settled []*models.CrashBet
	for _, userID := range r.order {
		bet := r.bets[userID]
		if bet.CashedOut || r.pending[userID] || bet.AutoCashOut == 0 || bet.AutoCashOut > reached {
			continue
		}
		bet.CashedOut = true
		bet.CashOutMultiplier = bet.AutoCashOut
		bet.Payout = crashPayout(bet.BetAmount, bet.AutoCashOut)
		settled = append(settled, bet)
	}
	paid := make([]models.CrashBet, len(settled))
	for i, bet := range settled {
		paid[i] = *bet
	}

	crashed := r.multiplier >= r.crashPoint
	var result models.CrashRoundResult
	if crashed {
		r.multiplier = r.crashPoint
		r.crashed = true
		r.active = false
		r.crashedAt = time.Now()
		result = r.result()
		e.pushHistory(result)
	}

	status := r.status()
	broadcaster := e.broadcaster
	e.mu.Unlock()

	for i, bet := range paid {
		if _, err := e.ledger.Credit(ctx, bet.UserID, bet.Payout); err != nil {
			e.log.Error("failed to credit auto cash-out",
				zap.String("round_id", status.RoundID),
				zap.String("user_id", bet.UserID),
				zap.Float64("payout", bet.Payout),
				zap.Error(err))
			e.unsettle(r, settled[i])
			continue
		}
		broadcaster.BroadcastCashOut(status.RoundID, bet)
	}

	broadcaster.BroadcastTick(status)
	if crashed {
		e.log.Info("round crashed",
			zap.String("round_id", result.RoundID),
			zap.Float64("crash_point", result.CrashPoint),
			zap.Float64("multiplier", result.FinalMultiplier),
			zap.Int("bets", len(result.Bets)))
		broadcaster.BroadcastCrash(result)
	}

	return crashed
}

// unsettle reopens a bet whose payout could not be credited. A live round retries it on
// the next tick; in a crashed round the bet is recorded as lost.
func (e *CrashEngine) unsettle(r *crashRound, bet *models.CrashBet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bet.CashedOut = false
	bet.CashOutMultiplier = 0
	bet.Payout = 0

	if r.crashed {
		for i := len(e.history) - 1; i >= 0; i-- {
			if e.history[i].RoundID != r.id {
				continue
			}
			for j := range e.history[i].Bets {
				if e.history[i].Bets[j].ID == bet.ID {
					e.history[i].Bets[j] = *bet
				}
			}
			break
		}
	}
}

func (e *CrashEngine) pushHistory(result models.CrashRoundResult) {
	if e.cfg.HistorySize <= 0 {
		return
	}
	e.history = append(e.history, result)
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[len(e.history)-e.cfg.HistorySize:]
	}
}

// PlaceBet reserves the user's slot in the live round, then debits the stake. The slot
// is released again if the debit fails, and the stake is refunded if the round crashed
// while the debit was in flight.
func (e *CrashEngine) PlaceBet(ctx context.Context, userID string, betAmount, autoCashOut float64) (*CrashBetResult, error) {
	if userID == "" || !validAmount(betAmount) {
		return nil, fmt.Errorf("%w: bet %v", ErrInvalidInput, betAmount)
	}
	if autoCashOut != 0 && (!validAmount(autoCashOut) || autoCashOut <= 1) {
		return nil, fmt.Errorf("%w: auto cash-out %v", ErrInvalidInput, autoCashOut)
	}

	e.mu.Lock()
	r := e.round
	if !r.active {
		e.mu.Unlock()
		return nil, ErrBettingClosed
	}
	if _, ok := r.bets[userID]; ok {
		e.mu.Unlock()
		return nil, ErrDuplicateBet
	}

	bet := &models.CrashBet{
		ID:          models.GenerateBetID(),
		UserID:      userID,
		BetAmount:   betAmount,
		AutoCashOut: autoCashOut,
		PlacedAt:    time.Now(),
	}
	r.bets[userID] = bet
	r.order = append(r.order, userID)
	r.pending[userID] = true
	e.mu.Unlock()

	balance, err := e.ledger.Debit(ctx, userID, betAmount)

	e.mu.Lock()
	if err != nil {
		r.release(userID)
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to debit bet: %w", err)
	}
	if !r.active {
		r.release(userID)
		e.mu.Unlock()
		return nil, e.refund(ctx, r.id, userID, betAmount)
	}
	delete(r.pending, userID)
	placed := *bet
	e.mu.Unlock()

	e.log.Info("bet placed",
		zap.String("round_id", r.id),
		zap.String("user_id", userID),
		zap.Float64("bet", betAmount),
		zap.Float64("auto_cash_out", autoCashOut))

	return &CrashBetResult{Bet: placed, NewBalance: balance}, nil
}

// refund returns a stake whose round ended before the debit completed.
func (e *CrashEngine) refund(ctx context.Context, roundID, userID string, amount float64) error {
	if _, err := e.ledger.Credit(ctx, userID, amount); err != nil {
		e.log.Error("failed to refund late bet",
			zap.String("round_id", roundID),
			zap.String("user_id", userID),
			zap.Float64("bet", amount),
			zap.Error(err))
		return fmt.Errorf("failed to refund bet: %w", err)
	}
	return ErrBettingClosed
}

// CashOut settles the user's bet at the current multiplier while the round is live.
func (e *CrashEngine) CashOut(ctx context.Context, userID string) (*CrashCashOutResult, error) {
	e.mu.Lock()
	r := e.round
	if !r.active {
		e.mu.Unlock()
		return nil, ErrNoActiveRound
	}
	bet, ok := r.bets[userID]
	if !ok || r.pending[userID] {
		e.mu.Unlock()
		return nil, ErrNoActiveBet
	}
	if bet.CashedOut {
		e.mu.Unlock()
		return nil, ErrAlreadyCashedOut
	}

	bet.CashedOut = true
	bet.CashOutMultiplier = r.multiplier
	bet.Payout = crashPayout(bet.BetAmount, r.multiplier)
	settled := *bet
	broadcaster := e.broadcaster
	e.mu.Unlock()

	balance, err := e.ledger.Credit(ctx, userID, settled.Payout)
	if err != nil {
		e.unsettle(r, bet)
		return nil, fmt.Errorf("failed to credit winnings: %w", err)
	}

	e.log.Info("cashed out",
		zap.String("round_id", r.id),
		zap.String("user_id", userID),
		zap.Float64("multiplier", settled.CashOutMultiplier),
		zap.Float64("payout", settled.Payout))
	broadcaster.BroadcastCashOut(r.id, settled)

	return &CrashCashOutResult{
		Multiplier: settled.CashOutMultiplier,
		Winnings:   settled.Payout,
		NewBalance: balance,
	}, nil
}

func (e *CrashEngine) Snapshot() models.CrashStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round.status()
}

// Status is the polling view: round state plus the caller's balance and bet.
func (e *CrashEngine) Status(ctx context.Context, userID string) (*CrashView, error) {
	e.mu.Lock()
	view := &CrashView{CrashStatus: e.round.status()}
	if bet, ok := e.round.bets[userID]; ok && !e.round.pending[userID] {
		copied := *bet
		view.Bet = &copied
	}
	e.mu.Unlock()

	coins, err := e.ledger.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	view.Coins = coins

	return view, nil
}

// History returns up to limit finished rounds, newest first.
func (e *CrashEngine) History(limit int) []models.CrashRoundResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 || limit > len(e.history) {
		limit = len(e.history)
	}

	out := make([]models.CrashRoundResult, 0, limit)
	for i := len(e.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.history[i])
	}
	return out
}

func (e *CrashEngine) Verify(serverSeed, roundID string) (float64, string) {
	return CrashPointFromSeed(serverSeed, roundID, e.cfg.HouseEdge, e.cfg.Ceiling), HashServerSeed(serverSeed)
}

// Run drives rounds until ctx is cancelled: wait StartDelay, then repeatedly start a
// round, tick until it crashes and sit out the Intermission.
func (e *CrashEngine) Run(ctx context.Context) error {
	wait := e.after(e.cfg.StartDelay)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}

		if _, err := e.StartRound(); err != nil {
			e.log.Error("failed to start round", zap.Error(err))
			wait = e.after(e.cfg.Intermission)
			continue
		}

		if err := e.runRound(ctx); err != nil {
			return err
		}

		wait = e.after(e.cfg.Intermission)
	}
}

func (e *CrashEngine) runRound(ctx context.Context) error {
	ticks, stop := e.newTicker(e.cfg.TickInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
			if e.Tick(ctx) {
				return nil
			}
		}
	}
}
