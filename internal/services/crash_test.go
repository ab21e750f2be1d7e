package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"minigames-backend/internal/config"
	"minigames-backend/internal/models"
	"minigames-backend/internal/services"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	starts   []models.CrashStatus
	ticks    []models.CrashStatus
	cashOuts []models.CrashBet
	crashes  []models.CrashRoundResult

	started chan struct{}
	crashed chan struct{}
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{
		started: make(chan struct{}, 16),
		crashed: make(chan struct{}, 16),
	}
}

func (b *recordingBroadcaster) BroadcastRoundStart(status models.CrashStatus) {
	b.mu.Lock()
	b.starts = append(b.starts, status)
	b.mu.Unlock()
	b.started <- struct{}{}
}

func (b *recordingBroadcaster) BroadcastTick(status models.CrashStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticks = append(b.ticks, status)
}

func (b *recordingBroadcaster) BroadcastCashOut(_ string, bet models.CrashBet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cashOuts = append(b.cashOuts, bet)
}

func (b *recordingBroadcaster) BroadcastCrash(result models.CrashRoundResult) {
	b.mu.Lock()
	b.crashes = append(b.crashes, result)
	b.mu.Unlock()
	b.crashed <- struct{}{}
}

// flatCrashConfig ends rounds at the ceiling only, with +0.1 per tick under a zero rand.
func flatCrashConfig(ceiling float64) config.CrashConfig {
	cfg := config.DefaultGameConfig().Crash
	cfg.ProvablyFair = false
	cfg.Ceiling = ceiling
	return cfg
}

func newCrashEngine(t *testing.T, ledger services.Ledger, cfg config.CrashConfig, opts ...services.CrashOption) *services.CrashEngine {
	t.Helper()
	return services.NewCrashEngine(ledger, cfg, &fixedRand{}, zap.NewNop(), opts...)
}

func TestCrashWaitingBeforeFirstRound(t *testing.T) {
	ctx := context.Background()
	engine := newCrashEngine(t, newTestStore(t), flatCrashConfig(10))

	status := engine.Snapshot()
	assert.False(t, status.Active)
	assert.False(t, status.Crashed)
	assert.Equal(t, 1.0, status.Multiplier)

	_, err := engine.PlaceBet(ctx, "u1", 10, 0)
	assert.ErrorIs(t, err, services.ErrBettingClosed)

	assert.True(t, engine.Tick(ctx))
	assert.Equal(t, 1.0, engine.Snapshot().Multiplier)
}

func TestCrashMultiplierRisesUntilCeiling(t *testing.T) {
	ctx := context.Background()
	engine := newCrashEngine(t, newTestStore(t), flatCrashConfig(10))

	started, err := engine.StartRound()
	require.NoError(t, err)
	assert.True(t, started.Active)
	assert.NotEmpty(t, started.RoundID)
	assert.Len(t, started.ServerSeedHash, 64)

	previous := 1.0
	ticks := 0
	for !engine.Tick(ctx) {
		current := engine.Snapshot().Multiplier
		assert.GreaterOrEqual(t, current, previous)
		previous = current
		ticks++
		require.Less(t, ticks, 200)
	}

	final := engine.Snapshot()
	assert.True(t, final.Crashed)
	assert.False(t, final.Active)
	assert.Equal(t, 10.0, final.Multiplier)

	assert.True(t, engine.Tick(ctx))
	assert.Equal(t, final.Multiplier, engine.Snapshot().Multiplier)

	_, err = engine.PlaceBet(ctx, "u1", 10, 0)
	assert.ErrorIs(t, err, services.ErrBettingClosed)
	_, err = engine.CashOut(ctx, "u1")
	assert.ErrorIs(t, err, services.ErrNoActiveRound)
}

func TestCrashPlaceBet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	engine := newCrashEngine(t, store, flatCrashConfig(10))

	_, err := engine.StartRound()
	require.NoError(t, err)

	res, err := engine.PlaceBet(ctx, "u1", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 900.0, res.NewBalance)
	assert.Equal(t, "u1", res.Bet.UserID)
	assert.NotEmpty(t, res.Bet.ID)

	_, err = engine.PlaceBet(ctx, "u1", 100, 0)
	assert.ErrorIs(t, err, services.ErrDuplicateBet)
	_, err = engine.PlaceBet(ctx, "u1", 1, 0)
	assert.ErrorIs(t, err, services.ErrDuplicateBet)

	coins, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 900.0, coins)
	assert.Equal(t, 1, engine.Snapshot().Bets)
}

func TestCrashPlaceBetValidation(t *testing.T) {
	ctx := context.Background()
	engine := newCrashEngine(t, newTestStore(t), flatCrashConfig(10))

	_, err := engine.StartRound()
	require.NoError(t, err)

	tests := []struct {
		name        string
		bet         float64
		autoCashOut float64
		wantErr     error
	}{
		{"zero bet", 0, 0, services.ErrInvalidInput},
		{"negative bet", -1, 0, services.ErrInvalidInput},
		{"auto cash-out at one", 10, 1, services.ErrInvalidInput},
		{"negative auto cash-out", 10, -2, services.ErrInvalidInput},
		{"more than balance", 5000, 0, services.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.PlaceBet(ctx, "u1", tt.bet, tt.autoCashOut)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// a rejected debit frees the slot
	res, err := engine.PlaceBet(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 990.0, res.NewBalance)
}

func TestCrashCashOut(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := newRecordingBroadcaster()
	engine := newCrashEngine(t, store, flatCrashConfig(10), services.WithBroadcaster(rec))

	_, err := engine.StartRound()
	require.NoError(t, err)

	_, err = engine.CashOut(ctx, "u1")
	assert.ErrorIs(t, err, services.ErrNoActiveBet)

	_, err = engine.PlaceBet(ctx, "u1", 100, 0)
	require.NoError(t, err)

	require.False(t, engine.Tick(ctx))
	require.False(t, engine.Tick(ctx))

	res, err := engine.CashOut(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 1.2, res.Multiplier, 1e-9)
	assert.Equal(t, 120.0, res.Winnings)
	assert.Equal(t, 1020.0, res.NewBalance)

	_, err = engine.CashOut(ctx, "u1")
	assert.ErrorIs(t, err, services.ErrAlreadyCashedOut)

	view, err := engine.Status(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, view.Bet)
	assert.True(t, view.Bet.CashedOut)
	assert.Equal(t, 1020.0, view.Coins)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.cashOuts, 1)
	assert.Equal(t, "u1", rec.cashOuts[0].UserID)
}

func TestCrashCashOutRestoresBetWhenCreditFails(t *testing.T) {
	ctx := context.Background()
	ledger := &failingLedger{Ledger: newTestStore(t)}
	engine := newCrashEngine(t, ledger, flatCrashConfig(10))

	_, err := engine.StartRound()
	require.NoError(t, err)
	_, err = engine.PlaceBet(ctx, "u1", 100, 0)
	require.NoError(t, err)

	ledger.setFail(true)
	_, err = engine.CashOut(ctx, "u1")
	require.Error(t, err)

	ledger.setFail(false)
	res, err := engine.CashOut(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.NewBalance)
}

func TestCrashAutoCashOut(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := newRecordingBroadcaster()
	engine := newCrashEngine(t, store, flatCrashConfig(10), services.WithBroadcaster(rec))

	_, err := engine.StartRound()
	require.NoError(t, err)

	_, err = engine.PlaceBet(ctx, "auto", 100, 1.25)
	require.NoError(t, err)
	_, err = engine.PlaceBet(ctx, "manual", 100, 0)
	require.NoError(t, err)

	engine.Tick(ctx)
	engine.Tick(ctx)
	view, err := engine.Status(ctx, "auto")
	require.NoError(t, err)
	assert.False(t, view.Bet.CashedOut)

	engine.Tick(ctx)
	view, err = engine.Status(ctx, "auto")
	require.NoError(t, err)
	assert.True(t, view.Bet.CashedOut)
	assert.Equal(t, 1.25, view.Bet.CashOutMultiplier)
	assert.Equal(t, 125.0, view.Bet.Payout)
	assert.Equal(t, 1025.0, view.Coins)

	_, err = engine.CashOut(ctx, "auto")
	assert.ErrorIs(t, err, services.ErrAlreadyCashedOut)

	manual, err := engine.Status(ctx, "manual")
	require.NoError(t, err)
	assert.False(t, manual.Bet.CashedOut)
	assert.Equal(t, 900.0, manual.Coins)
}

func TestCrashAutoCashOutRetriesWhenCreditFails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ledger := &failingLedger{Ledger: store}
	rec := newRecordingBroadcaster()
	engine := newCrashEngine(t, ledger, flatCrashConfig(10), services.WithBroadcaster(rec))

	_, err := engine.StartRound()
	require.NoError(t, err)
	_, err = engine.PlaceBet(ctx, "u1", 100, 1.15)
	require.NoError(t, err)

	ledger.setFail(true)
	engine.Tick(ctx)
	engine.Tick(ctx)

	view, err := engine.Status(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, view.Bet)
	assert.False(t, view.Bet.CashedOut)
	assert.Zero(t, view.Bet.CashOutMultiplier)
	assert.Zero(t, view.Bet.Payout)
	assert.Equal(t, 900.0, view.Coins)

	ledger.setFail(false)
	engine.Tick(ctx)

	view, err = engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, view.Bet.CashedOut)
	assert.Equal(t, 1.15, view.Bet.CashOutMultiplier)
	assert.Equal(t, 115.0, view.Bet.Payout)
	assert.Equal(t, 1015.0, view.Coins)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.cashOuts, 1)
	assert.Equal(t, 115.0, rec.cashOuts[0].Payout)
}

func TestCrashAutoCashOutLostWhenCreditFailsOnCrash(t *testing.T) {
	ctx := context.Background()
	ledger := &failingLedger{Ledger: newTestStore(t)}
	engine := newCrashEngine(t, ledger, flatCrashConfig(1.15))

	_, err := engine.StartRound()
	require.NoError(t, err)
	_, err = engine.PlaceBet(ctx, "u1", 100, 1.15)
	require.NoError(t, err)

	ledger.setFail(true)
	engine.Tick(ctx)
	require.True(t, engine.Tick(ctx))

	history := engine.History(1)
	require.Len(t, history, 1)
	require.Len(t, history[0].Bets, 1)
	assert.False(t, history[0].Bets[0].CashedOut)
	assert.Zero(t, history[0].Bets[0].Payout)
}

// hookLedger runs beforeDebit ahead of every debit.
type hookLedger struct {
	services.Ledger
	beforeDebit func()
}

func (l *hookLedger) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	if l.beforeDebit != nil {
		l.beforeDebit()
	}
	return l.Ledger.Debit(ctx, userID, amount)
}

func TestCrashPlaceBetRefundsWhenRoundCrashesDuringDebit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ledger := &hookLedger{Ledger: store}
	engine := newCrashEngine(t, ledger, flatCrashConfig(1.3))

	_, err := engine.StartRound()
	require.NoError(t, err)

	ledger.beforeDebit = func() {
		for !engine.Tick(ctx) {
		}
	}

	_, err = engine.PlaceBet(ctx, "u1", 100, 0)
	assert.ErrorIs(t, err, services.ErrBettingClosed)

	coins, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, coins)

	history := engine.History(1)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].Bets)

	view, err := engine.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, view.Bet)
}

func TestCrashStopsAtCrashPoint(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultGameConfig().Crash
	cfg.MinStep = 0.7
	cfg.MaxStep = 0.9
	engine := services.NewCrashEngine(newTestStore(t), cfg, &fixedRand{float: 0.5}, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := engine.StartRound()
		require.NoError(t, err)
		for !engine.Tick(ctx) {
		}

		latest := engine.History(1)[0]
		assert.Equal(t, latest.CrashPoint, latest.FinalMultiplier)
		assert.Equal(t, latest.CrashPoint, engine.Snapshot().Multiplier)
	}
}

func TestCrashHistoryAndVerify(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultGameConfig().Crash
	cfg.HistorySize = 2
	rec := newRecordingBroadcaster()
	engine := newCrashEngine(t, newTestStore(t), cfg, services.WithBroadcaster(rec))

	var ids []string
	for i := 0; i < 3; i++ {
		status, err := engine.StartRound()
		require.NoError(t, err)
		ids = append(ids, status.RoundID)
		if i == 2 {
			_, err = engine.PlaceBet(ctx, "u1", 10, 0)
			require.NoError(t, err)
		}
		for !engine.Tick(ctx) {
		}
	}

	history := engine.History(10)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].RoundID)
	assert.Equal(t, ids[1], history[1].RoundID)
	require.Len(t, history[0].Bets, 1)
	assert.Equal(t, "u1", history[0].Bets[0].UserID)

	assert.Len(t, engine.History(1), 1)

	latest := history[0]
	assert.LessOrEqual(t, latest.CrashPoint, cfg.Ceiling)
	assert.Equal(t, latest.CrashPoint, latest.FinalMultiplier)

	crashPoint, hash := engine.Verify(latest.ServerSeed, latest.RoundID)
	assert.Equal(t, latest.CrashPoint, crashPoint)
	assert.Equal(t, latest.ServerSeedHash, hash)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.starts, 3)
	assert.Len(t, rec.crashes, 3)
	assert.Equal(t, latest.ServerSeedHash, rec.starts[2].ServerSeedHash)
}

func TestCrashRunRestartsAfterIntermission(t *testing.T) {
	cfg := flatCrashConfig(1.25)
	rec := newRecordingBroadcaster()

	ticks := make(chan time.Time)
	restart := make(chan time.Time)
	var afterCalls []time.Duration
	var afterMu sync.Mutex

	after := func(d time.Duration) <-chan time.Time {
		afterMu.Lock()
		defer afterMu.Unlock()
		afterCalls = append(afterCalls, d)
		if len(afterCalls) == 1 {
			fired := make(chan time.Time, 1)
			fired <- time.Now()
			return fired
		}
		return restart
	}
	newTicker := func(time.Duration) (<-chan time.Time, func()) {
		return ticks, func() {}
	}

	engine := newCrashEngine(t, newTestStore(t), cfg,
		services.WithBroadcaster(rec),
		services.WithTimers(after, newTicker))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	playRound := func() {
		select {
		case <-rec.started:
		case <-time.After(time.Second):
			t.Fatal("round did not start")
		}
		for {
			select {
			case ticks <- time.Now():
			case <-rec.crashed:
				return
			case <-time.After(time.Second):
				t.Fatal("round did not crash")
			}
		}
	}

	playRound()
	assert.True(t, engine.Snapshot().Crashed)

	restart <- time.Now()
	playRound()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}

	afterMu.Lock()
	defer afterMu.Unlock()
	require.GreaterOrEqual(t, len(afterCalls), 2)
	assert.Equal(t, cfg.StartDelay, afterCalls[0])
	assert.Equal(t, cfg.Intermission, afterCalls[1])

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.starts, 2)
	assert.Len(t, rec.crashes, 2)
}
