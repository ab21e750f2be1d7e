package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinesRound is one player's game on the mines grid. Mines are hidden from clients until
// the round ends on a mine.
type MinesRound struct {
	ID         string
	UserID     string
	BetAmount  decimal.Decimal
	Mines      map[int]struct{}
	Revealed   []int
	Multiplier decimal.Decimal
	NumMines   int
	GridSize   int
	StartedAt  time.Time

	revealed map[int]struct{}
}

func NewMinesRound(id, userID string, bet decimal.Decimal, mines []int, gridSize int) *MinesRound {
	set := make(map[int]struct{}, len(mines))
	for _, m := range mines {
		set[m] = struct{}{}
	}

	return &MinesRound{
		ID:         id,
		UserID:     userID,
		BetAmount:  bet,
		Mines:      set,
		Revealed:   []int{},
		Multiplier: decimal.NewFromInt(1),
		NumMines:   len(mines),
		GridSize:   gridSize,
		StartedAt:  time.Now(),
		revealed:   make(map[int]struct{}),
	}
}

func (r *MinesRound) IsMine(cell int) bool {
	_, ok := r.Mines[cell]
	return ok
}

func (r *MinesRound) IsRevealed(cell int) bool {
	_, ok := r.revealed[cell]
	return ok
}

// MarkSafe records a safe reveal and bumps the multiplier by step.
func (r *MinesRound) MarkSafe(cell int, step decimal.Decimal) {
	r.revealed[cell] = struct{}{}
	r.Revealed = append(r.Revealed, cell)
	r.Multiplier = r.Multiplier.Add(step)
}

func (r *MinesRound) SafeCells() int {
	return r.GridSize - r.NumMines
}

func (r *MinesRound) Cleared() bool {
	return len(r.Revealed) == r.SafeCells()
}

func (r *MinesRound) Payout() decimal.Decimal {
	return CalculatePayout(r.BetAmount, r.Multiplier)
}

// MinePositions returns the mine cells in ascending order.
func (r *MinesRound) MinePositions() []int {
	positions := make([]int, 0, len(r.Mines))
	for cell := 0; cell < r.GridSize; cell++ {
		if r.IsMine(cell) {
			positions = append(positions, cell)
		}
	}
	return positions
}

func (r *MinesRound) View() MinesView {
	return MinesView{
		ID:         r.ID,
		BetAmount:  r.BetAmount.InexactFloat64(),
		Revealed:   append([]int(nil), r.Revealed...),
		Multiplier: r.Multiplier.InexactFloat64(),
		NumMines:   r.NumMines,
		GridSize:   r.GridSize,
		StartedAt:  r.StartedAt,
	}
}

// MinesView is the client-safe projection of a running round.
type MinesView struct {
	ID         string    `json:"id"`
	BetAmount  float64   `json:"betAmount"`
	Revealed   []int     `json:"revealed"`
	Multiplier float64   `json:"multiplier"`
	NumMines   int       `json:"numMines"`
	GridSize   int       `json:"gridSize"`
	StartedAt  time.Time `json:"startedAt"`
}

type CrashBet struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	BetAmount         float64   `json:"betAmount"`
	AutoCashOut       float64   `json:"autoCashOut,omitempty"`
	CashedOut         bool      `json:"cashedOut"`
	CashOutMultiplier float64   `json:"cashOutMultiplier,omitempty"`
	Payout            float64   `json:"payout,omitempty"`
	PlacedAt          time.Time `json:"placedAt"`
}

// CrashStatus is a point-in-time copy of the shared crash round.
type CrashStatus struct {
	RoundID        string    `json:"roundId"`
	Multiplier     float64   `json:"multiplier"`
	Active         bool      `json:"gameActive"`
	Crashed        bool      `json:"crashed"`
	ServerSeedHash string    `json:"serverSeedHash"`
	StartedAt      time.Time `json:"startedAt"`
	Bets           int       `json:"bets"`
}

type CrashRoundResult struct {
	RoundID         string     `json:"roundId"`
	CrashPoint      float64    `json:"crashPoint"`
	FinalMultiplier float64    `json:"finalMultiplier"`
	ServerSeed      string     `json:"serverSeed"`
	ServerSeedHash  string     `json:"serverSeedHash"`
	Bets            []CrashBet `json:"bets"`
	CrashedAt       time.Time  `json:"crashedAt"`
}
