package models

type GameType string

const (
	GameTypeCrash GameType = "crash"
	GameTypeMines GameType = "mines"
)

type StartMinesRequest struct {
	UserID    string  `json:"userId" binding:"required"`
	BetAmount float64 `json:"betAmount"`
	NumMines  int     `json:"numMines"`
}

type RevealRequest struct {
	UserID   string `json:"userId" binding:"required"`
	BoxIndex *int   `json:"boxIndex" binding:"required"`
}

type UserRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type CrashBetRequest struct {
	UserID      string  `json:"userId" binding:"required"`
	BetAmount   float64 `json:"betAmount"`
	AutoCashOut float64 `json:"autoCashOut"`
}

type VerifyRequest struct {
	ServerSeed string `json:"serverSeed" binding:"required"`
	RoundID    string `json:"roundId" binding:"required"`
}

type UpdateCoinsRequest struct {
	UserID string   `json:"userId" binding:"required"`
	Coins  *float64 `json:"coins" binding:"required"`
}

type DebitCoinsRequest struct {
	UserID string  `json:"userId" binding:"required"`
	Amount float64 `json:"amount"`
}
