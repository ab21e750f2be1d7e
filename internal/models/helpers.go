package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func GenerateRoundID(game GameType) string {
	return fmt.Sprintf("%s_%s_%s",
		game,
		time.Now().Format("20060102"),
		uuid.New().String())
}

func GenerateBetID() string {
	return "bet_" + uuid.New().String()
}

func CalculatePayout(betAmount, multiplier decimal.Decimal) decimal.Decimal {
	return betAmount.Mul(multiplier)
}

func NewUserAccount(userID string, balance float64) *UserAccount {
	return &UserAccount{
		ID:    userID,
		Coins: balance,
	}
}
