package models_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"minigames-backend/internal/models"
)

func TestMinesRound(t *testing.T) {
	round := models.NewMinesRound("r1", "42", decimal.NewFromInt(100), []int{3, 1, 7}, 9)

	assert.Equal(t, 3, round.NumMines)
	assert.Equal(t, 6, round.SafeCells())
	assert.Equal(t, []int{1, 3, 7}, round.MinePositions())
	assert.True(t, round.IsMine(7))
	assert.False(t, round.IsMine(0))

	step := decimal.RequireFromString("0.1")
	for _, cell := range []int{0, 2, 4, 5, 6} {
		round.MarkSafe(cell, step)
	}
	assert.False(t, round.Cleared())
	assert.True(t, round.IsRevealed(4))

	round.MarkSafe(8, step)
	assert.True(t, round.Cleared())
	assert.True(t, round.Multiplier.Equal(decimal.RequireFromString("1.6")))
	assert.Equal(t, 160.0, round.Payout().InexactFloat64())

	view := round.View()
	assert.Equal(t, []int{0, 2, 4, 5, 6, 8}, view.Revealed)
	assert.Equal(t, 1.6, view.Multiplier)
}

func TestGenerateRoundID(t *testing.T) {
	id := models.GenerateRoundID(models.GameTypeCrash)

	assert.True(t, strings.HasPrefix(id, "crash_"))
	assert.NotEqual(t, id, models.GenerateRoundID(models.GameTypeCrash))
}
