package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minigames-backend/internal/services"
)

var errorMessages = []struct {
	err     error
	status  int
	message string
}{
	{services.ErrInvalidInput, http.StatusBadRequest, "Invalid input parameters."},
	{services.ErrRoundInProgress, http.StatusBadRequest, "Finish your current game before starting a new one."},
	{services.ErrInsufficientFunds, http.StatusBadRequest, "Not enough coins."},
	{services.ErrNoActiveRound, http.StatusBadRequest, "No active game."},
	{services.ErrAlreadyRevealed, http.StatusBadRequest, "Box already revealed."},
	{services.ErrInvalidCell, http.StatusBadRequest, "Invalid box index."},
	{services.ErrBettingClosed, http.StatusBadRequest, "Betting is closed for this round."},
	{services.ErrDuplicateBet, http.StatusBadRequest, "You can only place one bet per round."},
	{services.ErrNoActiveBet, http.StatusBadRequest, "You have no bet in this round."},
	{services.ErrAlreadyCashedOut, http.StatusBadRequest, "You already cashed out this round."},
	{services.ErrUserNotFound, http.StatusNotFound, "User not found"},
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// failWith maps a service error to its status and message. Anything unknown is logged
// and answered with fallback as a 500.
func failWith(c *gin.Context, log *zap.Logger, err error, fallback string) {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.message)
			return
		}
	}

	log.Error(fallback,
		zap.String("path", c.FullPath()),
		zap.Error(err))
	fail(c, http.StatusInternalServerError, fallback)
}
