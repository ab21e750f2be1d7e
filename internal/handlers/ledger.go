package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minigames-backend/internal/models"
	"minigames-backend/internal/services"
)

// LedgerHandler serves the user-management API the game server's HTTP ledger talks to.
type LedgerHandler struct {
	ledger services.Ledger
	log    *zap.Logger
}

func NewLedgerHandler(ledger services.Ledger, log *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		log:    log,
	}
}

func (h *LedgerHandler) GetUserData(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		fail(c, http.StatusBadRequest, "User ID required")
		return
	}

	coins, found, err := h.ledger.Lookup(c.Request.Context(), userID)
	if err != nil {
		failWith(c, h.log, err, "Failed to fetch user data")
		return
	}
	if !found {
		fail(c, http.StatusNotFound, "User not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"coins": coins})
}

// UpdateUserCoins applies a signed delta, creating the account with the default balance
// when it does not exist yet.
func (h *LedgerHandler) UpdateUserCoins(c *gin.Context) {
	var req models.UpdateCoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid input")
		return
	}

	coins, err := h.ledger.Credit(c.Request.Context(), req.UserID, *req.Coins)
	if err != nil {
		failWith(c, h.log, err, "Failed to update user coins")
		return
	}

	h.log.Debug("coins updated",
		zap.String("user_id", req.UserID),
		zap.Float64("delta", *req.Coins),
		zap.Float64("coins", coins))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"coins":   coins,
	})
}

// DebitUserCoins takes amount only when the balance covers it. An overdraw is rejected
// with 409 and the current balance.
func (h *LedgerHandler) DebitUserCoins(c *gin.Context) {
	var req models.DebitCoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		fail(c, http.StatusBadRequest, "Invalid input")
		return
	}

	coins, err := h.ledger.Debit(c.Request.Context(), req.UserID, req.Amount)
	if errors.Is(err, services.ErrInsufficientFunds) {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "Not enough coins.",
			"coins":   coins,
		})
		return
	}
	if err != nil {
		failWith(c, h.log, err, "Failed to update user coins")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"coins":   coins,
	})
}
