package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minigames-backend/internal/services"
)

const defaultUserID = "1"

type UserHandler struct {
	ledger services.Ledger
	log    *zap.Logger
}

func NewUserHandler(ledger services.Ledger, log *zap.Logger) *UserHandler {
	return &UserHandler{
		ledger: ledger,
		log:    log,
	}
}

// GetUser returns the player's balance, creating the account on first sight.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID := c.DefaultQuery("userId", defaultUserID)

	coins, err := h.ledger.Get(c.Request.Context(), userID)
	if err != nil {
		failWith(c, h.log, err, "Failed to fetch user data")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId": userID,
		"coins":  coins,
	})
}
