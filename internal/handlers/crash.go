package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minigames-backend/internal/models"
	"minigames-backend/internal/services"
)

type CrashHandler struct {
	engine *services.CrashEngine
	log    *zap.Logger
}

func NewCrashHandler(engine *services.CrashEngine, log *zap.Logger) *CrashHandler {
	return &CrashHandler{
		engine: engine,
		log:    log,
	}
}

// GetMultiplier is the polling endpoint for the shared round.
func (h *CrashHandler) GetMultiplier(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		fail(c, http.StatusBadRequest, "User ID required")
		return
	}

	view, err := h.engine.Status(c.Request.Context(), userID)
	if err != nil {
		failWith(c, h.log, err, "Failed to fetch user data")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"multiplier":     view.Multiplier,
		"crashed":        view.Crashed,
		"gameActive":     view.Active,
		"coins":          view.Coins,
		"roundId":        view.RoundID,
		"serverSeedHash": view.ServerSeedHash,
		"bet":            view.Bet,
	})
}

func (h *CrashHandler) PlaceBet(c *gin.Context) {
	var req models.CrashBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid input")
		return
	}

	res, err := h.engine.PlaceBet(c.Request.Context(), req.UserID, req.BetAmount, req.AutoCashOut)
	if err != nil {
		failWith(c, h.log, err, "Error processing your bet")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Bet placed successfully.",
		"betId":      res.Bet.ID,
		"newBalance": res.NewBalance,
	})
}

func (h *CrashHandler) CashOut(c *gin.Context) {
	var req models.UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "User ID is required.")
		return
	}

	res, err := h.engine.CashOut(c.Request.Context(), req.UserID)
	if err != nil {
		failWith(c, h.log, err, "Error cashing out")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"multiplier": res.Multiplier,
		"winnings":   res.Winnings,
		"newBalance": res.NewBalance,
	})
}

func (h *CrashHandler) GetHistory(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "10")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 10
	}

	rounds := h.engine.History(limit)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rounds":  rounds,
		"count":   len(rounds),
	})
}

func (h *CrashHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid input")
		return
	}

	crashPoint, hash := h.engine.Verify(req.ServerSeed, req.RoundID)

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"roundId":        req.RoundID,
		"crashPoint":     crashPoint,
		"serverSeedHash": hash,
	})
}
