package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minigames-backend/internal/models"
	"minigames-backend/internal/services"
)

type MinesHandler struct {
	engine *services.MinesEngine
	log    *zap.Logger
}

func NewMinesHandler(engine *services.MinesEngine, log *zap.Logger) *MinesHandler {
	return &MinesHandler{
		engine: engine,
		log:    log,
	}
}

func (h *MinesHandler) StartGame(c *gin.Context) {
	var req models.StartMinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid input parameters.")
		return
	}

	res, err := h.engine.StartGame(c.Request.Context(), req.UserID, req.BetAmount, req.NumMines)
	if err != nil {
		failWith(c, h.log, err, "Error starting the game")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"roundId":    res.RoundID,
		"newBalance": res.NewBalance,
		"gridSize":   res.GridSize,
		"multiplier": res.Multiplier,
	})
}

func (h *MinesHandler) Reveal(c *gin.Context) {
	var req models.RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid input parameters.")
		return
	}

	res, err := h.engine.Reveal(c.Request.Context(), req.UserID, *req.BoxIndex)
	if err != nil {
		failWith(c, h.log, err, "Error revealing the box")
		return
	}

	if res.MineHit {
		c.JSON(http.StatusOK, gin.H{
			"success":   false,
			"message":   "You hit a mine!",
			"revealed":  res.Revealed,
			"mineHit":   true,
			"mineIndex": res.MineIndex,
			"mines":     res.Mines,
		})
		return
	}

	if res.AutoCashOut {
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"autoCashOut": true,
			"newBalance":  res.NewBalance,
			"winnings":    res.Winnings,
			"multiplier":  res.Multiplier,
			"revealed":    res.Revealed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"multiplier": res.Multiplier,
		"revealed":   res.Revealed,
	})
}

func (h *MinesHandler) CashOut(c *gin.Context) {
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
		"newBalance": res.NewBalance,
		"winnings":   res.Winnings,
		"multiplier": res.Multiplier,
	})
}

// ActiveGame lets a client resume a round after a reload. Mine positions stay hidden.
func (h *MinesHandler) ActiveGame(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		fail(c, http.StatusBadRequest, "User ID is required.")
		return
	}

	view, ok := h.engine.ActiveRound(userID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"game":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    view,
	})
}
