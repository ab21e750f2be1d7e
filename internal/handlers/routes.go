package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"minigames-backend/internal/middleware"
	"minigames-backend/internal/services"
)

type GameRouterDeps struct {
	Ledger      services.Ledger
	Mines       *services.MinesEngine
	Crash       *services.CrashEngine
	Hub         *WebSocketHub
	CORSOrigins []string
	Log         *zap.Logger
}

func newEngine(log *zap.Logger, origins []string) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(origins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	return router
}

// NewGameRouter wires the mines and crash endpoints of the game server.
func NewGameRouter(deps GameRouterDeps) *gin.Engine {
	router := newEngine(deps.Log, deps.CORSOrigins)

	userHandler := NewUserHandler(deps.Ledger, deps.Log)
	minesHandler := NewMinesHandler(deps.Mines, deps.Log)
	crashHandler := NewCrashHandler(deps.Crash, deps.Log)

	api := router.Group("/api")
	{
		api.GET("/user", userHandler.GetUser)

		api.POST("/startGame", minesHandler.StartGame)
		api.POST("/reveal", minesHandler.Reveal)
		api.POST("/cashOut", minesHandler.CashOut)
		api.GET("/activeGame", minesHandler.ActiveGame)

		api.GET("/multiplier", crashHandler.GetMultiplier)
		api.POST("/placeBet", crashHandler.PlaceBet)

		crash := api.Group("/crash")
		{
			crash.POST("/cashOut", crashHandler.CashOut)
			crash.GET("/history", crashHandler.GetHistory)
			crash.POST("/verify", crashHandler.Verify)
			if deps.Hub != nil {
				crash.GET("/ws", deps.Hub.HandleWebSocket)
			}
		}
	}

	return router
}

// NewUserServiceRouter wires the user-management service.
func NewUserServiceRouter(ledger services.Ledger, log *zap.Logger, origins []string) *gin.Engine {
	router := newEngine(log, origins)

	ledgerHandler := NewLedgerHandler(ledger, log)

	api := router.Group("/api")
	{
		api.GET("/userData", ledgerHandler.GetUserData)
		api.POST("/updateUserCoins", ledgerHandler.UpdateUserCoins)
		api.POST("/debitUserCoins", ledgerHandler.DebitUserCoins)
	}

	return router
}
