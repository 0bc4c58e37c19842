package handlers

import (
	"github.com/gin-gonic/gin"

	"promptpot-backend/internal/middleware"
	"promptpot-backend/internal/services"
)

type RouterConfig struct {
	Game      *GameHandler
	User      *UserHandler
	WebSocket *WebSocketHandler
	JWT       *services.JWTService
	// Limiter is optional; without it nothing is rate limited.
	Limiter middleware.RateLimiter
	// Faucet mounts POST /admin/deposits.
	Faucet bool
}

func NewRouter(rc RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	public := router.Group("/api/game")
	{
		public.GET("", rc.Game.GetGame)
		public.GET("/config", rc.Game.GetConfig)
		public.GET("/quote", rc.Game.GetQuote)
		public.GET("/winner", rc.Game.GetWinner)
		public.GET("/events", rc.Game.GetEvents)
		public.GET("/attempts/:request_id", rc.Game.GetAttempt)
	}

	auth := middleware.AuthMiddleware(rc.JWT)

	protected := router.Group("/api")
	protected.Use(auth)
	{
		protected.GET("/me", rc.User.GetCurrentUser)
		if rc.WebSocket != nil {
			protected.GET("/ws", rc.WebSocket.HandleWebSocket)
		}

		player := protected.Group("")
		player.Use(middleware.RequireRole(services.RolePlayer))
		if rc.Limiter != nil {
			player.Use(middleware.RateLimitMiddleware(rc.Limiter))
		}
		{
			player.POST("/attempts", rc.Game.SubmitAttempt)
			player.GET("/attempts", rc.Game.GetAttempts)
			player.POST("/refund", rc.Game.ClaimRefund)
			player.GET("/balance", rc.Game.GetBalance)
		}
	}

	oracle := router.Group("/oracle")
	oracle.Use(auth, middleware.RequireRole(services.RoleOracle))
	{
		oracle.POST("/callback", rc.Game.OracleCallback)
	}

	admin := router.Group("/admin")
	admin.Use(auth, middleware.RequireRole(services.RoleAdmin))
	{
		admin.PUT("/developer-wallet", rc.Game.SetDeveloperWallet)
		admin.PUT("/min-slippage", rc.Game.SetMinSlippage)
		admin.PUT("/models/:model/gas-budget", rc.Game.SetGasBudget)
		admin.PUT("/config", rc.Game.UpdateConfig)
		if rc.Faucet {
			admin.POST("/deposits", rc.Game.Deposit)
		}
	}

	return router
}
