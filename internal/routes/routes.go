package routes

import (
	"log/slog"

	"chat-hub/internal/auth"
	"chat-hub/internal/config"
	"chat-hub/internal/handlers"
	"chat-hub/internal/metrics"
	"chat-hub/internal/middleware"
	"chat-hub/internal/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the shared services the routes are built from.
type Deps struct {
	Config  config.Config
	DB      *gorm.DB
	Hub     *realtime.Hub
	Tokens  *auth.Tokens
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func SetupRoutes(deps Deps) *gin.Engine {
	// Create a new GIN Router
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())

	// CORS middleware (for frontend integration)
	ginRouter.Use(middleware.CORSMiddleware(deps.Config.AllowedOrigins()))

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Tokens, deps.Logger)
	userHandler := handlers.NewUserHandler(deps.DB, deps.Hub.Presence())
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Config, deps.Metrics, deps.Logger)

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "ok",
			"message":     "Chat hub is running",
			"connections": deps.Hub.ConnectionCount(),
			"online":      deps.Hub.Presence().Len(),
		})
	})

	ginRouter.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	// Public routes (no authentication required)
	api := ginRouter.Group("/api")
	{
		api.POST("/login", authHandler.Login)
	}

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware(deps.Tokens))
	{
		protectedRoutes.GET("/users", userHandler.GetAllUsers)
		protectedRoutes.GET("/users/online", userHandler.GetOnlineUsers)
	}

	// The browser WebSocket API cannot set headers, so the token travels as ?token=.
	ginRouter.GET("/ws", middleware.JWTAuthMiddleware(deps.Tokens), wsHandler.ServeWS)

	return ginRouter
}
