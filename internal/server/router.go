package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"agent-lounge/internal/auth"
	"agent-lounge/internal/handler"
	"agent-lounge/internal/lounge"
	"agent-lounge/internal/middleware"
)

type Deps struct {
	Lounge            *lounge.Lounge
	TokenConfig       auth.TokenConfig
	AdminPasswordHash string
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	loungeHandler := &handler.LoungeHandler{Lounge: deps.Lounge}

	// Registration is the only unauthenticated write; keep it rate limited.
	registerLimiter := middleware.NewRateLimiter(10, time.Minute)
	r.POST("/v1/agents", middleware.RateLimitMiddleware(registerLimiter), loungeHandler.Register)

	r.GET("/v1/agents", loungeHandler.ListAgents)
	r.GET("/v1/rooms", loungeHandler.ListRooms)
	r.GET("/v1/rooms/:room/messages", loungeHandler.Messages)
	r.GET("/v1/messages/search", loungeHandler.SearchMessages)
	r.GET("/v1/vote", loungeHandler.CurrentVote)

	agentOnly := r.Group("/v1")
	agentOnly.Use(middleware.RequireAgent(deps.Lounge))
	agentOnly.POST("/challenge", loungeHandler.IssueChallenge)
	agentOnly.POST("/challenge/submit", loungeHandler.SubmitChallenge)
	agentOnly.GET("/me", loungeHandler.Me)
	agentOnly.GET("/me/submissions", loungeHandler.MySubmissions)
	agentOnly.PATCH("/me", loungeHandler.UpdateProfile)

	adminHandler := &handler.AdminHandler{
		Lounge:       deps.Lounge,
		TokenConfig:  deps.TokenConfig,
		PasswordHash: deps.AdminPasswordHash,
	}
	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	r.POST("/v1/admin/login", middleware.RateLimitMiddleware(loginLimiter), adminHandler.Login)

	admin := r.Group("/v1/admin")
	admin.Use(middleware.RequireAdmin(deps.TokenConfig))
	admin.GET("/agents", adminHandler.ListAgents)
	admin.DELETE("/agents/:id", adminHandler.DeleteAgent)
	admin.POST("/rooms", adminHandler.CreateRoom)
	admin.PUT("/rooms/:room", adminHandler.UpdateRoom)
	admin.DELETE("/rooms/:room", adminHandler.DeleteRoom)

	wsHandler := &handler.WebSocketHandler{Lounge: deps.Lounge}
	r.GET("/ws", wsHandler.Serve)

	return r
}
