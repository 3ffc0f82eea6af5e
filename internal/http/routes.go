package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/krishi/internal/ws"
)

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(router *gin.Engine, env *Env, limiter *IPRateLimiter, corsOrigin string) {
	// --- Middleware ---
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(env.Log))
	router.Use(gin.Recovery())
	router.Use(env.Metrics.Middleware())
	router.Use(SecurityHeadersMiddleware())

	if corsOrigin == "" {
		corsOrigin = "*" // Default to allow all for local dev
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Token", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: corsOrigin != "*",
	}))

	requireUser := AuthMiddleware(env.AuthConfig)
	requireAdmin := AdminAuthMiddleware(env.AdminToken, env.AuthConfig)
	throttle := RateLimitMiddleware(limiter)

	// --- API Routes ---
	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", env.Register)
		authGroup.POST("/login", env.Login)

		users := api.Group("/users", requireUser)
		users.GET("/me", env.GetProfile)
		users.PUT("/me", env.UpdateProfile)

		admin := api.Group("/admin")
		admin.POST("/login", env.AdminLogin)
		admin.POST("/approve-expert/:userId", requireAdmin, env.ApproveExpert)

		api.GET("/questions", env.GetQuestions)
		api.POST("/questions", requireUser, throttle, env.AskQuestion)

		api.POST("/answers", requireUser, throttle, env.PostAnswer)
		api.GET("/answers/:questionId", env.GetAnswers)
		api.POST("/answers/:answerId/vote", requireUser, env.VoteAnswer)
	}

	// --- WebSocket Route ---
	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(env.Hub, c.Writer, c.Request)
	})

	router.GET("/metrics", gin.WrapH(env.Metrics.Handler()))
	router.GET("/health", env.Health)
}
