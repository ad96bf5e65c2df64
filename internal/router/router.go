package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/proctorix/examgate/internal/config"
	"github.com/proctorix/examgate/internal/guard"
	"github.com/proctorix/examgate/internal/handler"
	"github.com/proctorix/examgate/internal/middleware"
	"github.com/proctorix/examgate/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Attempt *handler.AttemptHandler
	Proctor *handler.ProctorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(g *guard.Guard, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the login path (30 requests per minute per IP).
	loginLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Session Group ──────────────────────────────────────────────
	session := router.Group("/api/v1/session")
	{
		session.POST("/login", loginLimiter.Middleware(), handlers.Session.Login)

		session.POST("/logout", middleware.RequireSession(g), handlers.Session.Logout)
		session.GET("/me", middleware.RequireSession(g), handlers.Session.Me)
		session.POST("/verify-face", middleware.RequireSession(g), handlers.Session.VerifyFace)
	}

	// ─── 2. Attempt Group (Verified Session) ───────────────────────────
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(middleware.RequireVerifiedSession(g))
	{
		attempts.GET("", handlers.Attempt.List)
		attempts.POST("/:assignment_id/start", handlers.Attempt.Start)
		attempts.GET("/:assignment_id/state", handlers.Attempt.State)
		attempts.POST("/:assignment_id/verify-face", handlers.Attempt.VerifyFace)
		attempts.POST("/:assignment_id/fullscreen", handlers.Attempt.Fullscreen)
		attempts.POST("/:assignment_id/answer", handlers.Attempt.SaveAnswer)
		attempts.POST("/:assignment_id/navigate", handlers.Attempt.Navigate)
		attempts.POST("/:assignment_id/finish", handlers.Attempt.Finish)
	}

	// ─── 3. WebSocket Group (Verified Session) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireVerifiedSession(g))
	{
		ws.GET("/attempts/:assignment_id/proctor", handlers.Proctor.Stream)
	}

	return router
}
