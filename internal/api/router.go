package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter initializes and configures the Gin router.
// limiter may be nil to disable rate limiting.
func SetupRouter(h *Handler, limiter *IPRateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.Logger))

	// CORS middleware configuration
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AddAllowHeaders("Authorization")
	r.Use(cors.New(config))

	limit := func(c *gin.Context) { c.Next() }
	if limiter != nil {
		limit = limiter.Middleware()
	}
	requireAuth := AuthRequired(h.Auth)

	r.GET("/health", h.HealthCheck)
	r.GET("/status", h.Status)

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", limit, h.Register)
		authGroup.POST("/login", limit, h.Login)
		authGroup.POST("/password/reset", limit, h.RequestPasswordReset)
		authGroup.POST("/password/reset/confirm", limit, h.ConfirmPasswordReset)
		authGroup.POST("/logout", requireAuth, h.Logout)
		authGroup.GET("/me", requireAuth, h.Me)
		authGroup.PUT("/password", requireAuth, h.UpdatePassword)
	}

	links := r.Group("/api/links", requireAuth)
	{
		links.POST("", limit, h.CreateLink)
		links.GET("", h.ListLinks)
		links.PATCH("/:id", h.UpdateLink)
		links.DELETE("/:id", h.DeleteLink)
		links.GET("/:id/clicks", h.ListClicks)
	}

	r.GET("/:shortCode", h.Redirect)

	return r
}
