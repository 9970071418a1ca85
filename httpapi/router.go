// Package httpapi exposes the auth engine over HTTP. Handlers only
// translate between the wire and Engine calls; every decision, including
// token decoding, lives in the engine so the typing invariant cannot be
// bypassed at the transport layer.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/nexhub/nexauth"
)

// Config carries transport-level settings.
type Config struct {
	ProductionMode bool
	CookieDomain   string
}

// NewRouter builds the gin engine with the auth routes mounted.
func NewRouter(engine *nexauth.Engine, cfg Config) *gin.Engine {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	h := &handler{engine: engine, cfg: cfg}

	auth := router.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.GET("/verify-email/:token", h.verifyEmail)
		auth.PATCH("/to-reset-password", h.requestPasswordReset)
		auth.PATCH("/reset-password", h.resetPassword)
		auth.POST("/refresh", h.refresh)

		twofa := auth.Group("/2fa")
		{
			twofa.POST("/setup", h.setup2FA)
			twofa.POST("/verify", h.verify2FA)
			twofa.PATCH("/initiate", h.initiate2FA)
			twofa.PATCH("/deinit", h.deinit2FA)
		}
	}

	router.GET("/healthz", h.health)
	router.GET("/metrics", h.metrics)

	return router
}
