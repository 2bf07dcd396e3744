package routes

import (
	"net/http"
	"time"

	"nomadpi/handlers"
	"nomadpi/middleware"
	"nomadpi/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterDeviceRoutes registers the device provisioning endpoints.
func RegisterDeviceRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/devices")
	{
		// Protected routes (Require Authentication)
		api.Use(middleware.JWTAuthMiddleware(hb.JWTSecret))
		api.GET("", hb.ListDevicesHandler)
		api.POST("", hb.CreateDeviceHandler)
		api.GET("/:id", hb.GetDeviceHandler)
		api.GET("/:id/config", hb.DownloadConfigHandler)
		api.POST("/:id/provision", hb.ReprovisionHandler)
		api.GET("/:id/commands", hb.ListCommandsHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint backed by the
// latest dependency snapshot.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		health := utils.GetHealthStatus()
		status, code := "ok", http.StatusOK
		if !health.CheckedAt.IsZero() && !health.Healthy() {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "dependencies": health})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterDeviceRoutes(r, hb)
	RegisterHealthRoute(r)
}
