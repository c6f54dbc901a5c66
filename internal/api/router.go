package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"push-dispatch-backend/config"
	"push-dispatch-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	r := gin.New()
	r.Use(mw.Logger(logrus.StandardLogger()), gin.Recovery())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, cfg.Server.RequestIPHeader)
	subscriber := mw.Subscriber(cfg.Server.SubscriberHeader, cfg.Registry.AllowAnonymous)

	// The VAPID key only changes on restart.
	caching := mw.Cache(cache.New(5*time.Minute, 10*time.Minute), 5*time.Minute)

	r.GET("/healthz", handler.Healthz)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/vapid_public_key", caching, handler.GetVAPIDPublicKey)

		endpoints := api.Group("/endpoints", subscriber)
		endpoints.GET("", handler.ListEndpoints)
		endpoints.PUT("", handler.PutEndpoint)
		endpoints.DELETE("", handler.DeleteEndpoint)

		api.POST("/notifications", mw.AdminAuth(cfg.Server.AdminToken), handler.SendNotification)
	}

	return r
}
