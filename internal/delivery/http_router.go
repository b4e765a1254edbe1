package delivery

import (
	"net/http"

	"adrotator/internal/delivery/middleware"
	"adrotator/pkg/logger"
	"adrotator/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type HTTPRouter struct {
	handlers *HTTPHandlers
	logger   *logger.Logger
	metrics  *metrics.Metrics
	gatherer http.Handler
}

// NewHTTPRouter serves /metrics from promHandler
func NewHTTPRouter(handlers *HTTPHandlers, logger *logger.Logger, metrics *metrics.Metrics, promHandler http.Handler) *HTTPRouter {
	return &HTTPRouter{
		handlers: handlers,
		logger:   logger,
		metrics:  metrics,
		gatherer: promHandler,
	}
}

func (r *HTTPRouter) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.Recovery(r.logger))
	router.Use(middleware.Metrics(r.metrics))

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Content-Type", "X-Request-ID"}
	config.ExposeHeaders = []string{"X-Request-ID"}

	router.Use(cors.New(config))

	router.GET("/health", r.handlers.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/", r.handlers.GetAPIInfo)
		v1.GET("", r.handlers.GetAPIInfo)

		v1.GET("/ad", r.handlers.GetCurrentAd)
		v1.GET("/ad/history", r.handlers.GetHistory)
		v1.GET("/ads/:id/click", r.handlers.ClickAd)

		engine := v1.Group("/engine")
		{
			engine.GET("", r.handlers.GetEngine)
			engine.POST("/pause", r.handlers.PauseEngine)
			engine.POST("/resume", r.handlers.ResumeEngine)
		}

		v1.GET("/stats", r.handlers.GetStats)
	}

	router.GET("/metrics", gin.WrapH(r.gatherer))

	return router
}
