package delivery

import (
	"errors"
	"net/http"
	"time"

	"adrotator/internal/domain"
	"adrotator/internal/infrastructure"
	"adrotator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Engine is the part of the lifecycle controller exposed over HTTP
type Engine interface {
	EngineID() string
	State() domain.EngineState
	PoolSize() int
	Pause()
	Resume()
	Activate(adID string) (domain.Ad, error)
}

// Surface is the read side of the display surface
type Surface interface {
	Current() (infrastructure.Showing, bool)
	History() []infrastructure.Showing
}

// handles HTTP requests
type HTTPHandlers struct {
	engine   Engine
	surface  Surface
	activity domain.ActivityRepository
	logger   *logger.Logger
	now      func() time.Time
}

// creates new HTTP handlers
func NewHTTPHandlers(engine Engine, surface Surface, activity domain.ActivityRepository, logger *logger.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		engine:   engine,
		surface:  surface,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// GetCurrentAd returns the visible ad, or 204 when the surface is hidden
func (h *HTTPHandlers) GetCurrentAd(c *gin.Context) {
	showing, ok := h.surface.Current()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ad":         showing.Ad,
		"shown_at":   showing.ShownAt.UTC().Format(time.RFC3339),
		"request_id": c.GetString("request_id"),
	})
}

// GetHistory returns the most recent showings, oldest first
func (h *HTTPHandlers) GetHistory(c *gin.Context) {
	history := h.surface.History()

	c.JSON(http.StatusOK, gin.H{
		"data":       history,
		"total":      len(history),
		"request_id": c.GetString("request_id"),
	})
}

// ClickAd activates an ad and redirects to its target
func (h *HTTPHandlers) ClickAd(c *gin.Context) {
	requestID := c.GetString("request_id")
	ctx := c.Request.Context()
	adID := c.Param("id")

	ad, err := h.engine.Activate(adID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrAdNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrEngineDestroyed):
			status = http.StatusServiceUnavailable
		}

		h.logger.WithContext(ctx).WithError(err).WithField("ad_id", adID).Warn("Ad activation rejected")
		c.JSON(status, gin.H{
			"error":      "Activation failed",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	if err := h.activity.Record(ctx, ad.ID, domain.ActivityClick, h.now()); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to record ad click")
	}

	c.Redirect(http.StatusFound, ad.RedirectURL)
}

func (h *HTTPHandlers) PauseEngine(c *gin.Context) {
	h.engine.Pause()
	h.logger.WithContext(c.Request.Context()).Info("Engine paused via API")
	h.GetEngine(c)
}

func (h *HTTPHandlers) ResumeEngine(c *gin.Context) {
	h.engine.Resume()
	h.logger.WithContext(c.Request.Context()).Info("Engine resumed via API")
	h.GetEngine(c)
}

// GetEngine reports the engine state
func (h *HTTPHandlers) GetEngine(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine_id":  h.engine.EngineID(),
		"state":      h.engine.State().String(),
		"pool_size":  h.engine.PoolSize(),
		"request_id": c.GetString("request_id"),
	})
}

// GetStats returns per-day show and click tallies
func (h *HTTPHandlers) GetStats(c *gin.Context) {
	requestID := c.GetString("request_id")
	ctx := c.Request.Context()

	from, to, err := h.parseDateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid date format",
			"message":    "Date must be in YYYY-MM-DD format",
			"request_id": requestID,
		})
		return
	}

	data, err := h.activity.GetByDateRange(ctx, from, to)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid parameters",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}
	if data == nil {
		data = []domain.AdActivity{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       data,
		"total":      len(data),
		"from":       from.Format("2006-01-02"),
		"to":         to.Format("2006-01-02"),
		"request_id": requestID,
	})
}

// GetAPIInfo returns API v1 information and available endpoints
func (h *HTTPHandlers) GetAPIInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"api_version": "v1",
		"service":     "Ad Rotator",
		"version":     "1.0.0",
		"description": "Rotates eligible ads from the inventory on a jittered schedule",
		"endpoints": gin.H{
			"ad": gin.H{
				"current": "GET /api/v1/ad",
				"history": "GET /api/v1/ad/history",
				"click":   "GET /api/v1/ads/:id/click",
			},
			"engine": gin.H{
				"state":  "GET /api/v1/engine",
				"pause":  "POST /api/v1/engine/pause",
				"resume": "POST /api/v1/engine/resume",
			},
			"stats": gin.H{
				"path": "GET /api/v1/stats",
				"parameters": gin.H{
					"from": "Optional: Start date (YYYY-MM-DD), default 7 days ago",
					"to":   "Optional: End date (YYYY-MM-DD), default today",
				},
			},
		},
		"request_id": c.GetString("request_id"),
	})
}

// HealthCheck returns the health status of the service
func (h *HTTPHandlers) HealthCheck(c *gin.Context) {
	state := h.engine.State()

	status, code := "healthy", http.StatusOK
	if state == domain.StateDestroyed {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"engine_state": state.String(),
		"timestamp":    h.now().UTC().Format(time.RFC3339),
		"service":      "adrotator",
		"version":      "1.0.0",
		"request_id":   c.GetString("request_id"),
	})
}

func (h *HTTPHandlers) parseDateRange(c *gin.Context) (from, to time.Time, err error) {
	now := h.now()

	to = now
	if toStr := c.Query("to"); toStr != "" {
		to, err = time.ParseInLocation("2006-01-02", toStr, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	from = to.AddDate(0, 0, -6)
	if fromStr := c.Query("from"); fromStr != "" {
		from, err = time.ParseInLocation("2006-01-02", fromStr, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	return from, to, nil
}
