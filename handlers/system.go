package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/vpaste/config"
	"github.com/johnwmail/vpaste/internal/services"
	"github.com/johnwmail/vpaste/utils"
)

// apiVersion is reported by the health endpoint
const apiVersion = "1.0"

// SystemHandler handles system endpoints
type SystemHandler struct {
	service *services.PasteService
	config  *config.Config
	started time.Time
	now     func() time.Time
}

// NewSystemHandler creates a new system handler. Uptime is measured from
// the moment it is constructed.
func NewSystemHandler(service *services.PasteService, cfg *config.Config) *SystemHandler {
	return &SystemHandler{
		service: service,
		config:  cfg,
		started: time.Now(),
		now:     time.Now,
	}
}

// Health handles health check via GET /api/healthz
func (h *SystemHandler) Health(c *gin.Context) {
	timeout := h.config.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	storeStatus := "ok"
	if err := h.service.Ping(ctx); err != nil {
		storeStatus = "error"
	}

	now := h.now()
	uptime := now.Sub(h.started)
	status := http.StatusOK
	if storeStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(status, gin.H{
		"ok":             storeStatus == "ok",
		"api_version":    apiVersion,
		"version":        h.config.Version,
		"store":          storeStatus,
		"store_type":     h.config.StoreType,
		"datetime":       utils.FormatISO(now),
		"uptime_seconds": int64(uptime / time.Second),
		"uptime_ms":      uptime.Milliseconds(),
		"uptime_human":   utils.HumanizeDuration(uptime),
	})
}
