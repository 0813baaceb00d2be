package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guidedtours/reservation-backend/internal/services"
)

// Pinger is satisfied by both the Postgres pool and the in-memory store
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SystemHandler serves health and sweep administration endpoints
type SystemHandler struct {
	db          Pinger
	cron        *services.CronService
	paymentMode string
	version     string
}

// NewSystemHandler creates a new SystemHandler. cron may be nil.
func NewSystemHandler(db Pinger, cron *services.CronService, paymentMode, version string) *SystemHandler {
	return &SystemHandler{
		db:          db,
		cron:        cron,
		paymentMode: paymentMode,
		version:     version,
	}
}

// Health reports service and database health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"database":     "healthy",
		"payment_mode": h.paymentMode,
		"version":      h.version,
		"timestamp":    time.Now().Unix(),
	})
}

// SweepStatus returns the hold expiry job schedule and counters
func (h *SystemHandler) SweepStatus(c *gin.Context) {
	if h.cron == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweep_disabled"})
		return
	}
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}

// RunSweep runs the hold expiry sweep immediately
func (h *SystemHandler) RunSweep(c *gin.Context) {
	if h.cron == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweep_disabled"})
		return
	}
	h.cron.RunExpireHoldsNow()
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}
