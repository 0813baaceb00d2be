package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// SettlementHandler serves settlement reporting for staff
type SettlementHandler struct {
	bookings *services.BookingService
	logger   *logrus.Logger
	now      func() time.Time
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(bookings *services.BookingService, logger *logrus.Logger) *SettlementHandler {
	return &SettlementHandler{
		bookings: bookings,
		logger:   logger,
		now:      time.Now,
	}
}

// GetSummary aggregates settled transactions for ?from=&to= (inclusive,
// YYYY-MM-DD). Both default to today.
func (h *SettlementHandler) GetSummary(c *gin.Context) {
	today := models.TourDate(h.now())

	from, ok := dateQuery(c, "from", today)
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to", today)
	if !ok {
		return
	}

	summary, err := h.bookings.SettlementSummary(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func dateQuery(c *gin.Context, name string, def time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	d, err := models.ParseTourDate(raw)
	if err != nil {
		badRequest(c, name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}
