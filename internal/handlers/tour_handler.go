package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// TourHandler serves read-only tour and availability endpoints
type TourHandler struct {
	tours    services.TourRepository
	bookings *services.BookingService
	logger   *logrus.Logger
}

// NewTourHandler creates a new TourHandler
func NewTourHandler(tours services.TourRepository, bookings *services.BookingService, logger *logrus.Logger) *TourHandler {
	return &TourHandler{
		tours:    tours,
		bookings: bookings,
		logger:   logger,
	}
}

// GetTour returns a tour
func (h *TourHandler) GetTour(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid tour id")
		return
	}

	tour, err := h.tours.GetTour(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tour)
}

// GetAvailability returns capacity, committed and remaining seats for ?date=YYYY-MM-DD
// @Summary Seat availability
// @Tags Tours
// @Produce json
// @Param id path string true "Tour ID"
// @Param date query string true "Tour date (YYYY-MM-DD)"
// @Success 200 {object} models.Availability
// @Router /tours/{id}/availability [get]
func (h *TourHandler) GetAvailability(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid tour id")
		return
	}
	date, err := models.ParseTourDate(c.Query("date"))
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}

	availability, err := h.bookings.Availability(c.Request.Context(), id, date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}
