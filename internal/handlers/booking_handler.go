package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles the customer booking flow: hold, confirm, extend, cancel
type BookingHandler struct {
	bookings *services.BookingService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings *services.BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// ============================================================================
// CREATE HOLD - POST /api/v1/holds
// ============================================================================

// CreateHold places a seat hold and opens a reserved booking with a checkout session
// @Summary Hold seats
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.StartBookingRequest true "Party and tour date"
// @Success 201 {object} models.StartBookingResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 404 {object} map[string]interface{} "Tour not found"
// @Failure 409 {object} map[string]interface{} "Capacity exceeded"
// @Router /holds [post]
func (h *BookingHandler) CreateHold(c *gin.Context) {
	var req models.StartBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.bookings.StartBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ============================================================================
// GET BOOKING - GET /api/v1/bookings/:id
// ============================================================================

// GetBooking returns a booking. A reservation whose hold lapsed reads as expired.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// EXTEND HOLD - POST /api/v1/bookings/:id/extend
// ============================================================================

// ExtendHold pushes the hold expiry out by one TTL
// @Summary Extend hold
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 410 {object} map[string]interface{} "Hold expired"
// @Router /bookings/{id}/extend [post]
func (h *BookingHandler) ExtendHold(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.ExtendHold(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// CONFIRM - POST /api/v1/bookings/:id/confirm
// ============================================================================

// ConfirmBooking verifies payment and confirms the booking. Safe to repeat.
// @Summary Confirm booking after payment
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.ConfirmBookingRequest true "Checkout session"
// @Success 200 {object} models.Booking
// @Failure 402 {object} map[string]interface{} "Payment not verified"
// @Failure 410 {object} map[string]interface{} "Hold expired"
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req models.ConfirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	booking, err := h.bookings.ConfirmPayment(c.Request.Context(), id, req.PaymentSessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// CANCEL - POST /api/v1/bookings/:id/cancel
// ============================================================================

// CancelBooking cancels a pending, reserved or confirmed booking. The body is optional.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// bookingID parses the :id path parameter, writing a 400 when it is not a UUID
func bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid booking id")
		return uuid.Nil, false
	}
	return id, true
}
