package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// PaymentHandler receives payment provider callbacks
type PaymentHandler struct {
	bookings *services.BookingService
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(bookings *services.BookingService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// PaymentWebhook handles payment gateway webhook callbacks. The payload is
// never trusted: the booking is confirmed only after the gateway verifies
// the session. Every well-formed callback is acknowledged with 200 so the
// provider stops retrying; failures are logged and audited instead.
// @Summary Payment webhook callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body models.PaymentWebhookPayload true "Webhook payload from gateway"
// @Success 200 {object} map[string]interface{} "Webhook processed"
// @Failure 400 {object} map[string]interface{} "Invalid webhook"
// @Router /payments/webhook [post]
func (h *PaymentHandler) PaymentWebhook(c *gin.Context) {
	var payload models.PaymentWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.WithError(err).Warn("Failed to parse webhook payload")
		badRequest(c, "invalid webhook payload")
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"uid":            payload.UID,
		"invoice_id":     payload.InvoiceID,
		"payment_status": payload.PaymentStatus,
		"transaction_id": payload.TransactionID,
	})
	log.Info("Payment webhook received")

	booking, err := h.bookings.ConfirmFromWebhook(c.Request.Context(), &payload)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"message":    "webhook acknowledged",
			"booking_id": booking.ID,
			"status":     booking.Status,
		})
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, models.ErrBookingNotFound):
		log.WithError(err).Warn("Webhook does not match a booking")
		c.JSON(http.StatusOK, gin.H{"message": "webhook acknowledged", "note": "booking not found"})
	case errors.Is(err, models.ErrPaymentVerificationFailed),
		errors.Is(err, models.ErrHoldExpired),
		errors.Is(err, models.ErrInvalidTransition):
		log.WithError(err).Info("Webhook did not confirm booking")
		c.JSON(http.StatusOK, gin.H{"message": "webhook acknowledged", "note": err.Error()})
	default:
		// let the provider retry
		respondError(c, h.logger, err)
	}
}
