package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// errorStatus maps domain errors to an HTTP status and a stable error code
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{models.ErrHoldExpired, http.StatusGone, "hold_expired"},
	{models.ErrHoldNotFound, http.StatusNotFound, "hold_not_found"},
	{models.ErrPaymentVerificationFailed, http.StatusPaymentRequired, "payment_verification_failed"},
	{models.ErrInvalidCode, http.StatusNotFound, "invalid_code"},
	{models.ErrAlreadyRedeemed, http.StatusConflict, "already_redeemed"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{models.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
	{models.ErrTourNotFound, http.StatusNotFound, "tour_not_found"},
	{models.ErrTourInactive, http.StatusConflict, "tour_inactive"},
	{models.ErrInvalidSeats, http.StatusBadRequest, "invalid_seats"},
	{models.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
}

// respondError writes the mapped error. Unmapped errors are 500s and are
// logged; their text is not sent to the client.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": m.code, "message": err.Error()})
			return
		}
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "An internal error occurred",
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": message})
}
