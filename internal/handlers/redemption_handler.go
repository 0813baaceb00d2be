package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/guidedtours/reservation-backend/internal/middleware"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/guidedtours/reservation-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// RedemptionHandler serves the staff gate scanner
type RedemptionHandler struct {
	bookings *services.BookingService
	logger   *logrus.Logger
}

// NewRedemptionHandler creates a new RedemptionHandler
func NewRedemptionHandler(bookings *services.BookingService, logger *logrus.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// Redeem consumes a ticket by code or QR payload. Requires a staff token.
// @Summary Redeem ticket
// @Tags Redemptions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.RedeemTicketRequest true "Code or QR payload"
// @Success 201 {object} models.TicketRedemption
// @Failure 404 {object} map[string]interface{} "Invalid code"
// @Failure 409 {object} map[string]interface{} "Already redeemed"
// @Failure 429 {object} map[string]interface{} "Rate limited"
// @Router /redemptions [post]
func (h *RedemptionHandler) Redeem(c *gin.Context) {
	staff, exists := middleware.GetStaffContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "staff not authenticated"})
		return
	}

	var req models.RedeemTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if !req.Method.Valid() {
		badRequest(c, "method must be 'qr' or 'code'")
		return
	}

	device := utils.ParseUserAgent(utils.GetUserAgent(c)).String()
	ip := utils.GetRealIP(c)

	redemption, err := h.bookings.Redeem(c.Request.Context(), models.RedeemRequest{
		Code:      req.Code,
		QRPayload: req.QRPayload,
		Method:    req.Method,
		ActorID:   staff.StaffID.String(),
		Notes:     req.Notes,
		Device:    &device,
		IPAddress: &ip,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, redemption)
}
