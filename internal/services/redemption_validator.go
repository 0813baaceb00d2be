package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/metrics"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// RedemptionValidator consumes a booking's code exactly once at the point of service.
type RedemptionValidator struct {
	tx          TxManager
	bookings    BookingRepository
	redemptions RedemptionRepository
	codes       *CodeIssuer
	logger      *logrus.Logger
	now         func() time.Time
}

// NewRedemptionValidator creates a new RedemptionValidator
func NewRedemptionValidator(tx TxManager, bookings BookingRepository, redemptions RedemptionRepository, codes *CodeIssuer, logger *logrus.Logger) *RedemptionValidator {
	return &RedemptionValidator{
		tx:          tx,
		bookings:    bookings,
		redemptions: redemptions,
		codes:       codes,
		logger:      logger,
		now:         time.Now,
	}
}

// Redeem validates the presented code and marks the booking redeemed.
// Concurrent attempts on one code are linearized by the conditional update:
// exactly one succeeds, the rest get ErrAlreadyRedeemed.
func (v *RedemptionValidator) Redeem(ctx context.Context, req models.RedeemRequest) (*models.TicketRedemption, error) {
	redemption, err := v.redeem(ctx, req)
	outcome := "success"
	switch {
	case errors.Is(err, models.ErrAlreadyRedeemed):
		outcome = "already_redeemed"
	case errors.Is(err, models.ErrInvalidCode):
		outcome = "invalid_code"
	case err != nil:
		outcome = "error"
	}
	metrics.Redemptions.WithLabelValues(string(req.Method), outcome).Inc()
	return redemption, err
}

func (v *RedemptionValidator) redeem(ctx context.Context, req models.RedeemRequest) (*models.TicketRedemption, error) {
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, fmt.Errorf("redeeming actor is required")
	}

	code, qrBookingID, err := v.resolveCode(req)
	if err != nil {
		return nil, err
	}

	booking, err := v.bookings.GetBookingByCode(ctx, code)
	if errors.Is(err, models.ErrBookingNotFound) {
		return nil, models.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if qrBookingID != uuid.Nil && qrBookingID != booking.ID {
		return nil, models.ErrInvalidCode
	}

	switch booking.Status {
	case models.BookingStatusRedeemed:
		return nil, models.ErrAlreadyRedeemed
	case models.BookingStatusConfirmed:
	default:
		// cancelled and never-confirmed bookings have no valid code
		return nil, models.ErrInvalidCode
	}

	now := v.now()
	redemption := &models.TicketRedemption{
		ID:         uuid.New(),
		BookingID:  booking.ID,
		RedeemedBy: req.ActorID,
		Method:     req.Method,
		RedeemedAt: now,
		Notes:      req.Notes,
		Device:     req.Device,
		IPAddress:  req.IPAddress,
	}

	err = v.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := v.bookings.MarkRedeemed(ctx, booking.ID, req.ActorID, now)
		if err != nil {
			return err
		}
		if !ok {
			return models.ErrAlreadyRedeemed
		}
		return v.redemptions.CreateRedemption(ctx, redemption)
	})
	if err != nil {
		return nil, err
	}

	v.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"actor":      req.ActorID,
		"method":     req.Method,
	}).Info("Ticket redeemed")
	return redemption, nil
}

// resolveCode returns the canonical code and, for QR scans, the booking the
// signed payload names. The method claim is checked against what was presented.
func (v *RedemptionValidator) resolveCode(req models.RedeemRequest) (string, uuid.UUID, error) {
	switch req.Method {
	case models.RedemptionMethodQR:
		if req.QRPayload == "" {
			return "", uuid.Nil, models.ErrInvalidCode
		}
		return v.codes.ParseQRPayload(req.QRPayload)
	case models.RedemptionMethodCode:
		code, ok := NormalizeCode(req.Code)
		if !ok {
			return "", uuid.Nil, models.ErrInvalidCode
		}
		return code, uuid.Nil, nil
	default:
		return "", uuid.Nil, fmt.Errorf("%w: unknown method %q", models.ErrInvalidCode, req.Method)
	}
}
