package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/events"
	"github.com/guidedtours/reservation-backend/internal/metrics"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// staleBookingBatch bounds one sweep pass over lapsed reservations
const staleBookingBatch = 200

// BookingServiceConfig holds the per-deployment booking settings
type BookingServiceConfig struct {
	HoldTTL         time.Duration
	Retention       models.RetentionConfig
	DefaultCurrency string
}

// BookingService is the booking lifecycle state machine. It drives holds,
// code issuance, settlement and the payment gateway; every status change goes
// through models.Booking.TransitionTo.
type BookingService struct {
	store      Store
	holds      *HoldManager
	ledger     *InventoryLedger
	codes      *CodeIssuer
	settlement *SettlementCalculator
	redemption *RedemptionValidator
	gateway    PaymentGateway
	audits     *PaymentAuditService
	events     EventPublisher
	cfg        BookingServiceConfig
	logger     *logrus.Logger
	now        func() time.Time
}

// NewBookingService creates a new BookingService. events may be nil.
func NewBookingService(
	store Store,
	holds *HoldManager,
	ledger *InventoryLedger,
	codes *CodeIssuer,
	settlement *SettlementCalculator,
	redemption *RedemptionValidator,
	gateway PaymentGateway,
	audits *PaymentAuditService,
	events EventPublisher,
	cfg BookingServiceConfig,
	logger *logrus.Logger,
) *BookingService {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = holds.TTL()
	}
	return &BookingService{
		store:      store,
		holds:      holds,
		ledger:     ledger,
		codes:      codes,
		settlement: settlement,
		redemption: redemption,
		gateway:    gateway,
		audits:     audits,
		events:     events,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// ============================================================================
// START BOOKING (pending -> reserved)
// ============================================================================

// StartBooking places a hold and creates the booking in reserved, then opens
// a checkout session. The hold and booking commit together or not at all.
func (s *BookingService) StartBooking(ctx context.Context, req *models.StartBookingRequest) (*models.StartBookingResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tourID, err := uuid.Parse(req.TourID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tour_id", models.ErrInvalidRequest)
	}
	date, err := models.ParseTourDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", models.ErrInvalidRequest)
	}
	if date.Before(models.TourDate(s.now())) {
		return nil, fmt.Errorf("%w: date is in the past", models.ErrInvalidRequest)
	}

	tour, err := s.store.Tours.GetTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	if !tour.IsActive() {
		return nil, models.ErrTourInactive
	}

	currency := tour.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	seats := req.Adults + req.Children

	var booking *models.Booking
	var hold *models.SeatHold
	err = s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		hold, err = s.holds.CreateHold(ctx, tourID, date, seats, uuid.NewString(), s.cfg.HoldTTL)
		if err != nil {
			return err
		}

		now := s.now()
		booking = &models.Booking{
			ID:            uuid.New(),
			TourID:        tourID,
			TourDate:      date,
			CustomerName:  req.Name,
			CustomerEmail: req.Email,
			CustomerPhone: req.Phone,
			Adults:        req.Adults,
			Children:      req.Children,
			Seats:         seats,
			TotalAmount:   tour.PriceFor(req.Adults, req.Children),
			Currency:      currency,
			Status:        models.BookingStatusPending,
			HoldSessionID: hold.SessionID,
			CreatedAt:     now,
		}
		if err := booking.TransitionTo(models.BookingStatusReserved, now); err != nil {
			return err
		}
		expiresAt := hold.ExpiresAt
		booking.HoldExpiresAt = &expiresAt
		return s.store.Bookings.CreateBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}
	metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusReserved)).Inc()

	checkout, err := s.openCheckout(ctx, booking, req)
	if err != nil {
		// Without a checkout session the hold can never be paid; give the seats back now.
		if _, cancelErr := s.Cancel(ctx, booking.ID, "checkout session could not be created"); cancelErr != nil {
			s.logger.WithError(cancelErr).WithField("booking_id", booking.ID).Error("Failed to cancel booking after checkout failure")
		}
		return nil, err
	}

	s.publish(ctx, events.BookingReserved, booking)
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"tour_id":    tourID,
		"seats":      seats,
		"total":      booking.TotalAmount.String(),
	}).Info("Booking reserved")

	return &models.StartBookingResponse{
		HoldID:     hold.ID,
		BookingID:  booking.ID,
		ExpiresAt:  hold.ExpiresAt,
		TTLSeconds: int(hold.ExpiresAt.Sub(hold.CreatedAt).Seconds()),
		Total:      booking.TotalAmount,
		Currency:   booking.Currency,
		Checkout:   checkout,
	}, nil
}

// openCheckout creates the provider session outside any transaction and stores its id
func (s *BookingService) openCheckout(ctx context.Context, booking *models.Booking, req *models.StartBookingRequest) (*models.CheckoutInfo, error) {
	checkoutReq := &models.CheckoutRequest{
		Amount:       booking.TotalAmount,
		Currency:     booking.Currency,
		Description:  fmt.Sprintf("Tour booking %s (%d seats)", booking.TourDate.Format("2006-01-02"), booking.Seats),
		CustomerName: req.Name,
		Metadata:     map[string]string{"booking_id": booking.ID.String()},
	}
	if req.Email != nil {
		checkoutReq.Email = *req.Email
	}
	if req.Phone != nil {
		checkoutReq.Phone = *req.Phone
	}

	ref, err := s.gateway.CreateCheckoutSession(ctx, checkoutReq)
	if err != nil {
		s.audits.Record(ctx, PaymentEvent{Type: models.PaymentEventError, BookingID: booking.ID, Amount: &booking.TotalAmount, Err: err})
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	s.audits.Record(ctx, PaymentEvent{Type: models.PaymentEventCheckoutCreated, BookingID: booking.ID, SessionID: ref.SessionID, Amount: &booking.TotalAmount})

	err = s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.store.Bookings.GetBookingForUpdate(ctx, booking.ID)
		if err != nil {
			return err
		}
		current.PaymentSessionID = &ref.SessionID
		current.UpdatedAt = s.now()
		if err := s.store.Bookings.UpdateBooking(ctx, current, models.BookingStatusReserved); err != nil {
			return err
		}
		*booking = *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.CheckoutInfo{
		SessionID:  ref.SessionID,
		PaymentURL: ref.PaymentURL,
		Mode:       string(s.gateway.Mode()),
	}, nil
}

// ============================================================================
// CONFIRM PAYMENT (reserved -> confirmed)
// ============================================================================

// ConfirmPayment verifies payment and converts the hold into a confirmed
// booking with a code and a settled transaction. Confirming an already
// confirmed booking returns it unchanged. An unpaid session leaves the booking
// reserved so the customer can retry until the hold lapses. A payment that
// lands on an expired or cancelled booking is refunded once.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID uuid.UUID, paymentSessionID string) (*models.Booking, error) {
	booking, err := s.store.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	switch booking.Status {
	case models.BookingStatusConfirmed, models.BookingStatusRedeemed:
		return booking, nil
	case models.BookingStatusReserved, models.BookingStatusExpired, models.BookingStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: cannot confirm a %s booking", models.ErrInvalidTransition, booking.Status)
	}

	if booking.PaymentSessionID != nil {
		if paymentSessionID == "" {
			paymentSessionID = *booking.PaymentSessionID
		} else if paymentSessionID != *booking.PaymentSessionID {
			return nil, fmt.Errorf("%w: payment session does not belong to this booking", models.ErrPaymentVerificationFailed)
		}
	}

	switch {
	case booking.Status == models.BookingStatusCancelled:
		if paymentSessionID != "" {
			s.refundLatePayment(ctx, bookingID, paymentSessionID)
		}
		return nil, fmt.Errorf("%w: cannot confirm a cancelled booking", models.ErrInvalidTransition)
	case booking.Status == models.BookingStatusExpired || booking.HoldLapsed(s.now()):
		if booking.Status == models.BookingStatusReserved {
			if err := s.Expire(ctx, bookingID); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
				s.logger.WithError(err).WithField("booking_id", bookingID).Warn("Failed to expire lapsed booking")
			}
		}
		if paymentSessionID != "" {
			s.refundLatePayment(ctx, bookingID, paymentSessionID)
		}
		return nil, models.ErrHoldExpired
	}

	if paymentSessionID == "" {
		return nil, fmt.Errorf("%w: no payment session", models.ErrPaymentVerificationFailed)
	}

	// Network call: never inside a transaction.
	status, err := s.gateway.VerifyPayment(ctx, paymentSessionID)
	if err != nil {
		s.audits.Record(ctx, PaymentEvent{Type: models.PaymentEventError, BookingID: bookingID, SessionID: paymentSessionID, Err: err})
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if !status.IsPaid() {
		s.audits.Record(ctx, PaymentEvent{Type: models.PaymentEventUnpaid, BookingID: bookingID, SessionID: paymentSessionID, State: status.State})
		return nil, fmt.Errorf("%w: payment is %s", models.ErrPaymentVerificationFailed, status.State)
	}
	if status.Amount != 0 && status.Amount != booking.TotalAmount {
		mismatch := fmt.Errorf("paid %s, expected %s", status.Amount, booking.TotalAmount)
		s.audits.Record(ctx, PaymentEvent{Type: models.PaymentEventError, BookingID: bookingID, SessionID: paymentSessionID, Amount: &status.Amount, State: status.State, Err: mismatch})
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentVerificationFailed, mismatch)
	}
	s.audits.Record(ctx, PaymentEvent{
		Type:             models.PaymentEventVerified,
		BookingID:        bookingID,
		SessionID:        paymentSessionID,
		PaymentReference: status.PaymentReference,
		Amount:           &status.Amount,
		State:            status.State,
	})

	var confirmed *models.Booking
	var transaction *models.Transaction
	alreadyConfirmed := false
	err = s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.store.Bookings.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.Status == models.BookingStatusConfirmed || current.Status == models.BookingStatusRedeemed {
			confirmed, alreadyConfirmed = current, true
			return nil
		}
		if current.Status != models.BookingStatusReserved {
			return fmt.Errorf("%w: booking became %s during confirmation", models.ErrInvalidTransition, current.Status)
		}

		now := s.now()
		if _, err := s.holds.consumeHold(ctx, current.HoldSessionID, now); err != nil {
			return err
		}

		code, qr, err := s.codes.IssueCode(ctx, current)
		if err != nil {
			return err
		}

		transaction, err = s.settlement.Settle(current.TotalAmount, s.cfg.Retention)
		if err != nil {
			return err
		}
		transaction.ID = uuid.New()
		transaction.TourID = current.TourID
		transaction.BookingID = &current.ID
		transaction.Currency = current.Currency
		transaction.CreatedAt = now
		if err := s.store.Transactions.CreateTransaction(ctx, transaction); err != nil {
			return err
		}

		current.Code = &code
		current.QRPayload = &qr
		current.PaymentSessionID = &paymentSessionID
		if status.PaymentReference != "" {
			current.PaymentReference = &status.PaymentReference
		}
		current.TransactionID = &transaction.ID
		if err := current.TransitionTo(models.BookingStatusConfirmed, now); err != nil {
			return err
		}
		if err := s.store.Bookings.UpdateBooking(ctx, current, models.BookingStatusReserved); err != nil {
			return err
		}
		confirmed = current
		return nil
	})

	if errors.Is(err, models.ErrHoldExpired) || errors.Is(err, models.ErrHoldNotFound) {
		// Paid, but the hold lapsed between verification and commit.
		if err := s.Expire(ctx, bookingID); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
			s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to expire booking after late payment")
		}
		s.claimAndRefund(ctx, bookingID, status)
		return nil, models.ErrHoldExpired
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"session_id": paymentSessionID,
			"alert":      errors.Is(err, models.ErrCodeSpaceExhausted) || errors.Is(err, models.ErrRateConfigInvalid),
		}).Error("Paid booking could not be confirmed")
		return nil, err
	}
	if alreadyConfirmed {
		return confirmed, nil
	}

	metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusConfirmed)).Inc()
	metrics.SettledGross.WithLabelValues(transaction.Currency).Add(float64(transaction.GrossAmount))
	s.audits.Record(ctx, PaymentEvent{
		Type:             models.PaymentEventBookingConfirmed,
		BookingID:        bookingID,
		SessionID:        paymentSessionID,
		PaymentReference: status.PaymentReference,
		Amount:           &transaction.GrossAmount,
		State:            status.State,
	})
	s.publish(ctx, events.BookingConfirmed, confirmed)
	s.logger.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"transaction_id": transaction.ID,
		"seller_payout":  transaction.SellerPayout.String(),
	}).Info("Booking confirmed")
	return confirmed, nil
}

// ConfirmFromWebhook handles the provider callback. The payload is only a
// hint: the booking is confirmed through the same verified path as the client poll.
func (s *BookingService) ConfirmFromWebhook(ctx context.Context, payload *models.PaymentWebhookPayload) (*models.Booking, error) {
	bookingID, err := uuid.Parse(payload.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("%w: webhook invoice id is not a booking", models.ErrInvalidRequest)
	}
	s.audits.Record(ctx, PaymentEvent{
		Type:             models.PaymentEventWebhookReceived,
		BookingID:        bookingID,
		PaymentReference: payload.TransactionID,
		State:            models.PaymentState(payload.PaymentStatus),
	})
	return s.ConfirmPayment(ctx, bookingID, "")
}

// refundLatePayment verifies a session that reached a booking which can no
// longer be confirmed and refunds it when the provider reports it paid.
func (s *BookingService) refundLatePayment(ctx context.Context, bookingID uuid.UUID, sessionID string) {
	// Network call: never inside a transaction.
	status, err := s.gateway.VerifyPayment(ctx, sessionID)
	if err != nil {
		s.audits.Record(ctx, PaymentEvent{Type: models.PaymentEventError, BookingID: bookingID, SessionID: sessionID, Err: err})
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"alert":      true,
		}).Error("Could not verify payment on a closed booking")
		return
	}
	if !status.IsPaid() {
		return
	}
	s.audits.Record(ctx, PaymentEvent{
		Type:             models.PaymentEventVerified,
		BookingID:        bookingID,
		SessionID:        sessionID,
		PaymentReference: status.PaymentReference,
		Amount:           &status.Amount,
		State:            status.State,
	})
	s.claimAndRefund(ctx, bookingID, status)
}

// claimAndRefund stores the payment reference on an expired or cancelled
// booking that has none and then requests the refund. A booking that already
// carries a reference was refunded before, so repeated callbacks are no-ops.
func (s *BookingService) claimAndRefund(ctx context.Context, bookingID uuid.UUID, status *models.PaymentStatus) {
	if status.PaymentReference == "" {
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"alert":      true,
		}).Error("Late payment has no reference to refund")
		return
	}

	var amount models.Money
	claimed := false
	err := s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.store.Bookings.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.PaymentReference != nil {
			return nil
		}
		if b.Status != models.BookingStatusExpired && b.Status != models.BookingStatusCancelled {
			s.logger.WithFields(logrus.Fields{
				"booking_id": bookingID,
				"status":     b.Status,
				"alert":      true,
			}).Error("Paid booking is neither confirmed nor closed; refund needs manual review")
			return nil
		}
		ref := status.PaymentReference
		b.PaymentReference = &ref
		b.UpdatedAt = s.now()
		if err := s.store.Bookings.UpdateBooking(ctx, b, b.Status); err != nil {
			return err
		}
		amount, claimed = b.TotalAmount, true
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"alert":      true,
		}).Error("Failed to record late payment for refund")
		return
	}
	if !claimed {
		return
	}
	if status.Amount != 0 {
		amount = status.Amount
	}
	s.logger.WithField("booking_id", bookingID).Warn("Payment arrived after the booking closed; refunding")
	s.refund(ctx, bookingID, status.PaymentReference, amount)
}

// ============================================================================
// EXPIRE (reserved -> expired)
// ============================================================================

// Expire moves a reserved booking whose hold lapsed to expired and releases
// its seats. Expiring an already expired booking is a no-op.
func (s *BookingService) Expire(ctx context.Context, bookingID uuid.UUID) error {
	expired, err := s.expire(ctx, bookingID, s.now())
	if err != nil {
		return err
	}
	if expired != nil {
		s.publish(ctx, events.BookingExpired, expired)
	}
	return nil
}

func (s *BookingService) expire(ctx context.Context, bookingID uuid.UUID, now time.Time) (*models.Booking, error) {
	var expired *models.Booking
	err := s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.store.Bookings.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status == models.BookingStatusExpired {
			return nil
		}
		if b.Status != models.BookingStatusReserved {
			return fmt.Errorf("%w: cannot expire a %s booking", models.ErrInvalidTransition, b.Status)
		}
		if !b.HoldLapsed(now) {
			return fmt.Errorf("%w: hold is still live", models.ErrInvalidTransition)
		}
		// nil when the sweep already reclaimed the hold's seats
		if _, err := s.holds.releaseHold(ctx, b.HoldSessionID, "expired"); err != nil {
			return err
		}
		if err := b.TransitionTo(models.BookingStatusExpired, now); err != nil {
			return err
		}
		if err := s.store.Bookings.UpdateBooking(ctx, b, models.BookingStatusReserved); err != nil {
			return err
		}
		expired = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired != nil {
		metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusExpired)).Inc()
	}
	return expired, nil
}

// ExpireStaleBookings expires every reserved booking whose hold lapsed at now.
func (s *BookingService) ExpireStaleBookings(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		lapsed, err := s.store.Bookings.ListLapsedReservations(ctx, now, staleBookingBatch)
		if err != nil {
			return total, err
		}
		progressed := false
		for i := range lapsed {
			expired, err := s.expire(ctx, lapsed[i].ID, now)
			if err != nil {
				// lost a race with a confirm or cancel
				s.logger.WithError(err).WithField("booking_id", lapsed[i].ID).Debug("Skipped stale booking")
				continue
			}
			if expired != nil {
				total++
				progressed = true
				s.publish(ctx, events.BookingExpired, expired)
			}
		}
		// a full batch that all failed would be listed again forever
		if len(lapsed) < staleBookingBatch || !progressed {
			return total, nil
		}
	}
}

// ============================================================================
// CANCEL (pending|reserved|confirmed -> cancelled)
// ============================================================================

// Cancel cancels a booking. A reserved booking releases its hold; a confirmed
// booking gives its seats back, marks its transaction refunded and, after
// commit, asks the gateway for a refund.
func (s *BookingService) Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (*models.Booking, error) {
	var cancelled *models.Booking
	var previous models.BookingStatus
	err := s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.store.Bookings.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		previous = b.Status
		now := s.now()
		if err := b.TransitionTo(models.BookingStatusCancelled, now); err != nil {
			return err
		}
		if reason != "" {
			b.CancelReason = &reason
		}

		switch previous {
		case models.BookingStatusPending, models.BookingStatusReserved:
			if _, err := s.holds.releaseHold(ctx, b.HoldSessionID, "released"); err != nil {
				return err
			}
		case models.BookingStatusConfirmed:
			if err := s.ledger.Release(ctx, &models.Reservation{TourID: b.TourID, TourDate: b.TourDate, Seats: b.Seats}); err != nil {
				return err
			}
			if b.TransactionID != nil {
				if err := s.store.Transactions.UpdateTransactionStatus(ctx, *b.TransactionID, models.TransactionStatusRefunded, now); err != nil {
					return err
				}
			}
		}

		if err := s.store.Bookings.UpdateBooking(ctx, b, previous); err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusCancelled)).Inc()
	if previous == models.BookingStatusConfirmed && cancelled.PaymentReference != nil {
		s.refund(ctx, cancelled.ID, *cancelled.PaymentReference, cancelled.TotalAmount)
	}
	s.publish(ctx, events.BookingCancelled, cancelled)
	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"from":       previous,
	}).Info("Booking cancelled")
	return cancelled, nil
}

// refund asks the gateway for a refund. Failures are audited and logged for
// manual follow-up; the cancellation itself already committed.
func (s *BookingService) refund(ctx context.Context, bookingID uuid.UUID, paymentReference string, amount models.Money) {
	if paymentReference == "" {
		s.logger.WithField("booking_id", bookingID).Error("Refund needed but booking has no payment reference")
		return
	}
	result, err := s.gateway.Refund(ctx, paymentReference, amount)
	if err != nil {
		s.audits.Record(ctx, PaymentEvent{Type: models.PaymentEventRefundFailed, BookingID: bookingID, PaymentReference: paymentReference, Amount: &amount, Err: err})
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"alert":      true,
		}).Error("Refund request failed")
		return
	}
	s.audits.Record(ctx, PaymentEvent{Type: models.PaymentEventRefundRequested, BookingID: bookingID, PaymentReference: paymentReference, Amount: &result.Amount})
}

// ============================================================================
// EXTEND, READ, REDEEM
// ============================================================================

// ExtendHold pushes the hold and the booking's hold expiry forward by the TTL.
func (s *BookingService) ExtendHold(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var extended *models.Booking
	err := s.store.Tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.store.Bookings.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingStatusReserved {
			return fmt.Errorf("%w: only reserved bookings can be extended", models.ErrInvalidTransition)
		}
		hold, err := s.holds.ExtendHold(ctx, b.HoldSessionID, s.cfg.HoldTTL)
		if errors.Is(err, models.ErrHoldNotFound) {
			return models.ErrHoldExpired
		}
		if err != nil {
			return err
		}
		b.HoldExpiresAt = &hold.ExpiresAt
		b.UpdatedAt = s.now()
		if err := s.store.Bookings.UpdateBooking(ctx, b, models.BookingStatusReserved); err != nil {
			return err
		}
		extended = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return extended, nil
}

// GetBooking returns a booking. A reserved booking whose hold lapsed is
// expired on read, so callers never see a stale reservation.
func (s *BookingService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := s.store.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.HoldLapsed(s.now()) {
		return b, nil
	}
	if err := s.Expire(ctx, bookingID); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
		return nil, err
	}
	return s.store.Bookings.GetBooking(ctx, bookingID)
}

// Redeem consumes a confirmed booking's code. Only confirmed bookings pass.
func (s *BookingService) Redeem(ctx context.Context, req models.RedeemRequest) (*models.TicketRedemption, error) {
	redemption, err := s.redemption.Redeem(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusRedeemed)).Inc()
	if b, err := s.store.Bookings.GetBooking(ctx, redemption.BookingID); err == nil {
		s.publish(ctx, events.BookingRedeemed, b)
	}
	return redemption, nil
}

// Availability returns the seat picture for a tour date
func (s *BookingService) Availability(ctx context.Context, tourID uuid.UUID, date time.Time) (*models.Availability, error) {
	return s.ledger.Availability(ctx, tourID, date)
}

// SettlementSummary aggregates transactions created between from and to, both inclusive dates.
func (s *BookingService) SettlementSummary(ctx context.Context, from, to time.Time) (*models.SettlementSummary, error) {
	from, to = models.TourDate(from), models.TourDate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", models.ErrInvalidRequest)
	}
	txs, err := s.store.Transactions.ListTransactions(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return s.settlement.Summarize(from, to, txs), nil
}

// publish sends a lifecycle event after commit. Delivery failures are logged only.
func (s *BookingService) publish(ctx context.Context, eventType string, b *models.Booking) {
	if s.events == nil || b == nil {
		return
	}
	if err := s.events.PublishBookingEvent(ctx, eventType, b); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": b.ID,
			"event_type": eventType,
		}).Warn("Failed to publish booking event")
	}
}
