package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// scriptedGateway is a sandbox gateway whose verification result can be switched
type scriptedGateway struct {
	*SandboxGateway
	mu      sync.Mutex
	state   models.PaymentState
	verifyN atomic.Int64
}

func newScriptedGateway(state models.PaymentState) *scriptedGateway {
	return &scriptedGateway{SandboxGateway: NewSandboxGateway(), state: state}
}

func (g *scriptedGateway) setState(s models.PaymentState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

func (g *scriptedGateway) VerifyPayment(ctx context.Context, sessionID string) (*models.PaymentStatus, error) {
	g.verifyN.Add(1)
	status, err := g.SandboxGateway.VerifyPayment(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	status.State = g.state
	return status, nil
}

func TestBookingService_Lifecycle(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	// draws exactly ABCD-EFGH-JKMN-PQRS
	env.codes.random = bytes.NewReader(append([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, make([]byte, 16)...))

	resp := env.startBooking(t, 2, 1)
	assert.Equal(t, models.Money(15000), resp.Total)
	assert.Equal(t, 600, resp.TTLSeconds)
	require.NotNil(t, resp.Checkout)
	assert.Equal(t, "sandbox", resp.Checkout.Mode)
	assert.Equal(t, 3, env.committed(t))

	reserved, err := env.bookings.GetBooking(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusReserved, reserved.Status)
	require.NotNil(t, reserved.PaymentSessionID)

	confirmed, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.Code)
	assert.Equal(t, "ABCD-EFGH-JKMN-PQRS", *confirmed.Code)
	assert.Nil(t, confirmed.HoldExpiresAt)
	assert.Equal(t, 3, env.committed(t), "conversion keeps the ledger count")

	hold, err := env.store.GetHoldBySession(ctx, confirmed.HoldSessionID)
	require.NoError(t, err)
	assert.Nil(t, hold, "the hold is consumed")

	require.NotNil(t, confirmed.TransactionID)
	tx, err := env.store.GetTransaction(ctx, *confirmed.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(15000), tx.GrossAmount)
	assert.True(t, tx.Reconciles())

	t.Run("Confirm Again Is A No-op", func(t *testing.T) {
		again, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
		require.NoError(t, err)
		assert.Equal(t, *confirmed.Code, *again.Code)
		assert.Equal(t, *confirmed.TransactionID, *again.TransactionID)
	})

	t.Run("Redeem Once", func(t *testing.T) {
		redemption, err := env.bookings.Redeem(ctx, models.RedeemRequest{
			QRPayload: *confirmed.QRPayload,
			Method:    models.RedemptionMethodQR,
			ActorID:   "staff-1",
		})
		require.NoError(t, err)
		assert.Equal(t, resp.BookingID, redemption.BookingID)

		_, err = env.bookings.Redeem(ctx, models.RedeemRequest{
			Code:    "abcd-efgh-jkmn-pqrs",
			Method:  models.RedemptionMethodCode,
			ActorID: "staff-2",
		})
		assert.ErrorIs(t, err, models.ErrAlreadyRedeemed)

		rows, err := env.store.ListRedemptions(ctx, resp.BookingID)
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		redeemed, err := env.bookings.GetBooking(ctx, resp.BookingID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusRedeemed, redeemed.Status)
		assert.Equal(t, "staff-1", *redeemed.RedeemedBy)
	})
}

func TestBookingService_StartBookingValidation(t *testing.T) {
	env := newTestEnv(t, 4)
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.StartBookingRequest
		want error
	}{
		{"No Adults", models.StartBookingRequest{TourID: env.tour.ID.String(), Date: "2026-12-15", Children: 2}, models.ErrInvalidSeats},
		{"Bad Tour ID", models.StartBookingRequest{TourID: "nope", Date: "2026-12-15", Adults: 1}, models.ErrInvalidRequest},
		{"Bad Date", models.StartBookingRequest{TourID: env.tour.ID.String(), Date: "15/12/2026", Adults: 1}, models.ErrInvalidRequest},
		{"Past Date", models.StartBookingRequest{TourID: env.tour.ID.String(), Date: "2026-11-30", Adults: 1}, models.ErrInvalidRequest},
		{"Unknown Tour", models.StartBookingRequest{TourID: uuid.NewString(), Date: "2026-12-15", Adults: 1}, models.ErrTourNotFound},
		{"Over Capacity", models.StartBookingRequest{TourID: env.tour.ID.String(), Date: "2026-12-15", Adults: 5}, models.ErrCapacityExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Name = "Grace Hopper"
			_, err := env.bookings.StartBooking(ctx, &req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, env.committed(t))
		})
	}
}

func TestBookingService_UnpaidLeavesBookingReserved(t *testing.T) {
	gw := newScriptedGateway(models.PaymentStatePending)
	env := newTestEnv(t, 10, withGateway(gw))
	ctx := context.Background()

	resp := env.startBooking(t, 2, 0)

	_, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	assert.ErrorIs(t, err, models.ErrPaymentVerificationFailed)

	b, err := env.bookings.GetBooking(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusReserved, b.Status)
	assert.Equal(t, 2, env.committed(t))

	events, err := env.store.ListPaymentEvents(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentEventUnpaid, events[len(events)-1].EventType)

	// the customer pays before the TTL and retries
	gw.setState(models.PaymentStatePaid)
	env.clock.Advance(9 * time.Minute)
	confirmed, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)
}

func TestBookingService_ConfirmRejectsForeignSession(t *testing.T) {
	env := newTestEnv(t, 10)
	resp := env.startBooking(t, 1, 0)

	_, err := env.bookings.ConfirmPayment(context.Background(), resp.BookingID, "sbx_someone_else")
	assert.ErrorIs(t, err, models.ErrPaymentVerificationFailed)
}

func TestBookingService_ConfirmAfterTTL(t *testing.T) {
	gw := newScriptedGateway(models.PaymentStatePaid)
	env := newTestEnv(t, 10, withGateway(gw))
	ctx := context.Background()

	resp := env.startBooking(t, 3, 0)
	env.clock.Advance(10 * time.Minute) // exactly at expiry

	_, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	assert.ErrorIs(t, err, models.ErrHoldExpired)

	b, err := env.store.GetBooking(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusExpired, b.Status)
	assert.Nil(t, b.Code)
	require.NotNil(t, b.PaymentReference, "the late payment is remembered for its refund")
	assert.Equal(t, 0, env.committed(t))

	_, err = env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	assert.ErrorIs(t, err, models.ErrHoldExpired)
	assert.Equal(t, 1, countEvents(t, env, resp.BookingID, models.PaymentEventRefundRequested), "refunded once")
}

func TestBookingService_LateWebhookIsRefunded(t *testing.T) {
	gw := newScriptedGateway(models.PaymentStatePaid)
	env := newTestEnv(t, 10, withGateway(gw))
	ctx := context.Background()

	resp := env.startBooking(t, 2, 0)
	env.clock.Advance(10*time.Minute + time.Second)

	payload := &models.PaymentWebhookPayload{
		InvoiceID:     resp.BookingID.String(),
		PaymentStatus: string(models.PaymentStatePaid),
		TransactionID: "txn-late",
	}
	_, err := env.bookings.ConfirmFromWebhook(ctx, payload)
	assert.ErrorIs(t, err, models.ErrHoldExpired)
	assert.Equal(t, int64(1), gw.verifyN.Load())

	b, err := env.store.GetBooking(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusExpired, b.Status)
	assert.Nil(t, b.TransactionID, "no settlement for an expired booking")
	assert.Equal(t, 0, env.committed(t))
	assert.Equal(t, 1, countEvents(t, env, resp.BookingID, models.PaymentEventRefundRequested))

	t.Run("Redelivered Webhook Does Not Refund Twice", func(t *testing.T) {
		_, err := env.bookings.ConfirmFromWebhook(ctx, payload)
		assert.ErrorIs(t, err, models.ErrHoldExpired)
		assert.Equal(t, 1, countEvents(t, env, resp.BookingID, models.PaymentEventRefundRequested))
	})

	t.Run("Unpaid Late Session Is Not Refunded", func(t *testing.T) {
		gw.setState(models.PaymentStatePending)
		other := env.startBooking(t, 1, 0)
		env.clock.Advance(11 * time.Minute)

		_, err := env.bookings.ConfirmPayment(ctx, other.BookingID, other.Checkout.SessionID)
		assert.ErrorIs(t, err, models.ErrHoldExpired)
		assert.Zero(t, countEvents(t, env, other.BookingID, models.PaymentEventRefundRequested))
	})
}

func TestBookingService_PaymentAfterCancelIsRefunded(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	resp := env.startBooking(t, 2, 0)

	_, err := env.bookings.Cancel(ctx, resp.BookingID, "changed plans")
	require.NoError(t, err)

	_, err = env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	b, err := env.store.GetBooking(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, b.Status)
	assert.Equal(t, 1, countEvents(t, env, resp.BookingID, models.PaymentEventRefundRequested))
}

func countEvents(t *testing.T, env *testEnv, bookingID uuid.UUID, kind models.PaymentEventType) int {
	t.Helper()
	events, err := env.store.ListPaymentEvents(context.Background(), bookingID)
	require.NoError(t, err)
	n := 0
	for _, e := range events {
		if e.EventType == kind {
			n++
		}
	}
	return n
}

func TestBookingService_ConcurrentConfirmIssuesOneCode(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	resp := env.startBooking(t, 2, 0)

	codes := make([]string, 8)
	var g errgroup.Group
	for i := range codes {
		i := i
		g.Go(func() error {
			b, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
			if err != nil {
				return err
			}
			codes[i] = *b.Code
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, c := range codes {
		assert.Equal(t, codes[0], c)
	}
	assert.Equal(t, 1, env.store.IssuedCodes())
	txs, err := env.store.ListTransactions(ctx, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, 2, env.committed(t))
}

func TestBookingService_ConcurrentRedeemExactlyOnce(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	resp := env.startBooking(t, 1, 0)
	confirmed, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	require.NoError(t, err)

	var succeeded, alreadyRedeemed atomic.Int64
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := env.bookings.Redeem(ctx, models.RedeemRequest{
				QRPayload: *confirmed.QRPayload,
				Method:    models.RedemptionMethodQR,
				ActorID:   uuid.NewString(),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, models.ErrAlreadyRedeemed):
				alreadyRedeemed.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), succeeded.Load())
	assert.Equal(t, int64(9), alreadyRedeemed.Load())
	rows, err := env.store.ListRedemptions(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestBookingService_RedeemRejectsUnconfirmed(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	_, err := env.bookings.Redeem(ctx, models.RedeemRequest{Code: "ABCD-EFGH-JKMN-PQRS", Method: models.RedemptionMethodCode, ActorID: "staff"})
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	_, err = env.bookings.Redeem(ctx, models.RedeemRequest{Code: "not a code", Method: models.RedemptionMethodCode, ActorID: "staff"})
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	t.Run("Cancelled Booking Code", func(t *testing.T) {
		resp := env.startBooking(t, 1, 0)
		confirmed, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
		require.NoError(t, err)
		_, err = env.bookings.Cancel(ctx, resp.BookingID, "changed plans")
		require.NoError(t, err)

		_, err = env.bookings.Redeem(ctx, models.RedeemRequest{Code: *confirmed.Code, Method: models.RedemptionMethodCode, ActorID: "staff"})
		assert.ErrorIs(t, err, models.ErrInvalidCode)
	})
}

func TestBookingService_CancelConfirmedRefunds(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	resp := env.startBooking(t, 4, 0)
	confirmed, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	require.NoError(t, err)

	cancelled, err := env.bookings.Cancel(ctx, resp.BookingID, "weather")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, "weather", *cancelled.CancelReason)
	assert.Equal(t, 0, env.committed(t))

	tx, err := env.store.GetTransaction(ctx, *confirmed.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusRefunded, tx.Status)

	events, err := env.store.ListPaymentEvents(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentEventRefundRequested, events[len(events)-1].EventType)

	// codes are never reused
	next := env.startBooking(t, 1, 0)
	again, err := env.bookings.ConfirmPayment(ctx, next.BookingID, next.Checkout.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, *confirmed.Code, *again.Code)
	assert.Equal(t, 2, env.store.IssuedCodes())

	t.Run("Terminal States Cannot Cancel", func(t *testing.T) {
		_, err := env.bookings.Cancel(ctx, resp.BookingID, "again")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestBookingService_CancelReservedReleasesHold(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	resp := env.startBooking(t, 3, 0)

	_, err := env.bookings.Cancel(ctx, resp.BookingID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, env.committed(t))

	_, err = env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestBookingService_ExtendHold(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	resp := env.startBooking(t, 1, 0)

	env.clock.Advance(8 * time.Minute)
	extended, err := env.bookings.ExtendHold(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(10*time.Minute), *extended.HoldExpiresAt)

	// past the original TTL, still confirmable
	env.clock.Advance(5 * time.Minute)
	_, err = env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
	require.NoError(t, err)

	t.Run("Lapsed", func(t *testing.T) {
		other := env.startBooking(t, 1, 0)
		env.clock.Advance(11 * time.Minute)
		_, err := env.bookings.ExtendHold(ctx, other.BookingID)
		assert.ErrorIs(t, err, models.ErrHoldExpired)
	})
}

func TestBookingService_ExpireRequiresLapsedHold(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	resp := env.startBooking(t, 2, 0)

	err := env.bookings.Expire(ctx, resp.BookingID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	env.clock.Advance(10 * time.Minute)
	require.NoError(t, env.bookings.Expire(ctx, resp.BookingID))
	require.NoError(t, env.bookings.Expire(ctx, resp.BookingID))
	assert.Equal(t, 0, env.committed(t))
}

func TestHoldExpirationService_RunOnce(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	first := env.startBooking(t, 2, 0)
	second := env.startBooking(t, 3, 0)
	_, err := env.holds.CreateHold(ctx, env.tour.ID, tourDate, 1, "orphan", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 6, env.committed(t))

	env.clock.Advance(10 * time.Minute)
	env.sweeper.RunOnce(ctx)

	assert.Equal(t, 0, env.committed(t))
	for _, id := range []uuid.UUID{first.BookingID, second.BookingID} {
		b, err := env.store.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusExpired, b.Status)
	}

	stats := env.sweeper.GetStats()
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 2, stats.BookingsExpired)
	assert.Equal(t, 1, stats.HoldsReclaimed)
	assert.Empty(t, stats.LastError)
}

// stuckBookings lists lapsed reservations that can never be loaded
type stuckBookings struct {
	BookingRepository
	listed atomic.Int64
}

func (r *stuckBookings) ListLapsedReservations(_ context.Context, _ time.Time, limit int) ([]models.Booking, error) {
	r.listed.Add(1)
	out := make([]models.Booking, limit)
	for i := range out {
		out[i].ID = uuid.New()
	}
	return out, nil
}

func (r *stuckBookings) GetBookingForUpdate(context.Context, uuid.UUID) (*models.Booking, error) {
	return nil, models.ErrBookingNotFound
}

func TestBookingService_ExpireStaleBookingsStopsWithoutProgress(t *testing.T) {
	env := newTestEnv(t, 10)
	stuck := &stuckBookings{BookingRepository: env.store}
	env.bookings.store.Bookings = stuck

	done := make(chan struct{})
	var expired int
	var err error
	go func() {
		defer close(done)
		expired, err = env.bookings.ExpireStaleBookings(context.Background(), env.clock.Now())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ExpireStaleBookings kept relisting a batch it could not expire")
	}
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Equal(t, int64(1), stuck.listed.Load())
}

func TestBookingService_SettlementSummary(t *testing.T) {
	env := newTestEnv(t, 20)
	ctx := context.Background()

	for _, adults := range []int{2, 4} {
		resp := env.startBooking(t, adults, 0)
		_, err := env.bookings.ConfirmPayment(ctx, resp.BookingID, resp.Checkout.SessionID)
		require.NoError(t, err)
	}

	summary, err := env.bookings.SettlementSummary(ctx, testNow, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TransactionCount)
	assert.Equal(t, models.Money(30000), summary.GrossAmount)
	assert.Equal(t, models.Money(22200), summary.SellerPayout)

	_, err = env.bookings.SettlementSummary(ctx, testNow, testNow.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}
