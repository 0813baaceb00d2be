package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)

func TestWithTx_RollbackRestoresState(t *testing.T) {
	s := New()
	ctx := context.Background()
	tourID := uuid.New()
	require.NoError(t, s.EnsureLedger(ctx, tourID, testDate, 10))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		_, ok, err := s.TryCommitSeats(ctx, tourID, testDate, 4)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.RegisterCode(ctx, "AAAA-BBBB-CCCC-DDDD", uuid.New(), time.Now()))
		require.NoError(t, s.LogPaymentEvent(ctx, &models.PaymentAudit{EventType: models.PaymentEventError}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, committed, found, err := s.GetLedger(ctx, tourID, testDate)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, committed)
	assert.Equal(t, 0, s.IssuedCodes())
	assert.Len(t, s.audit, 1, "audit entries survive rollback")
}

func TestLedger(t *testing.T) {
	s := New()
	ctx := context.Background()
	tourID := uuid.New()
	require.NoError(t, s.EnsureLedger(ctx, tourID, testDate, 5))
	require.NoError(t, s.EnsureLedger(ctx, tourID, testDate, 99), "second ensure keeps the original row")

	committed, ok, err := s.TryCommitSeats(ctx, tourID, testDate, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, committed)

	_, ok, err = s.TryCommitSeats(ctx, tourID, testDate, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.ReleaseSeats(ctx, tourID, testDate, 6)
	assert.Error(t, err)
}

func TestDeleteLapsedHolds_UsesInclusiveBoundary(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	tourID := uuid.New()

	for session, expiry := range map[string]time.Time{
		"at-now": now,
		"past":   now.Add(-time.Minute),
		"future": now.Add(time.Nanosecond),
	} {
		require.NoError(t, s.CreateHold(ctx, &models.SeatHold{TourID: tourID, TourDate: testDate, Seats: 1, SessionID: session, ExpiresAt: expiry}))
	}

	lapsed, err := s.DeleteLapsedHolds(ctx, nil, time.Time{}, now, 10)
	require.NoError(t, err)
	require.Len(t, lapsed, 2)
	assert.Equal(t, "past", lapsed[0].SessionID)
	assert.Equal(t, "at-now", lapsed[1].SessionID)

	remaining, err := s.GetHoldBySession(ctx, "future")
	require.NoError(t, err)
	assert.NotNil(t, remaining)
}

func TestMarkRedeemed_OnlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := &models.Booking{Status: models.BookingStatusConfirmed}
	require.NoError(t, s.CreateBooking(ctx, b))

	first, err := s.MarkRedeemed(ctx, b.ID, "staff-1", time.Now())
	require.NoError(t, err)
	second, err := s.MarkRedeemed(ctx, b.ID, "staff-2", time.Now())
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRedeemed, got.Status)
	assert.Equal(t, "staff-1", *got.RedeemedBy)
}
