package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresDB{DB: sqlx.NewDb(db, "postgres")}, mock
}

var testDate = time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)

func TestWithTx(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := NewTransactionRepository(db)
		err := db.WithTx(ctx, func(ctx context.Context) error {
			return repo.UpdateTransactionStatus(ctx, uuid.New(), models.TransactionStatusRefunded, time.Now())
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback On Error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.WithTx(ctx, func(ctx context.Context) error {
			return models.ErrCapacityExceeded
		})
		assert.ErrorIs(t, err, models.ErrCapacityExceeded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nested Joins Outer", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := db.WithTx(ctx, func(ctx context.Context) error {
			return db.WithTx(ctx, func(ctx context.Context) error {
				calls++
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()
	tourID := uuid.New()

	t.Run("Commit Within Capacity", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE inventory_ledger`).
			WithArgs(tourID, testDate, 4).
			WillReturnRows(sqlmock.NewRows([]string{"committed_seats"}).AddRow(10))

		committed, ok, err := repo.TryCommitSeats(ctx, tourID, testDate, 4)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 10, committed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Commit Over Capacity", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE inventory_ledger`).
			WithArgs(tourID, testDate, 1).
			WillReturnRows(sqlmock.NewRows([]string{"committed_seats"}))

		_, ok, err := repo.TryCommitSeats(ctx, tourID, testDate, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Release Underflow", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE inventory_ledger`).
			WithArgs(tourID, testDate, 3).
			WillReturnRows(sqlmock.NewRows([]string{"committed_seats"}))

		_, err := repo.ReleaseSeats(ctx, tourID, testDate, 3)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "underflow")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing Row", func(t *testing.T) {
		mock.ExpectQuery(`SELECT capacity, committed_seats`).
			WithArgs(tourID, testDate).
			WillReturnRows(sqlmock.NewRows([]string{"capacity", "committed_seats"}))

		_, _, found, err := repo.GetLedger(ctx, tourID, testDate)
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHoldRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHoldRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	columns := []string{"id", "tour_id", "tour_date", "seats", "session_id", "booking_id", "expires_at", "created_at"}

	t.Run("Delete Missing Hold Is Nil", func(t *testing.T) {
		mock.ExpectQuery(`DELETE FROM seat_holds WHERE session_id`).
			WithArgs("sess-1").
			WillReturnRows(sqlmock.NewRows(columns))

		hold, err := repo.DeleteHold(ctx, "sess-1")
		require.NoError(t, err)
		assert.Nil(t, hold)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Extend Lapsed Hold", func(t *testing.T) {
		mock.ExpectExec(`UPDATE seat_holds`).
			WithArgs("sess-2", now.Add(10*time.Minute), now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.UpdateHoldExpiry(ctx, "sess-2", now.Add(10*time.Minute), now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Sweep Returns Deleted Holds", func(t *testing.T) {
		tourID := uuid.New()
		mock.ExpectQuery(`DELETE FROM seat_holds`).
			WithArgs(now, nil, nil, 100).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(uuid.New(), tourID, testDate, 2, "a", nil, now, now.Add(-10*time.Minute)).
				AddRow(uuid.New(), tourID, testDate, 3, "b", nil, now.Add(-time.Second), now.Add(-10*time.Minute)))

		holds, err := repo.DeleteLapsedHolds(ctx, nil, time.Time{}, now, 100)
		require.NoError(t, err)
		require.Len(t, holds, 2)
		assert.Equal(t, 5, holds[0].Seats+holds[1].Seats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Session", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO seat_holds`).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.CreateHold(ctx, &models.SeatHold{TourID: uuid.New(), TourDate: testDate, Seats: 1, SessionID: "dup", ExpiresAt: now})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Not Found", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`(?s)SELECT .* FROM bookings WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		b, err := repo.GetBooking(ctx, id)
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
		assert.Nil(t, b)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Mark Redeemed Once", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(id, now, "staff-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(id, now, "staff-2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		first, err := repo.MarkRedeemed(ctx, id, "staff-1", now)
		require.NoError(t, err)
		second, err := repo.MarkRedeemed(ctx, id, "staff-2", now)
		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Update Lost Race", func(t *testing.T) {
		b := &models.Booking{ID: uuid.New(), Status: models.BookingStatusExpired, UpdatedAt: now}
		mock.ExpectExec(`UPDATE bookings SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateBooking(ctx, b, models.BookingStatusReserved)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Code Collision", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO issued_codes`).
			WithArgs("ABCD2345", sqlmock.AnyArg(), now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.RegisterCode(ctx, "ABCD2345", uuid.New(), now)
		assert.ErrorIs(t, err, models.ErrCodeCollision)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO issued_codes`).
			WillReturnError(fmt.Errorf("connection reset"))

		err := repo.RegisterCode(ctx, "ZZZZ9999", uuid.New(), now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to register code")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedemptionRepository_DuplicateIsAlreadyRedeemed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRedemptionRepository(db)

	mock.ExpectExec(`INSERT INTO ticket_redemptions`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateRedemption(context.Background(), &models.TicketRedemption{
		BookingID:  uuid.New(),
		RedeemedBy: "staff-1",
		Method:     models.RedemptionMethodCode,
		RedeemedAt: time.Now(),
	})
	assert.ErrorIs(t, err, models.ErrAlreadyRedeemed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_ListTransactions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)
	from := testDate
	to := testDate.AddDate(0, 1, 0)

	rows := sqlmock.NewRows([]string{
		"id", "tour_id", "booking_id", "gross_amount", "commission", "tax", "bank_fee", "other_retentions",
		"seller_payout", "currency", "retention_version", "app_commission_rate", "tax_rate",
		"bank_commission_rate", "other_retentions_rate", "status", "created_at", "updated_at",
	}).AddRow(
		uuid.New(), uuid.New(), nil, int64(100000), int64(5000), int64(16000), int64(3000), int64(2000),
		int64(74000), "USD", "v1", int64(500), int64(1600), int64(300), int64(200), "settled", from, from,
	)
	mock.ExpectQuery(`(?s)SELECT .* FROM transactions`).WithArgs(from, to).WillReturnRows(rows)

	txs, err := repo.ListTransactions(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.Money(74000), txs[0].SellerPayout)
	assert.Equal(t, models.Rate(1600), txs[0].TaxRate)
	assert.True(t, txs[0].Reconciles())
	assert.NoError(t, mock.ExpectationsWereMet())
}
