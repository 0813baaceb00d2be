package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *PostgresDB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *PostgresDB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, tour_id, tour_date, customer_name, customer_email, customer_phone,
	adults, children, seats, total_amount, currency, status,
	code, qr_payload, hold_session_id, hold_expires_at,
	payment_session_id, payment_reference, transaction_id,
	redeemed_at, redeemed_by, cancel_reason,
	confirmed_at, cancelled_at, expired_at, created_at, updated_at`

// ============================================================================
// BOOKING CRUD OPERATIONS
// ============================================================================

// CreateBooking inserts a booking
func (r *BookingRepository) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = b.CreatedAt

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (
			:id, :tour_id, :tour_date, :customer_name, :customer_email, :customer_phone,
			:adults, :children, :seats, :total_amount, :currency, :status,
			:code, :qr_payload, :hold_session_id, :hold_expires_at,
			:payment_session_id, :payment_reference, :transaction_id,
			:redeemed_at, :redeemed_by, :cancel_reason,
			:confirmed_at, :cancelled_at, :expired_at, :created_at, :updated_at
		)`
	if _, err := sqlx.NamedExecContext(ctx, r.db.executor(ctx), query, b); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetBooking retrieves a booking by ID
func (r *BookingRepository) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetBookingForUpdate retrieves and locks a booking. Only meaningful inside WithTx.
func (r *BookingRepository) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

// GetBookingByCode retrieves a booking by its normalized redemption code
func (r *BookingRepository) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE code = $1`, code)
}

// GetBookingByPaymentSession retrieves a booking by checkout session ID
func (r *BookingRepository) GetBookingByPaymentSession(ctx context.Context, sessionID string) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_session_id = $1`, sessionID)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Booking, error) {
	var b models.Booking
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &b, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// ============================================================================
// STATUS UPDATES
// ============================================================================

// UpdateBooking writes the mutable columns only while the row still has
// expectedStatus. Returns ErrInvalidTransition if another writer got there first.
func (r *BookingRepository) UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus) error {
	query := `
		UPDATE bookings SET
			status = $2, code = $3, qr_payload = $4, hold_expires_at = $5,
			payment_session_id = $6, payment_reference = $7, transaction_id = $8,
			redeemed_at = $9, redeemed_by = $10, cancel_reason = $11,
			confirmed_at = $12, cancelled_at = $13, expired_at = $14, updated_at = $15
		WHERE id = $1 AND status = $16`

	result, err := r.db.executor(ctx).ExecContext(ctx, query,
		b.ID, b.Status, b.Code, b.QRPayload, b.HoldExpiresAt,
		b.PaymentSessionID, b.PaymentReference, b.TransactionID,
		b.RedeemedAt, b.RedeemedBy, b.CancelReason,
		b.ConfirmedAt, b.CancelledAt, b.ExpiredAt, b.UpdatedAt,
		expectedStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: booking %s is no longer %s", models.ErrInvalidTransition, b.ID, expectedStatus)
	}
	return nil
}

// MarkRedeemed flips a confirmed, unredeemed booking to redeemed.
// Exactly one of any number of concurrent callers gets true.
func (r *BookingRepository) MarkRedeemed(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'redeemed', redeemed_at = $2, redeemed_by = $3, updated_at = $2
		WHERE id = $1 AND status = 'confirmed' AND redeemed_at IS NULL`

	result, err := r.db.executor(ctx).ExecContext(ctx, query, id, at, actorID)
	if err != nil {
		return false, fmt.Errorf("failed to mark booking redeemed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ListLapsedReservations returns reserved bookings whose hold expired at or before now
func (r *BookingRepository) ListLapsedReservations(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'reserved' AND hold_expires_at <= $1
		ORDER BY hold_expires_at
		LIMIT $2`

	bookings := []models.Booking{}
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &bookings, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list lapsed reservations: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// ISSUED CODES
// ============================================================================

// RegisterCode records a code in the permanent registry. Returns
// ErrCodeCollision if the code was ever issued before.
func (r *BookingRepository) RegisterCode(ctx context.Context, code string, bookingID uuid.UUID, at time.Time) error {
	query := `
		INSERT INTO issued_codes (code, booking_id, issued_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING`

	result, err := r.db.executor(ctx).ExecContext(ctx, query, code, bookingID, at)
	if err != nil {
		return fmt.Errorf("failed to register code: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrCodeCollision
	}
	return nil
}
