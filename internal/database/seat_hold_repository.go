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

// HoldRepository handles seat_holds. Holds are deleted, never updated to a
// terminal status, so a missing row means released, expired or converted.
type HoldRepository struct {
	db *PostgresDB
}

// NewHoldRepository creates a new HoldRepository
func NewHoldRepository(db *PostgresDB) *HoldRepository {
	return &HoldRepository{db: db}
}

const holdColumns = `id, tour_id, tour_date, seats, session_id, booking_id, expires_at, created_at`

// CreateHold inserts a hold
func (r *HoldRepository) CreateHold(ctx context.Context, hold *models.SeatHold) error {
	if hold.ID == uuid.Nil {
		hold.ID = uuid.New()
	}
	if hold.CreatedAt.IsZero() {
		hold.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO seat_holds (` + holdColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.executor(ctx).ExecContext(ctx, query,
		hold.ID, hold.TourID, hold.TourDate, hold.Seats, hold.SessionID,
		hold.BookingID, hold.ExpiresAt, hold.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("hold already exists for session %s", hold.SessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to create seat hold: %w", err)
	}
	return nil
}

// GetHoldBySession returns the hold for a session, or nil if there is none.
// Inside a transaction the row is locked.
func (r *HoldRepository) GetHoldBySession(ctx context.Context, sessionID string) (*models.SeatHold, error) {
	query := `SELECT ` + holdColumns + ` FROM seat_holds WHERE session_id = $1`
	if _, inTx := ctx.Value(txKey{}).(*sqlx.Tx); inTx {
		query += ` FOR UPDATE`
	}

	var hold models.SeatHold
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &hold, query, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seat hold: %w", err)
	}
	return &hold, nil
}

// DeleteHold removes a hold and returns it. A nil hold means it was already gone.
func (r *HoldRepository) DeleteHold(ctx context.Context, sessionID string) (*models.SeatHold, error) {
	query := `DELETE FROM seat_holds WHERE session_id = $1 RETURNING ` + holdColumns

	var hold models.SeatHold
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &hold, query, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete seat hold: %w", err)
	}
	return &hold, nil
}

// UpdateHoldExpiry moves the expiry of a live hold. Returns false if the hold
// is gone or already lapsed at now.
func (r *HoldRepository) UpdateHoldExpiry(ctx context.Context, sessionID string, expiresAt, now time.Time) (bool, error) {
	query := `
		UPDATE seat_holds
		SET expires_at = $2
		WHERE session_id = $1 AND expires_at > $3`
	result, err := r.db.executor(ctx).ExecContext(ctx, query, sessionID, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("failed to extend seat hold: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteLapsedHolds removes up to limit holds whose expiry is at or before now
// and returns them so the caller can give their seats back to the ledger.
// A nil tourID sweeps every tour; a zero date sweeps every date.
func (r *HoldRepository) DeleteLapsedHolds(ctx context.Context, tourID *uuid.UUID, date time.Time, now time.Time, limit int) ([]models.SeatHold, error) {
	query := `
		DELETE FROM seat_holds
		WHERE id IN (
			SELECT id FROM seat_holds
			WHERE expires_at <= $1
			  AND ($2::uuid IS NULL OR tour_id = $2)
			  AND ($3::date IS NULL OR tour_date = $3)
			ORDER BY expires_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + holdColumns

	var dateArg interface{}
	if !date.IsZero() {
		dateArg = date
	}

	holds := []models.SeatHold{}
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &holds, query, now, tourID, dateArg, limit); err != nil {
		return nil, fmt.Errorf("failed to delete lapsed holds: %w", err)
	}
	return holds, nil
}
