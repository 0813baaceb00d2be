package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerRepository owns the per (tour, date) committed-seat counter.
// Every write is a single conditional statement, so concurrent writers on the
// same key are serialized by the row lock and capacity is never overshot.
type LedgerRepository struct {
	db *PostgresDB
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *PostgresDB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// EnsureLedger creates the ledger row for a key on first use.
func (r *LedgerRepository) EnsureLedger(ctx context.Context, tourID uuid.UUID, date time.Time, capacity int) error {
	query := `
		INSERT INTO inventory_ledger (tour_id, tour_date, capacity, committed_seats, updated_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (tour_id, tour_date) DO NOTHING`
	if _, err := r.db.executor(ctx).ExecContext(ctx, query, tourID, date, capacity); err != nil {
		return fmt.Errorf("failed to ensure ledger row: %w", err)
	}
	return nil
}

// TryCommitSeats adds seats to the commitment only if capacity allows.
// ok is false when the request would exceed capacity; nothing is written then.
func (r *LedgerRepository) TryCommitSeats(ctx context.Context, tourID uuid.UUID, date time.Time, seats int) (int, bool, error) {
	query := `
		UPDATE inventory_ledger
		SET committed_seats = committed_seats + $3, updated_at = NOW()
		WHERE tour_id = $1 AND tour_date = $2
		  AND committed_seats + $3 <= capacity
		RETURNING committed_seats`

	var committed int
	err := r.db.executor(ctx).QueryRowxContext(ctx, query, tourID, date, seats).Scan(&committed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to commit seats: %w", err)
	}
	return committed, true, nil
}

// ReleaseSeats removes seats from the commitment.
func (r *LedgerRepository) ReleaseSeats(ctx context.Context, tourID uuid.UUID, date time.Time, seats int) (int, error) {
	query := `
		UPDATE inventory_ledger
		SET committed_seats = committed_seats - $3, updated_at = NOW()
		WHERE tour_id = $1 AND tour_date = $2
		  AND committed_seats >= $3
		RETURNING committed_seats`

	var committed int
	err := r.db.executor(ctx).QueryRowxContext(ctx, query, tourID, date, seats).Scan(&committed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("ledger underflow releasing %d seats for tour %s on %s", seats, tourID, date.Format("2006-01-02"))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}
	return committed, nil
}

// GetLedger returns capacity and committed seats; found is false when no row exists yet.
func (r *LedgerRepository) GetLedger(ctx context.Context, tourID uuid.UUID, date time.Time) (int, int, bool, error) {
	query := `
		SELECT capacity, committed_seats
		FROM inventory_ledger
		WHERE tour_id = $1 AND tour_date = $2`

	var capacity, committed int
	err := r.db.executor(ctx).QueryRowxContext(ctx, query, tourID, date).Scan(&capacity, &committed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read ledger: %w", err)
	}
	return capacity, committed, true, nil
}
