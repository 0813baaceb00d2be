package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// RedemptionRepository stores the append-only redemption audit trail
type RedemptionRepository struct {
	db *PostgresDB
}

// NewRedemptionRepository creates a new RedemptionRepository
func NewRedemptionRepository(db *PostgresDB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// CreateRedemption inserts an audit row. The booking_id unique constraint is
// the last line against a double redemption.
func (r *RedemptionRepository) CreateRedemption(ctx context.Context, red *models.TicketRedemption) error {
	if red.ID == uuid.Nil {
		red.ID = uuid.New()
	}
	query := `
		INSERT INTO ticket_redemptions (id, booking_id, redeemed_by, method, redeemed_at, notes, device, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.executor(ctx).ExecContext(ctx, query,
		red.ID, red.BookingID, red.RedeemedBy, red.Method, red.RedeemedAt,
		red.Notes, red.Device, red.IPAddress,
	)
	if isUniqueViolation(err) {
		return models.ErrAlreadyRedeemed
	}
	if err != nil {
		return fmt.Errorf("failed to create redemption: %w", err)
	}
	return nil
}

// ListRedemptions returns the audit rows for a booking
func (r *RedemptionRepository) ListRedemptions(ctx context.Context, bookingID uuid.UUID) ([]models.TicketRedemption, error) {
	query := `
		SELECT id, booking_id, redeemed_by, method, redeemed_at, notes, device, ip_address
		FROM ticket_redemptions
		WHERE booking_id = $1
		ORDER BY redeemed_at`
	out := []models.TicketRedemption{}
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &out, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	return out, nil
}
