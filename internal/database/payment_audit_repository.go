package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *PostgresDB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *PostgresDB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// LogPaymentEvent creates a new payment audit entry.
// Payment events must never be dropped silently.
func (r *PaymentAuditRepository) LogPaymentEvent(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, session_id, payment_reference, event_type, mode,
			amount, payment_state, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	// Written on the pool, not the caller's transaction: the audit survives a rollback.
	_, err := r.db.DB.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.SessionID, audit.PaymentReference,
		audit.EventType, audit.Mode, audit.Amount, audit.PaymentState,
		audit.ErrorMessage, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
		}).Error("CRITICAL: Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")
	return nil
}

// ListPaymentEvents returns the audit trail for a booking
func (r *PaymentAuditRepository) ListPaymentEvents(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	query := `
		SELECT id, booking_id, session_id, payment_reference, event_type, mode,
		       amount, payment_state, error_message, created_at
		FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at`
	out := []models.PaymentAudit{}
	if err := sqlx.SelectContext(ctx, r.db.DB, &out, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return out, nil
}
