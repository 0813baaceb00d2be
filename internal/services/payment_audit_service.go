package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentAuditService records every gateway interaction. Audit failures are
// logged and swallowed: they must never fail the payment flow itself.
type PaymentAuditService struct {
	repo   PaymentAuditRepository
	mode   models.PaymentMode
	logger *logrus.Logger
}

// NewPaymentAuditService creates a new payment audit service
func NewPaymentAuditService(repo PaymentAuditRepository, mode models.PaymentMode, logger *logrus.Logger) *PaymentAuditService {
	return &PaymentAuditService{repo: repo, mode: mode, logger: logger}
}

// PaymentEvent describes one interaction to record
type PaymentEvent struct {
	Type             models.PaymentEventType
	BookingID        uuid.UUID
	SessionID        string
	PaymentReference string
	Amount           *models.Money
	State            models.PaymentState
	Err              error
}

// Record writes an audit entry
func (s *PaymentAuditService) Record(ctx context.Context, e PaymentEvent) {
	audit := &models.PaymentAudit{
		EventType:        e.Type,
		Mode:             s.mode,
		SessionID:        nonEmpty(e.SessionID),
		PaymentReference: nonEmpty(e.PaymentReference),
		Amount:           e.Amount,
		PaymentState:     nonEmpty(string(e.State)),
	}
	if e.BookingID != uuid.Nil {
		id := e.BookingID
		audit.BookingID = &id
	}
	if e.Err != nil {
		msg := e.Err.Error()
		audit.ErrorMessage = &msg
	}

	if err := s.repo.LogPaymentEvent(context.WithoutCancel(ctx), audit); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": e.Type,
			"booking_id": e.BookingID,
		}).Error("Failed to record payment audit")
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
