package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
)

// Storage ports. database.PostgresDB repositories and memstore.Store both
// satisfy them; method names are unique so one value can implement all.

// TxManager runs fn in one atomic unit. Nested calls join the outer unit.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TourRepository reads tours
type TourRepository interface {
	GetTour(ctx context.Context, id uuid.UUID) (*models.Tour, error)
}

// LedgerRepository stores the committed-seat counter per (tour, date)
type LedgerRepository interface {
	EnsureLedger(ctx context.Context, tourID uuid.UUID, date time.Time, capacity int) error
	TryCommitSeats(ctx context.Context, tourID uuid.UUID, date time.Time, seats int) (int, bool, error)
	ReleaseSeats(ctx context.Context, tourID uuid.UUID, date time.Time, seats int) (int, error)
	GetLedger(ctx context.Context, tourID uuid.UUID, date time.Time) (capacity, committed int, found bool, err error)
}

// HoldRepository stores seat holds
type HoldRepository interface {
	CreateHold(ctx context.Context, hold *models.SeatHold) error
	GetHoldBySession(ctx context.Context, sessionID string) (*models.SeatHold, error)
	DeleteHold(ctx context.Context, sessionID string) (*models.SeatHold, error)
	UpdateHoldExpiry(ctx context.Context, sessionID string, expiresAt, now time.Time) (bool, error)
	DeleteLapsedHolds(ctx context.Context, tourID *uuid.UUID, date time.Time, now time.Time, limit int) ([]models.SeatHold, error)
}

// BookingRepository stores bookings and the issued-code registry
type BookingRepository interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingByCode(ctx context.Context, code string) (*models.Booking, error)
	GetBookingByPaymentSession(ctx context.Context, sessionID string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus) error
	MarkRedeemed(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error)
	ListLapsedReservations(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
}

// CodeRegistry remembers every code ever issued
type CodeRegistry interface {
	RegisterCode(ctx context.Context, code string, bookingID uuid.UUID, at time.Time) error
}

// RedemptionRepository stores the redemption audit trail
type RedemptionRepository interface {
	CreateRedemption(ctx context.Context, r *models.TicketRedemption) error
	ListRedemptions(ctx context.Context, bookingID uuid.UUID) ([]models.TicketRedemption, error)
}

// TransactionRepository stores settlement transactions
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus, at time.Time) error
	ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error)
}

// PaymentAuditRepository stores gateway interaction logs
type PaymentAuditRepository interface {
	LogPaymentEvent(ctx context.Context, audit *models.PaymentAudit) error
}

// EventPublisher receives booking lifecycle events after commit
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, booking *models.Booking) error
}

// Store bundles every storage port. Used by wiring code and tests.
type Store struct {
	Tx           TxManager
	Tours        TourRepository
	Ledger       LedgerRepository
	Holds        HoldRepository
	Bookings     BookingRepository
	Codes        CodeRegistry
	Redemptions  RedemptionRepository
	Transactions TransactionRepository
	Audits       PaymentAuditRepository
}
