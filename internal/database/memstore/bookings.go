package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
)

var (
	errLedgerUnderflow  = errors.New("ledger underflow")
	errDuplicateSession = errors.New("hold already exists for session")
)

// ============================================================================
// BOOKINGS
// ============================================================================

// CreateBooking inserts a booking
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	defer s.lock(ctx)()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, exists := s.data.bookings[b.ID]; exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = b.CreatedAt
	s.data.bookings[b.ID] = *b
	return nil
}

// GetBooking retrieves a booking by ID
func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	defer s.lock(ctx)()
	b, ok := s.data.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	return &b, nil
}

// GetBookingForUpdate is GetBooking; the transaction already holds the store lock.
func (s *Store) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.GetBooking(ctx, id)
}

// GetBookingByCode finds a booking by canonical code
func (s *Store) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	defer s.lock(ctx)()
	for _, b := range s.data.bookings {
		if b.Code != nil && *b.Code == code {
			return &b, nil
		}
	}
	return nil, models.ErrBookingNotFound
}

// GetBookingByPaymentSession finds a booking by checkout session
func (s *Store) GetBookingByPaymentSession(ctx context.Context, sessionID string) (*models.Booking, error) {
	defer s.lock(ctx)()
	for _, b := range s.data.bookings {
		if b.PaymentSessionID != nil && *b.PaymentSessionID == sessionID {
			return &b, nil
		}
	}
	return nil, models.ErrBookingNotFound
}

// UpdateBooking replaces the row if it still has expectedStatus
func (s *Store) UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus) error {
	defer s.lock(ctx)()
	current, ok := s.data.bookings[b.ID]
	if !ok || current.Status != expectedStatus {
		return fmt.Errorf("%w: booking %s is no longer %s", models.ErrInvalidTransition, b.ID, expectedStatus)
	}
	if b.Code != nil {
		for id, other := range s.data.bookings {
			if id != b.ID && other.Code != nil && *other.Code == *b.Code {
				return fmt.Errorf("code %s already assigned", *b.Code)
			}
		}
	}
	updated := *b
	updated.CreatedAt = current.CreatedAt
	s.data.bookings[b.ID] = updated
	return nil
}

// MarkRedeemed flips confirmed to redeemed exactly once
func (s *Store) MarkRedeemed(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (bool, error) {
	defer s.lock(ctx)()
	b, ok := s.data.bookings[id]
	if !ok || b.Status != models.BookingStatusConfirmed || b.RedeemedAt != nil {
		return false, nil
	}
	b.Status = models.BookingStatusRedeemed
	b.RedeemedAt = &at
	b.RedeemedBy = &actorID
	b.UpdatedAt = at
	s.data.bookings[id] = b
	return true, nil
}

// ListLapsedReservations returns reserved bookings past their hold expiry
func (s *Store) ListLapsedReservations(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	defer s.lock(ctx)()
	var out []models.Booking
	for _, b := range s.data.bookings {
		if b.HoldLapsed(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HoldExpiresAt.Before(*out[j].HoldExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RegisterCode records an issued code; a repeat is ErrCodeCollision
func (s *Store) RegisterCode(ctx context.Context, code string, bookingID uuid.UUID, at time.Time) error {
	defer s.lock(ctx)()
	if _, exists := s.data.codes[code]; exists {
		return models.ErrCodeCollision
	}
	s.data.codes[code] = models.IssuedCode{Code: code, BookingID: bookingID, IssuedAt: at}
	return nil
}

// IssuedCodes returns the number of codes ever issued
func (s *Store) IssuedCodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.codes)
}

// ============================================================================
// REDEMPTIONS
// ============================================================================

// CreateRedemption appends an audit row; one per booking
func (s *Store) CreateRedemption(ctx context.Context, r *models.TicketRedemption) error {
	defer s.lock(ctx)()
	for _, existing := range s.data.redemptions {
		if existing.BookingID == r.BookingID {
			return models.ErrAlreadyRedeemed
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.data.redemptions = append(s.data.redemptions, *r)
	return nil
}

// ListRedemptions returns the audit rows for a booking
func (s *Store) ListRedemptions(ctx context.Context, bookingID uuid.UUID) ([]models.TicketRedemption, error) {
	defer s.lock(ctx)()
	out := []models.TicketRedemption{}
	for _, r := range s.data.redemptions {
		if r.BookingID == bookingID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ============================================================================
// TRANSACTIONS
// ============================================================================

// CreateTransaction inserts a transaction
func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	defer s.lock(ctx)()
	if !t.Reconciles() {
		return fmt.Errorf("transaction components do not sum to gross %s", t.GrossAmount)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = t.CreatedAt
	s.data.transactions[t.ID] = *t
	return nil
}

// GetTransaction returns a transaction or nil
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	defer s.lock(ctx)()
	t, ok := s.data.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// UpdateTransactionStatus sets the status
func (s *Store) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus, at time.Time) error {
	defer s.lock(ctx)()
	t, ok := s.data.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s not found", id)
	}
	t.Status = status
	t.UpdatedAt = at
	s.data.transactions[id] = t
	return nil
}

// ListTransactions returns transactions created in [from, to)
func (s *Store) ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	defer s.lock(ctx)()
	out := []models.Transaction{}
	for _, t := range s.data.transactions {
		if !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ============================================================================
// PAYMENT AUDITS
// ============================================================================

// LogPaymentEvent appends an audit entry; never rolled back
func (s *Store) LogPaymentEvent(ctx context.Context, audit *models.PaymentAudit) error {
	defer s.lock(ctx)()
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}
	s.audit = append(s.audit, *audit)
	return nil
}

// ListPaymentEvents returns the audit trail for a booking
func (s *Store) ListPaymentEvents(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	defer s.lock(ctx)()
	out := []models.PaymentAudit{}
	for _, a := range s.audit {
		if a.BookingID != nil && *a.BookingID == bookingID {
			out = append(out, a)
		}
	}
	return out, nil
}
