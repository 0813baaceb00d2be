// Package memstore is an in-memory implementation of the booking storage
// ports. It backs sandbox deployments without a database and service tests.
//
// A single mutex is held for the duration of every WithTx call, which gives
// the same serialization the Postgres row locks give per ledger key. A failed
// transaction restores the snapshot taken when it began.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
)

type txKey struct{}

type ledgerKey struct {
	tourID uuid.UUID
	date   time.Time
}

type ledgerRow struct {
	capacity  int
	committed int
}

type state struct {
	tours        map[uuid.UUID]models.Tour
	ledger       map[ledgerKey]ledgerRow
	holds        map[string]models.SeatHold
	bookings     map[uuid.UUID]models.Booking
	codes        map[string]models.IssuedCode
	redemptions  []models.TicketRedemption
	transactions map[uuid.UUID]models.Transaction
}

func newState() state {
	return state{
		tours:        map[uuid.UUID]models.Tour{},
		ledger:       map[ledgerKey]ledgerRow{},
		holds:        map[string]models.SeatHold{},
		bookings:     map[uuid.UUID]models.Booking{},
		codes:        map[string]models.IssuedCode{},
		transactions: map[uuid.UUID]models.Transaction{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.tours {
		c.tours[k] = v
	}
	for k, v := range s.ledger {
		c.ledger[k] = v
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	c.redemptions = append([]models.TicketRedemption(nil), s.redemptions...)
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	return c
}

// Store holds every table in memory
type Store struct {
	mu    sync.Mutex
	data  state
	audit []models.PaymentAudit // outside the snapshot: audits survive rollback
}

// New creates an empty Store
func New() *Store {
	return &Store{data: newState()}
}

// WithTx runs fn with the store locked; an error rolls back every write fn made.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lock acquires the store mutex unless ctx already holds it through WithTx.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// PingContext fails only when ctx is done; the store itself is always up.
func (s *Store) PingContext(ctx context.Context) error {
	return ctx.Err()
}

// ============================================================================
// TOURS
// ============================================================================

// CreateTour inserts a tour
func (s *Store) CreateTour(ctx context.Context, tour *models.Tour) error {
	defer s.lock(ctx)()
	if tour.ID == uuid.Nil {
		tour.ID = uuid.New()
	}
	now := time.Now()
	tour.CreatedAt, tour.UpdatedAt = now, now
	s.data.tours[tour.ID] = *tour
	return nil
}

// GetTour retrieves a tour by ID
func (s *Store) GetTour(ctx context.Context, id uuid.UUID) (*models.Tour, error) {
	defer s.lock(ctx)()
	t, ok := s.data.tours[id]
	if !ok {
		return nil, models.ErrTourNotFound
	}
	return &t, nil
}

// ============================================================================
// LEDGER
// ============================================================================

func key(tourID uuid.UUID, date time.Time) ledgerKey {
	return ledgerKey{tourID: tourID, date: models.TourDate(date)}
}

// EnsureLedger creates the ledger row on first use
func (s *Store) EnsureLedger(ctx context.Context, tourID uuid.UUID, date time.Time, capacity int) error {
	defer s.lock(ctx)()
	k := key(tourID, date)
	if _, ok := s.data.ledger[k]; !ok {
		s.data.ledger[k] = ledgerRow{capacity: capacity}
	}
	return nil
}

// TryCommitSeats commits seats if capacity allows
func (s *Store) TryCommitSeats(ctx context.Context, tourID uuid.UUID, date time.Time, seats int) (int, bool, error) {
	defer s.lock(ctx)()
	k := key(tourID, date)
	row, ok := s.data.ledger[k]
	if !ok || row.committed+seats > row.capacity {
		return 0, false, nil
	}
	row.committed += seats
	s.data.ledger[k] = row
	return row.committed, true, nil
}

// ReleaseSeats gives seats back
func (s *Store) ReleaseSeats(ctx context.Context, tourID uuid.UUID, date time.Time, seats int) (int, error) {
	defer s.lock(ctx)()
	k := key(tourID, date)
	row, ok := s.data.ledger[k]
	if !ok || row.committed < seats {
		return 0, errLedgerUnderflow
	}
	row.committed -= seats
	s.data.ledger[k] = row
	return row.committed, nil
}

// GetLedger reads capacity and committed seats
func (s *Store) GetLedger(ctx context.Context, tourID uuid.UUID, date time.Time) (int, int, bool, error) {
	defer s.lock(ctx)()
	row, ok := s.data.ledger[key(tourID, date)]
	return row.capacity, row.committed, ok, nil
}

// ============================================================================
// HOLDS
// ============================================================================

// CreateHold inserts a hold
func (s *Store) CreateHold(ctx context.Context, hold *models.SeatHold) error {
	defer s.lock(ctx)()
	if _, exists := s.data.holds[hold.SessionID]; exists {
		return errDuplicateSession
	}
	if hold.ID == uuid.Nil {
		hold.ID = uuid.New()
	}
	if hold.CreatedAt.IsZero() {
		hold.CreatedAt = time.Now()
	}
	s.data.holds[hold.SessionID] = *hold
	return nil
}

// GetHoldBySession returns the hold or nil
func (s *Store) GetHoldBySession(ctx context.Context, sessionID string) (*models.SeatHold, error) {
	defer s.lock(ctx)()
	h, ok := s.data.holds[sessionID]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// DeleteHold removes and returns a hold, nil if already gone
func (s *Store) DeleteHold(ctx context.Context, sessionID string) (*models.SeatHold, error) {
	defer s.lock(ctx)()
	h, ok := s.data.holds[sessionID]
	if !ok {
		return nil, nil
	}
	delete(s.data.holds, sessionID)
	return &h, nil
}

// UpdateHoldExpiry extends a live hold
func (s *Store) UpdateHoldExpiry(ctx context.Context, sessionID string, expiresAt, now time.Time) (bool, error) {
	defer s.lock(ctx)()
	h, ok := s.data.holds[sessionID]
	if !ok || h.IsExpired(now) {
		return false, nil
	}
	h.ExpiresAt = expiresAt
	s.data.holds[sessionID] = h
	return true, nil
}

// DeleteLapsedHolds removes up to limit lapsed holds, oldest expiry first
func (s *Store) DeleteLapsedHolds(ctx context.Context, tourID *uuid.UUID, date time.Time, now time.Time, limit int) ([]models.SeatHold, error) {
	defer s.lock(ctx)()
	var lapsed []models.SeatHold
	for _, h := range s.data.holds {
		if !h.IsExpired(now) {
			continue
		}
		if tourID != nil && h.TourID != *tourID {
			continue
		}
		if !date.IsZero() && !h.TourDate.Equal(models.TourDate(date)) {
			continue
		}
		lapsed = append(lapsed, h)
	}
	sort.Slice(lapsed, func(i, j int) bool { return lapsed[i].ExpiresAt.Before(lapsed[j].ExpiresAt) })
	if limit > 0 && len(lapsed) > limit {
		lapsed = lapsed[:limit]
	}
	for _, h := range lapsed {
		delete(s.data.holds, h.SessionID)
	}
	return lapsed, nil
}
