package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/metrics"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultHoldTTL bounds how long an abandoned checkout keeps seats locked
const DefaultHoldTTL = 10 * time.Minute

// HoldManager creates, extends and releases time-bounded seat holds.
//
// A hold is lapsed from its expiry instant onwards (models.HoldLapsed). Every
// read path checks that predicate and the sweep deletes with the same
// boundary, so a hold is never usable past its TTL whichever path sees it first.
type HoldManager struct {
	tx     TxManager
	ledger *InventoryLedger
	holds  HoldRepository
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewHoldManager creates a new HoldManager. A non-positive ttl uses DefaultHoldTTL.
func NewHoldManager(tx TxManager, ledger *InventoryLedger, holds HoldRepository, ttl time.Duration, logger *logrus.Logger) *HoldManager {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	return &HoldManager{
		tx:     tx,
		ledger: ledger,
		holds:  holds,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// TTL returns the default hold duration
func (m *HoldManager) TTL() time.Duration {
	return m.ttl
}

// CreateHold reserves seats and records the hold in one atomic unit.
// Lapsed holds on the same key are reclaimed first so they never block a new hold.
func (m *HoldManager) CreateHold(ctx context.Context, tourID uuid.UUID, date time.Time, seats int, sessionID string, ttl time.Duration) (*models.SeatHold, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if ttl <= 0 {
		ttl = m.ttl
	}
	date = models.TourDate(date)

	var hold *models.SeatHold
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		now := m.now()
		if _, err := m.ledger.releaseLapsed(ctx, &tourID, date, now); err != nil {
			return err
		}
		if _, err := m.ledger.Reserve(ctx, tourID, date, seats); err != nil {
			return err
		}
		hold = &models.SeatHold{
			ID:        uuid.New(),
			TourID:    tourID,
			TourDate:  date,
			Seats:     seats,
			SessionID: sessionID,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}
		return m.holds.CreateHold(ctx, hold)
	})
	if err != nil {
		return nil, err
	}

	metrics.HoldsCreated.Inc()
	m.logger.WithFields(logrus.Fields{
		"hold_id":    hold.ID,
		"tour_id":    tourID,
		"tour_date":  date.Format("2006-01-02"),
		"seats":      seats,
		"expires_at": hold.ExpiresAt,
	}).Info("Seat hold created")
	return hold, nil
}

// GetLiveHold returns the session's hold if it has not lapsed at now.
// A lapsed hold is reported as ErrHoldExpired even if the sweep has not run.
func (m *HoldManager) GetLiveHold(ctx context.Context, sessionID string, now time.Time) (*models.SeatHold, error) {
	hold, err := m.holds.GetHoldBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, models.ErrHoldNotFound
	}
	if hold.IsExpired(now) {
		return nil, models.ErrHoldExpired
	}
	return hold, nil
}

// ExtendHold pushes a live hold's expiry to now + ttl.
func (m *HoldManager) ExtendHold(ctx context.Context, sessionID string, ttl time.Duration) (*models.SeatHold, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}

	var hold *models.SeatHold
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		now := m.now()
		live, err := m.GetLiveHold(ctx, sessionID, now)
		if err != nil {
			return err
		}
		expiresAt := now.Add(ttl)
		ok, err := m.holds.UpdateHoldExpiry(ctx, sessionID, expiresAt, now)
		if err != nil {
			return err
		}
		if !ok {
			return models.ErrHoldExpired
		}
		live.ExpiresAt = expiresAt
		hold = live
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

// ReleaseHold deletes the hold and gives its seats back. Releasing a hold
// that is already gone is a no-op, so duplicate calls decrement once.
func (m *HoldManager) ReleaseHold(ctx context.Context, sessionID string) error {
	_, err := m.releaseHold(ctx, sessionID, "released")
	return err
}

// releaseHold returns the released hold, or nil if it was already gone.
func (m *HoldManager) releaseHold(ctx context.Context, sessionID, reason string) (*models.SeatHold, error) {
	var released *models.SeatHold
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		hold, err := m.holds.DeleteHold(ctx, sessionID)
		if err != nil || hold == nil {
			return err
		}
		if err := m.ledger.Release(ctx, &models.Reservation{TourID: hold.TourID, TourDate: hold.TourDate, Seats: hold.Seats}); err != nil {
			return err
		}
		released = hold
		return nil
	})
	if err != nil {
		return nil, err
	}
	if released != nil {
		metrics.HoldsReleased.WithLabelValues(reason).Inc()
	}
	return released, nil
}

// consumeHold deletes a live hold without touching the ledger: its seats now
// belong to the confirmed booking. Must run inside the confirming transaction.
func (m *HoldManager) consumeHold(ctx context.Context, sessionID string, now time.Time) (*models.SeatHold, error) {
	hold, err := m.GetLiveHold(ctx, sessionID, now)
	if err != nil {
		return nil, err
	}
	if _, err := m.holds.DeleteHold(ctx, sessionID); err != nil {
		return nil, err
	}
	metrics.HoldsReleased.WithLabelValues("converted").Inc()
	return hold, nil
}

// ExpireStaleHolds reclaims every hold lapsed at now, across all tours.
func (m *HoldManager) ExpireStaleHolds(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		n, err := m.ledger.releaseLapsed(ctx, nil, time.Time{}, now)
		if err != nil {
			return total, err
		}
		total += n
		if n < lapsedHoldBatch {
			return total, nil
		}
	}
}
