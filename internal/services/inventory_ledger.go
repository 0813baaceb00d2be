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

// lapsedHoldBatch bounds how many lapsed holds one release pass reclaims.
const lapsedHoldBatch = 500

// InventoryLedger is the authoritative count of seats committed per (tour, date).
// The conditional update in LedgerRepository.TryCommitSeats is the only
// serialization point between concurrent bookings for one key.
type InventoryLedger struct {
	tx     TxManager
	tours  TourRepository
	ledger LedgerRepository
	holds  HoldRepository
	logger *logrus.Logger
	now    func() time.Time
}

// NewInventoryLedger creates a new InventoryLedger
func NewInventoryLedger(tx TxManager, tours TourRepository, ledger LedgerRepository, holds HoldRepository, logger *logrus.Logger) *InventoryLedger {
	return &InventoryLedger{
		tx:     tx,
		tours:  tours,
		ledger: ledger,
		holds:  holds,
		logger: logger,
		now:    time.Now,
	}
}

// Reserve commits seats for (tour, date) or fails with ErrCapacityExceeded.
// Nothing is written on failure.
func (l *InventoryLedger) Reserve(ctx context.Context, tourID uuid.UUID, date time.Time, seats int) (*models.Reservation, error) {
	if seats <= 0 {
		return nil, models.ErrInvalidSeats
	}
	date = models.TourDate(date)

	tour, err := l.tours.GetTour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	if !tour.IsActive() {
		return nil, models.ErrTourInactive
	}
	if err := l.ledger.EnsureLedger(ctx, tourID, date, tour.Capacity); err != nil {
		return nil, err
	}

	committed, ok, err := l.ledger.TryCommitSeats(ctx, tourID, date, seats)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.HoldsRejected.Inc()
		return nil, fmt.Errorf("%w: %d seats requested for %s on %s",
			models.ErrCapacityExceeded, seats, tourID, date.Format("2006-01-02"))
	}

	return &models.Reservation{TourID: tourID, TourDate: date, Seats: seats, Committed: committed}, nil
}

// Release gives a reservation's seats back to the ledger.
func (l *InventoryLedger) Release(ctx context.Context, r *models.Reservation) error {
	if r == nil || r.Seats <= 0 {
		return models.ErrInvalidSeats
	}
	committed, err := l.ledger.ReleaseSeats(ctx, r.TourID, models.TourDate(r.TourDate), r.Seats)
	if err != nil {
		return err
	}
	r.Committed = committed
	return nil
}

// CommittedSeats returns live holds plus reserved, confirmed and redeemed
// bookings for the key. Lapsed holds are released first so they are never counted.
func (l *InventoryLedger) CommittedSeats(ctx context.Context, tourID uuid.UUID, date time.Time) (int, error) {
	avail, err := l.Availability(ctx, tourID, date)
	if err != nil {
		return 0, err
	}
	return avail.Committed, nil
}

// Availability returns capacity, committed and remaining seats for the key.
func (l *InventoryLedger) Availability(ctx context.Context, tourID uuid.UUID, date time.Time) (*models.Availability, error) {
	date = models.TourDate(date)
	tour, err := l.tours.GetTour(ctx, tourID)
	if err != nil {
		return nil, err
	}

	var capacity, committed int
	err = l.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := l.releaseLapsed(ctx, &tourID, date, l.now()); err != nil {
			return err
		}
		var found bool
		var err error
		capacity, committed, found, err = l.ledger.GetLedger(ctx, tourID, date)
		if err != nil {
			return err
		}
		if !found {
			capacity, committed = tour.Capacity, 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.Availability{
		TourID:    tourID,
		Date:      date.Format("2006-01-02"),
		Capacity:  capacity,
		Committed: committed,
		Remaining: capacity - committed,
	}, nil
}

// releaseLapsed deletes holds lapsed at now and gives their seats back. The
// delete and the decrement share the caller's transaction, so a hold that is
// already gone is never decremented twice. Used lazily by reads and by the sweep.
func (l *InventoryLedger) releaseLapsed(ctx context.Context, tourID *uuid.UUID, date time.Time, now time.Time) (int, error) {
	released := 0
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		holds, err := l.holds.DeleteLapsedHolds(ctx, tourID, date, now, lapsedHoldBatch)
		if err != nil {
			return err
		}
		for _, h := range holds {
			if _, err := l.ledger.ReleaseSeats(ctx, h.TourID, h.TourDate, h.Seats); err != nil {
				return fmt.Errorf("failed to release lapsed hold %s: %w", h.SessionID, err)
			}
			metrics.HoldsReleased.WithLabelValues("expired").Inc()
		}
		released = len(holds)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		l.logger.WithFields(logrus.Fields{
			"count": released,
		}).Debug("Released lapsed seat holds")
	}
	return released, nil
}
