package services

import (
	"context"
	"sync"
	"time"

	"github.com/guidedtours/reservation-backend/internal/metrics"
	"github.com/sirupsen/logrus"
)

// HoldExpirationService reclaims seats from lapsed holds and expires the
// reservations they belonged to. Reads already ignore lapsed holds; this
// returns their capacity to the ledger promptly.
type HoldExpirationService struct {
	bookings *BookingService
	holds    *HoldManager
	logger   *logrus.Logger
	now      func() time.Time

	mu    sync.Mutex
	stats SweepStats
}

// SweepStats summarizes sweep activity since startup
type SweepStats struct {
	Runs            int       `json:"runs"`
	BookingsExpired int       `json:"bookings_expired"`
	HoldsReclaimed  int       `json:"holds_reclaimed"`
	LastRunAt       time.Time `json:"last_run_at"`
	LastRunDuration string    `json:"last_run_duration"`
	LastError       string    `json:"last_error,omitempty"`
}

// NewHoldExpirationService creates a new hold expiration service
func NewHoldExpirationService(bookings *BookingService, holds *HoldManager, logger *logrus.Logger) *HoldExpirationService {
	return &HoldExpirationService{
		bookings: bookings,
		holds:    holds,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce runs a single expiration cycle
func (s *HoldExpirationService) RunOnce(ctx context.Context) {
	start := time.Now()
	now := s.now()

	// 1. Expire reservations first so their holds are released with the booking
	expired, bookingErr := s.bookings.ExpireStaleBookings(ctx, now)
	if bookingErr != nil {
		s.logger.WithError(bookingErr).Error("Failed to expire stale bookings")
	} else if expired > 0 {
		s.logger.WithField("count", expired).Info("Expired stale bookings")
	}

	// 2. Reclaim any remaining lapsed holds
	reclaimed, holdErr := s.holds.ExpireStaleHolds(ctx, now)
	if holdErr != nil {
		s.logger.WithError(holdErr).Error("Failed to release lapsed seat holds")
	} else if reclaimed > 0 {
		s.logger.WithField("count", reclaimed).Info("Released lapsed seat holds")
	}

	metrics.SweepReclaimed.WithLabelValues("bookings").Add(float64(expired))
	metrics.SweepReclaimed.WithLabelValues("holds").Add(float64(reclaimed))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Runs++
	s.stats.BookingsExpired += expired
	s.stats.HoldsReclaimed += reclaimed
	s.stats.LastRunAt = start
	s.stats.LastRunDuration = time.Since(start).String()
	s.stats.LastError = ""
	if bookingErr != nil {
		s.stats.LastError = bookingErr.Error()
	} else if holdErr != nil {
		s.stats.LastError = holdErr.Error()
	}
}

// GetStats returns sweep statistics
func (s *HoldExpirationService) GetStats() SweepStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
