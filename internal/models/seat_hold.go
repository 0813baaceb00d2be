package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatHold is a time-bounded provisional seat commitment that precedes payment.
// It is deleted on release, expiry or conversion into a confirmed booking.
type SeatHold struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TourID    uuid.UUID  `json:"tour_id" db:"tour_id"`
	TourDate  time.Time  `json:"tour_date" db:"tour_date"`
	Seats     int        `json:"seats" db:"seats"`
	SessionID string     `json:"session_id" db:"session_id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// HoldLapsed is the single expiry predicate: a hold is unusable from its
// expiry instant onwards. SQL paths use the same boundary (expires_at <= now).
func HoldLapsed(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// IsExpired checks the hold against now.
func (h *SeatHold) IsExpired(now time.Time) bool {
	return HoldLapsed(h.ExpiresAt, now)
}

// Reservation is a ledger commitment returned by the inventory ledger.
type Reservation struct {
	TourID    uuid.UUID `json:"tour_id"`
	TourDate  time.Time `json:"tour_date"`
	Seats     int       `json:"seats"`
	Committed int       `json:"committed"`
}
