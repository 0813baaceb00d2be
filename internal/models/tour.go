package models

import (
	"time"

	"github.com/google/uuid"
)

// TourStatus is active or inactive. Inactive tours accept no new holds.
type TourStatus string

const (
	TourStatusActive   TourStatus = "active"
	TourStatusInactive TourStatus = "inactive"
)

// Tour is a guided tour with a fixed per-date seat capacity
type Tour struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Capacity   int        `json:"capacity" db:"capacity"`
	Price      Money      `json:"price" db:"price"`
	ChildPrice Money      `json:"child_price" db:"child_price"` // 0 means same as Price
	Currency   string     `json:"currency" db:"currency"`
	Status     TourStatus `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether new holds may be placed.
func (t *Tour) IsActive() bool {
	return t.Status == TourStatusActive
}

// PriceFor returns the total for the given party.
func (t *Tour) PriceFor(adults, children int) Money {
	child := t.ChildPrice
	if child == 0 {
		child = t.Price
	}
	return t.Price*Money(adults) + child*Money(children)
}

// TourDate truncates a timestamp to the UTC calendar date used as inventory key.
func TourDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseTourDate parses "2006-01-02".
func ParseTourDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return TourDate(d), nil
}

// Availability is the seat picture for one (tour, date).
type Availability struct {
	TourID    uuid.UUID `json:"tour_id"`
	Date      string    `json:"date"`
	Capacity  int       `json:"capacity"`
	Committed int       `json:"committed"`
	Remaining int       `json:"remaining"`
}
