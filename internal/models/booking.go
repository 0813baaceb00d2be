package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUS (matches DB ENUM booking_status)
// ============================================================================

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusReserved  BookingStatus = "reserved"  // Hold live, waiting for payment
	BookingStatusConfirmed BookingStatus = "confirmed" // Paid, code issued
	BookingStatusRedeemed  BookingStatus = "redeemed"  // Code consumed at point of service
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired" // Hold TTL lapsed before payment
)

// bookingTransitions is the complete set of allowed moves.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusReserved, BookingStatusCancelled},
	BookingStatusReserved:  {BookingStatusConfirmed, BookingStatusExpired, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusRedeemed, BookingStatusCancelled},
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusReserved, BookingStatusConfirmed,
		BookingStatusRedeemed, BookingStatusCancelled, BookingStatusExpired:
		return true
	}
	return false
}

// CanTransitionTo checks the transition table.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// HoldsSeats reports whether bookings in s count against capacity.
func (s BookingStatus) HoldsSeats() bool {
	return s == BookingStatusReserved || s == BookingStatusConfirmed || s == BookingStatusRedeemed
}

// ============================================================================
// BOOKING MODEL (bookings table)
// ============================================================================

// Booking is a customer's seat purchase for one tour date
type Booking struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TourID   uuid.UUID `json:"tour_id" db:"tour_id"`
	TourDate time.Time `json:"tour_date" db:"tour_date"`

	CustomerName  string  `json:"customer_name" db:"customer_name"`
	CustomerEmail *string `json:"customer_email,omitempty" db:"customer_email"`
	CustomerPhone *string `json:"customer_phone,omitempty" db:"customer_phone"`

	Adults      int           `json:"adults" db:"adults"`
	Children    int           `json:"children" db:"children"`
	Seats       int           `json:"seats" db:"seats"`
	TotalAmount Money         `json:"total_amount" db:"total_amount"`
	Currency    string        `json:"currency" db:"currency"`
	Status      BookingStatus `json:"status" db:"status"`

	// Issued on confirmation
	Code      *string `json:"code,omitempty" db:"code"`
	QRPayload *string `json:"qr_payload,omitempty" db:"qr_payload"`

	// Hold tracking while reserved
	HoldSessionID string     `json:"hold_session_id" db:"hold_session_id"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty" db:"hold_expires_at"`

	// Payment tracking
	PaymentSessionID *string    `json:"payment_session_id,omitempty" db:"payment_session_id"`
	PaymentReference *string    `json:"payment_reference,omitempty" db:"payment_reference"`
	TransactionID    *uuid.UUID `json:"transaction_id,omitempty" db:"transaction_id"`

	// Redemption
	RedeemedAt *time.Time `json:"redeemed_at,omitempty" db:"redeemed_at"`
	RedeemedBy *string    `json:"redeemed_by,omitempty" db:"redeemed_by"`

	CancelReason *string    `json:"cancel_reason,omitempty" db:"cancel_reason"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty" db:"expired_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// TransitionTo moves the booking to next if the table allows it.
func (b *Booking) TransitionTo(next BookingStatus, at time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, next)
	}
	b.Status = next
	b.UpdatedAt = at
	switch next {
	case BookingStatusConfirmed:
		b.ConfirmedAt = &at
		b.HoldExpiresAt = nil
	case BookingStatusCancelled:
		b.CancelledAt = &at
		b.HoldExpiresAt = nil
	case BookingStatusExpired:
		b.ExpiredAt = &at
		b.HoldExpiresAt = nil
	case BookingStatusRedeemed:
		b.RedeemedAt = &at
	}
	return nil
}

// HoldLapsed reports whether a reserved booking's hold is past its TTL.
func (b *Booking) HoldLapsed(now time.Time) bool {
	if b.Status != BookingStatusReserved || b.HoldExpiresAt == nil {
		return false
	}
	return HoldLapsed(*b.HoldExpiresAt, now)
}

// ============================================================================
// REQUEST/RESPONSE STRUCTS
// ============================================================================

// CustomerInfo identifies the buyer
type CustomerInfo struct {
	Name  string  `json:"customer_name" binding:"required"`
	Email *string `json:"customer_email,omitempty"`
	Phone *string `json:"customer_phone,omitempty"`
}

// StartBookingRequest is the createHold request body
type StartBookingRequest struct {
	TourID   string `json:"tour_id" binding:"required"`
	Date     string `json:"date" binding:"required"` // "2026-12-15"
	Adults   int    `json:"adults" binding:"min=0"`
	Children int    `json:"children" binding:"min=0"`
	CustomerInfo
}

// Validate checks the party composition.
func (r *StartBookingRequest) Validate() error {
	if r.Adults < 1 {
		return fmt.Errorf("%w: at least one adult is required", ErrInvalidSeats)
	}
	if r.Children < 0 {
		return fmt.Errorf("%w: children cannot be negative", ErrInvalidSeats)
	}
	if r.Adults+r.Children > 50 {
		return fmt.Errorf("%w: maximum 50 seats per booking", ErrInvalidSeats)
	}
	return nil
}

// CheckoutInfo tells the client where to pay
type CheckoutInfo struct {
	SessionID  string `json:"session_id"`
	PaymentURL string `json:"payment_url,omitempty"`
	Mode       string `json:"mode"`
}

// StartBookingResponse is returned after a hold was placed
type StartBookingResponse struct {
	HoldID     uuid.UUID     `json:"hold_id"`
	BookingID  uuid.UUID     `json:"booking_id"`
	ExpiresAt  time.Time     `json:"expires_at"`
	TTLSeconds int           `json:"ttl_seconds"`
	Total      Money         `json:"total_amount"`
	Currency   string        `json:"currency"`
	Checkout   *CheckoutInfo `json:"checkout,omitempty"`
}

// ConfirmBookingRequest carries the checkout session to verify
type ConfirmBookingRequest struct {
	PaymentSessionID string `json:"payment_session_id" binding:"required"`
}

// CancelBookingRequest carries the cancellation reason
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}
