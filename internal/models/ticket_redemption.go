package models

import (
	"time"

	"github.com/google/uuid"
)

// RedemptionMethod is how the code was presented
type RedemptionMethod string

const (
	RedemptionMethodQR   RedemptionMethod = "qr"
	RedemptionMethodCode RedemptionMethod = "code"
)

// Valid reports whether m is qr or code.
func (m RedemptionMethod) Valid() bool {
	return m == RedemptionMethodQR || m == RedemptionMethodCode
}

// TicketRedemption is the append-only audit row written for each successful redemption
type TicketRedemption struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	BookingID  uuid.UUID        `json:"booking_id" db:"booking_id"`
	RedeemedBy string           `json:"redeemed_by" db:"redeemed_by"`
	Method     RedemptionMethod `json:"method" db:"method"`
	RedeemedAt time.Time        `json:"redeemed_at" db:"redeemed_at"`
	Notes      *string          `json:"notes,omitempty" db:"notes"`
	Device     *string          `json:"device,omitempty" db:"device"`
	IPAddress  *string          `json:"ip_address,omitempty" db:"ip_address"`
}

// IssuedCode registers every code ever handed out; rows are never deleted
type IssuedCode struct {
	Code      string    `json:"code" db:"code"`
	BookingID uuid.UUID `json:"booking_id" db:"booking_id"`
	IssuedAt  time.Time `json:"issued_at" db:"issued_at"`
}

// RedeemTicketRequest is the staff redemption request body
type RedeemTicketRequest struct {
	Code      string           `json:"code,omitempty"`
	QRPayload string           `json:"qr_payload,omitempty"`
	Method    RedemptionMethod `json:"method" binding:"required"`
	Notes     *string          `json:"notes,omitempty"`
}

// RedeemRequest is the validator input after the handler resolved the actor
type RedeemRequest struct {
	Code      string
	QRPayload string
	Method    RedemptionMethod
	ActorID   string
	Notes     *string
	Device    *string
	IPAddress *string
}
