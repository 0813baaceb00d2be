package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMode selects the gateway implementation for a deployment
type PaymentMode string

const (
	PaymentModeSandbox PaymentMode = "sandbox"
	PaymentModeLive    PaymentMode = "live"
)

// PaymentState is the provider-reported state of a checkout session
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStatePaid      PaymentState = "paid"
	PaymentStateFailed    PaymentState = "failed"
	PaymentStateCancelled PaymentState = "cancelled"
)

// CheckoutRequest asks the gateway for a checkout session
type CheckoutRequest struct {
	Amount       Money
	Currency     string
	Description  string
	CustomerName string
	Phone        string
	Email        string
	Metadata     map[string]string
}

// SessionRef identifies a checkout session at the provider
type SessionRef struct {
	SessionID       string `json:"session_id"`
	PaymentURL      string `json:"payment_url,omitempty"`
	StatusIndicator string `json:"status_indicator,omitempty"`
}

// PaymentStatus is the verification result for a session
type PaymentStatus struct {
	SessionID        string       `json:"session_id"`
	State            PaymentState `json:"state"`
	PaymentReference string       `json:"payment_reference,omitempty"`
	Amount           Money        `json:"amount"`
	Currency         string       `json:"currency"`
}

// IsPaid reports whether the session was paid.
func (s *PaymentStatus) IsPaid() bool {
	return s != nil && s.State == PaymentStatePaid
}

// RefundResult is the provider's answer to a refund request
type RefundResult struct {
	RefundID         string    `json:"refund_id"`
	PaymentReference string    `json:"payment_reference"`
	Amount           Money     `json:"amount"`
	Status           string    `json:"status"`
	RequestedAt      time.Time `json:"requested_at"`
}

// PaymentWebhookPayload is the asynchronous provider callback
type PaymentWebhookPayload struct {
	UID           string `json:"uid"`
	InvoiceID     string `json:"invoiceId"`
	PaymentStatus string `json:"paymentStatus"`
	Amount        string `json:"amount"`
	TransactionID string `json:"transactionId,omitempty"`
}

// ============================================================================
// PAYMENT AUDIT (payment_audits table)
// ============================================================================

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventCheckoutCreated  PaymentEventType = "checkout_created"
	PaymentEventVerified         PaymentEventType = "payment_verified"
	PaymentEventUnpaid           PaymentEventType = "payment_unpaid"
	PaymentEventWebhookReceived  PaymentEventType = "webhook_received"
	PaymentEventRefundRequested  PaymentEventType = "refund_requested"
	PaymentEventRefundFailed     PaymentEventType = "refund_failed"
	PaymentEventBookingConfirmed PaymentEventType = "booking_confirmed"
	PaymentEventError            PaymentEventType = "error"
)

// PaymentAudit is an immutable log entry for a gateway interaction
type PaymentAudit struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	BookingID        *uuid.UUID       `json:"booking_id,omitempty" db:"booking_id"`
	SessionID        *string          `json:"session_id,omitempty" db:"session_id"`
	PaymentReference *string          `json:"payment_reference,omitempty" db:"payment_reference"`
	EventType        PaymentEventType `json:"event_type" db:"event_type"`
	Mode             PaymentMode      `json:"mode" db:"mode"`
	Amount           *Money           `json:"amount,omitempty" db:"amount"`
	PaymentState     *string          `json:"payment_state,omitempty" db:"payment_state"`
	ErrorMessage     *string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}
