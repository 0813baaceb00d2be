package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetentionConfig is an immutable, versioned snapshot of the retention rates
// applied at settlement time.
type RetentionConfig struct {
	Version         string `json:"version"`
	AppCommission   Rate   `json:"app_commission_rate"`
	Tax             Rate   `json:"tax_rate"`
	BankCommission  Rate   `json:"bank_commission_rate"`
	OtherRetentions Rate   `json:"other_retentions_rate"`
}

// Validate rejects negative rates and a total above 100%.
func (c RetentionConfig) Validate() error {
	rates := map[string]Rate{
		"app_commission":   c.AppCommission,
		"tax":              c.Tax,
		"bank_commission":  c.BankCommission,
		"other_retentions": c.OtherRetentions,
	}
	var total Rate
	for name, r := range rates {
		if r < 0 {
			return fmt.Errorf("%w: %s rate is negative (%s%%)", ErrRateConfigInvalid, name, r)
		}
		total += r
	}
	if total > RateScale {
		return fmt.Errorf("%w: retention rates sum to %s%%", ErrRateConfigInvalid, total)
	}
	return nil
}

// TransactionStatus tracks refunds against a settled transaction
type TransactionStatus string

const (
	TransactionStatusSettled  TransactionStatus = "settled"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

// Transaction is the revenue split of one paid booking. The stored amounts
// and rates never reference live configuration.
type Transaction struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TourID    uuid.UUID  `json:"tour_id" db:"tour_id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`

	GrossAmount  Money  `json:"gross_amount" db:"gross_amount"`
	Commission   Money  `json:"commission" db:"commission"`
	Tax          Money  `json:"tax" db:"tax"`
	BankFee      Money  `json:"bank_fee" db:"bank_fee"`
	Other        Money  `json:"other_retentions" db:"other_retentions"`
	SellerPayout Money  `json:"seller_payout" db:"seller_payout"`
	Currency     string `json:"currency" db:"currency"`

	RetentionVersion   string `json:"retention_version" db:"retention_version"`
	AppCommissionRate  Rate   `json:"app_commission_rate" db:"app_commission_rate"`
	TaxRate            Rate   `json:"tax_rate" db:"tax_rate"`
	BankCommissionRate Rate   `json:"bank_commission_rate" db:"bank_commission_rate"`
	OtherRetentionRate Rate   `json:"other_retentions_rate" db:"other_retentions_rate"`

	Status    TransactionStatus `json:"status" db:"status"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// Reconciles reports whether the components add up to the gross amount.
func (t *Transaction) Reconciles() bool {
	return t.Commission+t.Tax+t.BankFee+t.Other+t.SellerPayout == t.GrossAmount
}

// SettlementSummary aggregates transactions over a date range
type SettlementSummary struct {
	From             string `json:"from"`
	To               string `json:"to"`
	TransactionCount int    `json:"transaction_count"`
	RefundedCount    int    `json:"refunded_count"`
	GrossAmount      Money  `json:"gross_amount"`
	Commission       Money  `json:"commission"`
	Tax              Money  `json:"tax"`
	BankFee          Money  `json:"bank_fee"`
	Other            Money  `json:"other_retentions"`
	SellerPayout     Money  `json:"seller_payout"`
}
