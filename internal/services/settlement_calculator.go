package services

import (
	"fmt"
	"time"

	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/samber/lo"
)

// SettlementCalculator splits paid amounts into retentions and seller payout.
// It holds no state: every call takes the retention snapshot explicitly.
type SettlementCalculator struct{}

// NewSettlementCalculator creates a new SettlementCalculator
func NewSettlementCalculator() *SettlementCalculator {
	return &SettlementCalculator{}
}

// Settle computes the split of gross under cfg. Each retention is rounded
// half-up on its own and the payout absorbs the residual, so the components
// always sum to gross exactly. When the rounded retentions would exceed gross
// they are truncated instead, keeping the payout non-negative.
func (SettlementCalculator) Settle(gross models.Money, cfg models.RetentionConfig) (*models.Transaction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gross < 0 {
		return nil, fmt.Errorf("%w: negative gross amount %s", models.ErrRateConfigInvalid, gross)
	}

	commission := cfg.AppCommission.ApplyTo(gross)
	tax := cfg.Tax.ApplyTo(gross)
	bankFee := cfg.BankCommission.ApplyTo(gross)
	other := cfg.OtherRetentions.ApplyTo(gross)
	// Half-up rounding can overshoot gross by a few minor units on tiny
	// amounts. Truncated components never do while the rates sum to <= 100%.
	if commission+tax+bankFee+other > gross {
		commission = cfg.AppCommission.ApplyDown(gross)
		tax = cfg.Tax.ApplyDown(gross)
		bankFee = cfg.BankCommission.ApplyDown(gross)
		other = cfg.OtherRetentions.ApplyDown(gross)
	}

	t := &models.Transaction{
		GrossAmount:        gross,
		Commission:         commission,
		Tax:                tax,
		BankFee:            bankFee,
		Other:              other,
		SellerPayout:       gross - commission - tax - bankFee - other,
		RetentionVersion:   cfg.Version,
		AppCommissionRate:  cfg.AppCommission,
		TaxRate:            cfg.Tax,
		BankCommissionRate: cfg.BankCommission,
		OtherRetentionRate: cfg.OtherRetentions,
		Status:             models.TransactionStatusSettled,
	}
	if t.SellerPayout < 0 {
		return nil, fmt.Errorf("%w: retentions exceed gross %s", models.ErrRateConfigInvalid, gross)
	}
	return t, nil
}

// Summarize aggregates transactions created in [from, to). Refunded
// transactions are counted separately and excluded from the money totals.
func (SettlementCalculator) Summarize(from, to time.Time, txs []models.Transaction) *models.SettlementSummary {
	settled := lo.Filter(txs, func(t models.Transaction, _ int) bool {
		return t.Status == models.TransactionStatusSettled
	})
	refunded := lo.CountBy(txs, func(t models.Transaction) bool {
		return t.Status == models.TransactionStatusRefunded
	})

	sum := func(field func(models.Transaction) models.Money) models.Money {
		return lo.SumBy(settled, field)
	}

	return &models.SettlementSummary{
		From:             from.Format("2006-01-02"),
		To:               to.Format("2006-01-02"),
		TransactionCount: len(settled),
		RefundedCount:    refunded,
		GrossAmount:      sum(func(t models.Transaction) models.Money { return t.GrossAmount }),
		Commission:       sum(func(t models.Transaction) models.Money { return t.Commission }),
		Tax:              sum(func(t models.Transaction) models.Money { return t.Tax }),
		BankFee:          sum(func(t models.Transaction) models.Money { return t.BankFee }),
		Other:            sum(func(t models.Transaction) models.Money { return t.Other }),
		SellerPayout:     sum(func(t models.Transaction) models.Money { return t.SellerPayout }),
	}
}
