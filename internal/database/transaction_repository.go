package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// TransactionRepository stores settled revenue splits
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, tour_id, booking_id, gross_amount, commission, tax, bank_fee, other_retentions,
	seller_payout, currency, retention_version, app_commission_rate, tax_rate,
	bank_commission_rate, other_retentions_rate, status, created_at, updated_at`

// CreateTransaction inserts a transaction record
func (r *TransactionRepository) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = t.CreatedAt

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (
			:id, :tour_id, :booking_id, :gross_amount, :commission, :tax, :bank_fee, :other_retentions,
			:seller_payout, :currency, :retention_version, :app_commission_rate, :tax_rate,
			:bank_commission_rate, :other_retentions_rate, :status, :created_at, :updated_at
		)`
	if _, err := sqlx.NamedExecContext(ctx, r.db.executor(ctx), query, t); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID
func (r *TransactionRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &t, nil
}

// UpdateTransactionStatus sets the status. Amounts are never rewritten.
func (r *TransactionRepository) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus, at time.Time) error {
	query := `UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.executor(ctx).ExecContext(ctx, query, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

// ListTransactions returns transactions created in [from, to)
func (r *TransactionRepository) ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`
	out := []models.Transaction{}
	if err := sqlx.SelectContext(ctx, r.db.executor(ctx), &out, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}
