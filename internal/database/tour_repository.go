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

// TourRepository handles tour reads for the booking core
type TourRepository struct {
	db *PostgresDB
}

// NewTourRepository creates a new TourRepository
func NewTourRepository(db *PostgresDB) *TourRepository {
	return &TourRepository{db: db}
}

// CreateTour inserts a tour. Tour administration lives outside the core;
// this exists for seeding and maintenance tooling.
func (r *TourRepository) CreateTour(ctx context.Context, tour *models.Tour) error {
	if tour.ID == uuid.Nil {
		tour.ID = uuid.New()
	}
	now := time.Now()
	tour.CreatedAt = now
	tour.UpdatedAt = now

	query := `
		INSERT INTO tours (id, name, capacity, price, child_price, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.executor(ctx).ExecContext(ctx, query,
		tour.ID, tour.Name, tour.Capacity, tour.Price, tour.ChildPrice,
		tour.Currency, tour.Status, tour.CreatedAt, tour.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tour: %w", err)
	}
	return nil
}

// GetTour retrieves a tour by ID
func (r *TourRepository) GetTour(ctx context.Context, id uuid.UUID) (*models.Tour, error) {
	var tour models.Tour
	query := `
		SELECT id, name, capacity, price, child_price, currency, status, created_at, updated_at
		FROM tours
		WHERE id = $1`
	err := sqlx.GetContext(ctx, r.db.executor(ctx), &tour, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTourNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}
	return &tour, nil
}
