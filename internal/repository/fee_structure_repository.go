package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-lms-api/internal/models"
)

// FeeStructureRepository stores per-class monthly rates.
type FeeStructureRepository struct {
	db *sqlx.DB
}

// NewFeeStructureRepository constructs the repository.
func NewFeeStructureRepository(db *sqlx.DB) *FeeStructureRepository {
	return &FeeStructureRepository{db: db}
}

// FindByClassID returns the rate of a class.
func (r *FeeStructureRepository) FindByClassID(ctx context.Context, exec sqlx.ExtContext, classID string) (*models.FeeStructure, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `SELECT id, class_id, monthly_amount, currency, created_at, updated_at FROM fee_structures WHERE class_id = $1`
	var structure models.FeeStructure
	if err := sqlx.GetContext(ctx, exec, &structure, query, classID); err != nil {
		return nil, err
	}
	return &structure, nil
}

// ListBySession returns the rates of every class in the session.
func (r *FeeStructureRepository) ListBySession(ctx context.Context, sessionID string) ([]models.FeeStructureDetail, error) {
	query := `SELECT f.id, f.class_id, f.monthly_amount, f.currency, f.created_at, f.updated_at, c.name AS class_name, c.session_id
FROM fee_structures f JOIN classes c ON c.id = f.class_id`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE c.session_id = $1`
		args = append(args, sessionID)
	}
	query += ` ORDER BY c.name ASC`

	var structures []models.FeeStructureDetail
	if err := r.db.SelectContext(ctx, &structures, query, args...); err != nil {
		return nil, fmt.Errorf("list fee structures: %w", err)
	}
	return structures, nil
}

// Upsert creates or replaces the rate of a class.
func (r *FeeStructureRepository) Upsert(ctx context.Context, structure *models.FeeStructure) error {
	if structure.ID == "" {
		structure.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	structure.CreatedAt = now
	structure.UpdatedAt = now

	const query = `INSERT INTO fee_structures (id, class_id, monthly_amount, currency, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (class_id) DO UPDATE SET monthly_amount = EXCLUDED.monthly_amount, currency = EXCLUDED.currency, updated_at = EXCLUDED.updated_at
RETURNING id, class_id, monthly_amount, currency, created_at, updated_at`
	if err := r.db.GetContext(ctx, structure, query, structure.ID, structure.ClassID, structure.MonthlyAmount, structure.Currency, now); err != nil {
		return fmt.Errorf("upsert fee structure: %w", err)
	}
	return nil
}
