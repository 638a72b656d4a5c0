package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-lms-api/internal/models"
)

const feeColumns = `id, student_id, class_id, session_id, month_index, month_name, year, amount, due_date, status, payment_date, receipt_number, created_at`

// FeeRepository persists monthly fee schedules.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

func (r *FeeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByStudentSession returns a student's schedule for the session ordered by month.
func (r *FeeRepository) ListByStudentSession(ctx context.Context, studentID, sessionID string) ([]models.MonthlyFee, error) {
	query := `SELECT ` + feeColumns + ` FROM monthly_fees WHERE student_id = $1 AND session_id = $2 ORDER BY month_index ASC`
	var fees []models.MonthlyFee
	if err := r.db.SelectContext(ctx, &fees, query, studentID, sessionID); err != nil {
		return nil, fmt.Errorf("list monthly fees: %w", err)
	}
	return fees, nil
}

// CountByStudentSession returns how many fee rows exist for the student in the session.
func (r *FeeRepository) CountByStudentSession(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM monthly_fees WHERE student_id = $1 AND session_id = $2`
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, studentID, sessionID); err != nil {
		return 0, fmt.Errorf("count monthly fees: %w", err)
	}
	return count, nil
}

// InsertBatch stores the provided schedule entries.
func (r *FeeRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, fees []models.MonthlyFee) error {
	if len(fees) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range fees {
		if fees[i].ID == "" {
			fees[i].ID = uuid.NewString()
		}
		if fees[i].Status == "" {
			fees[i].Status = models.FeeStatusPending
		}
		fees[i].CreatedAt = now
	}
	const query = `INSERT INTO monthly_fees (id, student_id, class_id, session_id, month_index, month_name, year, amount, due_date, status, payment_date, receipt_number, created_at)
VALUES (:id, :student_id, :class_id, :session_id, :month_index, :month_name, :year, :amount, :due_date, :status, :payment_date, :receipt_number, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, fees); err != nil {
		return fmt.Errorf("insert monthly fees: %w", err)
	}
	return nil
}

// ReplaceOutstanding drops every unpaid entry of (student, session) and inserts
// the schedule months that have no paid entry. It returns the number inserted.
func (r *FeeRepository) ReplaceOutstanding(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, schedule []models.MonthlyFee) (int, error) {
	ext := r.exec(exec)
	if _, err := ext.ExecContext(ctx, `DELETE FROM monthly_fees WHERE student_id = $1 AND session_id = $2 AND status <> 'PAID'`, studentID, sessionID); err != nil {
		return 0, fmt.Errorf("delete outstanding fees: %w", err)
	}

	var paid []int
	if err := sqlx.SelectContext(ctx, ext, &paid, `SELECT month_index FROM monthly_fees WHERE student_id = $1 AND session_id = $2`, studentID, sessionID); err != nil {
		return 0, fmt.Errorf("list paid months: %w", err)
	}
	settled := make(map[int]struct{}, len(paid))
	for _, idx := range paid {
		settled[idx] = struct{}{}
	}

	pending := make([]models.MonthlyFee, 0, len(schedule))
	for _, fee := range schedule {
		if _, ok := settled[fee.MonthIndex]; ok {
			continue
		}
		pending = append(pending, fee)
	}
	if err := r.InsertBatch(ctx, ext, pending); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// FindByID loads a single fee.
func (r *FeeRepository) FindByID(ctx context.Context, id string) (*models.MonthlyFee, error) {
	query := `SELECT ` + feeColumns + ` FROM monthly_fees WHERE id = $1`
	var fee models.MonthlyFee
	if err := r.db.GetContext(ctx, &fee, query, id); err != nil {
		return nil, err
	}
	return &fee, nil
}

// MarkPaid settles an unpaid fee. It returns sql.ErrNoRows when the fee is missing or already paid.
func (r *FeeRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time, receiptNumber string) (*models.MonthlyFee, error) {
	query := `UPDATE monthly_fees SET status = 'PAID', payment_date = $2, receipt_number = $3 WHERE id = $1 AND status <> 'PAID' RETURNING ` + feeColumns
	var fee models.MonthlyFee
	if err := r.db.GetContext(ctx, &fee, query, id, paidAt, receiptNumber); err != nil {
		return nil, err
	}
	return &fee, nil
}

// MarkOverdue persists OVERDUE for pending fees due before asOf.
func (r *FeeRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE monthly_fees SET status = 'OVERDUE' WHERE status = 'PENDING' AND due_date < $1`, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark overdue fees: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark overdue rows: %w", err)
	}
	return affected, nil
}
