package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-lms-api/internal/models"
)

const promotionColumns = `id, student_id, from_class_name, to_class_name, status, remarks, is_graduated, session_id, assigned_by, executed_at, target_session_id, created_at, updated_at`

// PromotionRepository persists promotion records.
type PromotionRepository struct {
	db *sqlx.DB
}

// NewPromotionRepository constructs the repository.
func NewPromotionRepository(db *sqlx.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

func (r *PromotionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpsertPending stores the pending choice for (student, session), overwriting an earlier pending one.
func (r *PromotionRepository) UpsertPending(ctx context.Context, exec sqlx.ExtContext, record *models.PromotionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.Status = models.PromotionStatusPending
	record.CreatedAt = now
	record.UpdatedAt = now

	const query = `INSERT INTO promotion_records (id, student_id, from_class_name, to_class_name, status, remarks, is_graduated, session_id, assigned_by, created_at, updated_at)
VALUES (:id, :student_id, :from_class_name, :to_class_name, :status, :remarks, :is_graduated, :session_id, :assigned_by, :created_at, :updated_at)
ON CONFLICT (student_id, session_id) WHERE status = 'PENDING'
DO UPDATE SET from_class_name = EXCLUDED.from_class_name, to_class_name = EXCLUDED.to_class_name, remarks = EXCLUDED.remarks,
	is_graduated = EXCLUDED.is_graduated, assigned_by = EXCLUDED.assigned_by, updated_at = EXCLUDED.updated_at
RETURNING ` + promotionColumns

	bound, args, err := sqlx.Named(query, record)
	if err != nil {
		return fmt.Errorf("bind promotion upsert: %w", err)
	}
	if err := sqlx.GetContext(ctx, r.exec(exec), record, sqlx.Rebind(sqlx.DOLLAR, bound), args...); err != nil {
		return fmt.Errorf("upsert promotion: %w", err)
	}
	return nil
}

// LockExecutedStudentIDs row-locks the students' records for the session and returns the
// students whose record is already executed. Rows are locked in the same order as
// ListPending so assignment and execution queue behind each other.
func (r *PromotionRepository) LockExecutedStudentIDs(ctx context.Context, exec sqlx.ExtContext, sessionID string, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT student_id, status FROM promotion_records
WHERE session_id = $1 AND student_id = ANY($2)
ORDER BY created_at ASC, id ASC
FOR UPDATE`
	var rows []struct {
		StudentID string                 `db:"student_id"`
		Status    models.PromotionStatus `db:"status"`
	}
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, sessionID, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("lock promotion history: %w", err)
	}
	seen := make(map[string]bool, len(rows))
	var ids []string
	for _, row := range rows {
		if row.Status == models.PromotionStatusPending || seen[row.StudentID] {
			continue
		}
		seen[row.StudentID] = true
		ids = append(ids, row.StudentID)
	}
	return ids, nil
}

// List returns records of a source session joined with student data.
func (r *PromotionRepository) List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRecordDetail, error) {
	conditions := []string{"p.session_id = $1"}
	args := []interface{}{filter.SessionID}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("c.id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}

	query := fmt.Sprintf(`SELECT p.id, p.student_id, p.from_class_name, p.to_class_name, p.status, p.remarks, p.is_graduated, p.session_id,
	p.assigned_by, p.executed_at, p.target_session_id, p.created_at, p.updated_at,
	s.full_name AS student_name, s.pan AS student_pan, c.id AS class_id
FROM promotion_records p
JOIN students s ON s.id = p.student_id
LEFT JOIN classes c ON c.session_id = p.session_id AND c.name = p.from_class_name
WHERE %s
ORDER BY p.from_class_name ASC, s.full_name ASC`, strings.Join(conditions, " AND "))

	var records []models.PromotionRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	return records, nil
}

// Summary counts records of a session by status, optionally scoped to a class.
func (r *PromotionRepository) Summary(ctx context.Context, sessionID, classID string) (*models.PromotionSummary, error) {
	query := `SELECT
	COUNT(*) FILTER (WHERE p.status = 'PENDING') AS pending,
	COUNT(*) FILTER (WHERE p.status = 'PROMOTED') AS promoted,
	COUNT(*) FILTER (WHERE p.status = 'DETAINED') AS detained,
	COUNT(*) FILTER (WHERE p.status = 'GRADUATED') AS graduated,
	COUNT(*) AS total
FROM promotion_records p`
	args := []interface{}{sessionID}
	if classID != "" {
		query += ` JOIN classes c ON c.session_id = p.session_id AND c.name = p.from_class_name WHERE p.session_id = $1 AND c.id = $2`
		args = append(args, classID)
	} else {
		query += ` WHERE p.session_id = $1`
	}

	var summary models.PromotionSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, fmt.Errorf("summarise promotions: %w", err)
	}
	return &summary, nil
}

// ListPending locks and returns every pending record of the session in deterministic order.
// A concurrent assignment either commits first, and its outcome is read here, or waits for
// the executing transaction.
func (r *PromotionRepository) ListPending(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.PromotionRecord, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotion_records WHERE session_id = $1 AND status = 'PENDING' ORDER BY created_at ASC, id ASC FOR UPDATE`
	var records []models.PromotionRecord
	if err := sqlx.SelectContext(ctx, r.exec(exec), &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list pending promotions: %w", err)
	}
	return records, nil
}

// Claim transitions a pending record to its executed status. It reports false
// when the record is no longer pending.
func (r *PromotionRepository) Claim(ctx context.Context, exec sqlx.ExtContext, id string, status models.PromotionStatus, targetSessionID string, executedAt time.Time) (bool, error) {
	const query = `UPDATE promotion_records SET status = $2, target_session_id = $3, executed_at = $4, updated_at = $4 WHERE id = $1 AND status = 'PENDING'`
	res, err := r.exec(exec).ExecContext(ctx, query, id, status, targetSessionID, executedAt)
	if err != nil {
		return false, fmt.Errorf("claim promotion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim promotion rows: %w", err)
	}
	return affected == 1, nil
}
