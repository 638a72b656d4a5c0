package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-lms-api/internal/dto"
)

// DashboardRepository runs the aggregate queries behind the dashboards.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// StudentCounts groups students seated in the session, plus graduates of it, by status.
func (r *DashboardRepository) StudentCounts(ctx context.Context, sessionID string) (*dto.StudentCounts, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE s.status = 'ACTIVE') AS active,
	COUNT(*) FILTER (WHERE s.status = 'INACTIVE') AS inactive,
	(SELECT COUNT(*) FROM promotion_records p WHERE p.session_id = $1 AND p.status = 'GRADUATED') AS graduated
FROM students s JOIN classes c ON c.id = s.class_id
WHERE c.session_id = $1`
	var counts dto.StudentCounts
	if err := r.db.GetContext(ctx, &counts, query, sessionID); err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	return &counts, nil
}

// ClassCount returns the number of classes in the session.
func (r *DashboardRepository) ClassCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM classes WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return count, nil
}

// FeeTotals sums collected, pending and overdue amounts for the session as of asOf.
func (r *DashboardRepository) FeeTotals(ctx context.Context, sessionID string, asOf time.Time) (*dto.FeeTotals, error) {
	const query = `SELECT
	COALESCE(SUM(amount) FILTER (WHERE status = 'PAID'), 0) AS collected,
	COALESCE(SUM(amount) FILTER (WHERE status = 'PENDING' AND due_date >= $2), 0) AS pending,
	COALESCE(SUM(amount) FILTER (WHERE status = 'OVERDUE' OR (status = 'PENDING' AND due_date < $2)), 0) AS overdue
FROM monthly_fees WHERE session_id = $1`
	var totals dto.FeeTotals
	if err := r.db.GetContext(ctx, &totals, query, sessionID, asOf); err != nil {
		return nil, fmt.Errorf("sum fees: %w", err)
	}
	return &totals, nil
}

// TeacherClasses lists the teacher's classes in the session with head count and pending promotions.
func (r *DashboardRepository) TeacherClasses(ctx context.Context, teacherID, sessionID string) ([]dto.TeacherClassStats, error) {
	const query = `SELECT c.id AS class_id, c.name AS class_name,
	(SELECT COUNT(*) FROM students s WHERE s.class_id = c.id) AS student_count,
	(SELECT COUNT(*) FROM promotion_records p WHERE p.session_id = c.session_id AND p.from_class_name = c.name AND p.status = 'PENDING') AS pending_promotions
FROM classes c
WHERE c.class_teacher_id = $1 AND c.session_id = $2
ORDER BY c.name ASC`
	var stats []dto.TeacherClassStats
	if err := r.db.SelectContext(ctx, &stats, query, teacherID, sessionID); err != nil {
		return nil, fmt.Errorf("list teacher classes: %w", err)
	}
	return stats, nil
}
