package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-lms-api/internal/models"
)

const examColumns = `id, class_id, exam_type_id, subject_name, max_marks, passing_marks, exam_date, created_at, updated_at`

// ExamRepository persists exam assignments, exams and marks.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs the repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

func (r *ExamRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListClassExams returns exam types assigned to a class.
func (r *ExamRepository) ListClassExams(ctx context.Context, classID string) ([]models.ClassExam, error) {
	const query = `SELECT ce.class_id, ce.exam_type_id, et.name AS exam_type_name, ce.created_at
FROM class_exams ce JOIN exam_types et ON et.id = ce.exam_type_id
WHERE ce.class_id = $1 ORDER BY et.name ASC`
	var items []models.ClassExam
	if err := r.db.SelectContext(ctx, &items, query, classID); err != nil {
		return nil, fmt.Errorf("list class exams: %w", err)
	}
	return items, nil
}

// CountExamTypes returns how many of ids exist.
func (r *ExamRepository) CountExamTypes(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM exam_types WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("count exam types: %w", err)
	}
	return count, nil
}

// ReplaceClassExams swaps the class assignment set for examTypeIDs.
func (r *ExamRepository) ReplaceClassExams(ctx context.Context, exec sqlx.ExtContext, classID string, examTypeIDs []string) error {
	ext := r.exec(exec)
	if _, err := ext.ExecContext(ctx, `DELETE FROM class_exams WHERE class_id = $1 AND NOT (exam_type_id = ANY($2))`, classID, pq.Array(examTypeIDs)); err != nil {
		return fmt.Errorf("remove class exams: %w", err)
	}
	const insert = `INSERT INTO class_exams (class_id, exam_type_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (class_id, exam_type_id) DO NOTHING`
	now := time.Now().UTC()
	for _, id := range examTypeIDs {
		if _, err := ext.ExecContext(ctx, insert, classID, id, now); err != nil {
			return fmt.Errorf("assign class exam: %w", err)
		}
	}
	return nil
}

// IsExamTypeAssigned reports whether the exam type is assigned to the class.
func (r *ExamRepository) IsExamTypeAssigned(ctx context.Context, classID, examTypeID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM class_exams WHERE class_id = $1 AND exam_type_id = $2`, classID, examTypeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class exam: %w", err)
	}
	return true, nil
}

// ListByClass returns a class's exams.
func (r *ExamRepository) ListByClass(ctx context.Context, classID string) ([]models.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE class_id = $1 ORDER BY exam_date ASC NULLS LAST, subject_name ASC`
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, classID); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// FindByID loads an exam.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE id = $1`
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// Create inserts an exam.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exam.CreatedAt = now
	exam.UpdatedAt = now
	const query = `INSERT INTO exams (id, class_id, exam_type_id, subject_name, max_marks, passing_marks, exam_date, created_at, updated_at)
VALUES (:id, :class_id, :exam_type_id, :subject_name, :max_marks, :passing_marks, :exam_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// UpsertMarks writes marks keyed by (exam, student).
func (r *ExamRepository) UpsertMarks(ctx context.Context, exec sqlx.ExtContext, marks []models.Mark) error {
	ext := r.exec(exec)
	now := time.Now().UTC()
	const query = `INSERT INTO marks (id, exam_id, student_id, marks_obtained, uploaded_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (exam_id, student_id) DO UPDATE SET marks_obtained = EXCLUDED.marks_obtained, uploaded_by = EXCLUDED.uploaded_by, updated_at = EXCLUDED.updated_at`
	for i := range marks {
		if marks[i].ID == "" {
			marks[i].ID = uuid.NewString()
		}
		marks[i].CreatedAt = now
		marks[i].UpdatedAt = now
		m := marks[i]
		if _, err := ext.ExecContext(ctx, query, m.ID, m.ExamID, m.StudentID, m.MarksObtained, m.UploadedBy, now); err != nil {
			return fmt.Errorf("upsert mark: %w", err)
		}
	}
	return nil
}

// Results returns marks for an exam joined with student names.
func (r *ExamRepository) Results(ctx context.Context, examID string) ([]models.ExamResult, error) {
	const query = `SELECT m.student_id, s.full_name AS student_name, m.marks_obtained
FROM marks m JOIN students s ON s.id = m.student_id
WHERE m.exam_id = $1 ORDER BY s.full_name ASC`
	var results []models.ExamResult
	if err := r.db.SelectContext(ctx, &results, query, examID); err != nil {
		return nil, fmt.Errorf("list exam results: %w", err)
	}
	return results, nil
}
