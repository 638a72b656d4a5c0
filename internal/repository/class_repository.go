package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-lms-api/internal/models"
)

const classColumns = `id, name, session_id, class_teacher_id, created_at, updated_at`

// ClassRepository handles persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns classes with session name, teacher name and head count.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := `FROM classes c
JOIN sessions se ON se.id = c.session_id
LEFT JOIN users u ON u.id = c.class_teacher_id`
	var conditions []string
	var args []interface{}

	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("c.session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.ClassTeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("c.class_teacher_id = $%d", len(args)+1))
		args = append(args, filter.ClassTeacherID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("c.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.name, c.session_id, c.class_teacher_id, c.created_at, c.updated_at,
	se.name AS session_name, u.full_name AS class_teacher_name,
	(SELECT COUNT(*) FROM students st WHERE st.class_id = c.id) AS student_count
	%s ORDER BY c.name ASC LIMIT %d OFFSET %d`, base, size, offset)

	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID loads a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByName resolves a class by display name inside a session.
func (r *ClassRepository) FindByName(ctx context.Context, exec sqlx.ExtContext, sessionID, name string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE session_id = $1 AND LOWER(name) = LOWER($2) LIMIT 1`
	var class models.Class
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, sessionID, strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByName checks whether a session already has a class with the name.
func (r *ClassRepository) ExistsByName(ctx context.Context, sessionID, name, excludeID string) (bool, error) {
	base := "SELECT 1 FROM classes WHERE session_id = $1 AND LOWER(name) = LOWER($2)"
	args := []interface{}{sessionID, name}
	if excludeID != "" {
		base += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, name, session_id, class_teacher_id, created_at, updated_at) VALUES (:id, :name, :session_id, :class_teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies a class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, session_id = :session_id, class_teacher_id = :class_teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// CountStudents returns the number of students seated in the class.
func (r *ClassRepository) CountStudents(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM students WHERE class_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return count, nil
}
