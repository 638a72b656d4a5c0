package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/pkg/database"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
	FindDetail(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByPAN(ctx context.Context, pan, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	UpdateProfile(ctx context.Context, student *models.Student) error
	UpdateClass(ctx context.Context, exec sqlx.ExtContext, id, classID string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.StudentStatus, clearClass bool) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type feeLister interface {
	ListByStudentSession(ctx context.Context, studentID, sessionID string) ([]models.MonthlyFee, error)
}

// StudentService handles student use-cases, including class moves and the fee regeneration they trigger.
type StudentService struct {
	repo        studentRepository
	classes     classReader
	sessions    sessionReader
	fees        feeLister
	regenerator *FeeRegenerator
	tx          txProvider
	cache       *CacheService
	audit       *auditTrail
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(
	repo studentRepository,
	classes classReader,
	sessions sessionReader,
	fees feeLister,
	regenerator *FeeRegenerator,
	tx txProvider,
	cache *CacheService,
	audit auditWriter,
	validate *validator.Validate,
	logger *zap.Logger,
) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:        repo,
		classes:     classes,
		sessions:    sessions,
		fees:        fees,
		regenerator: regenerator,
		tx:          tx,
		cache:       cache,
		audit:       newAuditTrail(audit, logger, "student-service"),
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// List returns students matching the filter.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list students")
	}
	return students, paginate(filter.Page, filter.PageSize, total, 20), nil
}

// Get returns a student with class context and the fee status of the current session.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	if student.SessionID == nil {
		return student, nil
	}
	fees, err := s.fees.ListByStudentSession(ctx, student.ID, *student.SessionID)
	if err != nil {
		s.logger.Warn("failed to load fee status", zap.String("student_id", id), zap.Error(err))
		return student, nil
	}
	if len(fees) > 0 {
		catalog := buildCatalog(student.ID, *student.SessionID, fees, s.now())
		student.FeeStatus = catalog.OverallStatus()
	}
	return student, nil
}

// Create admits a student. With a class, the session's fee schedule is generated in the same transaction.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	exists, err := s.repo.ExistsByPAN(ctx, strings.TrimSpace(req.PAN), "")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check PAN uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student PAN already exists")
	}

	student := &models.Student{
		PAN:        strings.TrimSpace(req.PAN),
		FullName:   strings.TrimSpace(req.FullName),
		Section:    req.Section,
		RollNumber: req.RollNumber,
		Status:     models.StudentStatusActive,
	}

	if req.ClassID == nil || *req.ClassID == "" {
		if err := s.repo.Create(ctx, nil, student); err != nil {
			return nil, internalOr(err, "failed to create student")
		}
		s.cache.InvalidateDashboards(ctx)
		return student, nil
	}

	class, session, err := s.placement(ctx, *req.ClassID)
	if err != nil {
		return nil, err
	}
	student.ClassID = &class.ID

	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, student); err != nil {
			return err
		}
		_, err := s.regenerator.Regenerate(ctx, tx, student.ID, session, class)
		return err
	})
	if err != nil {
		return nil, internalOr(err, "failed to admit student")
	}
	s.cache.InvalidateDashboards(ctx)
	return student, nil
}

// Update edits profile fields; class and status have dedicated operations.
func (s *StudentService) Update(ctx context.Context, id string, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	student.FullName = strings.TrimSpace(req.FullName)
	student.Section = req.Section
	student.RollNumber = req.RollNumber
	if err := s.repo.UpdateProfile(ctx, student); err != nil {
		return nil, appErrors.Internal(err, "failed to update student")
	}
	return student, nil
}

// ChangeClass moves an active student and regenerates the outstanding schedule at the new class's rate.
func (s *StudentService) ChangeClass(ctx context.Context, id string, req dto.ChangeStudentClassRequest, claims *models.JWTClaims) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class change payload")
	}
	student, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	if student.Status != models.StudentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only active students can change class")
	}
	class, session, err := s.placement(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	previous := student.ClassID
	var generated int
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.UpdateClass(ctx, tx, student.ID, class.ID); err != nil {
			return err
		}
		n, err := s.regenerator.Regenerate(ctx, tx, student.ID, session, class)
		generated = n
		return err
	})
	if err != nil {
		return nil, internalOr(err, "failed to change student class")
	}

	student.ClassID = &class.ID
	s.cache.InvalidateDashboards(ctx)
	s.audit.record(ctx, actorID(claims), models.AuditActionStudentClass, "student", student.ID,
		map[string]interface{}{"class_id": previous},
		map[string]interface{}{"class_id": class.ID, "session_id": session.ID, "fees_generated": generated})
	s.logger.Info("student class changed", zap.String("student_id", student.ID), zap.String("class_id", class.ID), zap.Int("fees_generated", generated))
	return student, nil
}

// UpdateStatus toggles a student between ACTIVE and INACTIVE.
func (s *StudentService) UpdateStatus(ctx context.Context, id string, req dto.UpdateStudentStatusRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	student, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	if student.Status == models.StudentStatusGraduated {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "graduated students cannot change status")
	}
	status := models.StudentStatus(req.Status)
	if status == models.StudentStatusActive && student.ClassID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student needs a class before activation")
	}
	if err := s.repo.UpdateStatus(ctx, nil, student.ID, status, false); err != nil {
		return nil, appErrors.Internal(err, "failed to update student status")
	}
	student.Status = status
	s.cache.InvalidateDashboards(ctx)
	return student, nil
}

func (s *StudentService) placement(ctx context.Context, classID string) (*models.Class, *models.Session, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, nil, notFoundOr(err, "class not found", "failed to load class")
	}
	session, err := s.sessions.FindByID(ctx, class.SessionID)
	if err != nil {
		return nil, nil, notFoundOr(err, "session not found", "failed to load session")
	}
	return class, session, nil
}
