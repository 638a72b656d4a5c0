package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ExistsByName(ctx context.Context, sessionID, name, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	CountStudents(ctx context.Context, id string) (int, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ClassService coordinates class operations.
type ClassService struct {
	repo      classRepository
	sessions  sessionReader
	users     userReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, sessions sessionReader, users userReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, sessions: sessions, users: users, cache: cache, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list classes")
	}
	return classes, paginate(filter.Page, filter.PageSize, total, 20), nil
}

// Get fetches a class by ID.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	return class, nil
}

// Create inserts a class into a session.
func (s *ClassService) Create(ctx context.Context, req dto.ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class payload")
	}
	if err := s.checkRefs(ctx, req, ""); err != nil {
		return nil, err
	}

	class := &models.Class{
		Name:           strings.TrimSpace(req.Name),
		SessionID:      req.SessionID,
		ClassTeacherID: req.ClassTeacherID,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, internalOr(err, "failed to create class")
	}
	s.cache.InvalidateDashboards(ctx)
	return class, nil
}

// Update modifies class attributes.
func (s *ClassService) Update(ctx context.Context, id string, req dto.ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class payload")
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, req, id); err != nil {
		return nil, err
	}

	class.Name = strings.TrimSpace(req.Name)
	class.SessionID = req.SessionID
	class.ClassTeacherID = req.ClassTeacherID
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, internalOr(err, "failed to update class")
	}
	s.cache.InvalidateDashboards(ctx)
	return class, nil
}

// Delete removes a class that has no seated students.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountStudents(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to check class dependencies")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "class still has students")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to delete class")
	}
	s.cache.InvalidateDashboards(ctx)
	return nil
}

func (s *ClassService) checkRefs(ctx context.Context, req dto.ClassRequest, excludeID string) error {
	if _, err := s.sessions.FindByID(ctx, req.SessionID); err != nil {
		return notFoundOr(err, "session not found", "failed to load session")
	}
	if req.ClassTeacherID != nil && *req.ClassTeacherID != "" {
		user, err := s.users.FindByID(ctx, *req.ClassTeacherID)
		if err != nil {
			return notFoundOr(err, "class teacher not found", "failed to load class teacher")
		}
		if !user.CanLeadClass() {
			return appErrors.Clone(appErrors.ErrValidation, "class teacher must be an active TEACHER account")
		}
	}
	exists, err := s.repo.ExistsByName(ctx, req.SessionID, strings.TrimSpace(req.Name), excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check class uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "class name already exists in session")
	}
	return nil
}
