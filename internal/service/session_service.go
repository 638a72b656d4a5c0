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

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActive(ctx context.Context) (*models.Session, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	SetActive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	CountReferences(ctx context.Context, id string) (int, error)
}

// SessionService orchestrates academic session workflows.
type SessionService struct {
	repo      sessionRepository
	cache     *CacheService
	audit     *auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService creates a new session service instance.
func NewSessionService(repo sessionRepository, cache *CacheService, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, cache: cache, audit: newAuditTrail(audit, logger, "session-service"), validator: validate, logger: logger}
}

// List returns paginated sessions.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list sessions")
	}
	return sessions, paginate(filter.Page, filter.PageSize, total, 20), nil
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "session not found", "failed to load session")
	}
	return session, nil
}

// GetActive returns the currently active session.
func (s *SessionService) GetActive(ctx context.Context) (*models.Session, error) {
	session, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, notFoundOr(err, "active session not found", "failed to load active session")
	}
	return session, nil
}

// Create adds a new session ensuring a unique name and ordered dates.
func (s *SessionService) Create(ctx context.Context, req dto.SessionRequest) (*models.Session, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, req.Name, ""); err != nil {
		return nil, err
	}

	session := &models.Session{
		Name:      strings.TrimSpace(req.Name),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, internalOr(err, "failed to create session")
	}
	return session, nil
}

// Update modifies a session record.
func (s *SessionService) Update(ctx context.Context, id string, req dto.SessionRequest) (*models.Session, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, req.Name, id); err != nil {
		return nil, err
	}

	session.Name = strings.TrimSpace(req.Name)
	session.StartDate = req.StartDate
	session.EndDate = req.EndDate
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, internalOr(err, "failed to update session")
	}
	return session, nil
}

// Activate designates a session as the active one.
func (s *SessionService) Activate(ctx context.Context, id string, claims *models.JWTClaims) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, session.ID); err != nil {
		return nil, appErrors.Internal(err, "failed to activate session")
	}
	session.IsActive = true

	s.cache.InvalidateDashboards(ctx)
	s.audit.record(ctx, actorID(claims), models.AuditActionSessionActivate, "session", session.ID, nil, map[string]string{"name": session.Name})
	return session, nil
}

// Delete removes a session when it is inactive and nothing references it.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.IsActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete active session")
	}

	count, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to check session dependencies")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "session is referenced by classes, promotions or fees")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to delete session")
	}
	return nil
}

func (s *SessionService) validate(req dto.SessionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid session payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}
	return nil
}

func (s *SessionService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, strings.TrimSpace(name), excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check session uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "session name already exists")
	}
	return nil
}
