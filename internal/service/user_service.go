package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/internal/repository"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	CountLedClasses(ctx context.Context, id string) (int, error)
}

// UserService manages ADMIN and TEACHER accounts.
type UserService struct {
	repo      userRepository
	audit     *auditTrail
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		repo:      repo,
		audit:     newAuditTrail(audit, logger, "user-service"),
		validator: validate,
		logger:    logger,
		hashCost:  bcrypt.DefaultCost,
	}
}

// List returns accounts with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "role must be ADMIN or TEACHER")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, paginate(filter.Page, filter.PageSize, total, 20), nil
}

// Get loads one account.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	return user, nil
}

// Create provisions an account. Accounts are active unless the request says otherwise.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, claims *models.JWTClaims) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid user payload")
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       req.Active == nil || *req.Active,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, internalOr(err, "failed to create user")
	}

	s.audit.record(ctx, actorID(claims), models.AuditActionUserCreate, "user", user.ID, nil,
		map[string]interface{}{"email": user.Email, "role": user.Role, "active": user.Active})
	return user, nil
}

// Update edits name, role, activity and optionally the password.
func (s *UserService) Update(ctx context.Context, id string, req dto.UpdateUserRequest, claims *models.JWTClaims) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid user payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := map[string]interface{}{"full_name": user.FullName, "role": user.Role, "active": user.Active}
	next := *user
	next.FullName = strings.TrimSpace(req.FullName)
	next.Role = req.Role
	if req.Active != nil {
		next.Active = *req.Active
	}
	if err := s.checkRevocation(ctx, user, next, claims); err != nil {
		return nil, err
	}
	if req.Password != "" {
		if next.PasswordHash, err = s.hash(req.Password); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, notFoundOr(err, "user not found", "failed to update user")
	}
	after := map[string]interface{}{"full_name": next.FullName, "role": next.Role, "active": next.Active, "password_changed": req.Password != ""}
	s.audit.record(ctx, actorID(claims), models.AuditActionUserUpdate, "user", next.ID, before, after)
	return &next, nil
}

// Deactivate disables an account without deleting it, so audit history keeps its author.
func (s *UserService) Deactivate(ctx context.Context, id string, claims *models.JWTClaims) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !user.Active {
		return nil
	}
	next := *user
	next.Active = false
	if err := s.checkRevocation(ctx, user, next, claims); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, &next); err != nil {
		return notFoundOr(err, "user not found", "failed to deactivate user")
	}
	s.audit.record(ctx, actorID(claims), models.AuditActionUserDeactivate, "user", next.ID,
		map[string]interface{}{"active": true}, map[string]interface{}{"active": false})
	return nil
}

// checkRevocation keeps admins from locking themselves out and keeps classes
// from pointing at a teacher who can no longer lead them.
func (s *UserService) checkRevocation(ctx context.Context, current *models.User, next models.User, claims *models.JWTClaims) error {
	if claims != nil && claims.UserID == current.ID && (!next.Active || next.Role != current.Role) {
		return appErrors.Clone(appErrors.ErrConflict, "cannot change your own role or deactivate yourself")
	}
	if !current.CanLeadClass() || next.CanLeadClass() {
		return nil
	}
	led, err := s.repo.CountLedClasses(ctx, current.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to check class assignments")
	}
	if led > 0 {
		return appErrors.WithDetails(appErrors.ErrConflict,
			fmt.Sprintf("user is class teacher of %d class(es); reassign them first", led), map[string]int{"classes": led})
	}
	return nil
}

func (s *UserService) hash(password string) (string, error) {
	raw, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", appErrors.Internal(err, "failed to hash password")
	}
	return string(raw), nil
}
