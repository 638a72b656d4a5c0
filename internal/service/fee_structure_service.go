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

type feeStructureRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.FeeStructureDetail, error)
	Upsert(ctx context.Context, structure *models.FeeStructure) error
}

// FeeStructureService maintains the monthly rate of each class.
// Rate changes never rewrite existing schedules.
type FeeStructureService struct {
	repo            feeStructureRepository
	classes         classReader
	audit           *auditTrail
	validator       *validator.Validate
	logger          *zap.Logger
	defaultCurrency string
}

// NewFeeStructureService constructs the service.
func NewFeeStructureService(repo feeStructureRepository, classes classReader, audit auditWriter, validate *validator.Validate, logger *zap.Logger, defaultCurrency string) *FeeStructureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultCurrency == "" {
		defaultCurrency = "INR"
	}
	return &FeeStructureService{
		repo:            repo,
		classes:         classes,
		audit:           newAuditTrail(audit, logger, "fee-structure-service"),
		validator:       validate,
		logger:          logger,
		defaultCurrency: strings.ToUpper(defaultCurrency),
	}
}

// List returns the structures of every class in the session.
func (s *FeeStructureService) List(ctx context.Context, sessionID string) ([]models.FeeStructureDetail, error) {
	if sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sessionId is required")
	}
	items, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list fee structures")
	}
	return items, nil
}

// Upsert sets the monthly rate of a class.
func (s *FeeStructureService) Upsert(ctx context.Context, classID string, req dto.FeeStructureRequest, claims *models.JWTClaims) (*models.FeeStructure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid fee structure payload")
	}
	if models.HasSubCentPrecision(req.MonthlyAmount) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "monthly_amount supports at most two decimals")
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	structure := &models.FeeStructure{ClassID: class.ID, MonthlyAmount: req.MonthlyAmount, Currency: currency}
	if err := s.repo.Upsert(ctx, structure); err != nil {
		return nil, appErrors.Internal(err, "failed to save fee structure")
	}
	s.audit.record(ctx, actorID(claims), models.AuditActionFeeStructureRate, "fee_structure", structure.ID, nil,
		map[string]interface{}{"class_id": class.ID, "monthly_amount": structure.MonthlyAmount, "currency": currency})
	return structure, nil
}
