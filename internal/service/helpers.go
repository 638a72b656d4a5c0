package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/internal/repository"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// auditTrail writes best-effort audit entries; failures are only logged.
type auditTrail struct {
	repo   auditWriter
	logger *zap.Logger
	agent  string
}

func newAuditTrail(repo auditWriter, logger *zap.Logger, agent string) *auditTrail {
	return &auditTrail{repo: repo, logger: logger, agent: agent}
}

func (a *auditTrail) record(ctx context.Context, actorID, action, resource, resourceID string, oldValues, newValues interface{}) {
	if a == nil || a.repo == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: optionalString(resourceID),
		UserID:     optionalString(actorID),
		OldValues:  marshalAudit(oldValues),
		NewValues:  marshalAudit(newValues),
		IPAddress:  "system",
		UserAgent:  a.agent,
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		a.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func marshalAudit(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

// notFoundOr maps sql.ErrNoRows to NOT_FOUND and anything else to INTERNAL_ERROR.
func notFoundOr(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, internalMsg)
}

// internalOr keeps typed errors and wraps the rest, mapping unique violations to CONFLICT.
func internalOr(err error, msg string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if repository.IsUniqueViolation(err) {
		return appErrors.WrapAs(appErrors.ErrConflict, err, "resource already exists")
	}
	return appErrors.Internal(err, msg)
}

func validationError(err error, msg string) error {
	return appErrors.WrapAs(appErrors.ErrValidation, err, msg)
}

func paginate(page, size, total, defaultSize int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = defaultSize
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func actorID(claims *models.JWTClaims) string {
	if claims == nil {
		return ""
	}
	return claims.UserID
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}
