package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
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

type promotionRepository interface {
	UpsertPending(ctx context.Context, exec sqlx.ExtContext, record *models.PromotionRecord) error
	LockExecutedStudentIDs(ctx context.Context, exec sqlx.ExtContext, sessionID string, studentIDs []string) ([]string, error)
	List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRecordDetail, error)
	Summary(ctx context.Context, sessionID, classID string) (*models.PromotionSummary, error)
	ListPending(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.PromotionRecord, error)
	Claim(ctx context.Context, exec sqlx.ExtContext, id string, status models.PromotionStatus, targetSessionID string, executedAt time.Time) (bool, error)
}

type promotionStudentRepository interface {
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Student, error)
	UpdateClass(ctx context.Context, exec sqlx.ExtContext, id, classID string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.StudentStatus, clearClass bool) error
}

type promotionClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindByName(ctx context.Context, exec sqlx.ExtContext, sessionID, name string) (*models.Class, error)
}

// PromotionService collects per-student promotion decisions and applies them across sessions.
type PromotionService struct {
	records     promotionRepository
	students    promotionStudentRepository
	classes     promotionClassRepository
	sessions    sessionReader
	regenerator *FeeRegenerator
	tx          txProvider
	cache       *CacheService
	metrics     *MetricsService
	audit       *auditTrail
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewPromotionService wires the promotion workflow.
func NewPromotionService(
	records promotionRepository,
	students promotionStudentRepository,
	classes promotionClassRepository,
	sessions sessionReader,
	regenerator *FeeRegenerator,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	audit auditWriter,
	validate *validator.Validate,
	logger *zap.Logger,
) *PromotionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{
		records:     records,
		students:    students,
		classes:     classes,
		sessions:    sessions,
		regenerator: regenerator,
		tx:          tx,
		cache:       cache,
		metrics:     metrics,
		audit:       newAuditTrail(audit, logger, "promotion-service"),
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Assign stores PENDING decisions for students of a class. A prior pending choice is overwritten.
func (s *PromotionService) Assign(ctx context.Context, req dto.AssignPromotionsRequest, claims *models.JWTClaims) ([]models.PromotionRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid promotion payload")
	}
	if err := validateDecisions(req.Decisions); err != nil {
		return nil, err
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	if class.SessionID != req.SessionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class does not belong to session")
	}
	if !claims.CanManageClass(*class) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the class teacher can assign promotions")
	}

	ids := make([]string, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		ids = append(ids, d.StudentID)
	}
	if err := s.ensureSeated(ctx, class, ids); err != nil {
		return nil, err
	}
	records := make([]models.PromotionRecord, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		record := models.PromotionRecord{
			StudentID:     d.StudentID,
			FromClassName: class.Name,
			ToClassName:   trimmedName(d.ToClassName),
			Status:        models.PromotionStatusPending,
			Remarks:       d.Remarks,
			IsGraduated:   d.Graduated,
			SessionID:     req.SessionID,
			AssignedBy:    actorID(claims),
		}
		if err := record.Validate(); err != nil {
			return nil, validationError(err, "invalid promotion decision")
		}
		records = append(records, record)
	}

	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		executed, err := s.records.LockExecutedStudentIDs(ctx, tx, req.SessionID, ids)
		if err != nil {
			return appErrors.Internal(err, "failed to check promotion history")
		}
		if len(executed) > 0 {
			return appErrors.WithDetails(appErrors.ErrConflict, "promotion already executed", executed)
		}
		for i := range records {
			if err := s.records.UpsertPending(ctx, tx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, internalOr(err, "failed to store promotion decisions")
	}

	s.cache.InvalidateDashboards(ctx)
	s.audit.record(ctx, actorID(claims), models.AuditActionPromotionAssign, "class", class.ID, nil,
		map[string]interface{}{"session_id": req.SessionID, "students": len(records)})
	return records, nil
}

// List returns the records of a source session with a status summary.
func (s *PromotionService) List(ctx context.Context, filter models.PromotionFilter) (*dto.PromotionListResponse, error) {
	if _, err := s.sessions.FindByID(ctx, filter.SessionID); err != nil {
		return nil, notFoundOr(err, "session not found", "failed to load session")
	}
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list promotions")
	}
	summary, err := s.records.Summary(ctx, filter.SessionID, filter.ClassID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to summarise promotions")
	}
	if records == nil {
		records = []models.PromotionRecordDetail{}
	}
	return &dto.PromotionListResponse{Records: records, Summary: *summary}, nil
}

// Execute applies every PENDING record of fromSessionID in one transaction: students move,
// records transition and fee schedules for toSessionID are regenerated.
func (s *PromotionService) Execute(ctx context.Context, fromSessionID, toSessionID string, claims *models.JWTClaims) (*dto.ExecutePromotionsResult, error) {
	fromSessionID = strings.TrimSpace(fromSessionID)
	toSessionID = strings.TrimSpace(toSessionID)
	if fromSessionID == "" || toSessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fromSessionId and toSessionId are required")
	}
	if fromSessionID == toSessionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "source and target session must differ")
	}

	if _, err := s.sessions.FindByID(ctx, fromSessionID); err != nil {
		return nil, notFoundOr(err, "source session not found", "failed to load source session")
	}
	target, err := s.sessions.FindByID(ctx, toSessionID)
	if err != nil {
		return nil, notFoundOr(err, "target session not found", "failed to load target session")
	}

	result := &dto.ExecutePromotionsResult{FromSessionID: fromSessionID, ToSessionID: toSessionID}
	executedAt := s.now().UTC()
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		pending, err := s.records.ListPending(ctx, tx, fromSessionID)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "no pending promotions")
		}

		plan, err := s.plan(ctx, tx, pending, target)
		if err != nil {
			return err
		}

		for _, rec := range pending {
			outcome := rec.Outcome()
			claimed, err := s.records.Claim(ctx, tx, rec.ID, outcome, toSessionID, executedAt)
			if err != nil {
				return err
			}
			if !claimed {
				return appErrors.Clone(appErrors.ErrConflict, "promotion already executed by another request")
			}

			switch outcome {
			case models.PromotionStatusGraduated:
				if err := s.students.UpdateStatus(ctx, tx, rec.StudentID, models.StudentStatusGraduated, true); err != nil {
					return err
				}
				result.Graduated++
			case models.PromotionStatusPromoted:
				n, err := s.seat(ctx, tx, rec.StudentID, target, plan.promote[classKey(*rec.ToClassName)])
				if err != nil {
					return err
				}
				result.FeesGenerated += n
				result.Promoted++
			default:
				if class, ok := plan.reseat[classKey(rec.FromClassName)]; ok {
					n, err := s.seat(ctx, tx, rec.StudentID, target, class)
					if err != nil {
						return err
					}
					result.FeesGenerated += n
				}
				result.Detained++
			}
			result.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, internalOr(err, "failed to execute promotions")
	}

	s.metrics.RecordPromotionExecution(result)
	s.cache.InvalidateDashboards(ctx)
	s.audit.record(ctx, actorID(claims), models.AuditActionPromotionExecute, "session", fromSessionID, nil, result)
	s.logger.Info("promotions executed",
		zap.String("from_session_id", fromSessionID),
		zap.String("to_session_id", toSessionID),
		zap.Int("promoted", result.Promoted),
		zap.Int("detained", result.Detained),
		zap.Int("graduated", result.Graduated),
		zap.Int("fees_generated", result.FeesGenerated),
	)
	return result, nil
}

type executionPlan struct {
	promote map[string]*models.Class
	reseat  map[string]*models.Class
}

// plan resolves every target class before anything is written so a missing class
// or fee structure aborts the pass without partial effects.
func (s *PromotionService) plan(ctx context.Context, tx sqlx.ExtContext, pending []models.PromotionRecord, target *models.Session) (*executionPlan, error) {
	plan := &executionPlan{promote: map[string]*models.Class{}, reseat: map[string]*models.Class{}}
	var missing []string
	for _, rec := range pending {
		switch {
		case rec.IsGraduated:
			continue
		case rec.ToClassName != nil:
			key := classKey(*rec.ToClassName)
			if _, seen := plan.promote[key]; seen {
				continue
			}
			class, err := s.classes.FindByName(ctx, tx, target.ID, *rec.ToClassName)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					plan.promote[key] = nil
					missing = append(missing, *rec.ToClassName)
					continue
				}
				return nil, err
			}
			plan.promote[key] = class
		default:
			key := classKey(rec.FromClassName)
			if _, seen := plan.reseat[key]; seen {
				continue
			}
			class, err := s.classes.FindByName(ctx, tx, target.ID, rec.FromClassName)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					continue
				}
				return nil, err
			}
			plan.reseat[key] = class
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("target classes missing in session %s: %s", target.Name, strings.Join(missing, ", ")), missing)
	}

	for _, classes := range []map[string]*models.Class{plan.promote, plan.reseat} {
		for _, class := range classes {
			if _, err := s.regenerator.Structure(ctx, tx, class); err != nil {
				return nil, err
			}
		}
	}
	return plan, nil
}

func (s *PromotionService) seat(ctx context.Context, tx sqlx.ExtContext, studentID string, session *models.Session, class *models.Class) (int, error) {
	if err := s.students.UpdateClass(ctx, tx, studentID, class.ID); err != nil {
		return 0, err
	}
	return s.regenerator.Regenerate(ctx, tx, studentID, session, class)
}

func (s *PromotionService) ensureSeated(ctx context.Context, class *models.Class, ids []string) error {
	students, err := s.students.FindByIDs(ctx, nil, ids)
	if err != nil {
		return appErrors.Internal(err, "failed to load students")
	}
	byID := make(map[string]models.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}
	var invalid []string
	for _, id := range ids {
		st, ok := byID[id]
		if !ok || st.Status != models.StudentStatusActive || st.ClassID == nil || *st.ClassID != class.ID {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, "students must be active and seated in the class", invalid)
	}
	return nil
}

// validateDecisions requires exactly one outcome per decision and one decision per student.
func validateDecisions(decisions []dto.PromotionDecision) error {
	seen := make(map[string]struct{}, len(decisions))
	var invalid []string
	for _, d := range decisions {
		outcomes := 0
		if trimmedName(d.ToClassName) != nil {
			outcomes++
		}
		if d.Graduated {
			outcomes++
		}
		if d.Detain {
			outcomes++
		}
		if _, dup := seen[d.StudentID]; dup || outcomes != 1 {
			invalid = append(invalid, d.StudentID)
		}
		seen[d.StudentID] = struct{}{}
	}
	if len(invalid) > 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, "each student needs exactly one outcome", invalid)
	}
	return nil
}

func trimmedName(name *string) *string {
	if name == nil {
		return nil
	}
	v := strings.TrimSpace(*name)
	if v == "" {
		return nil
	}
	return &v
}

func classKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
