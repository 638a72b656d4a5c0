package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/pkg/database"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type examRepository interface {
	ListClassExams(ctx context.Context, classID string) ([]models.ClassExam, error)
	CountExamTypes(ctx context.Context, ids []string) (int, error)
	ReplaceClassExams(ctx context.Context, exec sqlx.ExtContext, classID string, examTypeIDs []string) error
	IsExamTypeAssigned(ctx context.Context, classID, examTypeID string) (bool, error)
	ListByClass(ctx context.Context, classID string) ([]models.Exam, error)
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	Create(ctx context.Context, exam *models.Exam) error
	UpsertMarks(ctx context.Context, exec sqlx.ExtContext, marks []models.Mark) error
	Results(ctx context.Context, examID string) ([]models.ExamResult, error)
}

type studentBatchReader interface {
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Student, error)
}

// ExamService manages exam type assignment, exams and marks.
type ExamService struct {
	repo      examRepository
	classes   classReader
	students  studentBatchReader
	tx        txProvider
	audit     *auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs ExamService.
func NewExamService(repo examRepository, classes classReader, students studentBatchReader, tx txProvider, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{
		repo:      repo,
		classes:   classes,
		students:  students,
		tx:        tx,
		audit:     newAuditTrail(audit, logger, "exam-service"),
		validator: validate,
		logger:    logger,
	}
}

// ListClassExams returns the exam types assigned to a class.
func (s *ExamService) ListClassExams(ctx context.Context, classID string) ([]models.ClassExam, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	items, err := s.repo.ListClassExams(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list class exams")
	}
	return items, nil
}

// SyncClassExams replaces the class's exam type set in one transaction.
func (s *ExamService) SyncClassExams(ctx context.Context, classID string, req dto.SyncClassExamsRequest) ([]models.ClassExam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid exam sync payload")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}

	ids := uniqueStrings(req.ExamTypeIDs)
	if len(ids) > 0 {
		count, err := s.repo.CountExamTypes(ctx, ids)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to check exam types")
		}
		if count != len(ids) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown exam type in request")
		}
	}

	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		return s.repo.ReplaceClassExams(ctx, tx, classID, ids)
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sync class exams")
	}
	return s.ListClassExams(ctx, classID)
}

// ListExams returns the exams of a class.
func (s *ExamService) ListExams(ctx context.Context, classID string) ([]models.Exam, error) {
	exams, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list exams")
	}
	return exams, nil
}

// CreateExam schedules a paper for an exam type assigned to the class.
func (s *ExamService) CreateExam(ctx context.Context, req dto.CreateExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid exam payload")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	assigned, err := s.repo.IsExamTypeAssigned(ctx, req.ClassID, req.ExamTypeID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check exam type assignment")
	}
	if !assigned {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam type is not assigned to the class")
	}

	exam := &models.Exam{
		ClassID:      req.ClassID,
		ExamTypeID:   req.ExamTypeID,
		SubjectName:  strings.TrimSpace(req.SubjectName),
		MaxMarks:     req.MaxMarks,
		PassingMarks: req.PassingMarks,
		ExamDate:     req.ExamDate,
	}
	if err := s.repo.Create(ctx, exam); err != nil {
		return nil, internalOr(err, "failed to create exam")
	}
	return exam, nil
}

// UploadMarks validates every entry before writing any of them.
func (s *ExamService) UploadMarks(ctx context.Context, examID string, req dto.UploadMarksRequest, claims *models.JWTClaims) ([]models.Mark, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid marks payload")
	}
	exam, err := s.repo.FindByID(ctx, examID)
	if err != nil {
		return nil, notFoundOr(err, "exam not found", "failed to load exam")
	}
	class, err := s.classes.FindByID(ctx, exam.ClassID)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	if !claims.CanManageClass(*class) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the class teacher can upload marks")
	}

	if invalid := dto.OutOfRangeMarks(exam.MaxMarks, req.Entries); len(invalid) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("marks must be between 0 and %g", exam.MaxMarks), invalid)
	}

	ids := make([]string, 0, len(req.Entries))
	for _, entry := range req.Entries {
		ids = append(ids, entry.StudentID)
	}
	if len(uniqueStrings(ids)) != len(ids) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate student in marks upload")
	}
	students, err := s.students.FindByIDs(ctx, nil, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load students")
	}
	inClass := make(map[string]struct{}, len(students))
	for _, st := range students {
		if st.ClassID != nil && *st.ClassID == exam.ClassID {
			inClass[st.ID] = struct{}{}
		}
	}
	var outsiders []string
	for _, id := range ids {
		if _, ok := inClass[id]; !ok {
			outsiders = append(outsiders, id)
		}
	}
	if len(outsiders) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "students are not in the exam's class", outsiders)
	}

	marks := make([]models.Mark, 0, len(req.Entries))
	for _, entry := range req.Entries {
		marks = append(marks, models.Mark{ExamID: exam.ID, StudentID: entry.StudentID, MarksObtained: entry.Marks, UploadedBy: actorID(claims)})
	}
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		return s.repo.UpsertMarks(ctx, tx, marks)
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to upload marks")
	}

	s.audit.record(ctx, actorID(claims), models.AuditActionMarksUpload, "exam", exam.ID, nil, map[string]int{"entries": len(marks)})
	return marks, nil
}

// Results returns marks for an exam flagged pass or fail.
func (s *ExamService) Results(ctx context.Context, examID string) ([]models.ExamResult, error) {
	exam, err := s.repo.FindByID(ctx, examID)
	if err != nil {
		return nil, notFoundOr(err, "exam not found", "failed to load exam")
	}
	results, err := s.repo.Results(ctx, exam.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load exam results")
	}
	for i := range results {
		results[i].Passed = results[i].MarksObtained >= exam.PassingMarks
	}
	return results, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
