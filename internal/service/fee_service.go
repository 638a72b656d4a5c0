package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/internal/repository"
	"github.com/noah-isme/sma-lms-api/pkg/database"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
	"github.com/noah-isme/sma-lms-api/pkg/export"
	"github.com/noah-isme/sma-lms-api/pkg/storage"
)

type feeRepository interface {
	ListByStudentSession(ctx context.Context, studentID, sessionID string) ([]models.MonthlyFee, error)
	CountByStudentSession(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (int, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, fees []models.MonthlyFee) error
	FindByID(ctx context.Context, id string) (*models.MonthlyFee, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time, receiptNumber string) (*models.MonthlyFee, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
}

type tabularRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// FeeServiceConfig carries presentation settings for receipts.
type FeeServiceConfig struct {
	SchoolName    string
	ReceiptPrefix string
}

// FeeService manages fee catalogs, payments, exports and receipts.
type FeeService struct {
	fees        feeRepository
	students    studentFinder
	classes     classReader
	sessions    sessionReader
	regenerator *FeeRegenerator
	tx          txProvider
	signer      *storage.SignedURLSigner
	pdf         *export.PDFExporter
	renderers   map[dto.FeeExportFormat]tabularRenderer
	cache       *CacheService
	metrics     *MetricsService
	audit       *auditTrail
	validator   *validator.Validate
	logger      *zap.Logger
	config      FeeServiceConfig
	now         func() time.Time
}

// NewFeeService constructs a FeeService.
func NewFeeService(
	fees feeRepository,
	students studentFinder,
	classes classReader,
	sessions sessionReader,
	regenerator *FeeRegenerator,
	tx txProvider,
	signer *storage.SignedURLSigner,
	cache *CacheService,
	metrics *MetricsService,
	audit auditWriter,
	validate *validator.Validate,
	logger *zap.Logger,
	config FeeServiceConfig,
) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SchoolName == "" {
		config.SchoolName = "School LMS"
	}
	pdf := export.NewPDFExporter()
	return &FeeService{
		fees:        fees,
		students:    students,
		classes:     classes,
		sessions:    sessions,
		regenerator: regenerator,
		tx:          tx,
		signer:      signer,
		pdf:         pdf,
		renderers: map[dto.FeeExportFormat]tabularRenderer{
			dto.FeeExportCSV:  export.NewCSVExporter(),
			dto.FeeExportPDF:  pdf,
			dto.FeeExportXLSX: export.NewXLSXExporter(),
		},
		cache:     cache,
		metrics:   metrics,
		audit:     newAuditTrail(audit, logger, "fee-service"),
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Catalog returns the student's schedule for the session with derived totals.
// An empty sessionID resolves to the session of the student's current class.
func (s *FeeService) Catalog(ctx context.Context, studentID, sessionID string) (*models.FeeCatalog, error) {
	student, err := s.students.FindByID(ctx, nil, studentID)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	if sessionID == "" {
		class, err := s.currentClass(ctx, student)
		if err != nil {
			return nil, err
		}
		sessionID = class.SessionID
	}

	fees, err := s.fees.ListByStudentSession(ctx, student.ID, sessionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load fee catalog")
	}
	return buildCatalog(student.ID, sessionID, fees, s.now()), nil
}

// Generate inserts the schedule for a student that has none in the session.
func (s *FeeService) Generate(ctx context.Context, studentID string, req dto.GenerateFeesRequest, claims *models.JWTClaims) (*models.FeeCatalog, error) {
	student, err := s.students.FindByID(ctx, nil, studentID)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	class, err := s.currentClass(ctx, student)
	if err != nil {
		return nil, err
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = class.SessionID
	}
	if sessionID != class.SessionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student's class does not belong to the session")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "session not found", "failed to load session")
	}

	var generated int
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		count, err := s.fees.CountByStudentSession(ctx, tx, student.ID, session.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return appErrors.Clone(appErrors.ErrFeesAlreadyExist, "fee records already exist for this session")
		}
		schedule, err := s.regenerator.Schedule(ctx, tx, student.ID, session, class)
		if err != nil {
			return err
		}
		if err := s.fees.InsertBatch(ctx, tx, schedule); err != nil {
			return err
		}
		generated = len(schedule)
		return nil
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.WrapAs(appErrors.ErrFeesAlreadyExist, err, "fee records already exist for this session")
		}
		return nil, internalOr(err, "failed to generate fees")
	}

	s.metrics.RecordFeesGenerated(generated)
	s.cache.InvalidateDashboards(ctx)
	s.audit.record(ctx, actorID(claims), models.AuditActionFeeGenerate, "student", student.ID, nil,
		map[string]interface{}{"session_id": session.ID, "class_id": class.ID, "months": generated})
	return s.Catalog(ctx, student.ID, session.ID)
}

// Pay settles a PENDING or OVERDUE fee and returns a signed receipt link.
func (s *FeeService) Pay(ctx context.Context, feeID string, req dto.PayFeeRequest, claims *models.JWTClaims) (*dto.PayFeeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid payment payload")
	}
	current, err := s.fees.FindByID(ctx, feeID)
	if err != nil {
		return nil, notFoundOr(err, "fee not found", "failed to load fee")
	}
	if current.Status == models.FeeStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "fee already paid")
	}

	now := s.now().UTC()
	receipt := strings.TrimSpace(req.ReceiptNumber)
	if receipt == "" {
		receipt = newReceiptNumber(now)
	}
	paidAt := now
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paidAt = req.PaymentDate.UTC()
	}

	fee, err := s.fees.MarkPaid(ctx, feeID, paidAt, receipt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "fee already paid")
		}
		return nil, appErrors.Internal(err, "failed to record payment")
	}

	s.metrics.RecordFeePayment()
	s.cache.InvalidateDashboards(ctx)
	s.audit.record(ctx, actorID(claims), models.AuditActionFeePay, "monthly_fee", fee.ID,
		map[string]interface{}{"status": current.Status},
		map[string]interface{}{"status": fee.Status, "receipt_number": receipt, "amount": fee.Amount})

	resp := &dto.PayFeeResponse{Fee: *fee}
	token, expiresAt, err := s.signer.Generate(fee.ID, receipt)
	if err != nil {
		s.logger.Warn("failed to sign receipt url", zap.String("fee_id", fee.ID), zap.Error(err))
		return resp, nil
	}
	resp.ReceiptURL = fmt.Sprintf("%s/receipts/%s", strings.TrimRight(s.config.ReceiptPrefix, "/"), token)
	resp.ReceiptExpiresAt = expiresAt
	return resp, nil
}

// Export renders the catalog as csv, pdf or xlsx.
func (s *FeeService) Export(ctx context.Context, studentID, sessionID string, format dto.FeeExportFormat) (*dto.FeeExport, error) {
	if format == "" {
		format = dto.FeeExportCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be one of csv, pdf, xlsx")
	}
	catalog, err := s.Catalog(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(catalogDataset(catalog))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render fee catalog")
	}
	return &dto.FeeExport{
		Filename:    fmt.Sprintf("fees-%s-%s.%s", studentID, catalog.SessionID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// Receipt renders the PDF receipt referenced by a signed token.
func (s *FeeService) Receipt(ctx context.Context, token string) (*dto.FeeExport, error) {
	feeID, receiptNumber, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrForbidden, err, "invalid receipt link")
	}
	fee, err := s.fees.FindByID(ctx, feeID)
	if err != nil {
		return nil, notFoundOr(err, "fee not found", "failed to load fee")
	}
	if fee.Status != models.FeeStatusPaid || fee.ReceiptNumber == nil || *fee.ReceiptNumber != receiptNumber {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
	}
	student, err := s.students.FindByID(ctx, nil, fee.StudentID)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	className := ""
	if class, err := s.classes.FindByID(ctx, fee.ClassID); err == nil {
		className = class.Name
	}

	paidOn := ""
	if fee.PaymentDate != nil {
		paidOn = fee.PaymentDate.Format("2006-01-02")
	}
	body, err := s.pdf.RenderReceipt(export.Receipt{
		SchoolName:    s.config.SchoolName,
		ReceiptNumber: receiptNumber,
		StudentName:   student.FullName,
		StudentPAN:    student.PAN,
		ClassName:     className,
		Period:        fmt.Sprintf("%s %d", fee.MonthName, fee.Year),
		Amount:        formatAmount(fee.Amount),
		PaidOn:        paidOn,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render receipt")
	}
	return &dto.FeeExport{
		Filename:    fmt.Sprintf("receipt-%s.pdf", receiptNumber),
		ContentType: s.pdf.ContentType(),
		Body:        body,
	}, nil
}

// MarkOverdue persists OVERDUE for pending fees due before asOf.
func (s *FeeService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	affected, err := s.fees.MarkOverdue(ctx, asOf)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to mark overdue fees")
	}
	if affected > 0 {
		s.cache.InvalidateDashboards(ctx)
	}
	return affected, nil
}

func (s *FeeService) currentClass(ctx context.Context, student *models.Student) (*models.Class, error) {
	if student.ClassID == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not assigned to a class")
	}
	class, err := s.classes.FindByID(ctx, *student.ClassID)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	return class, nil
}

// buildCatalog derives per-entry effective status and the catalog totals.
func buildCatalog(studentID, sessionID string, fees []models.MonthlyFee, now time.Time) *models.FeeCatalog {
	catalog := &models.FeeCatalog{StudentID: studentID, SessionID: sessionID, Fees: make([]models.MonthlyFee, 0, len(fees))}
	var total, paid, pending, overdue int64
	for _, fee := range fees {
		fee.Status = fee.EffectiveStatus(now)
		cents := models.MinorUnits(fee.Amount)
		total += cents
		switch fee.Status {
		case models.FeeStatusPaid:
			paid += cents
		case models.FeeStatusOverdue:
			overdue += cents
		default:
			pending += cents
		}
		if fee.Outstanding() {
			catalog.ClassID = fee.ClassID
		}
		catalog.Fees = append(catalog.Fees, fee)
	}
	catalog.TotalAmount = models.FromMinorUnits(total)
	catalog.TotalPaid = models.FromMinorUnits(paid)
	catalog.TotalPending = models.FromMinorUnits(pending)
	catalog.TotalOverdue = models.FromMinorUnits(overdue)
	if catalog.ClassID == "" && len(catalog.Fees) > 0 {
		catalog.ClassID = catalog.Fees[len(catalog.Fees)-1].ClassID
	}
	return catalog
}

func catalogDataset(catalog *models.FeeCatalog) export.Dataset {
	data := export.Dataset{
		Title:   "Fee catalog",
		Headers: []string{"Month", "Year", "Due Date", "Amount", "Status", "Receipt"},
		Rows:    make([]map[string]string, 0, len(catalog.Fees)),
	}
	for _, fee := range catalog.Fees {
		receipt := ""
		if fee.ReceiptNumber != nil {
			receipt = *fee.ReceiptNumber
		}
		data.Rows = append(data.Rows, map[string]string{
			"Month":    fee.MonthName,
			"Year":     strconv.Itoa(fee.Year),
			"Due Date": fee.DueDate.Format("2006-01-02"),
			"Amount":   formatAmount(fee.Amount),
			"Status":   string(fee.Status),
			"Receipt":  receipt,
		})
	}
	data.Footer = []map[string]string{
		{"Month": "Total", "Amount": formatAmount(catalog.TotalAmount)},
		{"Month": "Paid", "Amount": formatAmount(catalog.TotalPaid)},
		{"Month": "Pending", "Amount": formatAmount(catalog.TotalPending)},
		{"Month": "Overdue", "Amount": formatAmount(catalog.TotalOverdue)},
	}
	return data
}

func formatAmount(v float64) string {
	cents := models.MinorUnits(v)
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func newReceiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("RCP-%s-%s", now.Format("20060102"), suffix)
}
