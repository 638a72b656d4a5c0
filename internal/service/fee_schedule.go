package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

const (
	maxScheduleMonths = 12
	defaultDueDay     = 10
)

// BuildFeeSchedule lays out one PENDING entry per calendar month of the session.
func BuildFeeSchedule(session models.Session, class models.Class, structure models.FeeStructure, dueDay int) []models.MonthlyFee {
	if dueDay < 1 {
		dueDay = defaultDueDay
	}
	start := time.Date(session.StartDate.Year(), session.StartDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := (session.EndDate.Year()-start.Year())*12 + int(session.EndDate.Month()) - int(start.Month()) + 1
	if months < 1 {
		months = maxScheduleMonths
	}
	if months > maxScheduleMonths {
		months = maxScheduleMonths
	}

	fees := make([]models.MonthlyFee, 0, months)
	for i := 0; i < months; i++ {
		month := start.AddDate(0, i, 0)
		day := dueDay
		if last := daysIn(month); day > last {
			day = last
		}
		fees = append(fees, models.MonthlyFee{
			ClassID:    class.ID,
			SessionID:  session.ID,
			MonthIndex: i + 1,
			MonthName:  month.Month().String(),
			Year:       month.Year(),
			Amount:     structure.MonthlyAmount,
			DueDate:    time.Date(month.Year(), month.Month(), day, 0, 0, 0, 0, time.UTC),
			Status:     models.FeeStatusPending,
		})
	}
	return fees
}

func daysIn(month time.Time) int {
	return time.Date(month.Year(), month.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

type feeStructureReader interface {
	FindByClassID(ctx context.Context, exec sqlx.ExtContext, classID string) (*models.FeeStructure, error)
}

type feeScheduleWriter interface {
	ReplaceOutstanding(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, schedule []models.MonthlyFee) (int, error)
}

// FeeRegenerator rebuilds the outstanding part of a student's schedule at a class's rate.
type FeeRegenerator struct {
	structures feeStructureReader
	fees       feeScheduleWriter
	dueDay     int
}

// NewFeeRegenerator constructs a regenerator.
func NewFeeRegenerator(structures feeStructureReader, fees feeScheduleWriter, dueDay int) *FeeRegenerator {
	if dueDay < 1 || dueDay > 31 {
		dueDay = defaultDueDay
	}
	return &FeeRegenerator{structures: structures, fees: fees, dueDay: dueDay}
}

// Structure returns the fee structure of the class or PRECONDITION_FAILED when none is configured.
func (g *FeeRegenerator) Structure(ctx context.Context, exec sqlx.ExtContext, class *models.Class) (*models.FeeStructure, error) {
	structure, err := g.structures.FindByClassID(ctx, exec, class.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("fee structure missing for class %s", class.Name))
		}
		return nil, appErrors.Internal(err, "failed to load fee structure")
	}
	return structure, nil
}

// Schedule builds the full session schedule for the student in the class.
func (g *FeeRegenerator) Schedule(ctx context.Context, exec sqlx.ExtContext, studentID string, session *models.Session, class *models.Class) ([]models.MonthlyFee, error) {
	structure, err := g.Structure(ctx, exec, class)
	if err != nil {
		return nil, err
	}
	schedule := BuildFeeSchedule(*session, *class, *structure, g.dueDay)
	for i := range schedule {
		schedule[i].StudentID = studentID
	}
	return schedule, nil
}

// Regenerate drops unpaid entries of (student, session) and refills every month without a PAID entry.
func (g *FeeRegenerator) Regenerate(ctx context.Context, exec sqlx.ExtContext, studentID string, session *models.Session, class *models.Class) (int, error) {
	schedule, err := g.Schedule(ctx, exec, studentID, session, class)
	if err != nil {
		return 0, err
	}
	inserted, err := g.fees.ReplaceOutstanding(ctx, exec, studentID, session.ID, schedule)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to regenerate fee schedule")
	}
	return inserted, nil
}
