package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

func TestStudentChangeClassRegeneratesOutstandingFees(t *testing.T) {
	f := newLMSFixture(t)
	ctx := context.Background()
	f.store.addClass("c5b", "5-B", "s24", nil, 1500)

	f.expectTx(true)
	_, err := f.fees.Generate(ctx, "S1", dto.GenerateFeesRequest{}, adminClaims())
	require.NoError(t, err)
	for _, fee := range f.store.fees[:2] {
		fee.Status = models.FeeStatusPaid
	}

	f.expectTx(true)
	student, err := f.students.ChangeClass(ctx, "S1", dto.ChangeStudentClassRequest{ClassID: "c5b"}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "c5b", *student.ClassID)

	fees := f.store.feesFor("S1", "s24")
	require.Len(t, fees, 12)
	seen := map[int]bool{}
	for _, fee := range fees {
		assert.False(t, seen[fee.MonthIndex], "month %d duplicated", fee.MonthIndex)
		seen[fee.MonthIndex] = true
		if fee.Status == models.FeeStatusPaid {
			assert.Equal(t, 1000.0, fee.Amount)
			continue
		}
		assert.Equal(t, 1500.0, fee.Amount)
		assert.Equal(t, "c5b", fee.ClassID)
	}
	assert.NotEmpty(t, f.store.audits)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStudentChangeClassRequiresActiveStudent(t *testing.T) {
	f := newLMSFixture(t)
	f.store.students["S1"].Status = models.StudentStatusInactive

	_, err := f.students.ChangeClass(context.Background(), "S1", dto.ChangeStudentClassRequest{ClassID: "c5a"}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appCode(err))
}

func TestStudentChangeClassMissingStructureRollsBack(t *testing.T) {
	f := newLMSFixture(t)
	f.store.addClass("c5c", "5-C", "s24", nil, 0)

	f.expectTx(false)
	_, err := f.students.ChangeClass(context.Background(), "S1", dto.ChangeStudentClassRequest{ClassID: "c5c"}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appCode(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStudentCreateWithClassAdmitsWithSchedule(t *testing.T) {
	f := newLMSFixture(t)

	f.expectTx(true)
	student, err := f.students.Create(context.Background(), dto.CreateStudentRequest{
		PAN:      "PAN-900",
		FullName: "Meera Iyer",
		ClassID:  strPtr("c5a"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusActive, student.Status)
	assert.Len(t, f.store.feesFor(student.ID, "s24"), 12)
}

func TestStudentCreateDuplicatePAN(t *testing.T) {
	f := newLMSFixture(t)

	_, err := f.students.Create(context.Background(), dto.CreateStudentRequest{PAN: "PAN-S1", FullName: "Copy"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(err))
}

func TestStudentUpdateStatus(t *testing.T) {
	f := newLMSFixture(t)
	ctx := context.Background()

	student, err := f.students.UpdateStatus(ctx, "S1", dto.UpdateStudentStatusRequest{Status: "INACTIVE"})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusInactive, student.Status)
	assert.NotNil(t, f.store.students["S1"].ClassID)

	f.store.students["S2"].Status = models.StudentStatusGraduated
	_, err = f.students.UpdateStatus(ctx, "S2", dto.UpdateStudentStatusRequest{Status: "ACTIVE"})
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appCode(err))

	_, err = f.students.UpdateStatus(ctx, "S1", dto.UpdateStudentStatusRequest{Status: "GRADUATED"})
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(err))
}

func TestStudentGetDerivesFeeStatus(t *testing.T) {
	f := newLMSFixture(t)
	ctx := context.Background()
	f.students.now = func() time.Time { return session2024Start.AddDate(0, 2, 0) }

	f.expectTx(true)
	_, err := f.fees.Generate(ctx, "S1", dto.GenerateFeesRequest{}, adminClaims())
	require.NoError(t, err)

	detail, err := f.students.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusOverdue, detail.FeeStatus)
	require.NotNil(t, detail.ClassName)
	assert.Equal(t, "5-A", *detail.ClassName)
}
