package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-lms-api/internal/models"
)

func schedule(n int, amount float64) []models.MonthlyFee {
	fees := make([]models.MonthlyFee, n)
	for i := range fees {
		fees[i] = models.MonthlyFee{StudentID: "st1", ClassID: "c2", SessionID: "s2", MonthIndex: i + 1, Amount: amount}
	}
	return fees
}

func TestFeeRepositoryReplaceOutstandingSkipsPaidMonths(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM monthly_fees WHERE student_id = $1 AND session_id = $2 AND status <> 'PAID'")).
		WithArgs("st1", "s2").
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT month_index FROM monthly_fees")).
		WithArgs("st1", "s2").
		WillReturnRows(sqlmock.NewRows([]string{"month_index"}).AddRow(1).AddRow(2))
	mock.ExpectExec("INSERT INTO monthly_fees").WillReturnResult(sqlmock.NewResult(0, 10))

	inserted, err := repo.ReplaceOutstanding(context.Background(), nil, "st1", "s2", schedule(12, 900))
	require.NoError(t, err)
	assert.Equal(t, 10, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryReplaceOutstandingAllPaid(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec("DELETE FROM monthly_fees").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT month_index").
		WillReturnRows(sqlmock.NewRows([]string{"month_index"}).AddRow(1).AddRow(2))

	inserted, err := repo.ReplaceOutstanding(context.Background(), nil, "st1", "s2", schedule(2, 900))
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryMarkPaidAlreadyPaid(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	paidAt := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status <> 'PAID'")).
		WithArgs("f1", paidAt, "RCP-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.MarkPaid(context.Background(), "f1", paidAt, "RCP-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryMarkOverdue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	asOf := time.Date(2025, time.May, 11, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'OVERDUE' WHERE status = 'PENDING' AND due_date < $1")).
		WithArgs(asOf).
		WillReturnResult(sqlmock.NewResult(0, 4))

	affected, err := repo.MarkOverdue(context.Background(), asOf)
	require.NoError(t, err)
	assert.EqualValues(t, 4, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
