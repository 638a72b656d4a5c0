package service

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/pkg/storage"
)

var (
	session2024Start = time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	session2024End   = time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	session2025Start = time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	session2025End   = time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)
)

type lmsFixture struct {
	store      *memStore
	mock       sqlmock.Sqlmock
	cacheRepo  *stubCacheRepo
	cache      *CacheService
	metrics    *MetricsService
	promotions *PromotionService
	students   *StudentService
	fees       *FeeService
}

// newLMSFixture seeds two sessions, "5-A" (2024-2025, rate 1000) led by teacher-1,
// "6-A" (2025-2026, rate 1200), and students S1 and S2 seated in 5-A.
func newLMSFixture(t *testing.T) *lmsFixture {
	t.Helper()
	store := newMemStore()
	store.addSession("s24", "2024-2025", session2024Start, session2024End, true)
	store.addSession("s25", "2025-2026", session2025Start, session2025End, false)
	store.addClass("c5a", "5-A", "s24", strPtr("teacher-1"), 1000)
	store.addClass("c6a", "6-A", "s25", nil, 1200)
	store.addStudent("S1", "Asha Rao", "c5a")
	store.addStudent("S2", "Vikram Das", "c5a")

	tx, mock := newTxProviderMock(t)
	cacheRepo := &stubCacheRepo{}
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), true)
	validate := validator.New()
	regenerator := NewFeeRegenerator(memStructures{store}, memFees{store}, 10)

	f := &lmsFixture{store: store, mock: mock, cacheRepo: cacheRepo, cache: cache, metrics: metrics}
	f.promotions = NewPromotionService(memPromotions{store}, memStudents{store}, memClasses{store}, memSessions{store},
		regenerator, tx, cache, metrics, memAudit{store}, validate, zap.NewNop())
	f.students = NewStudentService(memStudents{store}, memClasses{store}, memSessions{store}, memFees{store},
		regenerator, tx, cache, memAudit{store}, validate, zap.NewNop())
	f.fees = NewFeeService(memFees{store}, memStudents{store}, memClasses{store}, memSessions{store},
		regenerator, tx, storage.NewSignedURLSigner("receipt-secret", time.Hour), cache, metrics, memAudit{store}, validate, zap.NewNop(),
		FeeServiceConfig{SchoolName: "Green Valley School", ReceiptPrefix: "/api/v1"})
	return f
}

func (f *lmsFixture) expectTx(commit bool) {
	f.mock.ExpectBegin()
	if commit {
		f.mock.ExpectCommit()
		return
	}
	f.mock.ExpectRollback()
}
