package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

func newSessionFixture(t *testing.T) (*SessionService, *lmsFixture) {
	f := newLMSFixture(t)
	return NewSessionService(memSessions{f.store}, f.cache, memAudit{f.store}, validator.New(), zap.NewNop()), f
}

func TestSessionCreateValidatesDatesAndName(t *testing.T) {
	svc, _ := newSessionFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.SessionRequest{Name: "2026-2027", StartDate: session2025End, EndDate: session2025Start})
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(err))

	_, err = svc.Create(ctx, dto.SessionRequest{Name: "2024-2025", StartDate: session2024Start, EndDate: session2024End})
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(err))

	created, err := svc.Create(ctx, dto.SessionRequest{
		Name:      " 2026-2027 ",
		StartDate: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, time.March, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-2027", created.Name)
	assert.False(t, created.IsActive)
}

func TestSessionActivateSwitchesAndInvalidates(t *testing.T) {
	svc, f := newSessionFixture(t)
	ctx := context.Background()

	session, err := svc.Activate(ctx, "s25", adminClaims())
	require.NoError(t, err)
	assert.True(t, session.IsActive)
	assert.False(t, f.store.sessions["s24"].IsActive)
	assert.Equal(t, []string{"dash:*"}, f.cacheRepo.invalidated)

	active, err := svc.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s25", active.ID)
}

func TestSessionDeleteGuards(t *testing.T) {
	svc, f := newSessionFixture(t)
	ctx := context.Background()

	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appCode(svc.Delete(ctx, "s24")))
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(svc.Delete(ctx, "s25")))
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(svc.Delete(ctx, "s99")))

	f.store.addSession("s26", "2026-2027", session2025End, session2025End.AddDate(1, 0, 0), false)
	require.NoError(t, svc.Delete(ctx, "s26"))
	assert.NotContains(t, f.store.sessions, "s26")
}
