package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type authUserRepoStub struct {
	users     map[string]*models.User
	lastLogin map[string]time.Time
}

func (s *authUserRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *authUserRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin[id] = ts
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *authUserRepoStub, *memStore) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &authUserRepoStub{
		users: map[string]*models.User{
			"admin@school.test":   {ID: "admin-1", Email: "admin@school.test", FullName: "Admin", Role: models.RoleAdmin, Active: true, PasswordHash: string(hash)},
			"retired@school.test": {ID: "teacher-9", Email: "retired@school.test", Role: models.RoleTeacher, Active: false, PasswordHash: string(hash)},
		},
		lastLogin: map[string]time.Time{},
	}
	store := newMemStore()
	svc := NewAuthService(repo, memAudit{store}, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "jwt-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "sma-lms-api",
	})
	return svc, repo, store
}

func TestAuthLoginIssuesValidToken(t *testing.T) {
	svc, repo, store := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@school.test", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Contains(t, repo.lastLogin, "admin-1")
	require.Len(t, store.audits, 1)
	assert.Equal(t, models.AuditActionLogin, store.audits[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "sma-lms-api", claims.Issuer)
}

func TestAuthLoginFailures(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	cases := []struct {
		name string
		req  models.LoginRequest
		code string
	}{
		{"wrong password", models.LoginRequest{Email: "admin@school.test", Password: "nope"}, appErrors.ErrInvalidCredentials.Code},
		{"unknown email", models.LoginRequest{Email: "ghost@school.test", Password: "s3cret"}, appErrors.ErrInvalidCredentials.Code},
		{"inactive account", models.LoginRequest{Email: "retired@school.test", Password: "s3cret"}, appErrors.ErrInactiveAccount.Code},
		{"malformed email", models.LoginRequest{Email: "admin", Password: "s3cret"}, appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.req)
			assert.Equal(t, tc.code, appCode(err))
		})
	}
}

func TestAuthValidateTokenRejectsForeignSignature(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	other := NewAuthService(&authUserRepoStub{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "other"})

	token, err := other.generateAccessToken(&models.User{ID: "admin-1", Role: models.RoleAdmin}, time.Now())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appCode(err))
}

func TestAuthValidateTokenRejectsExpired(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	token, err := svc.generateAccessToken(&models.User{ID: "admin-1", Role: models.RoleAdmin}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appCode(err))
}

func TestAuthValidateTokenRejectsOtherIssuer(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	other := NewAuthService(&authUserRepoStub{}, nil, nil, nil, AuthConfig{
		AccessTokenSecret: "jwt-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "another-service",
	})

	token, err := other.generateAccessToken(&models.User{ID: "admin-1", Role: models.RoleAdmin}, time.Now())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appCode(err))
}
