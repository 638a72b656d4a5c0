package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type userDirectory struct {
	users     map[string]*models.User
	led       map[string]int
	createErr error
	updates   int
}

func (d *userDirectory) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range d.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (d *userDirectory) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (d *userDirectory) Create(_ context.Context, user *models.User) error {
	if d.createErr != nil {
		return d.createErr
	}
	user.ID = "user-new"
	cp := *user
	d.users[user.ID] = &cp
	return nil
}

func (d *userDirectory) Update(_ context.Context, user *models.User) error {
	if _, ok := d.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	d.updates++
	cp := *user
	d.users[user.ID] = &cp
	return nil
}

func (d *userDirectory) CountLedClasses(_ context.Context, id string) (int, error) {
	return d.led[id], nil
}

func newUserFixture() (*UserService, *userDirectory, *memStore) {
	dir := &userDirectory{
		users: map[string]*models.User{
			"admin-1":   {ID: "admin-1", Email: "head@school.test", Role: models.RoleAdmin, Active: true},
			"teacher-1": {ID: "teacher-1", Email: "asha@school.test", Role: models.RoleTeacher, Active: true, PasswordHash: "old"},
			"teacher-2": {ID: "teacher-2", Email: "ravi@school.test", Role: models.RoleTeacher, Active: true},
		},
		led: map[string]int{"teacher-1": 2},
	}
	store := newMemStore()
	svc := NewUserService(dir, memAudit{store}, validator.New(), zap.NewNop())
	svc.hashCost = bcrypt.MinCost
	return svc, dir, store
}

func TestUserCreateTeacherAccount(t *testing.T) {
	svc, dir, store := newUserFixture()

	user, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "Meera@School.TEST",
		FullName: "Meera Iyer",
		Role:     models.RoleTeacher,
		Password: "chalkboard",
	}, adminClaims())
	require.NoError(t, err)

	assert.Equal(t, "meera@school.test", user.Email)
	assert.True(t, user.Active)
	assert.True(t, user.CanLeadClass())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(dir.users["user-new"].PasswordHash), []byte("chalkboard")))
	require.Len(t, store.audits, 1)
	assert.Equal(t, models.AuditActionUserCreate, store.audits[0].Action)
	assert.NotContains(t, string(store.audits[0].NewValues), "chalkboard")
}

func TestUserCreateRejects(t *testing.T) {
	cases := []struct {
		name      string
		req       dto.CreateUserRequest
		createErr error
		code      string
	}{
		{"short password", dto.CreateUserRequest{Email: "a@school.test", FullName: "A", Role: models.RoleTeacher, Password: "short"}, nil, appErrors.ErrValidation.Code},
		{"unknown role", dto.CreateUserRequest{Email: "a@school.test", FullName: "A", Role: "STUDENT", Password: "longenough"}, nil, appErrors.ErrValidation.Code},
		{"bad email", dto.CreateUserRequest{Email: "nope", FullName: "A", Role: models.RoleAdmin, Password: "longenough"}, nil, appErrors.ErrValidation.Code},
		{"duplicate email", dto.CreateUserRequest{Email: "asha@school.test", FullName: "A", Role: models.RoleTeacher, Password: "longenough"}, &pq.Error{Code: "23505"}, appErrors.ErrConflict.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, dir, _ := newUserFixture()
			dir.createErr = tc.createErr
			_, err := svc.Create(context.Background(), tc.req, adminClaims())
			assert.Equal(t, tc.code, appCode(err))
			assert.Len(t, dir.users, 3)
		})
	}
}

func TestUserUpdateKeepsPasswordUnlessGiven(t *testing.T) {
	svc, dir, _ := newUserFixture()
	ctx := context.Background()

	user, err := svc.Update(ctx, "teacher-2", dto.UpdateUserRequest{FullName: " Ravi Kumar ", Role: models.RoleTeacher}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", user.FullName)
	assert.Empty(t, dir.users["teacher-2"].PasswordHash)

	_, err = svc.Update(ctx, "teacher-1", dto.UpdateUserRequest{FullName: "Asha", Role: models.RoleTeacher, Password: "newsecret"}, adminClaims())
	require.NoError(t, err)
	assert.NotEqual(t, "old", dir.users["teacher-1"].PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(dir.users["teacher-1"].PasswordHash), []byte("newsecret")))

	_, err = svc.Update(ctx, "ghost", dto.UpdateUserRequest{FullName: "X", Role: models.RoleTeacher}, adminClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(err))
}

func TestUserRevocationGuards(t *testing.T) {
	svc, dir, _ := newUserFixture()
	ctx := context.Background()
	inactive := false

	_, err := svc.Update(ctx, "teacher-1", dto.UpdateUserRequest{FullName: "Asha", Role: models.RoleAdmin}, adminClaims())
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(err), "class teacher cannot be promoted away while leading classes")

	err = svc.Deactivate(ctx, "teacher-1", adminClaims())
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(err))
	assert.True(t, dir.users["teacher-1"].Active)

	_, err = svc.Update(ctx, "admin-1", dto.UpdateUserRequest{FullName: "Head", Role: models.RoleAdmin, Active: &inactive}, adminClaims())
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(err), "admins cannot lock themselves out")

	require.NoError(t, svc.Deactivate(ctx, "teacher-2", adminClaims()))
	assert.False(t, dir.users["teacher-2"].Active)
	assert.False(t, dir.users["teacher-2"].CanLeadClass())

	updates := dir.updates
	require.NoError(t, svc.Deactivate(ctx, "teacher-2", adminClaims()))
	assert.Equal(t, updates, dir.updates)
}

func TestUserListRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newUserFixture()

	_, _, err := svc.List(context.Background(), models.UserFilter{Role: "STUDENT"})
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(err))

	users, pagination, err := svc.List(context.Background(), models.UserFilter{Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 20, pagination.PageSize)
}
