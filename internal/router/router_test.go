package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-lms-api/internal/handler"
	"github.com/noah-isme/sma-lms-api/internal/models"
	"github.com/noah-isme/sma-lms-api/pkg/config"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type roleTokens struct{}

func (roleTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	switch token {
	case "admin":
		return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, nil
	case "teacher":
		return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	return New(Deps{Config: cfg, Logger: zap.NewNop(), Tokens: roleTokens{}}, Handlers{
		Auth:       handler.NewAuthHandler(nil),
		Users:      handler.NewUserHandler(nil),
		Sessions:   handler.NewSessionHandler(nil),
		Classes:    handler.NewClassHandler(nil),
		Students:   handler.NewStudentHandler(nil),
		Promotions: handler.NewPromotionHandler(nil),
		Fees:       handler.NewFeeHandler(nil, nil),
		Exams:      handler.NewExamHandler(nil),
		Dashboard:  handler.NewDashboardHandler(nil),
		Metrics:    handler.NewMetricsHandler(nil, nil),
	})
}

func TestOpsEndpointsArePublic(t *testing.T) {
	r := newTestEngine()

	for _, path := range []string{"/health", "/ready"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/index.html", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoleGates(t *testing.T) {
	r := newTestEngine()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"no token", http.MethodGet, "/api/v1/sessions", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/students", "forged", http.StatusUnauthorized},
		{"teacher cannot execute", http.MethodPost, "/api/v1/promotions/execute?fromSessionId=a&toSessionId=b", "teacher", http.StatusForbidden},
		{"teacher cannot pay", http.MethodPost, "/api/v1/fees/fee-1/pay", "teacher", http.StatusForbidden},
		{"teacher cannot sync exams", http.MethodPut, "/api/v1/exams/sync/class/c5a", "teacher", http.StatusForbidden},
		{"teacher cannot list users", http.MethodGet, "/api/v1/users", "teacher", http.StatusForbidden},
		{"teacher cannot create users", http.MethodPost, "/api/v1/users", "teacher", http.StatusForbidden},
		{"teacher cannot open admin dashboard", http.MethodGet, "/api/v1/dashboard/admin", "teacher", http.StatusForbidden},
		{"admin execute missing target", http.MethodPost, "/api/v1/promotions/execute?fromSessionId=a", "admin", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
