package lmsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
)

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"message": message,
		"error":   map[string]interface{}{"code": code, "message": message, "status": status},
	})
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api/v1", WithToken("token"))
	require.NoError(t, err)
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestExecutePromotionsRejectsSameSessionWithoutRequest(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := c.ExecutePromotions(context.Background(), "s1", "s1")
	require.ErrorIs(t, err, ErrSameSession)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = c.ExecutePromotions(context.Background(), "", "s2")
	require.ErrorIs(t, err, ErrMissingSession)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestExecutePromotionsSendsQueryAndDecodes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/promotions/execute", r.URL.Path)
		assert.Equal(t, "s1", r.URL.Query().Get("fromSessionId"))
		assert.Equal(t, "s2", r.URL.Query().Get("toSessionId"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		writeData(w, http.StatusOK, dto.ExecutePromotionsResult{FromSessionID: "s1", ToSessionID: "s2", Promoted: 2, Processed: 2})
	}))

	res, err := c.ExecutePromotions(context.Background(), "s1", "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Promoted)
	assert.Equal(t, 2, res.Processed)
}

func TestErrorKindsDecodedFromCode(t *testing.T) {
	cases := []struct {
		status int
		code   string
		kind   Kind
	}{
		{http.StatusConflict, "FEES_ALREADY_EXIST", KindConflict},
		{http.StatusBadRequest, "VALIDATION_ERROR", KindValidation},
		{http.StatusNotFound, "NOT_FOUND", KindNotFound},
		{http.StatusForbidden, "FORBIDDEN", KindForbidden},
		{http.StatusPreconditionFailed, "PRECONDITION_FAILED", KindPrecondition},
		{http.StatusConflict, "", KindConflict},
		{http.StatusInternalServerError, "INTERNAL_ERROR", KindUnknown},
		{http.StatusBadGateway, "ACCOUNT_INACTIVE", KindForbidden},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.code, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tc.status, tc.code, "record already exists somewhere")
			}))
			_, err := c.GenerateFees(context.Background(), "st1", "s1")
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
		})
	}
}

func TestMessageTextDoesNotDriveKind(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "fees already exist")
	}))
	_, err := c.GenerateFees(context.Background(), "st1", "s1")
	assert.False(t, IsConflict(err))
}

func TestValidateMarks(t *testing.T) {
	err := ValidateMarks(100, []dto.MarkEntry{
		{StudentID: "a", Marks: 100},
		{StudentID: "b", Marks: 101},
		{StudentID: "c", Marks: -1},
		{StudentID: "d", Marks: 0},
	})
	var rangeErr *MarksRangeError
	require.ErrorAs(t, err, &rangeErr)
	require.Len(t, rangeErr.Invalid, 2)
	assert.Equal(t, "b", rangeErr.Invalid[0].StudentID)
	assert.Equal(t, "c", rangeErr.Invalid[1].StudentID)
	assert.Equal(t, KindValidation, KindOf(err))

	assert.NoError(t, ValidateMarks(50, []dto.MarkEntry{{StudentID: "a", Marks: 50}}))
}

func TestUploadMarksRejectsLocally(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	_, err := c.UploadMarks(context.Background(), models.Exam{ID: "e1", MaxMarks: 80}, []dto.MarkEntry{{StudentID: "a", Marks: 81}})
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func consistentCatalog() models.FeeCatalog {
	return models.FeeCatalog{
		StudentID:    "st1",
		SessionID:    "s2",
		Fees:         []models.MonthlyFee{{MonthIndex: 1, Amount: 500}, {MonthIndex: 2, Amount: 500}},
		TotalAmount:  1000,
		TotalPending: 1000,
	}
}

func TestAwaitFeeCatalogReturnsOnFirstConsistentPoll(t *testing.T) {
	var polls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polls, 1)
		assert.Equal(t, "/api/v1/fees/students/st1", r.URL.Path)
		writeData(w, http.StatusOK, consistentCatalog())
	}))

	catalog, err := c.AwaitFeeCatalog(context.Background(), "st1", "s2", AwaitOptions{MaxAttempts: 3})
	require.NoError(t, err)
	assert.Len(t, catalog.Fees, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&polls))
}

func TestAwaitFeeCatalogGeneratesAfterExhaustingPolls(t *testing.T) {
	var polls, generates int32
	var generated atomic.Bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/fees/students/st1":
			atomic.AddInt32(&polls, 1)
			if generated.Load() {
				writeData(w, http.StatusOK, consistentCatalog())
				return
			}
			writeData(w, http.StatusOK, models.FeeCatalog{StudentID: "st1", Fees: []models.MonthlyFee{}})
		case "/api/v1/fees/students/st1/generate":
			atomic.AddInt32(&generates, 1)
			generated.Store(true)
			writeError(w, http.StatusConflict, "FEES_ALREADY_EXIST", "fee records already exist")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	opts := AwaitOptions{InitialDelay: time.Second, MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	catalog, err := c.AwaitFeeCatalog(context.Background(), "st1", "s2", opts)
	require.NoError(t, err)
	assert.True(t, catalog.Consistent())
	assert.EqualValues(t, 4, atomic.LoadInt32(&polls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&generates))
	assert.Equal(t, []time.Duration{time.Second, 100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestAwaitFeeCatalogReturnsGeneratedCatalog(t *testing.T) {
	var polls, generates int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/fees/students/st1":
			atomic.AddInt32(&polls, 1)
			writeData(w, http.StatusOK, models.FeeCatalog{StudentID: "st1", Fees: []models.MonthlyFee{}})
		case "/api/v1/fees/students/st1/generate":
			atomic.AddInt32(&generates, 1)
			assert.Equal(t, http.MethodPost, r.Method)
			writeData(w, http.StatusCreated, consistentCatalog())
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	catalog, err := c.AwaitFeeCatalog(context.Background(), "st1", "s2", AwaitOptions{MaxAttempts: 2})
	require.NoError(t, err)
	assert.True(t, catalog.Consistent())
	assert.Len(t, catalog.Fees, 2)
	assert.EqualValues(t, 2, atomic.LoadInt32(&polls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&generates))
}

func TestGenerateFeesDecodesCatalog(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req dto.GenerateFeesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "s2", req.SessionID)
		writeData(w, http.StatusCreated, consistentCatalog())
	}))

	catalog, err := c.GenerateFees(context.Background(), "st1", "s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", catalog.SessionID)
	assert.EqualValues(t, 1000, catalog.TotalAmount)
}

func TestAwaitFeeCatalogStopsOnForbidden(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "forbidden")
	}))
	_, err := c.AwaitFeeCatalog(context.Background(), "st1", "s2", AwaitOptions{MaxAttempts: 3})
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestLoginStoresToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			writeData(w, http.StatusOK, models.LoginResponse{AccessToken: "fresh"})
		case "/api/v1/sessions/active":
			assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
			writeData(w, http.StatusOK, models.Session{ID: "s1", IsActive: true})
		}
	}))
	_, err := c.Login(context.Background(), "admin@school.test", "secret")
	require.NoError(t, err)
	session, err := c.ActiveSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api/v1")
	require.Error(t, err)
}
