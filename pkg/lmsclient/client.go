// Package lmsclient is a Go client for the LMS REST API. It performs the
// caller-side checks that must never reach the network and wraps the fee
// catalog polling used after class changes.
package lmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
)

// Client talks to the LMS API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
	sleep      func(context.Context, time.Duration) error
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a client rooted at baseURL, e.g. "http://localhost:8080/api/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

// Login authenticates and stores the issued token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	body := models.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &out); err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

// ActiveSession returns the currently active session.
func (c *Client) ActiveSession(ctx context.Context) (*models.Session, error) {
	var out models.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/active", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignPromotions submits a class teacher's decisions.
func (c *Client) AssignPromotions(ctx context.Context, req dto.AssignPromotionsRequest) ([]models.PromotionRecord, error) {
	var out []models.PromotionRecord
	if err := c.do(ctx, http.MethodPost, "/promotions/assign", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPromotions returns the records of a source session with their summary.
func (c *Client) ListPromotions(ctx context.Context, sessionID string) (*dto.PromotionListResponse, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	var out dto.PromotionListResponse
	if err := c.do(ctx, http.MethodGet, "/promotions/session/"+url.PathEscape(sessionID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecutePromotions applies every pending record of fromSessionID.
func (c *Client) ExecutePromotions(ctx context.Context, fromSessionID, toSessionID string) (*dto.ExecutePromotionsResult, error) {
	if fromSessionID == "" || toSessionID == "" {
		return nil, ErrMissingSession
	}
	if fromSessionID == toSessionID {
		return nil, ErrSameSession
	}
	query := url.Values{}
	query.Set("fromSessionId", fromSessionID)
	query.Set("toSessionId", toSessionID)
	var out dto.ExecutePromotionsResult
	if err := c.do(ctx, http.MethodPost, "/promotions/execute", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangeStudentClass moves a student to another class.
func (c *Client) ChangeStudentClass(ctx context.Context, studentID, classID string) (*models.StudentDetail, error) {
	var out models.StudentDetail
	path := "/students/" + url.PathEscape(studentID) + "/class"
	if err := c.do(ctx, http.MethodPut, path, nil, dto.ChangeStudentClassRequest{ClassID: classID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFeeCatalog fetches a student's catalog. An empty sessionID lets the server pick the class session.
func (c *Client) GetFeeCatalog(ctx context.Context, studentID, sessionID string) (*models.FeeCatalog, error) {
	var query url.Values
	if sessionID != "" {
		query = url.Values{"sessionId": []string{sessionID}}
	}
	var out models.FeeCatalog
	if err := c.do(ctx, http.MethodGet, "/fees/students/"+url.PathEscape(studentID), query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateFees explicitly creates a student's schedule and returns the resulting catalog.
func (c *Client) GenerateFees(ctx context.Context, studentID, sessionID string) (*models.FeeCatalog, error) {
	var out models.FeeCatalog
	path := "/fees/students/" + url.PathEscape(studentID) + "/generate"
	if err := c.do(ctx, http.MethodPost, path, nil, dto.GenerateFeesRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PayFee settles a monthly fee.
func (c *Client) PayFee(ctx context.Context, feeID string, req dto.PayFeeRequest) (*dto.PayFeeResponse, error) {
	var out dto.PayFeeResponse
	if err := c.do(ctx, http.MethodPost, "/fees/"+url.PathEscape(feeID)+"/pay", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncClassExams replaces the exam types assigned to a class.
func (c *Client) SyncClassExams(ctx context.Context, classID string, examTypeIDs []string) ([]models.ClassExam, error) {
	var out []models.ClassExam
	path := "/exams/sync/class/" + url.PathEscape(classID)
	if err := c.do(ctx, http.MethodPut, path, nil, dto.SyncClassExamsRequest{ExamTypeIDs: examTypeIDs}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadMarks validates entries against the exam bounds before sending them.
func (c *Client) UploadMarks(ctx context.Context, exam models.Exam, entries []dto.MarkEntry) ([]models.Mark, error) {
	if err := ValidateMarks(exam.MaxMarks, entries); err != nil {
		return nil, err
	}
	var out []models.Mark
	path := "/exams/" + url.PathEscape(exam.ID) + "/marks"
	if err := c.do(ctx, http.MethodPost, path, nil, dto.UploadMarksRequest{Entries: entries}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateMarks checks 0 <= marks <= maxMarks for every entry.
func ValidateMarks(maxMarks float64, entries []dto.MarkEntry) error {
	if invalid := dto.OutOfRangeMarks(maxMarks, entries); len(invalid) > 0 {
		return &MarksRangeError{MaxMarks: maxMarks, Invalid: invalid}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < http.StatusBadRequest {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			if env.Error.Message != "" {
				apiErr.Message = env.Error.Message
			}
		}
		apiErr.Kind = kindFor(apiErr.Code, apiErr.Status)
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
