package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

// memStore backs the repository fakes used across service tests. Executors are ignored.
type memStore struct {
	sessions   map[string]*models.Session
	classes    map[string]*models.Class
	students   map[string]*models.Student
	structures map[string]*models.FeeStructure
	fees       []*models.MonthlyFee
	records    []*models.PromotionRecord
	audits     []*models.AuditLog
	calls      int
	seq        int
}

func newMemStore() *memStore {
	return &memStore{
		sessions:   map[string]*models.Session{},
		classes:    map[string]*models.Class{},
		students:   map[string]*models.Student{},
		structures: map[string]*models.FeeStructure{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) addSession(id, name string, start, end time.Time, active bool) *models.Session {
	s := &models.Session{ID: id, Name: name, StartDate: start, EndDate: end, IsActive: active}
	m.sessions[id] = s
	return s
}

func (m *memStore) addClass(id, name, sessionID string, teacherID *string, rate float64) *models.Class {
	c := &models.Class{ID: id, Name: name, SessionID: sessionID, ClassTeacherID: teacherID}
	m.classes[id] = c
	if rate > 0 {
		m.structures[id] = &models.FeeStructure{ID: "fs-" + id, ClassID: id, MonthlyAmount: rate, Currency: "INR"}
	}
	return c
}

func (m *memStore) addStudent(id, name, classID string) *models.Student {
	st := &models.Student{ID: id, PAN: "PAN-" + id, FullName: name, Status: models.StudentStatusActive}
	if classID != "" {
		cid := classID
		st.ClassID = &cid
	}
	m.students[id] = st
	return st
}

func (m *memStore) feesFor(studentID, sessionID string) []models.MonthlyFee {
	var out []models.MonthlyFee
	for _, f := range m.fees {
		if f.StudentID == studentID && f.SessionID == sessionID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthIndex < out[j].MonthIndex })
	return out
}

// sessions

type memSessions struct{ *memStore }

func (m memSessions) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, len(out), nil
}

func (m memSessions) FindByID(ctx context.Context, id string) (*models.Session, error) {
	m.calls++
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m memSessions) FindActive(ctx context.Context) (*models.Session, error) {
	for _, s := range m.sessions {
		if s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memSessions) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	for _, s := range m.sessions {
		if strings.EqualFold(s.Name, name) && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m memSessions) Create(ctx context.Context, session *models.Session) error {
	session.ID = m.nextID("session")
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m memSessions) Update(ctx context.Context, session *models.Session) error {
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m memSessions) SetActive(ctx context.Context, id string) error {
	for _, s := range m.sessions {
		s.IsActive = s.ID == id
	}
	return nil
}

func (m memSessions) Delete(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m memSessions) CountReferences(ctx context.Context, id string) (int, error) {
	count := 0
	for _, c := range m.classes {
		if c.SessionID == id {
			count++
		}
	}
	return count, nil
}

// classes

type memClasses struct{ *memStore }

func (m memClasses) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var out []models.ClassDetail
	for _, c := range m.classes {
		if filter.SessionID != "" && c.SessionID != filter.SessionID {
			continue
		}
		out = append(out, models.ClassDetail{Class: *c})
	}
	return out, len(out), nil
}

func (m memClasses) FindByID(ctx context.Context, id string) (*models.Class, error) {
	m.calls++
	c, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m memClasses) FindByName(ctx context.Context, exec sqlx.ExtContext, sessionID, name string) (*models.Class, error) {
	for _, c := range m.classes {
		if c.SessionID == sessionID && strings.EqualFold(c.Name, name) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memClasses) ExistsByName(ctx context.Context, sessionID, name, excludeID string) (bool, error) {
	for _, c := range m.classes {
		if c.SessionID == sessionID && strings.EqualFold(c.Name, name) && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m memClasses) Create(ctx context.Context, class *models.Class) error {
	class.ID = m.nextID("class")
	cp := *class
	m.classes[class.ID] = &cp
	return nil
}

func (m memClasses) Update(ctx context.Context, class *models.Class) error {
	cp := *class
	m.classes[class.ID] = &cp
	return nil
}

func (m memClasses) Delete(ctx context.Context, id string) error {
	delete(m.classes, id)
	return nil
}

func (m memClasses) CountStudents(ctx context.Context, id string) (int, error) {
	count := 0
	for _, st := range m.students {
		if st.ClassID != nil && *st.ClassID == id {
			count++
		}
	}
	return count, nil
}

// students

type memStudents struct{ *memStore }

func (m memStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var out []models.StudentDetail
	for _, st := range m.students {
		if filter.ClassID != "" && (st.ClassID == nil || *st.ClassID != filter.ClassID) {
			continue
		}
		if filter.Status != "" && st.Status != filter.Status {
			continue
		}
		out = append(out, models.StudentDetail{Student: *st})
	}
	return out, len(out), nil
}

func (m memStudents) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	st, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *st
	return &cp, nil
}

func (m memStudents) FindDetail(ctx context.Context, id string) (*models.StudentDetail, error) {
	st, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.StudentDetail{Student: *st}
	if st.ClassID != nil {
		if c, ok := m.classes[*st.ClassID]; ok {
			name, session := c.Name, c.SessionID
			detail.ClassName = &name
			detail.SessionID = &session
		}
	}
	return detail, nil
}

func (m memStudents) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Student, error) {
	var out []models.Student
	for _, id := range ids {
		if st, ok := m.students[id]; ok {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (m memStudents) ExistsByPAN(ctx context.Context, pan, excludeID string) (bool, error) {
	for _, st := range m.students {
		if st.PAN == pan && st.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m memStudents) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.ID = m.nextID("student")
	cp := *student
	m.students[student.ID] = &cp
	return nil
}

func (m memStudents) UpdateProfile(ctx context.Context, student *models.Student) error {
	st := m.students[student.ID]
	st.FullName, st.Section, st.RollNumber = student.FullName, student.Section, student.RollNumber
	return nil
}

func (m memStudents) UpdateClass(ctx context.Context, exec sqlx.ExtContext, id, classID string) error {
	cid := classID
	m.students[id].ClassID = &cid
	return nil
}

func (m memStudents) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.StudentStatus, clearClass bool) error {
	st := m.students[id]
	st.Status = status
	if clearClass {
		st.ClassID = nil
	}
	return nil
}

// fee structures

type memStructures struct{ *memStore }

func (m memStructures) FindByClassID(ctx context.Context, exec sqlx.ExtContext, classID string) (*models.FeeStructure, error) {
	fs, ok := m.structures[classID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *fs
	return &cp, nil
}

func (m memStructures) ListBySession(ctx context.Context, sessionID string) ([]models.FeeStructureDetail, error) {
	var out []models.FeeStructureDetail
	for classID, fs := range m.structures {
		if c, ok := m.classes[classID]; ok && c.SessionID == sessionID {
			out = append(out, models.FeeStructureDetail{FeeStructure: *fs, ClassName: c.Name, SessionID: sessionID})
		}
	}
	return out, nil
}

func (m memStructures) Upsert(ctx context.Context, structure *models.FeeStructure) error {
	if existing, ok := m.structures[structure.ClassID]; ok {
		structure.ID = existing.ID
	} else {
		structure.ID = m.nextID("fs")
	}
	cp := *structure
	m.structures[structure.ClassID] = &cp
	return nil
}

// monthly fees

type memFees struct{ *memStore }

func (m memFees) ListByStudentSession(ctx context.Context, studentID, sessionID string) ([]models.MonthlyFee, error) {
	return m.feesFor(studentID, sessionID), nil
}

func (m memFees) CountByStudentSession(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (int, error) {
	return len(m.feesFor(studentID, sessionID)), nil
}

func (m memFees) InsertBatch(ctx context.Context, exec sqlx.ExtContext, fees []models.MonthlyFee) error {
	for i := range fees {
		fees[i].ID = m.nextID("fee")
		if fees[i].Status == "" {
			fees[i].Status = models.FeeStatusPending
		}
		cp := fees[i]
		m.fees = append(m.fees, &cp)
	}
	return nil
}

func (m memFees) ReplaceOutstanding(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, schedule []models.MonthlyFee) (int, error) {
	kept := m.fees[:0]
	settled := map[int]bool{}
	for _, f := range m.fees {
		if f.StudentID == studentID && f.SessionID == sessionID {
			if f.Status != models.FeeStatusPaid {
				continue
			}
			settled[f.MonthIndex] = true
		}
		kept = append(kept, f)
	}
	m.memStore.fees = kept
	var pending []models.MonthlyFee
	for _, f := range schedule {
		if !settled[f.MonthIndex] {
			pending = append(pending, f)
		}
	}
	return len(pending), m.InsertBatch(ctx, exec, pending)
}

func (m memFees) FindByID(ctx context.Context, id string) (*models.MonthlyFee, error) {
	for _, f := range m.fees {
		if f.ID == id {
			cp := *f
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memFees) MarkPaid(ctx context.Context, id string, paidAt time.Time, receiptNumber string) (*models.MonthlyFee, error) {
	for _, f := range m.fees {
		if f.ID == id && f.Status != models.FeeStatusPaid {
			f.Status = models.FeeStatusPaid
			f.PaymentDate = &paidAt
			r := receiptNumber
			f.ReceiptNumber = &r
			cp := *f
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memFees) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	for _, f := range m.fees {
		if f.Status == models.FeeStatusPending && f.DueDate.Before(asOf) {
			f.Status = models.FeeStatusOverdue
			n++
		}
	}
	return n, nil
}

// promotion records

type memPromotions struct{ *memStore }

func (m memPromotions) UpsertPending(ctx context.Context, exec sqlx.ExtContext, record *models.PromotionRecord) error {
	for _, r := range m.records {
		if r.StudentID == record.StudentID && r.SessionID == record.SessionID && r.Status == models.PromotionStatusPending {
			record.ID = r.ID
			*r = *record
			return nil
		}
	}
	record.ID = m.nextID("promo")
	cp := *record
	m.memStore.records = append(m.memStore.records, &cp)
	return nil
}

func (m memPromotions) LockExecutedStudentIDs(ctx context.Context, exec sqlx.ExtContext, sessionID string, studentIDs []string) ([]string, error) {
	var out []string
	for _, r := range m.records {
		if r.SessionID != sessionID || r.Status == models.PromotionStatusPending {
			continue
		}
		for _, id := range studentIDs {
			if id == r.StudentID {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (m memPromotions) List(ctx context.Context, filter models.PromotionFilter) ([]models.PromotionRecordDetail, error) {
	var out []models.PromotionRecordDetail
	for _, r := range m.records {
		if r.SessionID != filter.SessionID || (filter.Status != "" && r.Status != filter.Status) {
			continue
		}
		out = append(out, models.PromotionRecordDetail{PromotionRecord: *r, StudentName: m.students[r.StudentID].FullName})
	}
	return out, nil
}

func (m memPromotions) Summary(ctx context.Context, sessionID, classID string) (*models.PromotionSummary, error) {
	summary := &models.PromotionSummary{}
	for _, r := range m.records {
		if r.SessionID != sessionID {
			continue
		}
		switch r.Status {
		case models.PromotionStatusPending:
			summary.Pending++
		case models.PromotionStatusPromoted:
			summary.Promoted++
		case models.PromotionStatusDetained:
			summary.Detained++
		case models.PromotionStatusGraduated:
			summary.Graduated++
		}
		summary.Total++
	}
	return summary, nil
}

func (m memPromotions) ListPending(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.PromotionRecord, error) {
	m.memStore.calls++
	var out []models.PromotionRecord
	for _, r := range m.records {
		if r.SessionID == sessionID && r.Status == models.PromotionStatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m memPromotions) Claim(ctx context.Context, exec sqlx.ExtContext, id string, status models.PromotionStatus, targetSessionID string, executedAt time.Time) (bool, error) {
	for _, r := range m.records {
		if r.ID == id && r.Status == models.PromotionStatusPending {
			r.Status = status
			target := targetSessionID
			r.TargetSessionID = &target
			r.ExecutedAt = &executedAt
			return true, nil
		}
	}
	return false, nil
}

// audit

type memAudit struct{ *memStore }

func (m memAudit) Create(ctx context.Context, log *models.AuditLog) error {
	m.memStore.audits = append(m.memStore.audits, log)
	return nil
}

// cache

type stubCacheRepo struct {
	store       map[string][]byte
	invalidated []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.invalidated = append(s.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.store {
		if strings.HasPrefix(key, prefix) {
			delete(s.store, key)
		}
	}
	return nil
}

// transactions

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func strPtr(v string) *string { return &v }

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func appCode(err error) string {
	if appErr := appErrors.FromError(err); appErr != nil {
		return appErr.Code
	}
	return ""
}

func sqlErrNoRows() error { return sql.ErrNoRows }
