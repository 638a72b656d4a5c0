package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

type dashboardRepository interface {
	StudentCounts(ctx context.Context, sessionID string) (*dto.StudentCounts, error)
	ClassCount(ctx context.Context, sessionID string) (int, error)
	FeeTotals(ctx context.Context, sessionID string, asOf time.Time) (*dto.FeeTotals, error)
	TeacherClasses(ctx context.Context, teacherID, sessionID string) ([]dto.TeacherClassStats, error)
}

type promotionSummarizer interface {
	Summary(ctx context.Context, sessionID, classID string) (*models.PromotionSummary, error)
}

type activeSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActive(ctx context.Context) (*models.Session, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService orchestrates composition of dashboard payloads.
type DashboardService struct {
	repo       dashboardRepository
	promotions promotionSummarizer
	sessions   activeSessionReader
	cache      *CacheService
	logger     *zap.Logger
	now        func() time.Time
	cfg        DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(repo dashboardRepository, promotions promotionSummarizer, sessions activeSessionReader, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{repo: repo, promotions: promotions, sessions: sessions, cache: cache, logger: logger, now: time.Now, cfg: cfg}
}

// Admin returns the admin summary for the session and reports whether it came from cache.
// An empty sessionID selects the active session.
func (s *DashboardService) Admin(ctx context.Context, sessionID string) (*dto.AdminDashboardResponse, bool, error) {
	sessionID, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	key := adminDashboardKey(sessionID)
	var cached dto.AdminDashboardResponse
	if s.tryCache(ctx, key, &cached) {
		return &cached, true, nil
	}

	summary := &dto.AdminDashboardResponse{SessionID: sessionID}
	asOf := s.now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.StudentCounts(gctx, sessionID)
		if err == nil {
			summary.Students = *counts
		}
		return err
	})
	g.Go(func() error {
		count, err := s.repo.ClassCount(gctx, sessionID)
		summary.Classes = count
		return err
	})
	g.Go(func() error {
		promotions, err := s.promotions.Summary(gctx, sessionID, "")
		if err == nil {
			summary.Promotions = *promotions
		}
		return err
	})
	g.Go(func() error {
		totals, err := s.repo.FeeTotals(gctx, sessionID, asOf)
		if err == nil {
			summary.Fees = *totals
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, appErrors.Internal(err, "failed to compose admin dashboard")
	}

	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

// Teacher returns the classes led by the teacher with head counts and pending promotions.
func (s *DashboardService) Teacher(ctx context.Context, teacherID, sessionID string) (*dto.TeacherDashboardResponse, bool, error) {
	if teacherID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	sessionID, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	key := teacherDashboardKey(teacherID, sessionID)
	var cached dto.TeacherDashboardResponse
	if s.tryCache(ctx, key, &cached) {
		return &cached, true, nil
	}

	classes, err := s.repo.TeacherClasses(ctx, teacherID, sessionID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to compose teacher dashboard")
	}
	if classes == nil {
		classes = []dto.TeacherClassStats{}
	}
	summary := &dto.TeacherDashboardResponse{TeacherID: teacherID, SessionID: sessionID, Classes: classes}
	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

func (s *DashboardService) resolveSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID != "" {
		if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
			return "", notFoundOr(err, "session not found", "failed to load session")
		}
		return sessionID, nil
	}
	active, err := s.sessions.FindActive(ctx)
	if err != nil {
		return "", notFoundOr(err, "active session not found", "failed to load active session")
	}
	return active.ID, nil
}

// tryCache treats cache errors as misses.
func (s *DashboardService) tryCache(ctx context.Context, key string, dest interface{}) bool {
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		return false
	}
	return hit
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
