package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promdto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-lms-api/internal/dto"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m promdto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type failingCacheRepo struct{ err error }

func (f failingCacheRepo) Get(context.Context, string, interface{}) error { return f.err }

func (f failingCacheRepo) Set(context.Context, string, interface{}, time.Duration) error {
	return f.err
}

func (f failingCacheRepo) DeleteByPattern(context.Context, string) error { return f.err }

func TestCacheServiceHitMissAndInvalidate(t *testing.T) {
	repo := &stubCacheRepo{}
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 0, nil, true)
	ctx := context.Background()

	var summary dto.AdminDashboardResponse
	hit, err := svc.Get(ctx, adminDashboardKey("s24"), &summary)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, adminDashboardKey("s24"), dto.AdminDashboardResponse{Classes: 4}, 0))
	hit, err = svc.Get(ctx, adminDashboardKey("s24"), &summary)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 4, summary.Classes)

	assert.Equal(t, float64(1), counterValue(t, metrics.cacheHits))
	assert.Equal(t, float64(1), counterValue(t, metrics.cacheMisses))

	svc.InvalidateDashboards(ctx)
	assert.Equal(t, []string{"dash:*"}, repo.invalidated)
	hit, err = svc.Get(ctx, adminDashboardKey("s24"), &summary)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "dash:admin:s24", 1, 0))
	assert.Empty(t, repo.store)
	svc.InvalidateDashboards(ctx)
	assert.Empty(t, repo.invalidated)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	hit, err := nilSvc.Get(ctx, "dash:admin:s24", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewCacheService(failingCacheRepo{err: boom}, nil, time.Minute, nil, true)
	ctx := context.Background()

	hit, err := svc.Get(ctx, "dash:admin:s24", new(int))
	assert.False(t, hit)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, svc.Set(ctx, "dash:admin:s24", 1, 0), boom)

	assert.NotPanics(t, func() { svc.InvalidateDashboards(ctx) })
}

func TestMetricsRecordPromotionExecution(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RecordPromotionExecution(&dto.ExecutePromotionsResult{Promoted: 2, Graduated: 1, FeesGenerated: 24})

	assert.Equal(t, float64(2), counterValue(t, metrics.promotionsExecuted.WithLabelValues("promoted")))
	assert.Equal(t, float64(0), counterValue(t, metrics.promotionsExecuted.WithLabelValues("detained")))
	assert.Equal(t, float64(1), counterValue(t, metrics.promotionsExecuted.WithLabelValues("graduated")))
	assert.Equal(t, float64(24), counterValue(t, metrics.feesGenerated))

	var nilMetrics *MetricsService
	assert.NotPanics(t, func() { nilMetrics.RecordPromotionExecution(nil) })
}
