package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/identity"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestTrackerRecordsSuccessAndFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track(JobRoleRefresh).End(nil))

	boom := errors.New("redis down")
	assert.ErrorIs(t, metrics.Track(JobRoleRefresh).End(boom), boom,
		"the tracker must return the handler error untouched")

	body := scrape(t, registry)
	assert.Contains(t, body, `authz_refresh_jobs_total{job="role_refresh",status="success"} 1`)
	assert.Contains(t, body, `authz_refresh_jobs_total{job="role_refresh",status="failure"} 1`)
	assert.Contains(t, body, `authz_refresh_failures_total{job="role_refresh"} 1`)
	assert.Contains(t, body, `authz_refresh_duration_seconds_bucket{job="role_refresh"`)
}

func TestRoleRefreshCountsFailedRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	boom := errors.New("pg down")
	mr := miniredis.RunT(t)
	cache := identity.NewRoleCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	job := NewRoleRefreshJob(&stubStore{err: boom}, cache, nil, metrics)

	err := job.Handle(context.Background(), roleTask(t, "admin"))
	require.ErrorIs(t, err, boom)

	body := scrape(t, registry)
	assert.Contains(t, body, `authz_refresh_failures_total{job="role_refresh"} 1`)
}

func TestNilMetricsTrackerIsInert(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track(JobUserRefresh).End(boom), boom)
	assert.NoError(t, metrics.Track(JobUserRefresh).End(nil))
}
