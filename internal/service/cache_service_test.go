package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/models"
)

func TestCacheServiceRoundTrip(t *testing.T) {
	repo, mr := newLeaser(t)
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()
	request := &models.Request{ID: "FOIL-2024-0002-00001", AgencyEIN: testAgency, Status: models.RequestStatusOpen, DueDate: time.Date(2024, 6, 10, 21, 0, 0, 0, time.UTC)}

	_, ok := cache.GetRequest(ctx, request.ID)
	assert.False(t, ok)

	cache.PutRequest(ctx, request)
	assert.True(t, mr.Exists("foil:request:FOIL-2024-0002-00001"))
	got, ok := cache.GetRequest(ctx, request.ID)
	require.True(t, ok)
	assert.Equal(t, request.Status, got.Status)
	assert.True(t, request.DueDate.Equal(got.DueDate))

	require.NoError(t, cache.InvalidateRequest(ctx, request.ID))
	_, ok = cache.GetRequest(ctx, request.ID)
	assert.False(t, ok)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo, mr := newLeaser(t)
	cache := NewCacheService(repo, nil, 0, nil, false)
	ctx := context.Background()

	assert.False(t, cache.Enabled())
	cache.PutRequest(ctx, &models.Request{ID: "FOIL-2024-0002-00001"})
	assert.Empty(t, mr.Keys())
	_, ok := cache.GetRequest(ctx, "FOIL-2024-0002-00001")
	assert.False(t, ok)
	require.NoError(t, cache.InvalidateRequest(ctx, "FOIL-2024-0002-00001"))

	var nilCache *CacheService
	assert.False(t, nilCache.Enabled())
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, interface{}) error {
	return errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCache) Delete(context.Context, ...string) error {
	return errors.New("connection refused")
}

func TestCacheServiceTreatsBackendFailureAsMiss(t *testing.T) {
	cache := NewCacheService(brokenCache{}, nil, time.Minute, nil, true)
	cache.PutRequest(context.Background(), &models.Request{ID: "FOIL-2024-0002-00001"})

	_, ok := cache.GetRequest(context.Background(), "FOIL-2024-0002-00001")
	assert.False(t, ok)
	require.Error(t, cache.InvalidateRequest(context.Background(), "FOIL-2024-0002-00001"))
}
