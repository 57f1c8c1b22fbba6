package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheService fronts request reads with a short-lived cache.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func requestCacheKey(id string) string {
	return fmt.Sprintf("foil:request:%s", id)
}

// GetRequest returns the cached request, reporting whether the cache was hit.
// Backend failures are logged and reported as a miss.
func (s *CacheService) GetRequest(ctx context.Context, id string) (*models.Request, bool) {
	if !s.Enabled() {
		return nil, false
	}
	var request models.Request
	err := s.repo.Get(ctx, requestCacheKey(id), &request)
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("request_id", id), zap.Error(err))
		}
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}
	s.metrics.RecordCacheLookup(true)
	return &request, true
}

// PutRequest stores the request snapshot.
func (s *CacheService) PutRequest(ctx context.Context, request *models.Request) {
	if !s.Enabled() || request == nil {
		return
	}
	if err := s.repo.Set(ctx, requestCacheKey(request.ID), request, s.defaultTTL); err != nil {
		s.logger.Warn("cache set failed", zap.String("request_id", request.ID), zap.Error(err))
	}
}

// InvalidateRequest drops the cached request.
func (s *CacheService) InvalidateRequest(ctx context.Context, id string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Delete(ctx, requestCacheKey(id)); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("request_id", id), zap.Error(err))
		return err
	}
	return nil
}
