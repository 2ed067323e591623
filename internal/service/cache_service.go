package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

// Cache resources used by the warning engine.
const (
	CacheResourceRules      = "rules"
	CacheResourceStatistics = "statistics"
	CacheResourceProfile    = "profile"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, resource, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, resource string, keys ...string) error
	DeleteResource(ctx context.Context, resource string) error
	Clear(ctx context.Context) error
}

// CacheKey identifies a cached read by resource and parameters.
type CacheKey struct {
	Resource string
	Params   map[string]string
}

// NewCacheKey builds a key from alternating name/value pairs.
func NewCacheKey(resource string, kv ...string) CacheKey {
	params := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		params[kv[i]] = kv[i+1]
	}
	return CacheKey{Resource: resource, Params: params}
}

// String renders the key deterministically, parameters sorted by name.
func (k CacheKey) String() string {
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("warnings:")
	sb.WriteString(k.Resource)
	for _, name := range names {
		sb.WriteString(":")
		sb.WriteString(name)
		sb.WriteString("=")
		sb.WriteString(k.Params[name])
	}
	return sb.String()
}

// CacheService orchestrates cache operations and related metrics.
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
		defaultTTL = 10 * time.Minute
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

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key CacheKey, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key.String(), dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key.String()), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key CacheKey, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key.Resource, key.String(), value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key.String()), zap.Error(err))
	}
	return err
}

// Delete removes exact keys.
func (s *CacheService) Delete(ctx context.Context, keys ...CacheKey) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	byResource := make(map[string][]string)
	for _, k := range keys {
		byResource[k.Resource] = append(byResource[k.Resource], k.String())
	}
	var firstErr error
	for resource, names := range byResource {
		if err := s.repo.Delete(ctx, resource, names...); err != nil {
			s.logger.Warn("cache delete failed", zap.String("resource", resource), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// InvalidateResource removes every cached value of a resource.
func (s *CacheService) InvalidateResource(ctx context.Context, resource string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteResource(ctx, resource); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("resource", resource), zap.Error(err))
		return err
	}
	return nil
}

// Clear drops all cached values.
func (s *CacheService) Clear(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.repo.Clear(ctx)
}
