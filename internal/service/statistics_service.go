package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-warning-api/internal/dto"
	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

const defaultStatisticsWindow = 30 * 24 * time.Hour

type statisticsStore interface {
	ListForStatistics(ctx context.Context, rng models.TimeRange, scope models.StatisticsScope) ([]models.AlertRecord, error)
}

// StatisticsService serves cached alert statistics.
type StatisticsService struct {
	repo    statisticsStore
	cache   *CacheService
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewStatisticsService constructs the service.
func NewStatisticsService(repo statisticsStore, cache *CacheService, logger *zap.Logger, timeout time.Duration) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatisticsService{repo: repo, cache: cache, logger: logger, timeout: timeout, now: time.Now}
}

// Statistics summarises alerts created in the requested window. The window defaults to the 30 days
// before today plus today, in whole UTC days, so repeated default requests share a cache entry.
// The bool result reports a cache hit.
func (s *StatisticsService) Statistics(ctx context.Context, query dto.StatisticsQuery) (*models.StatisticsSnapshot, bool, error) {
	rng, err := s.resolveRange(query)
	if err != nil {
		return nil, false, err
	}
	scope := models.StatisticsScope{ClassIDs: normaliseIDs(query.ClassIDs), StudentIDs: normaliseIDs(query.StudentIDs)}
	key := statisticsCacheKey(rng, scope)

	var cached models.StatisticsSnapshot
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	records, err := s.repo.ListForStatistics(loadCtx, rng, scope)
	if err != nil {
		return nil, false, storeFailure(err, "failed to load alert statistics")
	}
	snapshot := Summarize(records, rng)
	_ = s.cache.Set(ctx, key, snapshot, 0)
	return &snapshot, false, nil
}

func (s *StatisticsService) resolveRange(query dto.StatisticsQuery) (models.TimeRange, error) {
	to := models.EndOfDay(s.now())
	if query.To != nil {
		to = query.To.UTC()
	}
	from := truncateDay(to).Add(-defaultStatisticsWindow)
	if query.From != nil {
		from = query.From.UTC()
	}
	if to.Before(from) {
		return models.TimeRange{}, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid statistics range"),
			appErrors.FieldDetail{Field: "from", Message: "must not be after to"})
	}
	return models.TimeRange{From: from, To: to}, nil
}

func statisticsCacheKey(rng models.TimeRange, scope models.StatisticsScope) CacheKey {
	return NewCacheKey(CacheResourceStatistics,
		"from", rng.From.Format(time.RFC3339),
		"to", rng.To.Format(time.RFC3339),
		"classes", strings.Join(scope.ClassIDs, ","),
		"students", strings.Join(scope.StudentIDs, ","),
	)
}

// normaliseIDs trims, dedups and sorts ids so equivalent scopes share a cache key.
func normaliseIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
