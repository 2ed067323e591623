package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

// MetricSource reads the raw rows metrics are aggregated from.
type MetricSource interface {
	ScoresBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.ScoreRecord, error)
	HomeworkBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.HomeworkSubmission, error)
	AttendanceBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceEntry, error)
}

// MetricProviderConfig tunes the provider and its circuit breaker.
type MetricProviderConfig struct {
	DefaultWindowDays int
	// FailureRatio opens the breaker once at least MinRequests calls were made in the interval.
	FailureRatio   float64
	MinRequests    uint32
	BreakerTimeout time.Duration
}

// MetricProvider computes time-windowed per-student metrics. A false ok means the metric is absent
// for the window, which is distinct from a real zero.
type MetricProvider struct {
	source        MetricSource
	breaker       *gobreaker.CircuitBreaker
	metrics       *MetricsService
	logger        *zap.Logger
	defaultWindow int
	now           func() time.Time
}

// NewMetricProvider wraps source with a circuit breaker.
func NewMetricProvider(source MetricSource, cfg MetricProviderConfig, metrics *MetricsService, logger *zap.Logger) *MetricProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = models.DefaultTimeframeDays
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.6
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 10
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "warning-metric-source",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("metric source breaker state changed", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &MetricProvider{
		source:        source,
		breaker:       gobreaker.NewCircuitBreaker(settings),
		metrics:       metrics,
		logger:        logger,
		defaultWindow: cfg.DefaultWindowDays,
		now:           time.Now,
	}
}

// Compute returns the metric value for the student over the last windowDays days.
func (p *MetricProvider) Compute(ctx context.Context, studentID, metric string, windowDays int) (float64, bool, error) {
	canonical, known := models.CanonicalMetric(metric)
	if !known {
		return 0, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown metric %q", metric))
	}
	if windowDays <= 0 {
		windowDays = p.defaultWindow
	}
	to := p.now().UTC()
	from := to.AddDate(0, 0, -windowDays)

	switch canonical {
	case models.MetricAverageScore, models.MetricGradeTrend:
		scores, err := guarded(ctx, p, "scores", func() ([]models.ScoreRecord, error) {
			return p.source.ScoresBetween(ctx, studentID, from, to)
		})
		if err != nil {
			return 0, false, err
		}
		if canonical == models.MetricAverageScore {
			value, ok := averageScore(scores)
			return value, ok, nil
		}
		value, ok := gradeTrend(scores)
		return value, ok, nil
	case models.MetricHomeworkCompletionRate, models.MetricHomeworkSubmissionRate:
		rows, err := guarded(ctx, p, "homework", func() ([]models.HomeworkSubmission, error) {
			return p.source.HomeworkBetween(ctx, studentID, from, to)
		})
		if err != nil {
			return 0, false, err
		}
		value, ok := homeworkRate(rows, canonical == models.MetricHomeworkSubmissionRate)
		return value, ok, nil
	case models.MetricAttendanceRate:
		rows, err := guarded(ctx, p, "attendance", func() ([]models.AttendanceEntry, error) {
			return p.source.AttendanceBetween(ctx, studentID, from, to)
		})
		if err != nil {
			return 0, false, err
		}
		value, ok := attendanceRate(rows)
		return value, ok, nil
	}
	return 0, false, nil
}

func guarded[T any](ctx context.Context, p *MetricProvider, label string, fn func() ([]T, error)) ([]T, error) {
	start := time.Now()
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	p.metrics.ObserveDBQuery("warning_metric_"+label, time.Since(start))
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, appErrors.Unavailable(err, "metric source unavailable")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, appErrors.Unavailable(err, fmt.Sprintf("failed to load %s", label))
	}
	rows, _ := result.([]T)
	return rows, nil
}

func averageScore(scores []models.ScoreRecord) (float64, bool) {
	var sum float64
	var n int
	for _, s := range scores {
		if s.Score > 0 {
			sum += s.Score
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// gradeTrend is the signed percentage change between the first and last positive score, oldest first.
func gradeTrend(scores []models.ScoreRecord) (float64, bool) {
	var first, last float64
	var n int
	for _, s := range scores {
		if s.Score <= 0 {
			continue
		}
		if n == 0 {
			first = s.Score
		}
		last = s.Score
		n++
	}
	if n < 2 {
		return 0, false
	}
	return (last - first) / first * 100, true
}

// homeworkRate counts on-time submissions, plus late ones when countLate is set.
func homeworkRate(rows []models.HomeworkSubmission, countLate bool) (float64, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	var done int
	for _, r := range rows {
		switch r.Status {
		case models.HomeworkOnTime:
			done++
		case models.HomeworkLate:
			if countLate {
				done++
			}
		}
	}
	return float64(done) / float64(len(rows)) * 100, true
}

func attendanceRate(rows []models.AttendanceEntry) (float64, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	var present int
	for _, r := range rows {
		if r.Status == models.AttendancePresent {
			present++
		}
	}
	return float64(present) / float64(len(rows)) * 100, true
}
