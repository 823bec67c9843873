package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stwalsh4118/solosafe/api/internal/analytics"
	"github.com/stwalsh4118/solosafe/api/internal/logger"
	"github.com/stwalsh4118/solosafe/api/internal/observability"
	"github.com/stwalsh4118/solosafe/api/internal/repository"
)

// MaxTopK bounds the risk ranking length a caller may request.
const MaxTopK = 100

// AnalyticsService computes dashboard aggregates over all stored reports.
type AnalyticsService interface {
	// Summary scans every report and returns the global average, tag counts and
	// the topK riskiest city-level locations. topK 0 means the configured default.
	// Returns ErrInvalidTopK when topK is negative or above MaxTopK.
	Summary(ctx context.Context, topK int) (*analytics.Summary, error)
}

type analyticsService struct {
	reports     repository.ReportRepository
	defaultTopK int
	metrics     *observability.Metrics
	log         *logger.Logger
}

// NewAnalyticsService creates a new instance of AnalyticsService.
// A defaultTopK below 1 falls back to analytics.DefaultTopK.
func NewAnalyticsService(
	reports repository.ReportRepository,
	defaultTopK int,
	metrics *observability.Metrics,
	log *logger.Logger,
) AnalyticsService {
	if defaultTopK < 1 {
		defaultTopK = analytics.DefaultTopK
	}
	return &analyticsService{
		reports:     reports,
		defaultTopK: defaultTopK,
		metrics:     metrics,
		log:         log,
	}
}

func (s *analyticsService) Summary(ctx context.Context, topK int) (*analytics.Summary, error) {
	if topK < 0 || topK > MaxTopK {
		s.metrics.ValidationFailures.WithLabelValues("summary").Inc()
		s.log.Warn("Invalid top_k requested", map[string]interface{}{
			"top_k": topK,
		})
		return nil, fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidTopK, MaxTopK, topK)
	}
	if topK == 0 {
		topK = s.defaultTopK
	}

	timer := prometheus.NewTimer(s.metrics.SummaryDuration)
	defer timer.ObserveDuration()

	digests, err := s.reports.Digests(ctx)
	if err != nil {
		s.log.Error("Failed to load reports for analytics", err, nil)
		return nil, fmt.Errorf("failed to load reports for analytics: %w", err)
	}

	summary := analytics.Summarize(digests, topK)
	s.metrics.SummaryReports.Set(float64(summary.ReportCount))

	s.log.Info("Analytics summary computed", map[string]interface{}{
		"report_count": summary.ReportCount,
		"locations":    len(summary.RiskRanking),
		"top_k":        topK,
	})

	return &summary, nil
}
