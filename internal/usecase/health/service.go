// Package health aggregates component health checks for the health
// endpoint.
package health

import (
	"context"

	"github.com/chabad-mafteach/mafteach/internal/cache"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
	Cache  *cache.Stats           `json:"cache,omitempty"`
}

// CMSPinger checks CMS reachability.
type CMSPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider reachability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// Service coordinates health checks.
type Service struct {
	cms       CMSPinger
	embedding EmbeddingChecker
	stats     cache.StatsReporter
}

// New creates a Service. embedding and stats can be nil when the
// semantic stack or cache occupancy reporting is unavailable.
func New(cms CMSPinger, embedding EmbeddingChecker, stats cache.StatsReporter) *Service {
	return &Service{cms: cms, embedding: embedding, stats: stats}
}

// Check runs health checks against all components. An unreachable
// embedding provider degrades the report but keyword search still works,
// so the service never reports fully down from here.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.cms.Ping(ctx); err != nil {
		checks["cms"] = CheckError
	} else {
		checks["cms"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	report := Report{Status: status, Checks: checks}
	if s.stats != nil {
		stats := s.stats.Stats()
		report.Cache = &stats
	}
	return report
}
