package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// DefaultCriticalDependencies are the checks whose failure takes the storefront out of rotation.
var DefaultCriticalDependencies = []string{"firestore"}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// Critical names the dependency checks that must pass for the service to be ready.
	// Failures of any other check only degrade the report. Defaults to DefaultCriticalDependencies.
	Critical []string
	Clock    func() time.Time
	Build    BuildInfo
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type systemService struct {
	healthRepo repositories.HealthRepository
	critical   map[string]struct{}
	clock      func() time.Time
	build      BuildInfo
	logger     func(context.Context, string, map[string]any)
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind the readiness endpoint.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	names := deps.Critical
	if names == nil {
		names = DefaultCriticalDependencies
	}
	critical := make(map[string]struct{}, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			critical[trimmed] = struct{}{}
		}
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		critical:   critical,
		clock: func() time.Time {
			return clock().UTC()
		},
		build:  build,
		logger: logger,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	if report.Generated.IsZero() {
		report.Generated = now
	}
	report.Version = firstNonEmpty(report.Version, s.build.Version)
	report.CommitSHA = firstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonEmpty(report.Environment, s.build.Environment)
	if report.Uptime <= 0 && !s.build.StartedAt.IsZero() {
		report.Uptime = now.Sub(s.build.StartedAt.UTC())
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}

	report.Status = s.deriveStatus(report.Checks)
	if failing := failingChecks(report.Checks); len(failing) > 0 {
		s.logger(ctx, "system.dependency_unhealthy.warning", map[string]any{
			"status":       report.Status,
			"dependencies": failing,
		})
	}
	return report, nil
}

// deriveStatus is error when a critical dependency fails and degraded when only
// optional ones do.
func (s *systemService) deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for name, check := range checks {
		if check.Status == domain.HealthStatusOK || check.Status == "" {
			continue
		}
		if _, ok := s.critical[name]; ok {
			return domain.HealthStatusError
		}
		status = domain.HealthStatusDegraded
	}
	return status
}

func failingChecks(checks map[string]domain.SystemHealthCheck) []string {
	var names []string
	for name, check := range checks {
		if check.Status != domain.HealthStatusOK && check.Status != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
