package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestSystemServiceHealthReportFillsBuildInfo(t *testing.T) {
	started := fixedNow.Add(-90 * time.Minute)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"pubsub":    {Status: domain.HealthStatusDegraded},
		},
	}}
	logger := &recordingLogger{}
	service, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            fixedClock,
		Build:            BuildInfo{Version: "1.4.0", CommitSHA: "abc123", Environment: "staging", StartedAt: started},
		Logger:           logger.log,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := service.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc123" || report.Environment != "staging" {
		t.Fatalf("unexpected build info %+v", report)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("expected uptime 90m, got %s", report.Uptime)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded status, got %s", report.Status)
	}
	if !report.Generated.Equal(fixedNow) {
		t.Fatalf("expected generated timestamp, got %v", report.Generated)
	}
	if !logger.has("system.dependency_unhealthy.warning") {
		t.Fatalf("expected unhealthy dependency to be logged")
	}
}

func TestSystemServiceHealthReportError(t *testing.T) {
	service, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: errBoom}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.HealthReport(context.Background()); err == nil {
		t.Fatalf("expected collect error")
	}
}

func TestSystemServiceStatusFollowsCriticalDependencies(t *testing.T) {
	tests := []struct {
		name     string
		critical []string
		checks   map[string]domain.SystemHealthCheck
		want     string
	}{
		{name: "no checks", want: domain.HealthStatusOK},
		{
			name: "optional dependency failing",
			checks: map[string]domain.SystemHealthCheck{
				"firestore":     {Status: domain.HealthStatusOK},
				"secretManager": {Status: domain.HealthStatusError},
			},
			want: domain.HealthStatusDegraded,
		},
		{
			name: "firestore failing",
			checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusDegraded},
				"pubsub":    {Status: domain.HealthStatusOK},
			},
			want: domain.HealthStatusError,
		},
		{
			name:     "custom critical set",
			critical: []string{"pubsub"},
			checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusError},
				"pubsub":    {Status: domain.HealthStatusError},
			},
			want: domain.HealthStatusError,
		},
		{
			name:     "nothing critical",
			critical: []string{},
			checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusError},
			},
			want: domain.HealthStatusDegraded,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// The repository's own status is ignored in favour of the critical set.
			repo := &stubHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusOK, Checks: tc.checks}}
			service, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, Critical: tc.critical, Clock: fixedClock})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			report, err := service.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, report.Status)
			}
		})
	}
}
