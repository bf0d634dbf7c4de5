package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

func TestNormalizePathFoldsIDs(t *testing.T) {
	cases := map[string]string{
		"/v1/wizards/3f2a/steps": "/v1/wizards/{wizard_id}/steps",
		"/v1/wizards/3f2a":       "/v1/wizards/{wizard_id}",
		"/v1/contributions/42":   "/v1/contributions/{contribution_id}",
		"/files/lyon/42/body.md": "/files/{key}",
		"/v1/catalog":            "/v1/catalog",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubmissionRecorderCountsOutcomes(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	recorder := m.Submissions("api")

	recorder.ObserveSubmission(domain.WizardCreate, "partial", 150*time.Millisecond)
	recorder.ObserveSecondaryFailure(domain.ArtifactCover)
	recorder.ObserveSecondaryFailure(domain.ArtifactCover)

	if got := testutil.ToFloat64(m.submissionsTotal.WithLabelValues("api", "create", "partial")); got != 1 {
		t.Fatalf("expected one partial submission, got %v", got)
	}
	if got := testutil.ToFloat64(m.secondaryFailuresTotal.WithLabelValues("api", "cover")); got != 2 {
		t.Fatalf("expected two cover failures, got %v", got)
	}
}

func TestResilienceMetricsTrackBreakerState(t *testing.T) {
	m := NewWorkerMetrics("worker")
	rm := NewResilienceMetrics(m.Registerer(), "worker")

	rm.ObserveRetry("storage.save")
	rm.ObserveRetry("storage.save")
	rm.ObserveBreakerState("storage.save", "open")
	rm.ObserveBreakerState("storage.save", "unknown")

	if got := testutil.ToFloat64(rm.retriesTotal.WithLabelValues("worker", "storage.save")); got != 2 {
		t.Fatalf("expected 2 retries, got %v", got)
	}
	if got := testutil.ToFloat64(rm.breakerState.WithLabelValues("worker", "storage.save")); got != 2 {
		t.Fatalf("expected open state gauge 2, got %v", got)
	}
}
