package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if jobsTotal == nil || tasksTotal == nil || imagesTotal == nil || collectDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	beforeJobs := testutil.ToFloat64(jobsTotal.WithLabelValues("FINISHED"))
	beforeTasks := testutil.ToFloat64(tasksTotal.WithLabelValues("FAILED"))
	beforeImages := testutil.ToFloat64(imagesTotal.WithLabelValues("stored"))

	ObserveJob("FINISHED")
	ObserveTask("FAILED")
	ObserveImage("stored")
	ObserveImage("stored")
	ObserveCollect("ok", 2*time.Second)

	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("FINISHED")) - beforeJobs; got != 1 {
		t.Errorf("jobs delta = %f; want 1", got)
	}
	if got := testutil.ToFloat64(tasksTotal.WithLabelValues("FAILED")) - beforeTasks; got != 1 {
		t.Errorf("tasks delta = %f; want 1", got)
	}
	if got := testutil.ToFloat64(imagesTotal.WithLabelValues("stored")) - beforeImages; got != 2 {
		t.Errorf("images delta = %f; want 2", got)
	}
	if count := testutil.CollectAndCount(collectDurationSeconds); count == 0 {
		t.Error("expected collect duration to be observed")
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != before+1 {
		t.Errorf("active workers = %f; want %f", got, before+1)
	}
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != before {
		t.Errorf("active workers = %f; want %f", got, before)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://wikipedia.org", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
