package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// value returns the value of the counter or gauge name with the given labels.
func value(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return 0
}

func TestGet_Singleton(t *testing.T) {
	if Get() != Get() {
		t.Error("Get() returned different instances")
	}
}

func TestObserveScan(t *testing.T) {
	m := Get()
	repo := "metrics-observe-scan"

	m.ObserveScan(ScanResult{
		Repository: repo,
		State:      "completed",
		Elapsed:    1500 * time.Millisecond,
		Included:   10,
		Consumed:   7,
		Skipped:    3,
		Problems:   map[string]int{"index-artifact": 2, "": 1},
	})

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"relic_scans_total", map[string]string{"repository": repo, "state": "completed"}, 1},
		{"relic_scan_files_total", map[string]string{"repository": repo, "outcome": "included"}, 10},
		{"relic_scan_files_total", map[string]string{"repository": repo, "outcome": "consumed"}, 7},
		{"relic_scan_files_total", map[string]string{"repository": repo, "outcome": "skipped"}, 3},
		{"relic_scan_problems_total", map[string]string{"repository": repo, "consumer": "index-artifact"}, 2},
		{"relic_scan_problems_total", map[string]string{"repository": repo, "consumer": "walk"}, 1},
	}
	for _, tt := range tests {
		if got := value(t, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestScanStarted(t *testing.T) {
	m := Get()
	before := value(t, "relic_scans_in_progress", nil)

	done := m.ScanStarted()
	if got := value(t, "relic_scans_in_progress", nil); got != before+1 {
		t.Errorf("in progress = %v, want %v", got, before+1)
	}
	done()
	if got := value(t, "relic_scans_in_progress", nil); got != before {
		t.Errorf("in progress after done = %v, want %v", got, before)
	}
}

func TestObserveSearch(t *testing.T) {
	m := Get()
	kind := "metrics-test-term"

	m.ObserveSearch(kind, time.Millisecond, nil)
	m.ObserveSearch(kind, time.Millisecond, errors.New("boom"))

	if got := value(t, "relic_searches_total", map[string]string{"kind": kind, "result": "ok"}); got != 1 {
		t.Errorf("ok searches = %v, want 1", got)
	}
	if got := value(t, "relic_searches_total", map[string]string{"kind": kind, "result": "error"}); got != 1 {
		t.Errorf("failed searches = %v, want 1", got)
	}
}
