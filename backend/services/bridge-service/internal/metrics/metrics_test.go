package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("biotune", reg)

	m.SessionActive.Set(1)
	m.FramesSkipped.WithLabelValues("malformed").Add(3)
	m.Uploads.WithLabelValues("failed").Inc()
	m.UploadLatency.Observe(0.02)

	if got := testutil.ToFloat64(m.SessionActive); got != 1 {
		t.Fatalf("session_active = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.FramesSkipped.WithLabelValues("malformed")); got != 3 {
		t.Fatalf("frames_skipped_total{malformed} = %f, want 3", got)
	}
	if got := testutil.ToFloat64(m.Uploads.WithLabelValues("failed")); got != 1 {
		t.Fatalf("uploads_total{failed} = %f, want 1", got)
	}
	if n := testutil.CollectAndCount(m.UploadLatency); n != 1 {
		t.Fatalf("upload latency collected %d series, want 1", n)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "biotune_frames_skipped_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected biotune_frames_skipped_total to be registered")
	}
}

func TestNewUnregisteredIsolated(t *testing.T) {
	a := NewUnregistered()
	b := NewUnregistered()
	a.LinesRead.Inc()
	if got := testutil.ToFloat64(b.LinesRead); got != 0 {
		t.Fatalf("separate instances share state: %f", got)
	}
}
