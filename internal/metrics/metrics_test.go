package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shiwa/timecard-mini/spll-backup/internal/spll"
)

func TestObserveTag(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveTag(1, 1)
	m.ObserveTag(1, 1)
	m.ObserveTag(1, 3)

	if got := testutil.ToFloat64(m.Tags.WithLabelValues("1", "ref")); got != 2 {
		t.Errorf("ref tags %v", got)
	}
	if got := testutil.ToFloat64(m.Tags.WithLabelValues("1", "out")); got != 1 {
		t.Errorf("out tags %v", got)
	}
}

func TestObserveLoop(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveLoop(spll.Status{
		Enabled:           true,
		IDRef:             2,
		PhaseShiftCurrent: -5,
		PhaseShiftTarget:  7,
		LastError:         3,
	}, true, 0.25)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"current", m.PhaseShiftCurrent.WithLabelValues("2"), -5},
		{"target", m.PhaseShiftTarget.WithLabelValues("2"), 7},
		{"locked", m.Locked.WithLabelValues("2"), 1},
		{"enabled", m.Enabled.WithLabelValues("2"), 1},
		{"error", m.Error.WithLabelValues("2"), 3},
		{"slope", m.WanderSlope.WithLabelValues("2"), 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestObserveSwitchover(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveSwitchover("activate")
	m.ObserveSwitchover("activate")
	m.ObserveSwitchover("stop")
	if got := testutil.ToFloat64(m.SwitchoverEvents.WithLabelValues("activate")); got != 2 {
		t.Errorf("activate %v", got)
	}
	if n := testutil.CollectAndCount(m.SwitchoverEvents); n != 2 {
		t.Errorf("series %d", n)
	}
}
