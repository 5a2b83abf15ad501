// Package metrics — метрики Prometheus для backup-петель и переключений.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shiwa/timecard-mini/spll-backup/internal/spll"
)

// Metrics — все метрики демона
type Metrics struct {
	PhaseShiftCurrent *prometheus.GaugeVec
	PhaseShiftTarget  *prometheus.GaugeVec
	Locked            *prometheus.GaugeVec
	Enabled           *prometheus.GaugeVec
	Error             *prometheus.GaugeVec
	WanderSlope       *prometheus.GaugeVec

	Tags             *prometheus.CounterVec
	SwitchoverEvents *prometheus.CounterVec
}

// New регистрирует метрики в registry (nil — DefaultRegisterer)
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)
	byChannel := []string{"channel"}

	return &Metrics{
		PhaseShiftCurrent: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spll_backup_phase_shift_current",
				Help: "Current phase shift of the backup loop, tag units",
			},
			byChannel,
		),
		PhaseShiftTarget: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spll_backup_phase_shift_target",
				Help: "Phase shift setpoint of the backup loop, tag units",
			},
			byChannel,
		),
		Locked: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spll_backup_locked",
				Help: "1 if the last complete cycle reported lock",
			},
			byChannel,
		),
		Enabled: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spll_backup_enabled",
				Help: "1 if the backup loop consumes tags",
			},
			byChannel,
		),
		Error: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spll_backup_error",
				Help: "Phase error of the last complete cycle, tag units",
			},
			byChannel,
		),
		WanderSlope: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spll_backup_wander_slope",
				Help: "Estimated phase wander between backup and output clock, tag units per cycle",
			},
			byChannel,
		),
		Tags: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spll_backup_tags_total",
				Help: "Tags delivered to backup loops",
			},
			[]string{"channel", "stream"},
		),
		SwitchoverEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spll_switchover_events_total",
				Help: "Switchover events by kind",
			},
			[]string{"kind"},
		),
	}
}

// ObserveTag учитывает тег, доставленный петле idRef
func (m *Metrics) ObserveTag(idRef, source int) {
	stream := "out"
	if source == idRef {
		stream = "ref"
	}
	m.Tags.WithLabelValues(strconv.Itoa(idRef), stream).Inc()
}

// ObserveLoop выставляет gauge петли по снимку состояния
func (m *Metrics) ObserveLoop(st spll.Status, locked bool, slope float64) {
	ch := strconv.Itoa(st.IDRef)
	m.PhaseShiftCurrent.WithLabelValues(ch).Set(float64(st.PhaseShiftCurrent))
	m.PhaseShiftTarget.WithLabelValues(ch).Set(float64(st.PhaseShiftTarget))
	m.Locked.WithLabelValues(ch).Set(boolGauge(locked))
	m.Enabled.WithLabelValues(ch).Set(boolGauge(st.Enabled))
	m.Error.WithLabelValues(ch).Set(float64(st.LastError))
	m.WanderSlope.WithLabelValues(ch).Set(slope)
}

// ObserveSwitchover учитывает событие переключения
func (m *Metrics) ObserveSwitchover(kind string) {
	m.SwitchoverEvents.WithLabelValues(kind).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
