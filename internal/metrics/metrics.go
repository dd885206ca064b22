package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	readings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roast_monitor",
			Subsystem: "device",
			Name:      "readings_total",
			Help:      "Readings parsed from the connected device.",
		}, []string{"kind"},
	)
	linesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roast_monitor",
			Subsystem: "device",
			Name:      "lines_skipped_total",
			Help:      "Device lines that carried no reading.",
		}, []string{"kind"},
	)
	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roast_monitor",
			Subsystem: "device",
			Name:      "connected",
			Help:      "1 while a device transport is connected.",
		},
	)
	samples = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roast_monitor",
			Subsystem: "roast",
			Name:      "samples_total",
			Help:      "Samples appended to the roast timeline.",
		},
	)
	temperature = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "roast_monitor",
			Subsystem: "roast",
			Name:      "temperature_celsius",
			Help:      "Latest sampled temperature per probe.",
		}, []string{"probe"},
	)
	rateOfRise = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "roast_monitor",
			Subsystem: "roast",
			Name:      "rate_of_rise",
			Help:      "Latest rate of rise in degrees per minute.",
		}, []string{"probe"},
	)
	milestones = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roast_monitor",
			Subsystem: "roast",
			Name:      "milestones_total",
			Help:      "Milestones marked, by label.",
		}, []string{"label"},
	)
	status = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "roast_monitor",
			Subsystem: "roast",
			Name:      "status",
			Help:      "Current session status (1 = active status).",
		}, []string{"status"},
	)
	imports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roast_monitor",
			Subsystem: "files",
			Name:      "imports_total",
			Help:      "Import attempts by result.",
		}, []string{"result"},
	)
	rowsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roast_monitor",
			Subsystem: "files",
			Name:      "import_rows_skipped_total",
			Help:      "Imported rows dropped for an unreadable bean temperature.",
		},
	)
	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roast_monitor",
			Subsystem: "files",
			Name:      "exports_total",
			Help:      "Exports by format.",
		}, []string{"format"},
	)
)

// statuses lists every session status so SetStatus can zero the others.
var statuses = []string{"idle", "preheating", "roasting", "finished"}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{readings, linesSkipped, connected, samples, temperature, rateOfRise, milestones, status, imports, rowsSkipped, exports}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has succeeded.

func IncReading(kind string) {
	if regOK.Load() {
		readings.WithLabelValues(kind).Inc()
	}
}

func IncLineSkipped(kind string) {
	if regOK.Load() {
		linesSkipped.WithLabelValues(kind).Inc()
	}
}

func SetConnected(on bool) {
	if regOK.Load() {
		connected.Set(boolValue(on))
	}
}

// ObserveSample records one appended sample.
func ObserveSample(bt, et, ror, etRor float64) {
	if !regOK.Load() {
		return
	}
	samples.Inc()
	temperature.WithLabelValues("bean").Set(bt)
	temperature.WithLabelValues("env").Set(et)
	rateOfRise.WithLabelValues("bean").Set(ror)
	rateOfRise.WithLabelValues("env").Set(etRor)
}

func IncMilestone(label string) {
	if regOK.Load() {
		milestones.WithLabelValues(label).Inc()
	}
}

func SetStatus(current string) {
	if !regOK.Load() {
		return
	}
	for _, s := range statuses {
		status.WithLabelValues(s).Set(boolValue(s == current))
	}
}

func IncImport(result string, skippedRows int) {
	if !regOK.Load() {
		return
	}
	imports.WithLabelValues(result).Inc()
	if skippedRows > 0 {
		rowsSkipped.Add(float64(skippedRows))
	}
}

func IncExport(format string) {
	if regOK.Load() {
		exports.WithLabelValues(format).Inc()
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
