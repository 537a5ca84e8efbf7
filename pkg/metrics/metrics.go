// Package metrics tracks stageflow runs with Prometheus collectors.
//
// # Overview
//
// A Collector owns a private registry so one process can run several
// pipelines and still write one clean textfile per run. It counts objects
// per phase and outcome, type mapping gaps, and times every connector call.
//
// # Basic Usage
//
//	collector := metrics.NewCollector("orders_pg_to_bq")
//	timer := metrics.NewTimer()
//	err := conn.ExtractTo(ctx, stmt, dest)
//	collector.ObserveCall("postgres", "extract_to", timer.Stop(), err)
//	collector.ObjectProcessed(metrics.PhaseExtract, metrics.OutcomeDone)
//
//	// batch runs publish the registry for node_exporter
//	_ = collector.WriteTextfile("/var/lib/node_exporter/stageflow.prom")
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/stageflow/pkg/errors"
)

// Phases of a run.
const (
	PhaseExtract = "extract"
	PhaseLoad    = "load"
)

// Object outcomes.
const (
	OutcomeDone    = "done"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Call statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Collector holds the collectors of one pipeline run.
type Collector struct {
	pipeline string
	registry *prometheus.Registry

	objects      *prometheus.CounterVec   // objects by phase and outcome
	mappingGaps  *prometheus.CounterVec   // columns written with the placeholder type
	callDuration *prometheus.HistogramVec // connector call latency
	runDuration  *prometheus.GaugeVec     // wall time of the last run per phase
	lastSuccess  *prometheus.GaugeVec     // unix time of the last successful phase
}

// NewCollector registers the run collectors for pipeline on a new registry.
func NewCollector(pipeline string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"pipeline": pipeline}

	return &Collector{
		pipeline: pipeline,
		registry: reg,
		objects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "stageflow_objects_total",
				Help:        "Data objects processed, by phase and outcome",
				ConstLabels: constLabels,
			},
			[]string{"phase", "outcome"},
		),
		mappingGaps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "stageflow_type_mapping_gaps_total",
				Help:        "Columns without a type mapping, by source and target connector",
				ConstLabels: constLabels,
			},
			[]string{"source", "target"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "stageflow_connector_call_duration_seconds",
				Help:        "Duration of connector calls",
				ConstLabels: constLabels,
				Buckets: []float64{
					0.01, // metadata lookups
					0.1,
					1,
					10,  // small extracts and loads
					60,  // load jobs
					600, // large COPY and LOAD DATA transfers
					3600,
				},
			},
			[]string{"connector", "operation", "status"},
		),
		runDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "stageflow_run_duration_seconds",
				Help:        "Wall time of the last run of a phase",
				ConstLabels: constLabels,
			},
			[]string{"phase"},
		),
		lastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "stageflow_last_success_timestamp_seconds",
				Help:        "Unix time the phase last finished without error",
				ConstLabels: constLabels,
			},
			[]string{"phase"},
		),
	}
}

// Registry exposes the registry, for tests and custom exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObjectProcessed counts one object of phase with outcome.
func (c *Collector) ObjectProcessed(phase, outcome string) {
	if c == nil {
		return
	}
	c.objects.WithLabelValues(phase, outcome).Inc()
}

// TypeMappingGap counts one column DDL fell back to the placeholder type for.
func (c *Collector) TypeMappingGap(source, target string) {
	if c == nil {
		return
	}
	c.mappingGaps.WithLabelValues(source, target).Inc()
}

// ObserveCall records one connector call.
func (c *Collector) ObserveCall(connector, operation string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.callDuration.WithLabelValues(connector, operation, status(err)).Observe(d.Seconds())
}

// RunFinished records the duration of a phase and, without error, its
// completion time.
func (c *Collector) RunFinished(phase string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.runDuration.WithLabelValues(phase).Set(d.Seconds())
	if err == nil {
		c.lastSuccess.WithLabelValues(phase).SetToCurrentTime()
	}
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector. The write is atomic.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write metrics textfile").WithDetail("path", path)
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// Timer measures one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since NewTimer. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
