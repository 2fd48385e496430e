package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/ccslice/internal/progress"
)

// PrometheusSink exports session progress via Prometheus. It owns the
// collectors for sessions, shard scans and per-record outcomes.
type PrometheusSink struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionsRunning   prometheus.Gauge
	sessionRuntime    *prometheus.HistogramVec

	shardsScanned *prometheus.CounterVec
	rowsExamined  prometheus.Counter
	matches       prometheus.Gauge

	records        *prometheus.CounterVec
	recordBytes    prometheus.Counter
	recordDuration *prometheus.HistogramVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccslice_sessions_started_total",
			Help: "Total retrieval sessions that have started.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccslice_sessions_completed_total",
			Help: "Total sessions completed partitioned by result.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ccslice_sessions_running",
			Help: "Current number of running sessions.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccslice_session_runtime_seconds",
			Help:    "Wall time per completed session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		shardsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccslice_shards_scanned_total",
			Help: "Index shards finished partitioned by result.",
		}, []string{"result"}),
		rowsExamined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccslice_index_rows_examined_total",
			Help: "Index rows evaluated against the filter.",
		}),
		matches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ccslice_session_matches",
			Help: "Running match total of the most recent session.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccslice_records_total",
			Help: "Selected records finished partitioned by outcome and archived status class.",
		}, []string{"outcome", "status_class"}),
		recordBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccslice_record_bytes_total",
			Help: "Archive bytes transferred by ranged record reads.",
		}),
		recordDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccslice_record_fetch_duration_seconds",
			Help:    "Ranged read duration partitioned by outcome.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"outcome"}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsCompleted,
		s.sessionsRunning,
		s.sessionRuntime,
		s.shardsScanned,
		s.rowsExamined,
		s.matches,
		s.records,
		s.recordBytes,
		s.recordDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSessionStart, progress.StageSessionDone, progress.StageSessionError:
		s.handleSessionEvent(evt)
	case progress.StageShardDone:
		s.shardsScanned.WithLabelValues("ok").Inc()
		s.rowsExamined.Add(float64(evt.Rows))
		s.matches.Set(float64(evt.Matches))
	case progress.StageShardFailed:
		s.shardsScanned.WithLabelValues("failed").Inc()
		s.rowsExamined.Add(float64(evt.Rows))
	case progress.StageRecordDone:
		s.handleRecordEvent(evt)
	}
}

func (s *PrometheusSink) handleSessionEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSessionStart:
		s.sessionsStarted.Inc()
		s.matches.Set(0)
		if s.tracker.start(evt.SessionID) {
			s.sessionsRunning.Inc()
		}
	case progress.StageSessionDone:
		result := "success"
		if evt.Note == "interrupted" {
			result = "interrupted"
		}
		s.sessionsCompleted.WithLabelValues(result).Inc()
		s.observeRuntime(evt, result)
	case progress.StageSessionError:
		s.sessionsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageSessionStart && s.tracker.complete(evt.SessionID) {
		s.sessionsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.sessionRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleRecordEvent(evt progress.Event) {
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.records.WithLabelValues(evt.Outcome, statusClass).Inc()
	if evt.Bytes > 0 {
		s.recordBytes.Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.recordDuration.WithLabelValues(evt.Outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[[16]byte]struct{})}
}

func (t *sessionTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
