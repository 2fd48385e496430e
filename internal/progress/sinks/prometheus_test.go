package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ccslice/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	id := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{SessionID: id, TS: now, Stage: progress.StageSessionStart, Total: 2},
		{SessionID: id, TS: now, Stage: progress.StageShardDone, Shard: 0, Done: 1, Total: 2, Matches: 90, Rows: 1000},
		{SessionID: id, TS: now, Stage: progress.StageShardFailed, Shard: 1, Done: 2, Total: 2, Matches: 90, Rows: 25},
		{
			SessionID:   id,
			TS:          now,
			Stage:       progress.StageRecordDone,
			Outcome:     "done",
			Bytes:       2048,
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{SessionID: id, TS: now, Stage: progress.StageRecordDone, Outcome: "fetch"},
		{SessionID: id, TS: now, Stage: progress.StageSessionDone, Dur: 15 * time.Second, Matches: 90},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.shardsScanned.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.shardsScanned.WithLabelValues("failed")))
	require.InDelta(t, 1025.0, testutil.ToFloat64(sink.rowsExamined), 1e-9)
	require.InDelta(t, 90.0, testutil.ToFloat64(sink.matches), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(sink.records.WithLabelValues("done", "2xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.records.WithLabelValues("fetch", "other")))
	require.InDelta(t, 2048.0, testutil.ToFloat64(sink.recordBytes), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.recordDuration, "ccslice_record_fetch_duration_seconds"))
}

func TestPrometheusSinkInterruptedAndError(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	a := progress.UUIDToBytes(uuid.New())
	b := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: a, TS: now, Stage: progress.StageSessionStart},
		{SessionID: b, TS: now, Stage: progress.StageSessionStart},
		{SessionID: a, TS: now, Stage: progress.StageSessionStart},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.sessionsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: a, TS: now, Stage: progress.StageSessionDone, Note: "interrupted"},
		{SessionID: b, TS: now, Stage: progress.StageSessionError, Note: "boom"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsCompleted.WithLabelValues("interrupted")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsCompleted.WithLabelValues("error")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.ErrorContains(t, err, "register progress collector")
}
