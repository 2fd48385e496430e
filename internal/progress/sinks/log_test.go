package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/ccslice/internal/progress"
)

func TestLogSinkWritesRunningCounters(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	id := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: id, TS: now, Stage: progress.StageShardDone, Done: 1, Total: 2, Matches: 90},
		{SessionID: id, TS: now, Stage: progress.StageShardFailed, Shard: 1, Done: 2, Total: 2, Note: "reset"},
		{SessionID: id, TS: now, Stage: progress.StageRecordDone, Done: 3, Total: 10, Outcome: "done"},
		{SessionID: id, TS: now, Stage: progress.StageSessionDone, Note: "interrupted"},
	}))

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, "shards 1/2 scanned, 90 matches", entries[0].Message)
	require.Equal(t, "shards 2/2 scanned, shard 1 failed", entries[1].Message)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "records 3/10 fetched", entries[2].Message)
	require.Equal(t, "session interrupted", entries[3].Message)
}
