package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStatusApplyFoldsSession(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return start.Add(time.Duration(sec) * time.Second) }

	var s Status
	for _, evt := range []Event{
		{SessionID: id, TS: at(0), Stage: StageSessionStart, CrawlID: "CC-MAIN-2024-10", Total: 2},
		{SessionID: id, TS: at(1), Stage: StageShardDone, Done: 1, Total: 2, Matches: 90, Rows: 1000},
		{SessionID: id, TS: at(2), Stage: StageShardFailed, Done: 2, Total: 2, Matches: 90, Rows: 40},
		{SessionID: id, TS: at(3), Stage: StageSelected, Total: 3},
		{SessionID: id, TS: at(4), Stage: StageRecordDone, Outcome: "done", Bytes: 100},
		{SessionID: id, TS: at(5), Stage: StageRecordDone, Outcome: "fetch"},
	} {
		s.Apply(evt)
	}

	require.Equal(t, uuid.UUID(id).String(), s.SessionID)
	require.Equal(t, "CC-MAIN-2024-10", s.CrawlID)
	require.Equal(t, PhaseFetching, s.Phase)
	require.Equal(t, 2, s.ShardsTotal)
	require.Equal(t, 1, s.ShardsScanned)
	require.Equal(t, 1, s.ShardsFailed)
	require.Equal(t, int64(1040), s.RowsExamined)
	require.Equal(t, 90, s.Matches)
	require.Equal(t, 3, s.RecordsRequested)
	require.Equal(t, 2, s.RecordsDone)
	require.Equal(t, 1, s.DocumentsWritten)
	require.Equal(t, int64(100), s.BytesFetched)
	require.False(t, s.Finished())

	s.Apply(Event{SessionID: id, TS: at(6), Stage: StageSessionDone, Note: "interrupted"})
	require.True(t, s.Finished())
	require.True(t, s.Interrupted)
	require.Equal(t, PhaseDone, s.Phase)
	require.Equal(t, at(6), s.UpdatedAt)
	require.Equal(t, at(0), s.StartedAt)
}

func TestStatusApplyResetsOnNewSession(t *testing.T) {
	t.Parallel()

	var s Status
	s.Apply(Event{SessionID: UUIDToBytes(uuid.New()), TS: time.Now(), Stage: StageShardDone, Matches: 5})
	require.Equal(t, 5, s.Matches)

	next := UUIDToBytes(uuid.New())
	s.Apply(Event{SessionID: next, TS: time.Now(), Stage: StageSessionError, Note: "manifest missing"})
	require.Zero(t, s.Matches)
	require.Equal(t, PhaseError, s.Phase)
	require.Equal(t, "manifest missing", s.Error)
}
