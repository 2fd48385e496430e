package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ccslice/internal/progress"
)

func TestStatusSinkReturnsCopy(t *testing.T) {
	t.Parallel()

	sink := NewStatusSink()
	id := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: id, TS: now, Stage: progress.StageSessionStart, Total: 1},
		{SessionID: id, TS: now, Stage: progress.StageShardDone, Done: 1, Total: 1, Matches: 7},
		{SessionID: id, TS: now, Stage: progress.StageSessionDone, Matches: 7},
	}))

	st := sink.Status()
	require.Equal(t, 7, st.Matches)
	require.True(t, st.Finished())

	*st.FinishedAt = time.Time{}
	require.False(t, sink.Status().FinishedAt.IsZero())
}
