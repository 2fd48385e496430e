package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/worker"
)

func TestReporterCountsShardsAndRecords(t *testing.T) {
	t.Parallel()

	em := &recordingEmitter{}
	id := UUIDToBytes(uuid.New())
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReporter(em, id, "CC-MAIN-2024-10", fixedClock{at})

	r.SessionStarted(3)
	r.ShardScanned(0, 500, 90)
	r.ShardFailed(2, 40, 90, errors.New("connection reset"))
	r.ShardScanned(1, 500, 159)
	r.Selected(2)
	r.RecordFinished(worker.Outcome{
		Record:     ccindex.IndexRecord{URL: "https://Example.com/a"},
		Stage:      worker.StageDone,
		StatusCode: 200,
		Bytes:      1234,
	})
	r.RecordFinished(worker.Outcome{
		Record: ccindex.IndexRecord{URL: "https://example.com/b"},
		Stage:  worker.StageFetch,
		Err:    errors.New("short read"),
	})
	r.SessionFinished(159, time.Minute, false, nil)

	events := em.all()
	require.Len(t, events, 8)
	for _, evt := range events {
		require.NoError(t, evt.Validate())
		require.Equal(t, id, evt.SessionID)
		require.Equal(t, "CC-MAIN-2024-10", evt.CrawlID)
		require.Equal(t, at, evt.TS)
	}

	require.Equal(t, 1, events[1].Done)
	require.Equal(t, 3, events[1].Total)
	require.Equal(t, StageShardFailed, events[2].Stage)
	require.Equal(t, "connection reset", events[2].Note)
	require.Equal(t, 3, events[3].Done)
	require.Equal(t, 159, events[3].Matches)

	require.Equal(t, StageSelected, events[4].Stage)
	require.Equal(t, "example.com", events[5].Site)
	require.Equal(t, Status2xx, events[5].StatusClass)
	require.Equal(t, 1, events[5].Done)
	require.Equal(t, 2, events[6].Done)
	require.Equal(t, 2, events[6].Total)
	require.Equal(t, worker.StageFetch, events[6].Outcome)

	require.Equal(t, StageSessionDone, events[7].Stage)
	require.Equal(t, 2, events[7].Done)
}

func TestReporterSessionError(t *testing.T) {
	t.Parallel()

	em := &recordingEmitter{}
	r := NewReporter(em, UUIDToBytes(uuid.New()), "CC-MAIN-2024-10", nil)
	r.SessionFinished(0, time.Second, false, errors.New("manifest missing"))
	r.SessionFinished(5, time.Second, true, nil)

	events := em.all()
	require.Equal(t, StageSessionError, events[0].Stage)
	require.Equal(t, "manifest missing", events[0].Note)
	require.Equal(t, StageSessionDone, events[1].Stage)
	require.Equal(t, "interrupted", events[1].Note)
}

func TestReporterNilEmitter(t *testing.T) {
	t.Parallel()

	var r *Reporter
	r.emit(Event{Stage: StageSessionStart})
	NewReporter(nil, [16]byte{1}, "", nil).SessionStarted(1)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *recordingEmitter) Emit(evt Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) all() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
