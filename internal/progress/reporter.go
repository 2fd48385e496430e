package progress

import (
	"sync/atomic"
	"time"

	"github.com/JakeFAU/ccslice/internal/metrics"
	"github.com/JakeFAU/ccslice/internal/worker"
)

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// Reporter stamps events for one session and keeps the phase counters that
// turn into "shards 1/2 scanned" and "records 3/10 fetched". It implements
// worker.Observer so fetch workers report through it directly.
type Reporter struct {
	emitter   Emitter
	sessionID [16]byte
	crawlID   string
	clock     Clock

	shardsTotal  atomic.Int64
	shardsDone   atomic.Int64
	recordsTotal atomic.Int64
	recordsDone  atomic.Int64
}

var _ worker.Observer = (*Reporter)(nil)

// NewReporter binds emitter to one session. A nil emitter discards events.
func NewReporter(emitter Emitter, sessionID [16]byte, crawlID string, clock Clock) *Reporter {
	return &Reporter{emitter: emitter, sessionID: sessionID, crawlID: crawlID, clock: clock}
}

// SessionStarted announces the session and the number of shards selected.
func (r *Reporter) SessionStarted(shards int) {
	r.shardsTotal.Store(int64(shards))
	r.emit(Event{Stage: StageSessionStart, Total: shards})
}

// ShardScanned reports a completed shard and the match total after merging it.
func (r *Reporter) ShardScanned(shard int, rows int64, totalMatches int) {
	done := r.shardsDone.Add(1)
	r.emit(Event{
		Stage:   StageShardDone,
		Shard:   shard,
		Done:    int(done),
		Total:   int(r.shardsTotal.Load()),
		Matches: totalMatches,
		Rows:    rows,
	})
}

// ShardFailed reports a shard that aborted part way.
func (r *Reporter) ShardFailed(shard int, rows int64, totalMatches int, err error) {
	done := r.shardsDone.Add(1)
	evt := Event{
		Stage:   StageShardFailed,
		Shard:   shard,
		Done:    int(done),
		Total:   int(r.shardsTotal.Load()),
		Matches: totalMatches,
		Rows:    rows,
	}
	if err != nil {
		evt.Note = err.Error()
	}
	r.emit(evt)
}

// Selected announces how many records the fetch phase will request.
func (r *Reporter) Selected(records int) {
	r.recordsTotal.Store(int64(records))
	r.recordsDone.Store(0)
	r.emit(Event{Stage: StageSelected, Total: records})
}

// RecordFinished implements worker.Observer.
func (r *Reporter) RecordFinished(out worker.Outcome) {
	done := r.recordsDone.Add(1)
	evt := Event{
		Stage:       StageRecordDone,
		Done:        int(done),
		Total:       int(r.recordsTotal.Load()),
		URL:         out.Record.URL,
		Site:        metrics.SanitizeSite(out.Record.URL),
		Outcome:     out.Stage,
		Bytes:       out.Bytes,
		StatusClass: ClassifyStatus(out.StatusCode),
		Dur:         out.Duration,
	}
	if out.Err != nil {
		evt.Note = out.Err.Error()
	}
	r.emit(evt)
}

// SessionFinished closes the session. A nil err marks success; interrupted
// runs are reported as done with a note.
func (r *Reporter) SessionFinished(matches int, elapsed time.Duration, interrupted bool, err error) {
	evt := Event{
		Stage:   StageSessionDone,
		Done:    int(r.recordsDone.Load()),
		Total:   int(r.recordsTotal.Load()),
		Matches: matches,
		Dur:     elapsed,
	}
	if interrupted {
		evt.Note = "interrupted"
	}
	if err != nil {
		evt.Stage = StageSessionError
		evt.Note = err.Error()
	}
	r.emit(evt)
}

func (r *Reporter) emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.SessionID = r.sessionID
	evt.CrawlID = r.crawlID
	if r.clock != nil {
		evt.TS = r.clock.Now()
	} else {
		evt.TS = time.Now().UTC()
	}
	r.emitter.Emit(evt)
}
