package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/progress"
)

// LogSink turns progress events into the running counters an operator watches
// on the console, e.g. "shards 1/2 scanned, 90 matches".
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs one line per event.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		msg, fields, warn := describe(evt)
		if warn {
			s.logger.Warn(msg, fields...)
			continue
		}
		s.logger.Info(msg, fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func describe(evt progress.Event) (string, []zap.Field, bool) {
	switch evt.Stage {
	case progress.StageSessionStart:
		return fmt.Sprintf("session started, %d shards selected", evt.Total),
			[]zap.Field{zap.String("session_id", evt.SessionUUID().String()), zap.String("crawl_id", evt.CrawlID)}, false
	case progress.StageShardDone:
		return fmt.Sprintf("shards %d/%d scanned, %d matches", evt.Done, evt.Total, evt.Matches),
			[]zap.Field{zap.Int("shard", evt.Shard), zap.Int64("rows_examined", evt.Rows)}, false
	case progress.StageShardFailed:
		return fmt.Sprintf("shards %d/%d scanned, shard %d failed", evt.Done, evt.Total, evt.Shard),
			[]zap.Field{zap.Int("shard", evt.Shard), zap.Int64("rows_examined", evt.Rows), zap.String("error", evt.Note)}, true
	case progress.StageSelected:
		return fmt.Sprintf("fetching %d records", evt.Total), nil, false
	case progress.StageRecordDone:
		fields := []zap.Field{zap.String("url", evt.URL), zap.String("outcome", evt.Outcome)}
		if evt.Note != "" {
			fields = append(fields, zap.String("error", evt.Note))
		}
		return fmt.Sprintf("records %d/%d fetched", evt.Done, evt.Total), fields, false
	case progress.StageSessionDone:
		fields := []zap.Field{zap.Int("matches", evt.Matches), zap.Duration("elapsed", evt.Dur)}
		if evt.Note != "" {
			return "session interrupted", fields, true
		}
		return "session finished", fields, false
	case progress.StageSessionError:
		return "session failed", []zap.Field{zap.String("error", evt.Note), zap.Duration("elapsed", evt.Dur)}, true
	default:
		return "progress event", []zap.Field{zap.String("stage", string(evt.Stage))}, false
	}
}
