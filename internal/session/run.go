package session

import (
	"context"

	"github.com/JakeFAU/ccslice/internal/aggregator"
)

// Run scans, exports and fetches in one pass, then writes the summary. The
// fetch phase is skipped when nothing matched or the run was interrupted.
// Matches merged before an interrupt are still exported.
func (s *Session) Run(ctx context.Context) (Summary, *aggregator.MatchSet, error) {
	matches, err := s.Scan(ctx)
	if err == nil {
		_, err = s.Export(context.WithoutCancel(ctx), matches)
	}
	if err == nil {
		switch {
		case ctx.Err() != nil:
			s.summary.Interrupted = true
		case matches.Total() == 0:
			s.logger.Info("No matching records found.")
		default:
			_, err = s.Fetch(ctx, matches.Records())
		}
	}
	summary, finishErr := s.Finish(ctx, err)
	if err != nil {
		return summary, matches, err
	}
	return summary, matches, finishErr
}
