package engine

import (
	"context"
	"fmt"

	"github.com/roach88/sidesync/internal/hlc"
	"github.com/roach88/sidesync/internal/store"
)

// resumeClock creates the clock for a database that may already hold
// oplog entries.
//
// The clock is advanced past the newest persisted hlc_time, so timestamps
// keep increasing across restarts even if the wall clock went backwards
// while the process was down.
func resumeClock(ctx context.Context, s *store.Store, node string, opts ...hlc.Option) (*hlc.Clock, error) {
	clock, err := hlc.NewClock(node, opts...)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}

	last, err := s.LastHLCTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}
	if last == "" {
		return clock, nil
	}

	ts, err := hlc.Parse(last)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}
	clock.Observe(ts)
	return clock, nil
}
