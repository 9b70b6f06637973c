package poller

import (
	"time"

	"github.com/pitchwire/pitchwire/pkg/engine"
)

// Matcher picks the engine execution that corresponds to a local run out of
// the engine's recent execution list. The engine does not echo our trace IDs,
// so matching is heuristic and pluggable.
type Matcher interface {
	Match(candidates []engine.EngineExecution, req Request) *engine.EngineExecution
}

// DefaultMatchWindow bounds how far an engine execution's start time may
// drift from our trigger time and still be considered the same run.
const DefaultMatchWindow = 10 * time.Second

// TimeWindowMatcher matches by start-time proximity to the trigger. An exact
// external execution ID match, when we have one, short-circuits the window.
type TimeWindowMatcher struct {
	Window time.Duration
}

func NewTimeWindowMatcher(window time.Duration) *TimeWindowMatcher {
	if window <= 0 {
		window = DefaultMatchWindow
	}

	return &TimeWindowMatcher{Window: window}
}

func (m *TimeWindowMatcher) Match(candidates []engine.EngineExecution, req Request) *engine.EngineExecution {
	if req.ExternalExecutionID != "" {
		for idx := range candidates {
			if candidates[idx].ID == req.ExternalExecutionID {
				return &candidates[idx]
			}
		}
	}

	var (
		best     *engine.EngineExecution
		bestDiff time.Duration
	)

	for idx := range candidates {
		diff := candidates[idx].StartedAt.Sub(req.TriggeredAt)
		if diff < 0 {
			diff = -diff
		}

		if diff > m.Window {
			continue
		}

		if best == nil || diff < bestDiff {
			best = &candidates[idx]
			bestDiff = diff
		}
	}

	return best
}

var _ Matcher = (*TimeWindowMatcher)(nil)
