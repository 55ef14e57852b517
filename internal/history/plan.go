package history

import (
	"time"

	"github.com/amirphl/crossover-backtester/internal/tfutils"
)

// Plan is the range a managed download should fetch.
type Plan struct {
	Start time.Time
	End   time.Time
	// NeedsConfirmation is set when the requested range would leave a gap
	// next to the stored range. Start/End then hold the suggested range that
	// covers both without a gap, and nothing should be downloaded until the
	// caller retries with force extend.
	NeedsConfirmation bool
	Current           *Entry
}

// PlanDownload decides what to fetch for a request of [start, end) given what
// is already stored for symbol/timeframe. With forceExtend the download
// always covers the union of both ranges.
func (m *Manager) PlanDownload(symbol, timeframe string, start, end time.Time, forceExtend bool) (Plan, error) {
	plan := Plan{Start: start, End: end}

	entry, ok, err := m.GetMeta(symbol, timeframe)
	if err != nil || !ok {
		return plan, err
	}
	first, last, err := entry.Span()
	if err != nil {
		// An unreadable entry is treated as absent and overwritten by the download.
		return plan, nil
	}
	plan.Current = &entry

	storedEnd := last.Add(tfutils.GetTimeframeDuration(timeframe))
	union := Plan{Start: earliest(start, first), End: latest(end, storedEnd), Current: &entry}

	if forceExtend {
		return union, nil
	}
	if end.Before(first) || start.After(storedEnd) {
		union.NeedsConfirmation = true
		return union, nil
	}
	return plan, nil
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
