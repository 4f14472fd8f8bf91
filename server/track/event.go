package track

import (
	"fmt"
	"time"
)

// FinishEvent is emitted exactly once per tracker, at the moment its finish
// transition fires. It is immutable once constructed, and is the sole
// channel by which tracking state becomes a leaderboard entry.
//
// WallClockTime is the timestamp that matters downstream: official race
// time must be robust to the processing pipeline running slower or faster
// than real time, so a video decoded at non-1x speed must not skew results.
// CaptureTime is kept for diagnostics.
type FinishEvent struct {
	TrackerID     int64
	BibNumber     string // may be a synthesized placeholder ("Unknown-<id>")
	CaptureTime   time.Duration
	WallClockTime time.Time
}

// PlaceholderBib is the synthesized bib number for a runner who crossed the
// line without a resolvable bib. The crossing must still produce exactly
// one leaderboard-visible outcome.
func PlaceholderBib(trackerID int64) string {
	return fmt.Sprintf("Unknown-%v", trackerID)
}
