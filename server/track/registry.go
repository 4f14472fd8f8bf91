// Package track owns the per-tracker state that the finish line monitor
// reads and writes: the OCR sample history of each tracked runner, and the
// once-only finish transition.
package track

import (
	"sync"
	"time"
)

// A single OCR read of a bib region, together with the detector's own
// confidence in the bib box that the read came from.
type Sample struct {
	Text               string
	OCRConfidence      float32
	DetectorConfidence float32
}

// Per-tracker state. Created on first sighting of a tracker id, destroyed
// only with the registry itself.
type state struct {
	trackerID         int64
	samples           []Sample
	hasFinished       bool
	finishCaptureTime time.Duration // source-clock time of the crossing
	finishWallTime    time.Time     // wall-clock time of the crossing
}

// Snapshot is a copy of a tracker's state, safe to hold without locks.
type Snapshot struct {
	TrackerID         int64
	SampleCount       int
	HasFinished       bool
	FinishCaptureTime time.Duration
	FinishWallTime    time.Time
}

// Registry is the single owner of all per-tracker state in a session.
// Every method takes the registry lock around its full read-modify-write,
// so it is safe to call concurrently from the frame loop and from request
// handlers.
type Registry struct {
	lock   sync.Mutex
	tracks map[int64]*state
}

func NewRegistry() *Registry {
	return &Registry{
		tracks: map[int64]*state{},
	}
}

// GetOrCreate returns a snapshot of the tracker's state, creating default
// state (no samples, not finished) on first sight of the id.
func (r *Registry) GetOrCreate(trackerID int64) Snapshot {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.getOrCreateLocked(trackerID).snapshot()
}

func (r *Registry) getOrCreateLocked(trackerID int64) *state {
	t := r.tracks[trackerID]
	if t == nil {
		t = &state{trackerID: trackerID}
		r.tracks[trackerID] = t
	}
	return t
}

// Record appends an OCR sample to the tracker's history.
// The history is append-only; samples are never consumed or discarded, so
// bib resolution can be recomputed at any time.
func (r *Registry) Record(trackerID int64, sample Sample) {
	r.lock.Lock()
	defer r.lock.Unlock()
	t := r.getOrCreateLocked(trackerID)
	t.samples = append(t.samples, sample)
}

// MarkFinished performs the finish transition and returns whether it
// actually transitioned. The first call for a tracker returns true and
// records both timestamps; every subsequent call is a no-op returning
// false. This is the idempotence guard against re-reporting a runner who
// lingers inside the finish zone across many frames.
func (r *Registry) MarkFinished(trackerID int64, captureTime time.Duration, wallTime time.Time) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	t := r.getOrCreateLocked(trackerID)
	if t.hasFinished {
		return false
	}
	t.hasFinished = true
	t.finishCaptureTime = captureTime
	t.finishWallTime = wallTime
	return true
}

// HasFinished returns true if the tracker has crossed the finish line
func (r *Registry) HasFinished(trackerID int64) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	t := r.tracks[trackerID]
	return t != nil && t.hasFinished
}

// Samples returns a copy of the tracker's OCR sample history
func (r *Registry) Samples(trackerID int64) []Sample {
	r.lock.Lock()
	defer r.lock.Unlock()
	t := r.tracks[trackerID]
	if t == nil {
		return nil
	}
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// TrackerIDs returns the ids of all trackers seen this session
func (r *Registry) TrackerIDs() []int64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	ids := make([]int64, 0, len(r.tracks))
	for id := range r.tracks {
		ids = append(ids, id)
	}
	return ids
}

func (t *state) snapshot() Snapshot {
	return Snapshot{
		TrackerID:         t.trackerID,
		SampleCount:       len(t.samples),
		HasFinished:       t.hasFinished,
		FinishCaptureTime: t.finishCaptureTime,
		FinishWallTime:    t.finishWallTime,
	}
}
