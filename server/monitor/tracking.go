package monitor

import (
	"time"

	"github.com/bmharper/flatbush-go"
	"github.com/bmharper/ringbuffer"
	"github.com/finishcam/finishcam/pkg/nn"
)

// A runner no longer matched to any detection for this long (source time)
// is forgotten. Tracker ids are never reused, so a forgotten runner who
// reappears becomes a new tracker.
const trackedObjectTimeout = 3 * time.Second

// How many past positions we keep per tracked runner
const positionHistorySize = 32

type timeAndPosition struct {
	pts time.Duration
	box nn.Rect
}

// trackedObject is one runner being tracked across frames
type trackedObject struct {
	id             int64
	class          int
	lastPosition   nn.Rect
	lastSeen       time.Duration
	totalSightings int
	history        ringbuffer.RingP[timeAndPosition]
}

// trackDetectedObjects assigns tracker identities to this frame's person
// detections by matching them spatially against the runners we are already
// tracking. Sources that do their own tracking pre-populate TrackerID, and
// we leave those alone. Bib regions are never tracked; they attach to a
// runner by containment.
func (m *Monitor) trackDetectedObjects(frame *Frame) {
	m.pruneStaleObjects(frame.PTS)

	untracked := []*nn.Detection{}
	for i := range frame.Detections {
		det := &frame.Detections[i]
		if det.Class != nn.ClassPerson {
			continue
		}
		if det.TrackerID != 0 {
			// Source-assigned identity. Keep our mirror of it fresh so a
			// mixed stream still prunes correctly.
			m.touchSourceTracked(det, frame.PTS)
			continue
		}
		untracked = append(untracked, det)
	}
	if len(untracked) == 0 {
		return
	}

	// Spatial index on the currently tracked runners
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(m.tracked))
	for _, t := range m.tracked {
		fb.Add(int32(t.lastPosition.X), int32(t.lastPosition.Y), int32(t.lastPosition.X2()), int32(t.lastPosition.Y2()))
	}
	fb.Finish()

	minSearchBuffer := int32(0.05 * float64(m.source.FrameWidth()))

	newToTracked := make([]int, len(untracked))
	for i := range newToTracked {
		newToTracked[i] = -1
	}
	trackedHasMatch := make([]bool, len(m.tracked))

	// Find the best unmatched runner for detection 'newIndex' among the
	// candidate indices in 'existingList'. Overlap wins; when nothing
	// overlaps, fall back to center distance, because at low effective
	// frame rates a runner can move far enough between frames that the
	// boxes don't overlap at all.
	findClosestObjectFromList := func(newIndex int, existingList []int) int {
		newObj := untracked[newIndex]
		bestJ := -1
		bestIOU := float32(0)
		bestDistance := float32(9e20)
		for _, j := range existingList {
			if trackedHasMatch[j] {
				continue
			}
			oldObj := m.tracked[j]
			if oldObj.class != newObj.Class {
				continue
			}
			iou := newObj.Box.IOU(oldObj.lastPosition)
			distance := newObj.Box.Center().Distance(oldObj.lastPosition.Center())
			if iou > bestIOU {
				bestIOU = iou
				bestJ = j
			} else if bestIOU == 0 && distance < bestDistance {
				bestDistance = distance
				bestJ = j
			}
		}
		if bestJ != -1 {
			trackedHasMatch[bestJ] = true
			newToTracked[newIndex] = bestJ
		}
		return bestJ
	}

	// Phase 1: match against runners that are reasonably close
	nearbyIdx := []int{}
	for i := range untracked {
		box := untracked[i].Box
		searchBufferX := max(minSearchBuffer, int32(0.8*float64(box.Width)))
		searchBufferY := max(minSearchBuffer, int32(0.8*float64(box.Height)))
		nearbyIdx = fb.SearchFast(int32(box.X)-searchBufferX, int32(box.Y)-searchBufferY, int32(box.X2())+searchBufferX, int32(box.Y2())+searchBufferY, nearbyIdx)
		findClosestObjectFromList(i, nearbyIdx)
	}

	// Phase 2: match the leftovers against any unmatched runner, no matter
	// how far. Without this, a slow pipeline would mint a fresh tracker id
	// for every frame of a fast-moving runner, and no id would ever collect
	// enough OCR samples to resolve a bib.
	unmatched := []int{}
	for j := range m.tracked {
		if !trackedHasMatch[j] {
			unmatched = append(unmatched, j)
		}
	}
	for i := range untracked {
		if newToTracked[i] != -1 {
			continue
		}
		findClosestObjectFromList(i, unmatched)
	}

	// Update matched runners, create the rest
	for i, det := range untracked {
		bestJ := newToTracked[i]
		if bestJ == -1 {
			bestJ = len(m.tracked)
			m.tracked = append(m.tracked, &trackedObject{
				id:      m.nextTrackerID.Next(),
				class:   det.Class,
				history: ringbuffer.NewRingP[timeAndPosition](positionHistorySize),
			})
		}
		obj := m.tracked[bestJ]
		obj.lastPosition = det.Box
		obj.lastSeen = frame.PTS
		obj.totalSightings++
		obj.history.Add(timeAndPosition{pts: frame.PTS, box: det.Box})
		det.TrackerID = obj.id
	}
}

// touchSourceTracked keeps our tracked list in sync with detections whose
// ids were assigned by the source itself.
func (m *Monitor) touchSourceTracked(det *nn.Detection, pts time.Duration) {
	for _, t := range m.tracked {
		if t.id == det.TrackerID {
			t.lastPosition = det.Box
			t.lastSeen = pts
			t.totalSightings++
			t.history.Add(timeAndPosition{pts: pts, box: det.Box})
			return
		}
	}
	obj := &trackedObject{
		id:             det.TrackerID,
		class:          det.Class,
		lastPosition:   det.Box,
		lastSeen:       pts,
		totalSightings: 1,
		history:        ringbuffer.NewRingP[timeAndPosition](positionHistorySize),
	}
	obj.history.Add(timeAndPosition{pts: pts, box: det.Box})
	m.tracked = append(m.tracked, obj)
}

func (m *Monitor) pruneStaleObjects(pts time.Duration) {
	keep := m.tracked[:0]
	for _, t := range m.tracked {
		if pts-t.lastSeen <= trackedObjectTimeout {
			keep = append(keep, t)
		}
	}
	m.tracked = keep
}
