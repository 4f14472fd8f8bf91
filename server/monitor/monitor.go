// Package monitor runs the finish line pipeline: it pulls frames and
// detections from the source, tracks runners across frames, reads bib
// numbers off them, detects finish line crossings, and emits finish events
// to watchers.
package monitor

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/finishcam/finishcam/pkg/idgen"
	"github.com/finishcam/finishcam/pkg/nn"
	"github.com/finishcam/finishcam/pkg/ocr"
	"github.com/finishcam/finishcam/server/track"
)

// Frame is one unit of work from the source: the decoded image (may be nil
// if the source produces detections only), the source-clock timestamp, and
// the objects detected in it.
type Frame struct {
	Image      *cimg.Image
	PTS        time.Duration
	Detections []nn.Detection
}

// FrameSource produces frames with detections. NextFrame blocks until a
// frame is available, and returns io.EOF when the source is exhausted.
type FrameSource interface {
	NextFrame() (*Frame, error)
	FrameWidth() int
	FrameHeight() int
	Close()
}

// Options are the tunables of the finish line pipeline
type Options struct {
	// FinishFraction is the fraction of frame width (left to right) whose
	// crossing by a runner's horizontal center constitutes a finish.
	FinishFraction float32

	// MinBibConfidence is the detector confidence below which we don't
	// bother sending a bib region to OCR.
	MinBibConfidence float32

	// OCRCropPadding is the number of pixels added around a bib box before
	// cropping it for OCR. OCR engines read better with some margin.
	OCRCropPadding int
}

func DefaultOptions() Options {
	return Options{
		FinishFraction:   0.85,
		MinBibConfidence: 0.70,
		OCRCropPadding:   15,
	}
}

// A run of this many consecutive source failures halts the pipeline.
// Only the pipeline: the rest of the server (API, push, manual entry)
// keeps serving.
const maxConsecutiveSourceFailures = 10

// SYNC-FINISH-WATCHER-CHANNEL-SIZE
const finishWatcherChannelSize = 100

// Monitor owns the frame loop. One Monitor per video source.
type Monitor struct {
	Log logs.Log

	source  FrameSource
	ocr     ocr.TextReader
	tracks  *track.Registry
	options Options

	// nowFunc exists so tests can pin wall-clock time. nil means time.Now.
	nowFunc func() time.Time

	nextTrackerID idgen.Int64
	tracked       []*trackedObject // owned by the frame loop, no lock needed

	mustStop      atomic.Bool // True if Stop() has been called
	looperStopped chan bool   // Closed once the frame loop has exited

	watchersLock   sync.RWMutex
	finishWatchers []chan *track.FinishEvent

	lastFrameLock sync.Mutex
	lastFrame     *Frame

	framesProcessed atomic.Int64
}

// NewMonitor creates a monitor over the given source and OCR engine.
// Tracking state lives in 'registry', which the caller may share with
// other readers (eg status endpoints).
func NewMonitor(log logs.Log, source FrameSource, textReader ocr.TextReader, registry *track.Registry, options Options) *Monitor {
	return &Monitor{
		Log:     log,
		source:  source,
		ocr:     textReader,
		tracks:  registry,
		options: options,
	}
}

// Start launches the frame loop
func (m *Monitor) Start() {
	m.mustStop.Store(false)
	m.looperStopped = make(chan bool)
	go m.loop()
}

// Stop signals the frame loop and waits for it to exit
func (m *Monitor) Stop() {
	m.mustStop.Store(true)
	m.source.Close()
	<-m.looperStopped
}

// Wait blocks until the frame loop exits on its own (source EOF or failure
// escalation).
func (m *Monitor) Wait() {
	<-m.looperStopped
}

// AddFinishWatcher registers to receive finish events
func (m *Monitor) AddFinishWatcher() chan *track.FinishEvent {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	ch := make(chan *track.FinishEvent, finishWatcherChannelSize)
	m.finishWatchers = append(m.finishWatchers, ch)
	return ch
}

// RemoveFinishWatcher unregisters a finish event channel
func (m *Monitor) RemoveFinishWatcher(ch chan *track.FinishEvent) {
	m.watchersLock.Lock()
	defer m.watchersLock.Unlock()
	for i, w := range m.finishWatchers {
		if w == ch {
			m.finishWatchers = append(m.finishWatchers[:i], m.finishWatchers[i+1:]...)
			return
		}
	}
	m.Log.Warnf("Monitor.RemoveFinishWatcher failed to find channel")
}

func (m *Monitor) sendToWatchers(ev *track.FinishEvent) {
	m.watchersLock.RLock()
	defer m.watchersLock.RUnlock()
	for _, ch := range m.finishWatchers {
		// SYNC-FINISH-WATCHER-CHANNEL-SIZE
		// A finish watcher that falls this far behind is in serious trouble.
		// We choose to drop events rather than stall the frame loop.
		if len(ch) >= cap(ch)*9/10 {
			m.Log.Warnf("Finish watcher is falling behind. I am going to drop events.")
		} else {
			ch <- ev
		}
	}
}

// FramesProcessed returns the number of frames processed so far
func (m *Monitor) FramesProcessed() int64 {
	return m.framesProcessed.Load()
}

func (m *Monitor) now() time.Time {
	if m.nowFunc != nil {
		return m.nowFunc()
	}
	return time.Now()
}

func (m *Monitor) loop() {
	consecutiveFailures := 0
	lastFailureLog := time.Time{}
	for !m.mustStop.Load() {
		frame, err := m.source.NextFrame()
		if errors.Is(err, io.EOF) {
			m.Log.Infof("Frame source ended after %v frames", m.framesProcessed.Load())
			break
		}
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= maxConsecutiveSourceFailures {
				m.Log.Errorf("Frame source failed %v times in a row (%v). Halting finish line pipeline.", consecutiveFailures, err)
				break
			}
			if time.Since(lastFailureLog) > 5*time.Second {
				m.Log.Warnf("Frame source read failed (%v). Continuing.", err)
				lastFailureLog = time.Now()
			}
			continue
		}
		consecutiveFailures = 0
		m.processFrame(frame)
	}
	close(m.looperStopped)
}

func (m *Monitor) processFrame(frame *Frame) {
	m.trackDetectedObjects(frame)

	persons := []*nn.Detection{}
	bibs := []*nn.Detection{}
	for i := range frame.Detections {
		det := &frame.Detections[i]
		switch det.Class {
		case nn.ClassPerson:
			persons = append(persons, det)
		case nn.ClassBib:
			bibs = append(bibs, det)
		}
	}

	m.readBibs(frame, persons, bibs)
	m.detectFinishes(frame, persons)

	m.lastFrameLock.Lock()
	m.lastFrame = frame
	m.lastFrameLock.Unlock()
	m.framesProcessed.Add(1)
}

// readBibs sends confident bib regions to OCR and records the results
// against the runner wearing the bib. A bib belongs to the person whose box
// contains the bib's center.
func (m *Monitor) readBibs(frame *Frame, persons, bibs []*nn.Detection) {
	if frame.Image == nil || m.ocr == nil {
		return
	}
	for _, bib := range bibs {
		if bib.Confidence <= m.options.MinBibConfidence {
			continue
		}
		wearer := wearerOf(bib, persons)
		if wearer == nil || m.tracks.HasFinished(wearer.TrackerID) {
			continue
		}
		crop := bib.Box.Expand(m.options.OCRCropPadding, frame.Image.Width, frame.Image.Height)
		if crop.Width <= 0 || crop.Height <= 0 {
			continue
		}
		result, err := m.ocr.ReadText(nn.CropOfImage(frame.Image, crop))
		if err != nil {
			// Transient. No sample this round, carry on.
			m.Log.Warnf("OCR failed on bib region: %v", err)
			continue
		}
		if !result.OK {
			continue
		}
		m.tracks.Record(wearer.TrackerID, track.Sample{
			Text:               result.Text,
			OCRConfidence:      result.Confidence,
			DetectorConfidence: bib.Confidence,
		})
	}
}

// wearerOf returns the person whose box contains the bib's center
func wearerOf(bib *nn.Detection, persons []*nn.Detection) *nn.Detection {
	center := bib.Box.Center()
	for _, p := range persons {
		if p.Box.ContainsPoint(center) {
			return p
		}
	}
	return nil
}

// detectFinishes fires the finish transition for any runner whose
// horizontal center has crossed the finish fraction of frame width. The
// registry's MarkFinished gates the transition to exactly once per tracker,
// so a runner who lingers at the line across many frames produces one event.
func (m *Monitor) detectFinishes(frame *Frame, persons []*nn.Detection) {
	finishX := int(m.options.FinishFraction * float32(m.source.FrameWidth()))
	for _, p := range persons {
		if p.Box.Center().X < finishX {
			continue
		}
		if !m.tracks.MarkFinished(p.TrackerID, frame.PTS, m.now()) {
			continue
		}
		snapshot := m.tracks.GetOrCreate(p.TrackerID)
		bib, ok := m.tracks.Resolve(p.TrackerID)
		if !ok {
			// Every crossing must produce exactly one leaderboard-visible
			// outcome, so an unreadable bib gets a placeholder.
			bib = track.PlaceholderBib(p.TrackerID)
		}
		m.Log.Infof("Finish: tracker %v, bib %v, at %.2fs capture time", p.TrackerID, bib, frame.PTS.Seconds())
		m.sendToWatchers(&track.FinishEvent{
			TrackerID:     p.TrackerID,
			BibNumber:     bib,
			CaptureTime:   snapshot.FinishCaptureTime,
			WallClockTime: snapshot.FinishWallTime,
		})
	}
}
