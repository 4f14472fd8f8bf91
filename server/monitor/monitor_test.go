package monitor

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/finishcam/finishcam/pkg/nn"
	"github.com/finishcam/finishcam/pkg/ocr"
	"github.com/finishcam/finishcam/server/track"
	"github.com/stretchr/testify/require"
)

// scriptedSource feeds a fixed sequence of frames to the monitor
type scriptedSource struct {
	frames chan *Frame
	closed chan bool
	width  int
	height int
}

func newScriptedSource(width, height int) *scriptedSource {
	return &scriptedSource{
		frames: make(chan *Frame, 100),
		closed: make(chan bool),
		width:  width,
		height: height,
	}
}

func (s *scriptedSource) NextFrame() (*Frame, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *scriptedSource) FrameWidth() int  { return s.width }
func (s *scriptedSource) FrameHeight() int { return s.height }

func (s *scriptedSource) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

func (s *scriptedSource) feed(f *Frame) {
	s.frames <- f
}

func (s *scriptedSource) end() {
	close(s.frames)
}

// failingSource always fails its reads
type failingSource struct{}

func (s *failingSource) NextFrame() (*Frame, error) { return nil, errors.New("device gone") }
func (s *failingSource) FrameWidth() int            { return 1920 }
func (s *failingSource) FrameHeight() int           { return 1080 }
func (s *failingSource) Close()                     {}

// scriptedOCR returns canned results in order, then reports no text
type scriptedOCR struct {
	results []ocr.Result
	calls   int
}

func (o *scriptedOCR) ReadText(crop nn.ImageCrop) (ocr.Result, error) {
	o.calls++
	if len(o.results) == 0 {
		return ocr.Result{}, nil
	}
	r := o.results[0]
	o.results = o.results[1:]
	return r, nil
}

func person(trackerID int64, centerX int) nn.Detection {
	return nn.Detection{
		TrackerID:  trackerID,
		Class:      nn.ClassPerson,
		Confidence: 0.9,
		Box:        nn.Rect{X: centerX - 50, Y: 200, Width: 100, Height: 300},
	}
}

func bibOn(p nn.Detection, confidence float32) nn.Detection {
	c := p.Box.Center()
	return nn.Detection{
		Class:      nn.ClassBib,
		Confidence: confidence,
		Box:        nn.Rect{X: c.X - 20, Y: c.Y - 10, Width: 40, Height: 20},
	}
}

func testImage(width, height int) *cimg.Image {
	return cimg.NewImage(width, height, cimg.PixelFormatRGB)
}

func runMonitor(t *testing.T, source FrameSource, textReader ocr.TextReader) (*Monitor, chan *track.FinishEvent) {
	m := NewMonitor(logs.NewTestingLog(t), source, textReader, track.NewRegistry(), DefaultOptions())
	events := m.AddFinishWatcher()
	m.Start()
	return m, events
}

func TestFinishDetection(t *testing.T) {
	source := newScriptedSource(1920, 1080)
	m, events := runMonitor(t, source, &scriptedOCR{})

	// 0.85 * 1920 = 1632
	source.feed(&Frame{PTS: 1 * time.Second, Detections: []nn.Detection{person(7, 900)}})
	source.feed(&Frame{PTS: 2 * time.Second, Detections: []nn.Detection{person(7, 1700)}})
	// Lingering in the finish zone must not re-fire.
	source.feed(&Frame{PTS: 3 * time.Second, Detections: []nn.Detection{person(7, 1800)}})
	source.end()
	m.Wait()

	ev := <-events
	require.Equal(t, int64(7), ev.TrackerID)
	require.Equal(t, "Unknown-7", ev.BibNumber)
	require.Equal(t, 2*time.Second, ev.CaptureTime)
	require.False(t, ev.WallClockTime.IsZero())

	select {
	case second := <-events:
		t.Fatalf("unexpected second finish event for tracker %v", second.TrackerID)
	default:
	}
	require.Equal(t, int64(3), m.FramesProcessed())
}

func TestBibResolutionAtFinish(t *testing.T) {
	source := newScriptedSource(1920, 1080)
	reader := &scriptedOCR{results: []ocr.Result{
		{Text: "123", Confidence: 0.9, OK: true},
		{Text: "128", Confidence: 0.95, OK: true},
		{Text: "123", Confidence: 0.6, OK: true},
	}}
	m, events := runMonitor(t, source, reader)

	img := testImage(1920, 1080)
	for i := 0; i < 3; i++ {
		p := person(4, 900+i*100)
		source.feed(&Frame{
			Image:      img,
			PTS:        time.Duration(i) * time.Second,
			Detections: []nn.Detection{p, bibOn(p, 0.8)},
		})
	}
	p := person(4, 1700)
	source.feed(&Frame{Image: img, PTS: 4 * time.Second, Detections: []nn.Detection{p}})
	source.end()
	m.Wait()

	// Accumulated vote: 123 scores 1.5, 128 scores 0.95.
	ev := <-events
	require.Equal(t, "123", ev.BibNumber)
	require.Equal(t, 3, reader.calls)
}

func TestLowConfidenceBibSkipsOCR(t *testing.T) {
	source := newScriptedSource(1920, 1080)
	reader := &scriptedOCR{}
	m, _ := runMonitor(t, source, reader)

	p := person(1, 900)
	source.feed(&Frame{
		Image:      testImage(1920, 1080),
		PTS:        time.Second,
		Detections: []nn.Detection{p, bibOn(p, 0.5)},
	})
	// A bib with nobody wearing it is skipped too.
	source.feed(&Frame{
		Image:      testImage(1920, 1080),
		PTS:        2 * time.Second,
		Detections: []nn.Detection{bibOn(person(0, 300), 0.9)},
	})
	source.end()
	m.Wait()
	require.Equal(t, 0, reader.calls)
}

func TestTrackerAssignsStableIDs(t *testing.T) {
	source := newScriptedSource(1920, 1080)
	m, _ := runMonitor(t, source, &scriptedOCR{})

	walk := func(centerX int) nn.Detection {
		d := person(0, centerX)
		return d
	}
	frames := []*Frame{
		{PTS: 0, Detections: []nn.Detection{walk(300), walk(1200)}},
		{PTS: 100 * time.Millisecond, Detections: []nn.Detection{walk(330), walk(1230)}},
		{PTS: 200 * time.Millisecond, Detections: []nn.Detection{walk(360), walk(1260)}},
	}
	seen := [][]int64{}
	for _, f := range frames {
		source.feed(f)
	}
	source.end()
	m.Wait()
	for _, f := range frames {
		ids := []int64{f.Detections[0].TrackerID, f.Detections[1].TrackerID}
		seen = append(seen, ids)
	}

	// Both runners got ids on the first frame, and kept them.
	require.NotZero(t, seen[0][0])
	require.NotZero(t, seen[0][1])
	require.NotEqual(t, seen[0][0], seen[0][1])
	for _, ids := range seen[1:] {
		require.Equal(t, seen[0], ids)
	}
}

func TestSourceFailureEscalation(t *testing.T) {
	m := NewMonitor(logs.NewTestingLog(t), &failingSource{}, &scriptedOCR{}, track.NewRegistry(), DefaultOptions())
	m.Start()
	// The loop halts on its own after a bounded run of failures.
	m.Wait()
	require.Equal(t, int64(0), m.FramesProcessed())
}

func TestStopUnblocksSource(t *testing.T) {
	source := newScriptedSource(1920, 1080)
	m, _ := runMonitor(t, source, &scriptedOCR{})
	done := make(chan bool)
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not unblock the frame loop")
	}
}
