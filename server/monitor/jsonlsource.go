package monitor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/finishcam/finishcam/pkg/nn"
)

// JSONLSource replays detection results from a file with one JSON-encoded
// nn.DetectionResult per line. This is how recorded races are re-scored,
// and how the pipeline is driven when an external process owns the camera
// and the neural network.
type JSONLSource struct {
	file    *os.File
	scanner *bufio.Scanner
	width   int
	height  int
	first   *Frame // buffered so the dimensions are known before NextFrame
	closed  atomic.Bool

	// Realtime makes NextFrame pace frames according to their PTS spacing,
	// so a replay behaves like a live feed.
	Realtime bool

	lastPTS     time.Duration
	lastEmitted time.Time
}

func OpenJSONLSource(path string) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &JSONLSource{
		file:    f,
		scanner: bufio.NewScanner(f),
	}
	s.scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	first, err := s.readFrame()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("Failed to read first detection record from %v: %w", path, err)
	}
	s.first = first
	return s, nil
}

func (s *JSONLSource) readFrame() (*Frame, error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		result := nn.DetectionResult{}
		if err := json.Unmarshal(line, &result); err != nil {
			return nil, err
		}
		s.width = result.ImageWidth
		s.height = result.ImageHeight
		return &Frame{
			PTS:        result.FramePTS,
			Detections: result.Objects,
		}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *JSONLSource) NextFrame() (*Frame, error) {
	if s.closed.Load() {
		return nil, io.EOF
	}
	var frame *Frame
	if s.first != nil {
		frame = s.first
		s.first = nil
	} else {
		f, err := s.readFrame()
		if err != nil {
			return nil, err
		}
		frame = f
	}
	if s.Realtime {
		s.pace(frame.PTS)
	}
	return frame, nil
}

// pace sleeps so that frames are emitted with the same spacing as their PTS
func (s *JSONLSource) pace(pts time.Duration) {
	if !s.lastEmitted.IsZero() {
		gap := pts - s.lastPTS
		elapsed := time.Since(s.lastEmitted)
		if gap > elapsed {
			time.Sleep(gap - elapsed)
		}
	}
	s.lastPTS = pts
	s.lastEmitted = time.Now()
}

func (s *JSONLSource) FrameWidth() int  { return s.width }
func (s *JSONLSource) FrameHeight() int { return s.height }

func (s *JSONLSource) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.file.Close()
	}
}
