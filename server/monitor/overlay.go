package monitor

import (
	"errors"
	"fmt"
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/finishcam/finishcam/pkg/nn"
	"github.com/fogleman/gg"
)

// ErrNoFrame means no frame has been processed yet (or the source produces
// detections without pixels).
var ErrNoFrame = errors.New("no frame available")

// SnapshotJPEG renders the most recent frame with its tracking overlay:
// the finish line, runner boxes with their current best bib guess, and bib
// region boxes. clockLabel (eg the official race time) is drawn in the top
// left corner. Returns JPEG bytes.
func (m *Monitor) SnapshotJPEG(clockLabel string) ([]byte, error) {
	m.lastFrameLock.Lock()
	frame := m.lastFrame
	m.lastFrameLock.Unlock()
	if frame == nil || frame.Image == nil {
		return nil, ErrNoFrame
	}

	rgba, err := toRGBA(frame.Image)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContextForRGBA(rgba)
	m.drawOverlay(dc, frame, clockLabel)

	out := cimg.NewImage(rgba.Rect.Dx(), rgba.Rect.Dy(), cimg.PixelFormatRGB)
	fromRGBA(rgba, out)
	return cimg.Compress(out, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
}

func (m *Monitor) drawOverlay(dc *gg.Context, frame *Frame, clockLabel string) {
	width := float64(m.source.FrameWidth())
	height := float64(m.source.FrameHeight())

	// Finish line
	finishX := float64(m.options.FinishFraction) * width
	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(3)
	dc.DrawLine(finishX, 0, finishX, height)
	dc.Stroke()

	for _, det := range frame.Detections {
		switch det.Class {
		case nn.ClassPerson:
			if m.tracks.HasFinished(det.TrackerID) {
				dc.SetRGB(1, 0.8, 0)
			} else {
				dc.SetRGB(0, 1, 0)
			}
			drawBox(dc, det.Box)
			label := fmt.Sprintf("#%v", det.TrackerID)
			if bib, ok := m.tracks.BestGuess(det.TrackerID); ok {
				label = fmt.Sprintf("#%v bib %v", det.TrackerID, bib)
			}
			dc.DrawString(label, float64(det.Box.X), float64(det.Box.Y)-4)
		case nn.ClassBib:
			dc.SetRGB(0.2, 0.4, 1)
			drawBox(dc, det.Box)
		}
	}

	if clockLabel != "" {
		dc.SetRGB(1, 1, 1)
		dc.DrawString(clockLabel, 10, 20)
	}
}

func drawBox(dc *gg.Context, r nn.Rect) {
	dc.SetLineWidth(2)
	dc.DrawRectangle(float64(r.X), float64(r.Y), float64(r.Width), float64(r.Height))
	dc.Stroke()
}

// toRGBA expands a 3 or 4 channel cimg image into an image.RGBA that gg
// can draw on.
func toRGBA(img *cimg.Image) (*image.RGBA, error) {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	switch img.NChan() {
	case 3:
		for y := 0; y < img.Height; y++ {
			src := img.Pixels[y*img.Stride:]
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < img.Width; x++ {
				dst[x*4] = src[x*3]
				dst[x*4+1] = src[x*3+1]
				dst[x*4+2] = src[x*3+2]
				dst[x*4+3] = 255
			}
		}
	case 4:
		for y := 0; y < img.Height; y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+img.Width*4], img.Pixels[y*img.Stride:])
		}
	default:
		return nil, fmt.Errorf("unsupported image format with %v channels", img.NChan())
	}
	return out, nil
}

// fromRGBA packs an image.RGBA back into a 3 channel cimg image
func fromRGBA(src *image.RGBA, dst *cimg.Image) {
	width := dst.Width
	for y := 0; y < dst.Height; y++ {
		s := src.Pix[y*src.Stride:]
		d := dst.Pixels[y*dst.Stride:]
		for x := 0; x < width; x++ {
			d[x*3] = s[x*4]
			d[x*3+1] = s[x*4+1]
			d[x*3+2] = s[x*4+2]
		}
	}
}
