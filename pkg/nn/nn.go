package nn

import (
	"time"

	"github.com/bmharper/cimg/v2"
)

// Package nn defines the types that flow between the object detector and
// the rest of the system. The detector itself is an external collaborator;
// we only consume its typed results.

// Object classes produced by the race detector model
const (
	ClassPerson = 0 // a runner
	ClassBib    = 1 // the bib plate on a runner's chest
)

// ClassLabels[class] is the human readable name of a class
var ClassLabels = []string{"person", "bib"}

// A single detected object in one frame.
// TrackerID is zero if the source does not assign tracker identities itself,
// in which case the monitor's built-in tracker will assign one.
type Detection struct {
	TrackerID  int64   `json:"trackerID"`
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// Results of an object detection run on a single frame
type DetectionResult struct {
	ImageWidth  int           `json:"imageWidth"`
	ImageHeight int           `json:"imageHeight"`
	Objects     []Detection   `json:"objects"`
	FramePTS    time.Duration `json:"framePTS"`
}

// ObjectDetector is the opaque external inference interface.
// Implementations run a neural network over the frame and return the
// detected objects. Errors are transient; the caller skips the frame.
type ObjectDetector interface {
	DetectObjects(img *cimg.Image) ([]Detection, error)
	Close()
}

// ImageCrop is a sub-rectangle view over an RGB image.
// It carries no pixel copy; Pixels is the whole image and the crop fields
// delimit the region of interest.
type ImageCrop struct {
	NChan       int    // Number of channels (eg 3 for RGB)
	Pixels      []byte // The whole image
	ImageWidth  int    // Width of the original image held in Pixels
	ImageHeight int    // Height of the original image held in Pixels
	CropX       int    // Origin of crop X
	CropY       int    // Origin of crop Y
	CropWidth   int    // Width of this crop
	CropHeight  int    // Height of this crop
}

// WholeImage returns a 'crop' of the entire image
func WholeImage(nchan int, pixels []byte, width, height int) ImageCrop {
	return ImageCrop{
		NChan:       nchan,
		Pixels:      pixels,
		ImageWidth:  width,
		ImageHeight: height,
		CropX:       0,
		CropY:       0,
		CropWidth:   width,
		CropHeight:  height,
	}
}

// CropOfImage returns the region 'r' of 'img' as an ImageCrop.
// r must lie inside the image bounds.
func CropOfImage(img *cimg.Image, r Rect) ImageCrop {
	return ImageCrop{
		NChan:       img.NChan(),
		Pixels:      img.Pixels,
		ImageWidth:  img.Width,
		ImageHeight: img.Height,
		CropX:       r.X,
		CropY:       r.Y,
		CropWidth:   r.Width,
		CropHeight:  r.Height,
	}
}

func (c ImageCrop) Stride() int {
	return c.ImageWidth * c.NChan
}

// Crop returns a crop of the crop (new crop is relative to existing).
// Panics if any parameter is out of bounds.
func (c ImageCrop) Crop(x1, y1, x2, y2 int) ImageCrop {
	nc := ImageCrop{
		NChan:       c.NChan,
		Pixels:      c.Pixels,
		ImageWidth:  c.ImageWidth,
		ImageHeight: c.ImageHeight,
		CropX:       c.CropX + x1,
		CropY:       c.CropY + y1,
		CropWidth:   x2 - x1,
		CropHeight:  y2 - y1,
	}
	if nc.CropX < 0 || nc.CropY < 0 || nc.CropWidth < 0 || nc.CropHeight < 0 || nc.CropX+nc.CropWidth > c.ImageWidth || nc.CropY+nc.CropHeight > c.ImageHeight {
		panic("Crop out of bounds")
	}
	return nc
}
