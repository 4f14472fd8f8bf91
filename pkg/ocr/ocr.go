// Package ocr defines the interface to the optical character recognition
// service that reads bib numbers out of image regions. The OCR engine
// itself is an external collaborator.
package ocr

import (
	"github.com/finishcam/finishcam/pkg/nn"
)

// Result of a single OCR read.
// OK is false when the engine found no text at all in the region, which is
// common and not an error.
type Result struct {
	Text       string
	Confidence float32
	OK         bool
}

// TextReader reads text from an image region.
// A returned error is transient (eg the engine process hiccuped); the caller
// must degrade to "no sample this round" and carry on.
type TextReader interface {
	ReadText(crop nn.ImageCrop) (Result, error)
}
