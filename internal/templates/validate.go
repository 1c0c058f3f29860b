// File: internal/templates/validate.go
package templates

import (
	"fmt"
	"image"
	"math"

	"github.com/draugr-dev/overseer-cli/internal/imaging"
)

// Dimension bounds for accepted reference images.
const (
	MinDimension = 10
	MaxDimension = 500
)

// Validator gates images on insert.
type Validator struct {
	// MinDetailStdDev is the minimum grayscale standard deviation an image
	// must exhibit. Near-blank images lack matchable detail and would match
	// everywhere.
	MinDetailStdDev float64
}

// Check returns an error describing why the image is unusable as a template.
func (v Validator) Check(img image.Image) error {
	if img == nil {
		return fmt.Errorf("image is nil")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < MinDimension || h < MinDimension {
		return fmt.Errorf("image %dx%d below minimum %dx%d", w, h, MinDimension, MinDimension)
	}
	if w > MaxDimension || h > MaxDimension {
		return fmt.Errorf("image %dx%d above maximum %dx%d", w, h, MaxDimension, MaxDimension)
	}

	gray := imaging.ToGray(img)
	if stdDev(gray.Pix) < v.MinDetailStdDev {
		return fmt.Errorf("image is near-blank: insufficient matchable detail")
	}
	return nil
}

func stdDev(pix []uint8) float64 {
	if len(pix) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pix {
		sum += float64(p)
	}
	mean := sum / float64(len(pix))
	var variance float64
	for _, p := range pix {
		d := float64(p) - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(pix)))
}
