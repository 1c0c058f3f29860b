// File: internal/imaging/imaging.go
// Shared grayscale conversion and pixel helpers used by the template
// validator, the recognition matcher, and the pixel-diff verifier.

package imaging

import (
	"image"
	"image/draw"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// ToGray converts any image to 8-bit grayscale. Returns the input unchanged
// when it is already *image.Gray.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

// Crop returns the sub-image of img covered by r, clamped to the image
// bounds. Returns nil when the intersection is empty.
func Crop(img *image.Gray, r schemas.Rect) *image.Gray {
	clip := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Intersect(img.Bounds())
	if clip.Empty() {
		return nil
	}
	return img.SubImage(clip).(*image.Gray)
}

// DiffRatio returns the fraction of pixels whose grayscale value differs by
// more than tolerance between two images of identical bounds. Images with
// mismatched bounds count as fully different.
func DiffRatio(a, b *image.Gray, tolerance uint8) float64 {
	if a == nil || b == nil {
		return 1
	}
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 1
	}
	total := ab.Dx() * ab.Dy()
	if total == 0 {
		return 0
	}
	changed := 0
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			va := a.GrayAt(ab.Min.X+x, ab.Min.Y+y).Y
			vb := b.GrayAt(bb.Min.X+x, bb.Min.Y+y).Y
			d := int(va) - int(vb)
			if d < 0 {
				d = -d
			}
			if d > int(tolerance) {
				changed++
			}
		}
	}
	return float64(changed) / float64(total)
}
