// File: internal/recognition/match.go
package recognition

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/imaging"
)

// matchTemplate scans the screenshot for the descriptor's reference image
// using normalized cross-correlation over grayscale. A coarse strided pass
// finds the best neighborhood, then a fine pass refines it.
func (e *Engine) matchTemplate(ctx context.Context, shot schemas.Screenshot, desc schemas.ElementDescriptor) (schemas.RecognitionResult, bool, error) {
	if e.lib == nil {
		return schemas.RecognitionResult{}, false, fmt.Errorf("no template library configured")
	}
	tpl, err := e.lib.Get(ctx, desc.App, desc.Name)
	if err != nil {
		return schemas.RecognitionResult{}, false, err
	}

	haystack := imaging.ToGray(shot.Image)
	offsetX, offsetY := 0, 0
	if desc.Region != nil {
		cropped := imaging.Crop(haystack, *desc.Region)
		if cropped == nil {
			return schemas.RecognitionResult{}, false, nil
		}
		haystack = cropped
		offsetX, offsetY = desc.Region.X, desc.Region.Y
	}
	needle := imaging.ToGray(tpl.Image)

	pos, score, ok := scanNCC(ctx, haystack, needle, e.stride())
	if !ok {
		return schemas.RecognitionResult{}, false, ctx.Err()
	}

	nb := needle.Bounds()
	res := schemas.RecognitionResult{
		Strategy:   schemas.StrategyTemplate,
		Box:        schemas.Rect{X: offsetX + pos.X, Y: offsetY + pos.Y, Width: nb.Dx(), Height: nb.Dy()},
		Confidence: score,
		ObservedAt: e.now(),
	}
	return res, true, nil
}

func (e *Engine) stride() int {
	if e.cfg.MatchStride > 1 {
		return e.cfg.MatchStride
	}
	return 1
}

// scanNCC returns the top-left offset of the best normalized
// cross-correlation score, mapped from [-1,1] into [0,1] with negative
// correlation clamped to zero.
func scanNCC(ctx context.Context, haystack, needle *image.Gray, stride int) (schemas.Point, float64, bool) {
	hb, nb := haystack.Bounds(), needle.Bounds()
	hw, hh := hb.Dx(), hb.Dy()
	nw, nh := nb.Dx(), nb.Dy()
	if nw > hw || nh > hh || nw == 0 || nh == 0 {
		return schemas.Point{}, 0, false
	}

	nMean, nDev := meanDev(needle)
	if nDev == 0 {
		// A flat template correlates equally everywhere; refuse to match.
		return schemas.Point{}, 0, false
	}

	bestX, bestY := -1, -1
	bestScore := math.Inf(-1)
	// Coarse pass.
	for y := 0; y <= hh-nh; y += stride {
		if ctx.Err() != nil {
			return schemas.Point{}, 0, false
		}
		for x := 0; x <= hw-nw; x += stride {
			s := nccAt(haystack, needle, x, y, nMean, nDev)
			if s > bestScore {
				bestScore, bestX, bestY = s, x, y
			}
		}
	}
	if bestX < 0 {
		return schemas.Point{}, 0, false
	}
	// Fine pass around the coarse winner.
	if stride > 1 {
		for y := maxInt(0, bestY-stride); y <= minInt(hh-nh, bestY+stride); y++ {
			for x := maxInt(0, bestX-stride); x <= minInt(hw-nw, bestX+stride); x++ {
				s := nccAt(haystack, needle, x, y, nMean, nDev)
				if s > bestScore {
					bestScore, bestX, bestY = s, x, y
				}
			}
		}
	}

	// NCC in [-1,1]; negative correlation is no match.
	score := bestScore
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return schemas.Point{X: bestX, Y: bestY}, score, true
}

// nccAt computes the normalized cross-correlation of the needle against the
// haystack window at (x, y).
func nccAt(haystack, needle *image.Gray, x, y int, nMean, nDev float64) float64 {
	hb, nb := haystack.Bounds(), needle.Bounds()
	nw, nh := nb.Dx(), nb.Dy()
	n := float64(nw * nh)

	var sum, sumSq float64
	for j := 0; j < nh; j++ {
		for i := 0; i < nw; i++ {
			v := float64(haystack.GrayAt(hb.Min.X+x+i, hb.Min.Y+y+j).Y)
			sum += v
			sumSq += v * v
		}
	}
	hMean := sum / n
	hVar := sumSq/n - hMean*hMean
	if hVar <= 0 {
		return -1
	}
	hDev := math.Sqrt(hVar)

	var cross float64
	for j := 0; j < nh; j++ {
		for i := 0; i < nw; i++ {
			hv := float64(haystack.GrayAt(hb.Min.X+x+i, hb.Min.Y+y+j).Y) - hMean
			nv := float64(needle.GrayAt(nb.Min.X+i, nb.Min.Y+j).Y) - nMean
			cross += hv * nv
		}
	}
	return cross / (n * hDev * nDev)
}

func meanDev(img *image.Gray) (float64, float64) {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(img.GrayAt(x, y).Y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
