// File: internal/recognition/fallback.go
// The text and semantic strategies both delegate to the external vision
// provider; they differ only in the query they send and how candidates are
// scored.

package recognition

import (
	"context"
	"fmt"
	"strings"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/imaging"
)

// searchText asks the provider's OCR mode for the descriptor's pattern and
// picks the best candidate whose label matches.
func (e *Engine) searchText(ctx context.Context, shot schemas.Screenshot, desc schemas.ElementDescriptor) (schemas.RecognitionResult, bool, error) {
	pattern := e.textPattern(desc)
	if e.provider == nil || pattern == "" {
		return schemas.RecognitionResult{}, false, fmt.Errorf("text strategy unavailable")
	}

	img := shot.Image
	offsetX, offsetY := 0, 0
	if desc.Region != nil {
		cropped := imaging.Crop(imaging.ToGray(img), *desc.Region)
		if cropped == nil {
			return schemas.RecognitionResult{}, false, nil
		}
		img = cropped
		offsetX, offsetY = desc.Region.X, desc.Region.Y
	}

	candidates, err := e.provider.Locate(ctx, img, schemas.VisionQuery{
		Kind: schemas.VisionQueryText,
		Text: pattern,
	})
	if err != nil {
		return schemas.RecognitionResult{}, false, err
	}

	best, ok := pickText(candidates, pattern)
	if !ok {
		return schemas.RecognitionResult{}, false, nil
	}
	best.Box.X += offsetX
	best.Box.Y += offsetY
	return schemas.RecognitionResult{
		Strategy:   schemas.StrategyText,
		Box:        best.Box,
		Confidence: best.Confidence,
		ObservedAt: e.now(),
	}, true, nil
}

// pickText keeps candidates whose label contains the pattern (case folded)
// and returns the highest confidence among them, discounted for loose
// matches so an exact label beats a substring hit at equal OCR confidence.
func pickText(candidates []schemas.Candidate, pattern string) (schemas.Candidate, bool) {
	want := strings.ToLower(strings.TrimSpace(pattern))
	var (
		best  schemas.Candidate
		score float64
		found bool
	)
	for _, c := range candidates {
		label := strings.ToLower(strings.TrimSpace(c.Label))
		if label == "" || !strings.Contains(label, want) {
			continue
		}
		s := c.Confidence
		if label != want {
			s *= float64(len(want)) / float64(len(label))
		}
		if !found || s > score {
			best, score, found = c, s, true
		}
	}
	if found {
		best.Confidence = score
	}
	return best, found
}

// querySemantic sends the descriptor's natural-language query to the vision
// provider and takes its top candidate as-is.
func (e *Engine) querySemantic(ctx context.Context, shot schemas.Screenshot, desc schemas.ElementDescriptor) (schemas.RecognitionResult, bool, error) {
	if e.provider == nil || desc.Query == "" {
		return schemas.RecognitionResult{}, false, fmt.Errorf("semantic strategy unavailable")
	}
	candidates, err := e.provider.Locate(ctx, shot.Image, schemas.VisionQuery{
		Kind:  schemas.VisionQuerySemantic,
		Query: desc.Query,
	})
	if err != nil {
		return schemas.RecognitionResult{}, false, err
	}

	var (
		best  schemas.Candidate
		found bool
	)
	for _, c := range candidates {
		if desc.Region != nil && !desc.Region.Contains(c.Box.Center()) {
			continue
		}
		if !found || c.Confidence > best.Confidence {
			best, found = c, true
		}
	}
	if !found {
		return schemas.RecognitionResult{}, false, nil
	}
	return schemas.RecognitionResult{
		Strategy:   schemas.StrategySemantic,
		Box:        best.Box,
		Confidence: best.Confidence,
		ObservedAt: e.now(),
	}, true, nil
}
