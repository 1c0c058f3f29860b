// File: internal/recognition/engine.go
// Description: Multi-strategy visual element location. Deterministic
// strategies run first (cheap, precise for known UI chrome); the semantic
// fallback tolerates theme and resolution drift at higher latency and is
// therefore tried last. The chain is bounded by a global attempt budget.

package recognition

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
	"github.com/draugr-dev/overseer-cli/internal/templates"
)

// TemplateSource is the slice of the template library the engine needs.
type TemplateSource interface {
	Get(ctx context.Context, app, name string) (templates.Template, error)
}

// Engine resolves element descriptors against screenshots.
type Engine struct {
	cfg      config.RecognitionConfig
	lib      TemplateSource
	provider schemas.VisionProvider
	log      *zap.Logger
	now      func() time.Time
}

// New creates a recognition engine. provider may be nil, in which case the
// text and semantic strategies are unavailable and skip to the next attempt.
func New(cfg config.RecognitionConfig, lib TemplateSource, provider schemas.VisionProvider, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		lib:      lib,
		provider: provider,
		log:      logger.Named("recognition"),
		now:      time.Now,
	}
}

type attempt struct {
	strategy schemas.Strategy
	run      func(ctx context.Context) (schemas.RecognitionResult, bool, error)
}

// Locate runs the fallback chain for the descriptor and returns the best
// result at or above the descriptor's threshold, or ErrNotFound once the
// chain or the attempt budget is exhausted. The chain always runs to
// exhaustion within the budget and the threshold is applied only to the
// final best, so which element wins for a given image and descriptor never
// depends on the threshold. Provider errors degrade to a skipped attempt
// and are never propagated.
//
// Descriptor regions and returned boxes are in screen coordinates; the
// screenshot's origin maps between the capture frame and the screen.
func (e *Engine) Locate(ctx context.Context, shot schemas.Screenshot, desc schemas.ElementDescriptor) (schemas.RecognitionResult, error) {
	if err := desc.Validate(); err != nil {
		return schemas.RecognitionResult{}, err
	}
	threshold := desc.Threshold
	if threshold == 0 {
		threshold = e.cfg.DefaultThreshold
	}
	if desc.Region != nil {
		local := desc.Region.Translate(-shot.Origin.X, -shot.Origin.Y)
		desc.Region = &local
	}

	chain := e.buildChain(shot, desc)
	budget := e.cfg.AttemptBudget
	if budget <= 0 {
		budget = 3
	}

	var (
		best  schemas.RecognitionResult
		found bool
	)
	attempts := 0
	for _, at := range chain {
		if attempts >= budget {
			break
		}
		if err := ctx.Err(); err != nil {
			return schemas.RecognitionResult{}, err
		}
		attempts++

		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		}
		started := e.now()
		res, ok, err := at.run(attemptCtx)
		if cancel != nil {
			cancel()
		}
		elapsed := e.now().Sub(started)

		if err != nil {
			// Best effort: a failing strategy is a miss, not a fatal error.
			e.log.Warn("Recognition attempt failed",
				zap.String("strategy", string(at.strategy)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			continue
		}
		e.log.Debug("Recognition attempt finished",
			zap.String("strategy", string(at.strategy)),
			zap.Bool("matched", ok),
			zap.Float64("confidence", res.Confidence),
			zap.Duration("elapsed", elapsed),
		)
		if !ok {
			continue
		}
		if !found || res.Confidence > best.Confidence {
			best, found = res, true
		}
	}

	if !found || best.Confidence < threshold {
		return schemas.RecognitionResult{}, fmt.Errorf("descriptor %s after %d attempts: %w",
			desc.Strategy, attempts, schemas.ErrNotFound)
	}
	best.Box = best.Box.Translate(shot.Origin.X, shot.Origin.Y)
	return best, nil
}

// buildChain orders the strategies for the descriptor. The order is fixed
// per descriptor type; later entries are the fallbacks.
func (e *Engine) buildChain(shot schemas.Screenshot, desc schemas.ElementDescriptor) []attempt {
	var chain []attempt

	templateAttempt := attempt{
		strategy: schemas.StrategyTemplate,
		run: func(ctx context.Context) (schemas.RecognitionResult, bool, error) {
			return e.matchTemplate(ctx, shot, desc)
		},
	}
	textAttempt := attempt{
		strategy: schemas.StrategyText,
		run: func(ctx context.Context) (schemas.RecognitionResult, bool, error) {
			return e.searchText(ctx, shot, desc)
		},
	}
	semanticAttempt := attempt{
		strategy: schemas.StrategySemantic,
		run: func(ctx context.Context) (schemas.RecognitionResult, bool, error) {
			return e.querySemantic(ctx, shot, desc)
		},
	}

	switch desc.Strategy {
	case schemas.StrategyTemplate:
		chain = append(chain, templateAttempt)
		if e.textPattern(desc) != "" {
			chain = append(chain, textAttempt)
		}
		if desc.AllowSemantic && desc.Query != "" {
			chain = append(chain, semanticAttempt)
		}
	case schemas.StrategyText:
		chain = append(chain, textAttempt)
		if desc.AllowSemantic && desc.Query != "" {
			chain = append(chain, semanticAttempt)
		}
	case schemas.StrategySemantic:
		chain = append(chain, semanticAttempt)
	}
	return chain
}

// textPattern is the pattern the text fallback searches for. A template
// descriptor may fall back to its element name when no pattern is given.
func (e *Engine) textPattern(desc schemas.ElementDescriptor) string {
	if desc.Text != "" {
		return desc.Text
	}
	if desc.Strategy == schemas.StrategyTemplate {
		return desc.Name
	}
	return ""
}
