// File: internal/vision/gemini.go
// Description: Gemini-backed implementation of the VisionProvider boundary.
// The provider is best effort: callers treat every failure here as a miss,
// so this client retries transient errors itself and otherwise reports a
// plain error.

package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
)

const textSystemPrompt = `You are an OCR engine. Find every occurrence of the requested text in the screenshot.
Respond with JSON only: an array of {"box":{"x":int,"y":int,"width":int,"height":int},"confidence":float,"label":string}
where label is the recognized text and confidence is in [0,1]. Respond with [] when the text is absent.`

const semanticSystemPrompt = `You locate UI elements in screenshots. Find the element matching the description.
Respond with JSON only: an array of {"box":{"x":int,"y":int,"width":int,"height":int},"confidence":float,"label":string}
ordered by confidence descending. Respond with [] when no element matches.`

// GeminiProvider implements schemas.VisionProvider on the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	cfg    config.VisionConfig
	log    *zap.Logger
}

// NewGeminiProvider initializes the client.
func NewGeminiProvider(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{
		client: client,
		cfg:    cfg,
		log:    logger.Named("vision.gemini"),
	}, nil
}

// Locate sends the image and query to Gemini and parses candidate boxes
// from its JSON response. Retries transient failures with exponential
// backoff, bounded by the configured elapsed budget and the context.
func (p *GeminiProvider) Locate(ctx context.Context, img image.Image, query schemas.VisionQuery) ([]schemas.Candidate, error) {
	prompt, system, err := buildPrompt(query)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(buf.Bytes(), "image/png"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.cfg.MaxRetryElapsed
	b.MaxInterval = 30 * time.Second

	var candidates []schemas.Candidate
	operation := func() error {
		callCtx := ctx
		var cancel context.CancelFunc
		if p.cfg.APITimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.cfg.APITimeout)
			defer cancel()
		}

		started := time.Now()
		resp, err := p.client.Models.GenerateContent(callCtx, p.cfg.Model, contents, genCfg)
		duration := time.Since(started)
		if err != nil {
			p.log.Warn("Vision request failed, retrying", zap.Error(err), zap.Duration("duration", duration))
			return err
		}

		text := resp.Text()
		if text == "" {
			return backoff.Permanent(fmt.Errorf("vision provider returned no content"))
		}
		parsed, err := parseCandidates(text)
		if err != nil {
			return backoff.Permanent(err)
		}

		p.log.Debug("Vision query complete",
			zap.String("kind", string(query.Kind)),
			zap.Int("candidates", len(parsed)),
			zap.Duration("duration", duration),
		)
		candidates = parsed
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return candidates, nil
}

func buildPrompt(query schemas.VisionQuery) (prompt, system string, err error) {
	switch query.Kind {
	case schemas.VisionQueryText:
		if query.Text == "" {
			return "", "", fmt.Errorf("text query requires a pattern")
		}
		return fmt.Sprintf("Find the text: %q", query.Text), textSystemPrompt, nil
	case schemas.VisionQuerySemantic:
		if query.Query == "" {
			return "", "", fmt.Errorf("semantic query requires a description")
		}
		return fmt.Sprintf("Find the element described as: %s", query.Query), semanticSystemPrompt, nil
	default:
		return "", "", fmt.Errorf("unknown vision query kind %q", query.Kind)
	}
}

// parseCandidates decodes the model's JSON, tolerating a fenced code block
// wrapper and clamping confidences into [0,1].
func parseCandidates(text string) ([]schemas.Candidate, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var out []schemas.Candidate
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}
	for i := range out {
		if out[i].Confidence < 0 {
			out[i].Confidence = 0
		}
		if out[i].Confidence > 1 {
			out[i].Confidence = 1
		}
	}
	return out, nil
}
