package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
)

func TestParseCandidates(t *testing.T) {
	raw := `[{"box":{"x":10,"y":20,"width":30,"height":40},"confidence":0.92,"label":"OK"}]`

	out, err := parseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, schemas.Rect{X: 10, Y: 20, Width: 30, Height: 40}, out[0].Box)
	assert.Equal(t, 0.92, out[0].Confidence)
	assert.Equal(t, "OK", out[0].Label)
}

func TestParseCandidates_FencedBlock(t *testing.T) {
	raw := "```json\n[{\"box\":{\"x\":1,\"y\":2,\"width\":3,\"height\":4},\"confidence\":1.7}]\n```"

	out, err := parseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, out, 1)
	// Out-of-range confidences are clamped, not rejected.
	assert.Equal(t, 1.0, out[0].Confidence)
}

func TestParseCandidates_Empty(t *testing.T) {
	out, err := parseCandidates("[]")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = parseCandidates("the element is near the top")
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	prompt, system, err := buildPrompt(schemas.VisionQuery{Kind: schemas.VisionQueryText, Text: "Save"})
	require.NoError(t, err)
	assert.Contains(t, prompt, `"Save"`)
	assert.Contains(t, system, "OCR")

	prompt, system, err = buildPrompt(schemas.VisionQuery{Kind: schemas.VisionQuerySemantic, Query: "the red close button"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "the red close button")
	assert.Contains(t, system, "UI elements")

	_, _, err = buildPrompt(schemas.VisionQuery{Kind: schemas.VisionQueryText})
	assert.ErrorContains(t, err, "requires a pattern")

	_, _, err = buildPrompt(schemas.VisionQuery{Kind: "telepathy"})
	assert.ErrorContains(t, err, "unknown vision query kind")
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), config.VisionConfig{}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "API key")
}
