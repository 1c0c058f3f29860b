// File: internal/display/synth.go
// Input synthesis: cursor trajectories with perlin-noise jitter, randomized
// click hold, and inter-key cadence. Seeded deterministically in tests.

package display

import (
	"math"
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/config"
)

// Synthesizer generates human-plausible input timing and motion.
type Synthesizer struct {
	cfg       config.SynthesisConfig
	rng       *rand.Rand
	noiseX    *perlin.Perlin
	noiseY    *perlin.Perlin
	noiseTime float64
}

// NewSynthesizer creates a synthesizer. seed 0 derives one from the clock.
func NewSynthesizer(cfg config.SynthesisConfig, seed int64) *Synthesizer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Standard perlin parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)
	return &Synthesizer{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		noiseX: perlin.NewPerlin(alpha, beta, n, seed),
		noiseY: perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

// Trajectory returns the waypoints from start to end, ending exactly on
// end. With synthesis disabled it is a single-step jump.
func (s *Synthesizer) Trajectory(start, end schemas.Point) []schemas.Point {
	if !s.cfg.Enabled {
		return []schemas.Point{end}
	}

	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	dist := math.Hypot(dx, dy)
	step := s.cfg.MoveStepPx
	if step <= 0 {
		step = 18
	}
	steps := int(dist / step)
	if steps < 1 {
		return []schemas.Point{end}
	}

	amp := s.cfg.NoiseAmplitude
	waypoints := make([]schemas.Point, 0, steps+1)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps+1)
		// Ease-in-out: slow near the endpoints, fast in the middle.
		eased := t * t * (3 - 2*t)
		x := float64(start.X) + dx*eased
		y := float64(start.Y) + dy*eased

		// Perlin jitter perpendicular-ish to the path, faded out near the
		// target so the cursor settles on it.
		fade := math.Sin(math.Pi * t)
		s.noiseTime += 0.07
		x += s.noiseX.Noise1D(s.noiseTime) * amp * fade
		y += s.noiseY.Noise1D(s.noiseTime) * amp * fade

		waypoints = append(waypoints, schemas.Point{X: int(math.Round(x)), Y: int(math.Round(y))})
	}
	return append(waypoints, end)
}

// MovePause is the dwell between trajectory waypoints.
func (s *Synthesizer) MovePause() time.Duration {
	if !s.cfg.Enabled {
		return 0
	}
	return time.Duration(2+s.rng.Intn(6)) * time.Millisecond
}

// ClickHold is how long the button stays pressed.
func (s *Synthesizer) ClickHold() time.Duration {
	min, max := s.cfg.ClickHoldMinMs, s.cfg.ClickHoldMaxMs
	if !s.cfg.Enabled || min <= 0 || max <= min {
		return 30 * time.Millisecond
	}
	return time.Duration(min+s.rng.Intn(max-min)) * time.Millisecond
}

// KeyInterval is the gap between consecutive key presses.
func (s *Synthesizer) KeyInterval() time.Duration {
	min, max := s.cfg.KeyIntervalMinMs, s.cfg.KeyIntervalMaxMs
	if !s.cfg.Enabled || min <= 0 || max <= min {
		return 40 * time.Millisecond
	}
	return time.Duration(min+s.rng.Intn(max-min)) * time.Millisecond
}
