// File: api/schemas/descriptor.go
package schemas

import (
	"fmt"
	"time"
)

// Strategy tags how an element should be located on screen.
type Strategy string

const (
	StrategyTemplate Strategy = "template"
	StrategyText     Strategy = "text"
	StrategySemantic Strategy = "semantic"
)

// ElementDescriptor specifies how to visually locate a target element and
// how confident a match must be before it is acted on. Descriptors are
// constructed before a plan begins and are read-only during execution.
type ElementDescriptor struct {
	Strategy Strategy `json:"strategy"`

	// Template key, used when Strategy is "template".
	App  string `json:"app,omitempty"`
	Name string `json:"name,omitempty"`

	// Text pattern, used when Strategy is "text".
	Text string `json:"text,omitempty"`

	// Natural-language query, used when Strategy is "semantic" and as the
	// fallback query when AllowSemantic is set on other strategies.
	Query string `json:"query,omitempty"`

	// Threshold is the minimum confidence a RecognitionResult must reach.
	Threshold float64 `json:"threshold"`

	// Region optionally restricts the search to a sub-area of the screenshot.
	Region *Rect `json:"region,omitempty"`

	// AllowSemantic permits the recognition chain to fall through to the
	// external vision provider when deterministic strategies fail.
	AllowSemantic bool `json:"allow_semantic,omitempty"`
}

// Validate checks the descriptor is internally consistent.
func (d ElementDescriptor) Validate() error {
	if d.Threshold < 0 || d.Threshold > 1 {
		return fmt.Errorf("descriptor threshold %.3f out of range [0,1]", d.Threshold)
	}
	switch d.Strategy {
	case StrategyTemplate:
		if d.App == "" || d.Name == "" {
			return fmt.Errorf("template descriptor requires app and name")
		}
	case StrategyText:
		if d.Text == "" {
			return fmt.Errorf("text descriptor requires a pattern")
		}
	case StrategySemantic:
		if d.Query == "" {
			return fmt.Errorf("semantic descriptor requires a query")
		}
	default:
		return fmt.Errorf("unknown strategy %q", d.Strategy)
	}
	if d.Region != nil && d.Region.Empty() {
		return fmt.Errorf("descriptor region %s is empty", d.Region)
	}
	return nil
}

// RecognitionResult is one located candidate for a descriptor.
type RecognitionResult struct {
	Strategy   Strategy  `json:"strategy"`
	Box        Rect      `json:"box"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// Center returns the point the engine should act on for this result.
func (r RecognitionResult) Center() Point {
	return r.Box.Center()
}

// Candidate is a raw bounding box returned by the external vision provider
// before recognition-engine thresholding is applied.
type Candidate struct {
	Box        Rect    `json:"box"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
}
