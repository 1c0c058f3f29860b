// File: internal/service/sink.go
// Description: Default evidence sink. Writes the finished plan outcome,
// including its audit records, as a JSON document next to the screenshot
// evidence.

package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// FileSink persists plan outcomes as JSON files under a directory.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Flush writes the outcome to <dir>/outcome_<plan-id>.json. The write goes
// through a temp file and rename so a crash never leaves a torn document.
func (s *FileSink) Flush(_ context.Context, outcome schemas.PlanOutcome) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create outcome directory: %w", err)
	}
	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan outcome: %w", err)
	}
	final := filepath.Join(s.dir, fmt.Sprintf("outcome_%s.json", outcome.PlanID))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan outcome: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to finalize plan outcome: %w", err)
	}
	return nil
}
