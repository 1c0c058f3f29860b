// File: internal/audit/evidence.go
package audit

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

// EvidenceStore writes step screenshots to local disk and hands back the
// reference recorded in the audit trail.
type EvidenceStore struct {
	dir string
}

// NewEvidenceStore ensures the evidence directory exists.
func NewEvidenceStore(dir string) (*EvidenceStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("evidence directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create evidence dir: %w", err)
	}
	return &EvidenceStore{dir: dir}, nil
}

// Save writes the screenshot as PNG and returns its evidence reference.
func (e *EvidenceStore) Save(shot schemas.Screenshot) (string, error) {
	if shot.Image == nil {
		return "", fmt.Errorf("screenshot has no image")
	}
	name := fmt.Sprintf("%s_%s.png", shot.Display, uuid.NewString())
	path := filepath.Join(e.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create evidence file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, shot.Image); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to encode evidence: %w", err)
	}
	return path, nil
}
