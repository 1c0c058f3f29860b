// File: internal/templates/library.go
// Description: Versioned local store of reference images keyed by
// (application, element name). Overwrites retain the previous version for
// rollback. Purely local; no network dependency.

package templates

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/draugr-dev/overseer-cli/api/schemas"
)

const schema = `
CREATE TABLE IF NOT EXISTS templates (
    id         TEXT PRIMARY KEY,
    app        TEXT NOT NULL,
    name       TEXT NOT NULL,
    version    INTEGER NOT NULL,
    png        BLOB NOT NULL,
    width      INTEGER NOT NULL,
    height     INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE(app, name, version)
);
CREATE INDEX IF NOT EXISTS idx_templates_key ON templates(app, name, version DESC);
`

// Template is one stored reference image version.
type Template struct {
	ID        string
	App       string
	Name      string
	Version   int
	Image     image.Image
	CreatedAt time.Time
}

// Library is the sqlite-backed template store.
type Library struct {
	db        *sql.DB
	log       *zap.Logger
	validator Validator
}

// Open opens (creating if needed) the library at the given path.
func Open(ctx context.Context, path string, validator Validator, logger *zap.Logger) (*Library, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping template db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply template schema: %w", err)
	}
	return &Library{
		db:        db,
		log:       logger.Named("templates"),
		validator: validator,
	}, nil
}

// Close releases the underlying database handle.
func (l *Library) Close() error {
	return l.db.Close()
}

// Put validates and stores an image under (app, name). If the key already
// exists the version counter is incremented and the old version retained.
func (l *Library) Put(ctx context.Context, app, name string, img image.Image) (Template, error) {
	if app == "" || name == "" {
		return Template{}, fmt.Errorf("template key requires app and name")
	}
	if err := l.validator.Check(img); err != nil {
		return Template{}, fmt.Errorf("template %s/%s rejected: %w", app, name, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Template{}, fmt.Errorf("failed to encode template %s/%s: %w", app, name, err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Template{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			l.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var latest sql.NullInt64
	row := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM templates WHERE app = ? AND name = ?`, app, name)
	if err := row.Scan(&latest); err != nil {
		return Template{}, fmt.Errorf("failed to read current version: %w", err)
	}

	t := Template{
		ID:        uuid.NewString(),
		App:       app,
		Name:      name,
		Version:   int(latest.Int64) + 1,
		Image:     img,
		CreatedAt: time.Now().UTC(),
	}
	bounds := img.Bounds()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO templates (id, app, name, version, png, width, height, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.App, t.Name, t.Version, buf.Bytes(), bounds.Dx(), bounds.Dy(), t.CreatedAt)
	if err != nil {
		return Template{}, fmt.Errorf("failed to insert template %s/%s: %w", app, name, err)
	}
	if err := tx.Commit(); err != nil {
		return Template{}, fmt.Errorf("failed to commit template %s/%s: %w", app, name, err)
	}

	l.log.Info("Stored template",
		zap.String("app", app),
		zap.String("name", name),
		zap.Int("version", t.Version),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
	)
	return t, nil
}

// Get returns the newest version for the key, or ErrTemplateMissing.
func (l *Library) Get(ctx context.Context, app, name string) (Template, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, version, png, created_at FROM templates
         WHERE app = ? AND name = ? ORDER BY version DESC LIMIT 1`, app, name)
	return l.scanTemplate(row, app, name)
}

// GetVersion returns a specific retained version, for rollback.
func (l *Library) GetVersion(ctx context.Context, app, name string, version int) (Template, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, version, png, created_at FROM templates
         WHERE app = ? AND name = ? AND version = ?`, app, name, version)
	return l.scanTemplate(row, app, name)
}

// List returns the newest version of every stored key, ordered by key.
func (l *Library) List(ctx context.Context) ([]Template, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT t.id, t.app, t.name, t.version, t.created_at
         FROM templates t
         JOIN (SELECT app, name, MAX(version) AS v FROM templates GROUP BY app, name) m
           ON t.app = m.app AND t.name = m.name AND t.version = m.v
         ORDER BY t.app, t.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.App, &t.Name, &t.Version, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (l *Library) scanTemplate(row *sql.Row, app, name string) (Template, error) {
	var (
		t    Template
		blob []byte
	)
	t.App, t.Name = app, name
	err := row.Scan(&t.ID, &t.Version, &blob, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("%s/%s: %w", app, name, schemas.ErrTemplateMissing)
	}
	if err != nil {
		return Template{}, fmt.Errorf("failed to scan template %s/%s: %w", app, name, err)
	}
	img, err := png.Decode(bytes.NewReader(blob))
	if err != nil {
		return Template{}, fmt.Errorf("failed to decode template %s/%s: %w", app, name, err)
	}
	t.Image = img
	return t, nil
}
