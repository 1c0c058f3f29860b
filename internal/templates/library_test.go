package templates_test

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/draugr-dev/overseer-cli/api/schemas"
	"github.com/draugr-dev/overseer-cli/internal/templates"
)

// checkerboard produces an image with plenty of matchable detail.
func checkerboard(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/4+y/4)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func openTestLibrary(t *testing.T) *templates.Library {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.db")
	lib, err := templates.Open(context.Background(), path, templates.Validator{MinDetailStdDev: 8}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, lib.Close()) })
	return lib
}

func TestLibrary_PutAndGet(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	stored, err := lib.Put(ctx, "calculator", "equals_button", checkerboard(32, 24))
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.NotEmpty(t, stored.ID)

	got, err := lib.Get(ctx, "calculator", "equals_button")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	require.NotNil(t, got.Image)
	assert.Equal(t, 32, got.Image.Bounds().Dx())
	assert.Equal(t, 24, got.Image.Bounds().Dy())
}

func TestLibrary_OverwriteRetainsPreviousVersion(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	_, err := lib.Put(ctx, "calculator", "equals_button", checkerboard(32, 24))
	require.NoError(t, err)
	v2, err := lib.Put(ctx, "calculator", "equals_button", checkerboard(48, 24))
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	// Get returns the newest version.
	newest, err := lib.Get(ctx, "calculator", "equals_button")
	require.NoError(t, err)
	assert.Equal(t, 2, newest.Version)
	assert.Equal(t, 48, newest.Image.Bounds().Dx())

	// The old version remains retrievable for rollback.
	old, err := lib.GetVersion(ctx, "calculator", "equals_button", 1)
	require.NoError(t, err)
	assert.Equal(t, 32, old.Image.Bounds().Dx())
}

func TestLibrary_GetMissing(t *testing.T) {
	lib := openTestLibrary(t)

	_, err := lib.Get(context.Background(), "calculator", "ghost_button")
	assert.ErrorIs(t, err, schemas.ErrTemplateMissing)

	_, err = lib.GetVersion(context.Background(), "calculator", "ghost_button", 3)
	assert.ErrorIs(t, err, schemas.ErrTemplateMissing)
}

func TestLibrary_List(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	_, err := lib.Put(ctx, "calculator", "equals_button", checkerboard(32, 24))
	require.NoError(t, err)
	_, err = lib.Put(ctx, "calculator", "equals_button", checkerboard(32, 24))
	require.NoError(t, err)
	_, err = lib.Put(ctx, "browser", "close_tab", checkerboard(16, 16))
	require.NoError(t, err)

	all, err := lib.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2, "list returns one entry per key, newest version")

	assert.Equal(t, "browser", all[0].App)
	assert.Equal(t, 1, all[0].Version)
	assert.Equal(t, "calculator", all[1].App)
	assert.Equal(t, 2, all[1].Version)
}

func TestLibrary_PutRequiresKey(t *testing.T) {
	lib := openTestLibrary(t)
	_, err := lib.Put(context.Background(), "", "equals_button", checkerboard(32, 24))
	assert.ErrorContains(t, err, "requires app and name")
}

func TestValidator_Check(t *testing.T) {
	v := templates.Validator{MinDetailStdDev: 8}

	assert.NoError(t, v.Check(checkerboard(10, 10)))
	assert.NoError(t, v.Check(checkerboard(500, 500)))

	assert.ErrorContains(t, v.Check(nil), "nil")
	assert.ErrorContains(t, v.Check(checkerboard(9, 32)), "below minimum")
	assert.ErrorContains(t, v.Check(checkerboard(32, 9)), "below minimum")
	assert.ErrorContains(t, v.Check(checkerboard(501, 32)), "above maximum")

	// A flat image has no matchable detail and would match everywhere.
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	assert.ErrorContains(t, v.Check(flat), "near-blank")
}

func TestLibrary_PutRejectsBlankTemplate(t *testing.T) {
	lib := openTestLibrary(t)
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	_, err := lib.Put(context.Background(), "calculator", "blank", flat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}
