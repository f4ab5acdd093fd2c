// SPDX-License-Identifier: MIT

package merge

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapsheets/mapsheets/internal/tiles"
)

func solidTile(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func box2x2(t *testing.T) tiles.Box {
	t.Helper()
	box, err := tiles.NewBox(tiles.Index{X: 4, Y: 2, Z: 5}, tiles.Index{X: 5, Y: 3, Z: 5})
	require.NoError(t, err)
	return box
}

func TestMergeStitchesTiles(t *testing.T) {
	box := box2x2(t)
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	data := map[tiles.Index][]byte{
		{X: 4, Y: 2, Z: 5}: solidTile(t, 8, 8, red),
		{X: 5, Y: 2, Z: 5}: solidTile(t, 8, 8, blue),
		{X: 4, Y: 3, Z: 5}: solidTile(t, 8, 8, blue),
		{X: 5, Y: 3, Z: 5}: solidTile(t, 8, 8, red),
	}

	m := New(t.TempDir(), Options{})
	path, err := m.Merge(box, data, "map_test")
	require.NoError(t, err)

	f, err := os.Open(path) // #nosec G304
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())

	// Top-left cell red, top-right cell blue.
	r, _, _, _ := img.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	_, _, b, _ := img.At(10, 2).RGBA()
	assert.Equal(t, uint32(0xffff), b)
}

func TestMergeStrictFailsOnMissingTile(t *testing.T) {
	box := box2x2(t)
	data := map[tiles.Index][]byte{
		{X: 4, Y: 2, Z: 5}: solidTile(t, 8, 8, color.White),
	}

	m := New(t.TempDir(), Options{})
	_, err := m.Merge(box, data, "map_partial")
	assert.ErrorContains(t, err, "missing")
}

func TestMergeAllowMissingFillsBlanks(t *testing.T) {
	box := box2x2(t)
	data := map[tiles.Index][]byte{
		{X: 4, Y: 2, Z: 5}: solidTile(t, 8, 8, color.RGBA{R: 255, A: 255}),
	}

	m := New(t.TempDir(), Options{AllowMissing: true})
	path, err := m.Merge(box, data, "map_partial")
	require.NoError(t, err)

	f, err := os.Open(path) // #nosec G304
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	img, err := png.Decode(f)
	require.NoError(t, err)

	// Missing cell is white.
	r, g, b, _ := img.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
}

func TestMergeScalesOddSizedTiles(t *testing.T) {
	box, err := tiles.NewBox(tiles.Index{X: 0, Y: 0, Z: 1}, tiles.Index{X: 1, Y: 0, Z: 1})
	require.NoError(t, err)

	data := map[tiles.Index][]byte{
		{X: 0, Y: 0, Z: 1}: solidTile(t, 8, 8, color.White),
		{X: 1, Y: 0, Z: 1}: solidTile(t, 16, 16, color.Black), // scaled down to 8x8
	}

	m := New(t.TempDir(), Options{})
	path, err := m.Merge(box, data, "map_mixed")
	require.NoError(t, err)

	f, err := os.Open(path) // #nosec G304
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
}

func TestMergeNoTiles(t *testing.T) {
	m := New(t.TempDir(), Options{})
	_, err := m.Merge(box2x2(t), map[tiles.Index][]byte{}, "map_empty")
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, Options{})
	assert.False(t, m.Exists("map_x"))

	box, err := tiles.NewBox(tiles.Index{X: 0, Y: 0, Z: 1}, tiles.Index{X: 0, Y: 0, Z: 1})
	require.NoError(t, err)
	_, err = m.Merge(box, map[tiles.Index][]byte{
		{X: 0, Y: 0, Z: 1}: solidTile(t, 4, 4, color.White),
	}, "map_x")
	require.NoError(t, err)
	assert.True(t, m.Exists("map_x"))
}
