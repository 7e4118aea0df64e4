package render

import (
	"image"
	"path/filepath"
	"testing"

	"crystal-mapper/internal/segment"
	"crystal-mapper/pkg/colorutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeatmapNormalization(t *testing.T) {
	seg := segment.New(2, 1)
	seg.Pixels = []float64{10, 30}

	img := Heatmap(seg)
	assert.Equal(t, colorutil.Grayscale(0), img.RGBAAt(0, 0))
	assert.Equal(t, colorutil.Grayscale(1), img.RGBAAt(1, 0))

	// Constant segments render black instead of dividing by zero.
	flat := segment.New(2, 1)
	flat.Pixels = []float64{7, 7}
	img = Heatmap(flat)
	assert.Equal(t, colorutil.Black, img.RGBAAt(0, 0))
}

func TestLabelMap(t *testing.T) {
	a := segment.New(2, 1)
	a.Pixels = []float64{5, 1}
	b := segment.New(2, 1)
	b.Pixels = []float64{1, 5}

	img, err := LabelMap(segment.Batch{a, b})
	require.NoError(t, err)
	assert.Equal(t, colorutil.LabelColor(1), img.RGBAAt(0, 0))
	assert.Equal(t, colorutil.LabelColor(2), img.RGBAAt(1, 0))

	// Nowhere-positive pixels stay background.
	empty := segment.New(2, 1)
	img, err = LabelMap(segment.Batch{empty})
	require.NoError(t, err)
	assert.Equal(t, colorutil.Black, img.RGBAAt(0, 0))
}

func TestMontageLayout(t *testing.T) {
	batch := segment.Batch{segment.New(4, 3), segment.New(4, 3), segment.New(4, 3)}

	img, err := Montage(batch, 2)
	require.NoError(t, err)
	// 2 columns of width 4 + 1 separator; 2 rows of height 3 + 1 separator.
	assert.Equal(t, 9, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())
}

func TestSavePNGAndLoadMask(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask.png")

	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, colorutil.White)
	img.Set(2, 1, colorutil.White)
	require.NoError(t, SavePNG(img, path))

	mask, w, h, err := LoadMask(path, 128)
	require.NoError(t, err)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
	assert.True(t, mask[0])
	assert.True(t, mask[1*3+2])
	assert.False(t, mask[1])
}
