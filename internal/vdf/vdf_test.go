package vdf

import (
	"testing"

	"crystal-mapper/internal/dataset"
	"crystal-mapper/internal/peaks"
	"crystal-mapper/internal/segment"
	"crystal-mapper/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stackWithSpot builds a 2x2 scan of 8x8 frames where only the listed scan
// positions carry intensity at detector pixel (dx, dy).
func stackWithSpot(dx, dy int, lit map[[2]int]float32) *dataset.Stack {
	s := dataset.NewStack(2, 2, 8, 8)
	for pos, v := range lit {
		s.Pattern(pos[0], pos[1])[dy*8+dx] = v
	}
	return s
}

func TestGenerate(t *testing.T) {
	// Spot at detector (5, 3), lit at scan positions (0,0) and (1,1).
	stack := stackWithSpot(5, 3, map[[2]int]float32{
		{0, 0}: 10,
		{1, 1}: 40,
	})
	vectors := []peaks.Vector{
		{ID: 7, Pixel: geometry.Point2D{X: 5, Y: 3}},
	}

	batch, err := Generate(stack, vectors, 1.5, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	img := batch[0]
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, []int{7}, img.Vectors)
	assert.Equal(t, 10.0, img.At(0, 0))
	assert.Equal(t, 0.0, img.At(1, 0))
	assert.Equal(t, 0.0, img.At(0, 1))
	assert.Equal(t, 40.0, img.At(1, 1))
}

func TestGenerateDiskIntegration(t *testing.T) {
	// Intensity just outside the disk must not leak in.
	stack := dataset.NewStack(1, 1, 8, 8)
	frame := stack.Pattern(0, 0)
	frame[3*8+4] = 5 // at the vector
	frame[3*8+5] = 7 // one pixel right: inside radius 1.5
	frame[3*8+7] = 9 // three pixels right: outside

	vectors := []peaks.Vector{{ID: 0, Pixel: geometry.Point2D{X: 4, Y: 3}}}
	batch, err := Generate(stack, vectors, 1.5, 1)
	require.NoError(t, err)
	assert.Equal(t, 12.0, batch[0].At(0, 0))
}

func TestGenerateErrors(t *testing.T) {
	stack := dataset.NewStack(1, 1, 4, 4)

	_, err := Generate(stack, nil, 2, 1)
	assert.Error(t, err)

	_, err = Generate(stack, []peaks.Vector{{}}, 0, 1)
	assert.Error(t, err)
}

func TestSimulatePattern(t *testing.T) {
	stack := dataset.NewStack(2, 1, 2, 2)
	copy(stack.Pattern(0, 0), []float32{1, 2, 3, 4})
	copy(stack.Pattern(1, 0), []float32{10, 20, 30, 40})

	// Segment weights position (0,0) three times as strongly as (1,0).
	seg := segment.New(2, 1)
	seg.Set(0, 0, 3)
	seg.Set(1, 0, 1)
	seg.Vectors = []int{2, 5}

	pattern, err := SimulatePattern(stack, seg)
	require.NoError(t, err)
	assert.Equal(t, 2, pattern.Width)
	assert.Equal(t, []int{2, 5}, pattern.Vectors)

	// Weighted average: (3*1 + 1*10) / 4 etc.
	assert.InDelta(t, 13.0/4, pattern.Pixels[0], 1e-12)
	assert.InDelta(t, 26.0/4, pattern.Pixels[1], 1e-12)
	assert.InDelta(t, 39.0/4, pattern.Pixels[2], 1e-12)
	assert.InDelta(t, 52.0/4, pattern.Pixels[3], 1e-12)
}

func TestSimulatePatternErrors(t *testing.T) {
	stack := dataset.NewStack(2, 2, 4, 4)

	wrongShape := segment.New(3, 3)
	_, err := SimulatePattern(stack, wrongShape)
	assert.ErrorIs(t, err, segment.ErrShapeMismatch)

	empty := segment.New(2, 2)
	_, err = SimulatePattern(stack, empty)
	assert.Error(t, err, "zero support")
}
