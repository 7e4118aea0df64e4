package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seg builds a segment from a row-major pixel slice.
func seg(width, height int, pixels []float64, vectors ...int) *Segment {
	s := New(width, height)
	copy(s.Pixels, pixels)
	s.Vectors = vectors
	return s
}

func TestCorrelateSymmetricUnitDiagonal(t *testing.T) {
	batch := Batch{
		seg(2, 2, []float64{1, 2, 3, 4}),
		seg(2, 2, []float64{4, 3, 2, 1}),
		seg(2, 2, []float64{0, 5, 0, 5}),
	}

	corr, err := Correlate(batch, 1)
	require.NoError(t, err)
	require.Equal(t, 3, corr.Len())

	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0, corr.At(i, i), 1e-12, "diagonal at %d", i)
		for j := 0; j < 3; j++ {
			assert.Equal(t, corr.At(i, j), corr.At(j, i), "symmetry at (%d,%d)", i, j)
			assert.LessOrEqual(t, corr.At(i, j), 1.0)
			assert.GreaterOrEqual(t, corr.At(i, j), -1.0)
		}
	}
}

func TestCorrelateSelfCopy(t *testing.T) {
	a := seg(3, 2, []float64{0, 1, 2, 3, 4, 5})
	batch := Batch{a, a.Clone()}

	corr, err := Correlate(batch, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr.At(0, 1), 1e-12)
}

func TestCorrelateConstantOffset(t *testing.T) {
	// B = A + 5 everywhere. After mean-centering they are identical, so the
	// coefficient is exactly 1.
	a := seg(2, 2, []float64{1, 2, 3, 4})
	b := seg(2, 2, []float64{6, 7, 8, 9})

	corr, err := Correlate(Batch{a, b}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr.At(0, 1), 1e-12)
}

func TestCorrelateZeroVariance(t *testing.T) {
	flat := seg(2, 2, []float64{3, 3, 3, 3})
	ramp := seg(2, 2, []float64{0, 1, 2, 3})

	corr, err := Correlate(Batch{flat, ramp, flat.Clone()}, 1)
	require.NoError(t, err)

	assert.Zero(t, corr.At(0, 1), "constant vs varying")
	assert.Zero(t, corr.At(0, 2), "constant vs constant")
	assert.True(t, corr.ZeroVariance(0))
	assert.False(t, corr.ZeroVariance(1))
}

func TestCorrelateAnticorrelated(t *testing.T) {
	a := seg(2, 2, []float64{0, 1, 2, 3})
	b := seg(2, 2, []float64{3, 2, 1, 0})

	corr, err := Correlate(Batch{a, b}, 1)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, corr.At(0, 1), 1e-12)
}

func TestCorrelateParallelMatchesSerial(t *testing.T) {
	// Same batch through 1 worker and 8 workers must agree exactly: pair
	// computations are independent and deterministic.
	batch := Batch{
		seg(3, 3, []float64{1, 0, 2, 0, 5, 0, 2, 0, 1}),
		seg(3, 3, []float64{0, 1, 0, 3, 0, 3, 0, 1, 0}),
		seg(3, 3, []float64{9, 8, 7, 6, 5, 4, 3, 2, 1}),
		seg(3, 3, []float64{1, 1, 1, 2, 2, 2, 4, 4, 4}),
	}

	serial, err := Correlate(batch, 1)
	require.NoError(t, err)
	parallel, err := Correlate(batch, 8)
	require.NoError(t, err)

	for i := 0; i < serial.Len(); i++ {
		for j := 0; j < serial.Len(); j++ {
			assert.Equal(t, serial.At(i, j), parallel.At(i, j))
		}
	}
}

func TestCorrelateErrors(t *testing.T) {
	_, err := Correlate(Batch{}, 1)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	mixed := Batch{
		seg(2, 2, []float64{1, 2, 3, 4}),
		seg(3, 1, []float64{1, 2, 3}),
	}
	_, err = Correlate(mixed, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
