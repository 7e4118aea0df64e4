package segment

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CorrMatrix holds pairwise normalized cross-correlation coefficients for one
// batch. Symmetric, diagonal fixed at 1, entries in [-1, 1].
type CorrMatrix struct {
	sym     *mat.SymDense
	zeroVar []bool
}

// Len returns the number of segments the matrix covers.
func (m *CorrMatrix) Len() int {
	n, _ := m.sym.Dims()
	return n
}

// At returns the correlation coefficient between segments i and j.
func (m *CorrMatrix) At(i, j int) float64 {
	return m.sym.At(i, j)
}

// ZeroVariance reports whether segment i is constant. A constant image
// correlates 0 against everything and is excluded from merging outright, so
// it cannot be pulled into a group even at a threshold of 0.
func (m *CorrMatrix) ZeroVariance(i int) bool {
	return m.zeroVar[i]
}

// Correlate computes the full pairwise NCC matrix for a batch.
//
// Each image is mean-centered once up front; a pair's coefficient is the dot
// product of the centered images over the geometric mean of their
// sum-of-squared deviations. A zero-variance (constant) image correlates 0
// against everything, so it can never trigger a merge.
//
// Pair computations are independent and run on up to workers goroutines
// (0 means GOMAXPROCS).
func Correlate(batch Batch, workers int) (*CorrMatrix, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	n := len(batch)

	// Center every image once; cache its sum of squared deviations.
	centered := make([][]float64, n)
	ssd := make([]float64, n)
	zeroVar := make([]bool, n)
	for i, s := range batch {
		c := make([]float64, len(s.Pixels))
		copy(c, s.Pixels)
		mean := stat.Mean(c, nil)
		floats.AddConst(-mean, c)
		centered[i] = c
		ssd[i] = floats.Dot(c, c)
		zeroVar[i] = ssd[i] == 0
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, 1)
	}

	// Distinct (i,j) pairs write distinct matrix elements, so the workers
	// need no locking.
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			i, j := i, j
			g.Go(func() error {
				sym.SetSym(i, j, ncc(centered[i], centered[j], ssd[i], ssd[j]))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &CorrMatrix{sym: sym, zeroVar: zeroVar}, nil
}

// ncc computes the correlation coefficient of two mean-centered images with
// precomputed sums of squared deviations. Defined as 0 when either image has
// zero variance.
func ncc(a, b []float64, ssdA, ssdB float64) float64 {
	if ssdA == 0 || ssdB == 0 {
		return 0
	}
	r := floats.Dot(a, b) / math.Sqrt(ssdA*ssdB)
	// Guard against float drift outside the valid range.
	if r > 1 {
		r = 1
	}
	if r < -1 {
		r = -1
	}
	return r
}
