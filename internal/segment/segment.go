// Package segment implements correlation-based merging of crystal segments.
//
// Segments come from two producers: virtual dark-field images split by
// watershed segmentation, and loading maps from a matrix decomposition.
// Overlapping nanocrystals show up as multiple segments with near-identical
// intensity distributions; this package finds them by pairwise normalized
// cross-correlation and merges each transitively-connected group into a
// single segment.
package segment

import (
	"sort"

	"github.com/pkg/errors"
)

// Errors reported before any correlation work starts. The operation is pure,
// so callers should treat all of these as non-retryable.
var (
	ErrEmptyBatch       = errors.New("empty segment batch")
	ErrShapeMismatch    = errors.New("segment image shape mismatch")
	ErrInvalidThreshold = errors.New("invalid threshold")
)

// Segment is a single 2D intensity map together with the IDs of the
// diffraction vectors that produced it. For a VDF segment the image lives in
// scan space; for a decomposition factor it lives in detector space.
type Segment struct {
	Width  int
	Height int
	Pixels []float64 // row-major, len = Width*Height

	// Vectors identifies the reciprocal-space peaks contributing to this
	// segment. Empty for decomposition factors and loadings.
	Vectors []int
}

// New creates a zero-valued segment of the given shape.
func New(width, height int) *Segment {
	return &Segment{
		Width:  width,
		Height: height,
		Pixels: make([]float64, width*height),
	}
}

// At returns the intensity at pixel (x, y). No bounds check.
func (s *Segment) At(x, y int) float64 {
	return s.Pixels[y*s.Width+x]
}

// Set stores the intensity at pixel (x, y). No bounds check.
func (s *Segment) Set(x, y int, v float64) {
	s.Pixels[y*s.Width+x] = v
}

// VectorCount returns the number of distinct source vectors.
func (s *Segment) VectorCount() int {
	return len(s.Vectors)
}

// Sum returns the total intensity of the segment.
func (s *Segment) Sum() float64 {
	var total float64
	for _, v := range s.Pixels {
		total += v
	}
	return total
}

// Clone returns a deep copy of the segment.
func (s *Segment) Clone() *Segment {
	out := &Segment{
		Width:   s.Width,
		Height:  s.Height,
		Pixels:  make([]float64, len(s.Pixels)),
		Vectors: append([]int(nil), s.Vectors...),
	}
	copy(out.Pixels, s.Pixels)
	return out
}

// Batch is an ordered set of segments sharing one image shape. Position in
// the batch is the segment's identity for the duration of a correlation pass;
// the batch must not be mutated once a pass starts.
type Batch []*Segment

// Validate checks the batch is non-empty and shape-consistent.
func (b Batch) Validate() error {
	if len(b) == 0 {
		return ErrEmptyBatch
	}
	w, h := b[0].Width, b[0].Height
	for i, s := range b {
		if s.Width != w || s.Height != h {
			return errors.Wrapf(ErrShapeMismatch,
				"segment %d is %dx%d, batch is %dx%d", i, s.Width, s.Height, w, h)
		}
		if len(s.Pixels) != w*h {
			return errors.Wrapf(ErrShapeMismatch,
				"segment %d has %d pixels for shape %dx%d", i, len(s.Pixels), w, h)
		}
	}
	return nil
}

// TotalVectorCount returns the sum of per-segment vector counts.
// Shared vectors are counted once per segment, so after a merge pass the
// union counts can only stay equal or drop.
func (b Batch) TotalVectorCount() int {
	total := 0
	for _, s := range b {
		total += len(s.Vectors)
	}
	return total
}

// unionVectors merges sorted-or-unsorted vector ID lists, deduplicating.
func unionVectors(lists ...[]int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
