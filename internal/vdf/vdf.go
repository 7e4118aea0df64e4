// Package vdf forms virtual dark-field images from 4D diffraction data and
// simulates virtual diffraction patterns for real-space segments.
//
// A VDF image answers "where in the scan does this diffraction vector light
// up": for one reciprocal-space vector, the intensity inside a small detector
// disk around it is integrated at every scan position. Crystals sharing an
// orientation produce near-identical VDF images across their vectors, which
// is what the segment correlator exploits downstream.
package vdf

import (
	"fmt"
	"math"
	"runtime"

	"crystal-mapper/internal/dataset"
	"crystal-mapper/internal/peaks"
	"crystal-mapper/internal/segment"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Generate produces one scan-space VDF image per vector, integrating
// detector intensity inside a disk of the given pixel radius around each
// vector's detector position. Vectors are independent and processed in
// parallel.
func Generate(stack *dataset.Stack, vectors []peaks.Vector, radius float64, workers int) (segment.Batch, error) {
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("no vectors to image")
	}
	if radius <= 0 {
		return nil, errors.Errorf("non-positive disk radius %v", radius)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	batch := make(segment.Batch, len(vectors))

	var g errgroup.Group
	g.SetLimit(workers)
	for vi := range vectors {
		vi := vi
		g.Go(func() error {
			batch[vi] = imageForVector(stack, vectors[vi], radius)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fmt.Printf("[VDF] Generated %d images (%dx%d scan, disk radius %.1f px)\n",
		len(batch), stack.ScanWidth, stack.ScanHeight, radius)

	return batch, nil
}

// imageForVector integrates the disk around one vector across all scan
// positions.
func imageForVector(stack *dataset.Stack, v peaks.Vector, radius float64) *segment.Segment {
	img := segment.New(stack.ScanWidth, stack.ScanHeight)
	img.Vectors = []int{v.ID}

	// Precompute the disk's pixel offsets once; it is identical per frame.
	disk := diskPixels(v.Pixel.X, v.Pixel.Y, radius, stack.DetWidth, stack.DetHeight)

	for sy := 0; sy < stack.ScanHeight; sy++ {
		for sx := 0; sx < stack.ScanWidth; sx++ {
			frame := stack.Pattern(sx, sy)
			var sum float64
			for _, off := range disk {
				sum += float64(frame[off])
			}
			img.Set(sx, sy, sum)
		}
	}
	return img
}

// diskPixels lists flat frame offsets inside a disk, clipped to the
// detector.
func diskPixels(cx, cy, radius float64, width, height int) []int {
	r2 := radius * radius
	x1 := int(math.Floor(cx - radius))
	x2 := int(math.Ceil(cx + radius))
	y1 := int(math.Floor(cy - radius))
	y2 := int(math.Ceil(cy + radius))

	var out []int
	for y := y1; y <= y2; y++ {
		if y < 0 || y >= height {
			continue
		}
		for x := x1; x <= x2; x++ {
			if x < 0 || x >= width {
				continue
			}
			dx := float64(x) - cx
			dy := float64(y) - cy
			if dx*dx+dy*dy <= r2 {
				out = append(out, y*width+x)
			}
		}
	}
	return out
}

// SimulatePattern builds the virtual diffraction pattern of a merged
// segment: the intensity-weighted average of the detector frames over the
// segment's real-space support. The result is a detector-space segment
// carrying the same source vectors.
func SimulatePattern(stack *dataset.Stack, seg *segment.Segment) (*segment.Segment, error) {
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	if seg.Width != stack.ScanWidth || seg.Height != stack.ScanHeight {
		return nil, errors.Wrapf(segment.ErrShapeMismatch,
			"segment is %dx%d, scan is %dx%d", seg.Width, seg.Height,
			stack.ScanWidth, stack.ScanHeight)
	}

	out := segment.New(stack.DetWidth, stack.DetHeight)
	out.Vectors = append([]int(nil), seg.Vectors...)

	var totalWeight float64
	for sy := 0; sy < stack.ScanHeight; sy++ {
		for sx := 0; sx < stack.ScanWidth; sx++ {
			w := seg.At(sx, sy)
			if w <= 0 {
				continue
			}
			totalWeight += w
			frame := stack.Pattern(sx, sy)
			for i, v := range frame {
				out.Pixels[i] += w * float64(v)
			}
		}
	}
	if totalWeight == 0 {
		return nil, errors.New("segment has no positive support")
	}
	for i := range out.Pixels {
		out.Pixels[i] /= totalWeight
	}
	return out, nil
}
