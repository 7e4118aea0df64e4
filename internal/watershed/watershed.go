// Package watershed splits a virtual dark-field image into labeled grain
// segments. The segmentation itself is OpenCV's marker-based watershed; this
// package only prepares markers and filters the resulting labels.
package watershed

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"crystal-mapper/internal/segment"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Params tunes marker seeding and label filtering around the watershed call.
type Params struct {
	// MinDistance is the minimum separation in pixels between grain markers.
	MinDistance int

	// MinSize and MaxSize bound accepted grain areas in pixels.
	// MaxSize 0 means unbounded.
	MinSize int
	MaxSize int

	// MaxGrains caps the number of returned segments, keeping the largest.
	// 0 means unbounded.
	MaxGrains int

	// ExcludeBorder drops grain markers closer than this to the image edge.
	ExcludeBorder int

	// MarkerRadius is the radius of the seeded marker disks.
	MarkerRadius int

	// Threshold enables Otsu foreground thresholding before the distance
	// transform. Without it any nonzero pixel counts as foreground, which
	// suits already background-subtracted VDF images.
	Threshold bool
}

// DefaultParams returns segmentation parameters for VDF images of
// overlapping nanocrystals.
func DefaultParams() Params {
	return Params{
		MinDistance:   2,
		MinSize:       10,
		MaxSize:       0,
		MaxGrains:     0,
		ExcludeBorder: 0,
		MarkerRadius:  2,
		Threshold:     false,
	}
}

func (p Params) validate() error {
	if p.MinDistance < 1 {
		return errors.Errorf("min distance %d must be at least 1", p.MinDistance)
	}
	if p.MinSize < 0 || p.MaxSize < 0 || p.MaxGrains < 0 || p.ExcludeBorder < 0 {
		return errors.New("negative watershed parameter")
	}
	if p.MaxSize > 0 && p.MaxSize < p.MinSize {
		return errors.Errorf("max size %d below min size %d", p.MaxSize, p.MinSize)
	}
	if p.MarkerRadius < 1 {
		return errors.Errorf("marker radius %d must be at least 1", p.MarkerRadius)
	}
	return nil
}

// Segment splits one intensity image into grain segments. Each returned
// segment keeps the source image's intensities inside its label and zero
// elsewhere, and inherits the source's vector IDs, so a VDF image split into
// three grains yields three segments all tagged with the same diffraction
// vector.
func Segment(src *segment.Segment, params Params) (segment.Batch, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	w, h := src.Width, src.Height
	if w == 0 || h == 0 {
		return nil, segment.ErrEmptyBatch
	}

	gray := gocv.NewMatWithSize(h, w, gocv.MatTypeCV32F)
	defer gray.Close()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray.SetFloatAt(y, x, float32(src.At(x, y)))
		}
	}

	// Normalize to 8-bit for thresholding and the watershed input.
	norm := gocv.NewMat()
	defer norm.Close()
	gocv.Normalize(gray, &norm, 0, 255, gocv.NormMinMax)
	gray8 := gocv.NewMat()
	defer gray8.Close()
	norm.ConvertTo(&gray8, gocv.MatTypeCV8U)

	// Foreground mask.
	bin := gocv.NewMat()
	defer bin.Close()
	if params.Threshold {
		gocv.Threshold(gray8, &bin, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	} else {
		gocv.Threshold(gray8, &bin, 0, 255, gocv.ThresholdBinary)
	}

	// Distance transform peaks seed the grain markers.
	dist := gocv.NewMat()
	defer dist.Close()
	distLabels := gocv.NewMat()
	defer distLabels.Close()
	gocv.DistanceTransform(bin, &dist, &distLabels, gocv.DistL2, gocv.DistanceMask3,
		gocv.DistanceLabelCComp)

	maxima := distanceMaxima(dist, params.MinDistance, params.ExcludeBorder)
	if len(maxima) == 0 {
		return nil, errors.New("no grain markers found")
	}

	// Marker image: label 1 is definite background, grains start at 2.
	// Unknown stays 0 for the watershed flood.
	markers := gocv.NewMatWithSize(h, w, gocv.MatTypeCV32S)
	defer markers.Close()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bin.GetUCharAt(y, x) == 0 {
				markers.SetIntAt(y, x, 1)
			}
		}
	}
	markerMask := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	defer markerMask.Close()
	for _, p := range maxima {
		gocv.Circle(&markerMask, p, params.MarkerRadius, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	}
	seeds := gocv.NewMat()
	defer seeds.Close()
	gocv.ConnectedComponents(markerMask, &seeds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if id := seeds.GetIntAt(y, x); id > 0 {
				markers.SetIntAt(y, x, id+1)
			}
		}
	}

	// Watershed wants a 3-channel image.
	colorImg := gocv.NewMat()
	defer colorImg.Close()
	gocv.CvtColor(gray8, &colorImg, gocv.ColorGrayToBGR)
	gocv.Watershed(colorImg, &markers)

	// Collect pixels per grain label (>= 2; 1 is background, -1 boundary).
	grains := make(map[int][]int)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if id := int(markers.GetIntAt(y, x)); id >= 2 {
				grains[id] = append(grains[id], y*w+x)
			}
		}
	}

	ids := make([]int, 0, len(grains))
	for id, pix := range grains {
		if len(pix) < params.MinSize {
			continue
		}
		if params.MaxSize > 0 && len(pix) > params.MaxSize {
			continue
		}
		ids = append(ids, id)
	}
	// Largest grains win when capped; ties break on label order for
	// determinism.
	sort.Slice(ids, func(a, b int) bool {
		if len(grains[ids[a]]) != len(grains[ids[b]]) {
			return len(grains[ids[a]]) > len(grains[ids[b]])
		}
		return ids[a] < ids[b]
	})
	if params.MaxGrains > 0 && len(ids) > params.MaxGrains {
		ids = ids[:params.MaxGrains]
	}
	sort.Ints(ids)

	if len(ids) == 0 {
		return nil, errors.New("no grains survived size filtering")
	}

	batch := make(segment.Batch, 0, len(ids))
	for _, id := range ids {
		seg := segment.New(w, h)
		seg.Vectors = append([]int(nil), src.Vectors...)
		for _, off := range grains[id] {
			seg.Pixels[off] = src.Pixels[off]
		}
		batch = append(batch, seg)
	}

	fmt.Printf("[Watershed] %d markers -> %d grains (min size %d)\n",
		len(maxima), len(batch), params.MinSize)

	return batch, nil
}

// SegmentBatch runs Segment over every image of a VDF batch and concatenates
// the results, the producer side of a correlation pass. Images that yield no
// grains are skipped rather than failing the whole batch.
func SegmentBatch(batch segment.Batch, params Params) (segment.Batch, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	var out segment.Batch
	for i, src := range batch {
		grains, err := Segment(src, params)
		if err != nil {
			fmt.Printf("[Watershed] Image %d: %v (skipped)\n", i, err)
			continue
		}
		out = append(out, grains...)
	}
	if len(out) == 0 {
		return nil, errors.New("no segments produced from batch")
	}
	return out, nil
}

// distanceMaxima finds local maxima of the distance map, at least
// minDistance apart and outside the excluded border.
func distanceMaxima(dist gocv.Mat, minDistance, border int) []image.Point {
	k := 2*minDistance + 1
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k))
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(dist, &dilated, kernel)

	h, w := dist.Rows(), dist.Cols()
	var out []image.Point
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			v := dist.GetFloatAt(y, x)
			if v > 0 && v == dilated.GetFloatAt(y, x) {
				out = append(out, image.Pt(x, y))
			}
		}
	}
	return out
}
