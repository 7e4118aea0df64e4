package peaks

import (
	"image"

	"crystal-mapper/pkg/geometry"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// MaximaParams tunes OpenCV-based local-maximum peak finding.
type MaximaParams struct {
	// MinDistance is the minimum separation between peaks in pixels. A peak
	// must be the strictest maximum within a (2*MinDistance+1) square.
	MinDistance int

	// MinIntensity rejects maxima below this absolute intensity.
	MinIntensity float64

	// ExcludeBorder drops peaks closer than this to the detector edge,
	// where disks are clipped and centers unreliable.
	ExcludeBorder int
}

// DefaultMaximaParams returns parameters suited to background-subtracted
// diffraction patterns with well-separated Bragg disks.
func DefaultMaximaParams() MaximaParams {
	return MaximaParams{
		MinDistance:   5,
		MinIntensity:  10,
		ExcludeBorder: 2,
	}
}

// MaximaFinder finds peaks by morphological dilation: a pixel equal to the
// dilated image within the MinDistance neighborhood is a local maximum. The
// neighborhood test is OpenCV's; only candidate filtering and the
// center-of-mass sub-pixel refinement live here.
type MaximaFinder struct {
	params MaximaParams
}

// NewMaximaFinder creates a finder with the given parameters.
func NewMaximaFinder(params MaximaParams) *MaximaFinder {
	return &MaximaFinder{params: params}
}

// Find returns sub-pixel peak positions in the frame.
func (f *MaximaFinder) Find(frame []float64, width, height int) ([]geometry.Point2D, error) {
	if len(frame) != width*height {
		return nil, errors.Errorf("frame has %d pixels for shape %dx%d", len(frame), width, height)
	}

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV32F)
	defer mat.Close()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			mat.SetFloatAt(y, x, float32(frame[y*width+x]))
		}
	}

	k := 2*f.params.MinDistance + 1
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k))
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(mat, &dilated, kernel)

	border := f.params.ExcludeBorder
	var out []geometry.Point2D
	for y := border; y < height-border; y++ {
		for x := border; x < width-border; x++ {
			v := frame[y*width+x]
			if v < f.params.MinIntensity {
				continue
			}
			if float32(v) != dilated.GetFloatAt(y, x) {
				continue
			}
			out = append(out, refineCentroid(frame, width, height, x, y))
		}
	}
	return out, nil
}

// refineCentroid shifts an integer peak position by the intensity-weighted
// centroid of its 3x3 neighborhood.
func refineCentroid(frame []float64, width, height, px, py int) geometry.Point2D {
	var sum, sumX, sumY float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := px+dx, py+dy
			if x < 0 || x >= width || y < 0 || y >= height {
				continue
			}
			v := frame[y*width+x]
			sum += v
			sumX += v * float64(x)
			sumY += v * float64(y)
		}
	}
	if sum == 0 {
		return geometry.Point2D{X: float64(px), Y: float64(py)}
	}
	return geometry.Point2D{X: sumX / sum, Y: sumY / sum}
}
