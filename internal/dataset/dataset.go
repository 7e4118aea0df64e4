// Package dataset provides loading and pre-processing of 4D scanning
// electron diffraction data: a 2D grid of scan positions, each holding a 2D
// detector frame.
package dataset

import (
	"github.com/pkg/errors"
)

// Calibration ties pixel coordinates to physical units.
type Calibration struct {
	// DetectorScale is the reciprocal-space size of one detector pixel
	// (Å⁻¹ per pixel).
	DetectorScale float64 `json:"detector_scale"`

	// ScanStep is the real-space distance between scan positions (nm).
	ScanStep float64 `json:"scan_step"`

	// CenterX, CenterY is the direct-beam position on the detector in
	// pixels. Refined by EstimateCenter when left zero.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
}

// Stack is an owned 4D intensity array. Data is laid out row-major as
// (scanY, scanX, detY, detX); one scan position's frame is a contiguous
// slice.
type Stack struct {
	ScanWidth  int
	ScanHeight int
	DetWidth   int
	DetHeight  int
	Data       []float32
	Calib      Calibration
}

// NewStack allocates a zeroed stack of the given dimensions.
func NewStack(scanW, scanH, detW, detH int) *Stack {
	return &Stack{
		ScanWidth:  scanW,
		ScanHeight: scanH,
		DetWidth:   detW,
		DetHeight:  detH,
		Data:       make([]float32, scanW*scanH*detW*detH),
	}
}

// Positions returns the number of scan positions.
func (s *Stack) Positions() int {
	return s.ScanWidth * s.ScanHeight
}

// frameLen returns the pixel count of one detector frame.
func (s *Stack) frameLen() int {
	return s.DetWidth * s.DetHeight
}

// Pattern returns the detector frame at scan position (sx, sy) as a shared
// sub-slice of the stack. Mutating it mutates the stack.
func (s *Stack) Pattern(sx, sy int) []float32 {
	off := (sy*s.ScanWidth + sx) * s.frameLen()
	return s.Data[off : off+s.frameLen()]
}

// PatternAt returns the frame at a flat scan index.
func (s *Stack) PatternAt(pos int) []float32 {
	off := pos * s.frameLen()
	return s.Data[off : off+s.frameLen()]
}

// MeanPattern averages all frames into one detector-space image.
func (s *Stack) MeanPattern() []float64 {
	mean := make([]float64, s.frameLen())
	for pos := 0; pos < s.Positions(); pos++ {
		frame := s.PatternAt(pos)
		for i, v := range frame {
			mean[i] += float64(v)
		}
	}
	n := float64(s.Positions())
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

// MaxPattern takes the per-pixel maximum over all frames. Useful for peak
// finding: every diffraction spot that lights up anywhere in the scan shows
// up in the maximum image.
func (s *Stack) MaxPattern() []float64 {
	maxImg := make([]float64, s.frameLen())
	for pos := 0; pos < s.Positions(); pos++ {
		frame := s.PatternAt(pos)
		for i, v := range frame {
			if f := float64(v); f > maxImg[i] {
				maxImg[i] = f
			}
		}
	}
	return maxImg
}

// Validate checks dimensional consistency.
func (s *Stack) Validate() error {
	want := s.ScanWidth * s.ScanHeight * s.DetWidth * s.DetHeight
	if len(s.Data) != want {
		return errors.Errorf("stack data has %d values, dimensions imply %d", len(s.Data), want)
	}
	if s.ScanWidth <= 0 || s.ScanHeight <= 0 || s.DetWidth <= 0 || s.DetHeight <= 0 {
		return errors.Errorf("non-positive stack dimensions %dx%d scan, %dx%d detector",
			s.ScanWidth, s.ScanHeight, s.DetWidth, s.DetHeight)
	}
	return nil
}
