// Package colorutil provides shared color utilities for segment-map rendering.
package colorutil

import (
	"image/color"
)

// Common overlay colors.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Blue    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Orange  = color.RGBA{R: 255, G: 165, B: 0, A: 255}
)

// labelPalette is the cycle of colors used for labeled segment maps.
// Adjacent entries are chosen to contrast so neighboring grains stay
// distinguishable even when labels are sequential.
var labelPalette = []color.RGBA{
	Cyan,
	Orange,
	Green,
	Magenta,
	Yellow,
	Blue,
	Red,
	{R: 128, G: 255, B: 128, A: 255},
	{R: 255, G: 128, B: 192, A: 255},
	{R: 128, G: 192, B: 255, A: 255},
	{R: 192, G: 255, B: 0, A: 255},
	{R: 255, G: 96, B: 0, A: 255},
}

// LabelColor returns a stable color for a segment label. Label 0 is
// background (black); positive labels cycle through the palette.
func LabelColor(label int) color.RGBA {
	if label <= 0 {
		return Black
	}
	return labelPalette[(label-1)%len(labelPalette)]
}

// Grayscale maps a normalized intensity in [0,1] to an opaque gray.
// Values outside the range are clamped.
func Grayscale(v float64) color.RGBA {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	g := uint8(v*255 + 0.5)
	return color.RGBA{R: g, G: g, B: g, A: 255}
}
