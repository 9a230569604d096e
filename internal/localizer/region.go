package localizer

import (
	"fmt"
	"image"
	"math"
)

// Region is a candidate pest location proposed by a detector stage.
// Coordinates are top-left form in the pixel space of the frame the
// region was derived from. Regions live for a single scan iteration.
type Region struct {
	X      float64 // left edge, pixels
	Y      float64 // top edge, pixels
	Width  float64 // pixels
	Height float64 // pixels
	Score  float64 // detector confidence in [0,1]
	Label  string  // detector class label, may be empty
}

// RegionFromCenter converts a center-form box (x,y is the box center)
// into the canonical top-left form.
func RegionFromCenter(cx, cy, w, h, score float64, label string) Region {
	return Region{
		X:      cx - w/2,
		Y:      cy - h/2,
		Width:  w,
		Height: h,
		Score:  score,
		Label:  label,
	}
}

// Rect returns the region as an image.Rectangle, rounded to whole
// pixels, for handing to the preprocessor crop path.
func (r Region) Rect() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1)
}

// Clamp constrains the region to the given frame dimensions, shrinking
// it as needed. A region fully outside the frame collapses to zero size.
func (r Region) Clamp(frameWidth, frameHeight int) Region {
	fw, fh := float64(frameWidth), float64(frameHeight)
	x0 := math.Max(r.X, 0)
	y0 := math.Max(r.Y, 0)
	x1 := math.Min(r.X+r.Width, fw)
	y1 := math.Min(r.Y+r.Height, fh)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	r.X, r.Y = x0, y0
	r.Width, r.Height = x1-x0, y1-y0
	return r
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Region) String() string {
	if r.Label != "" {
		return fmt.Sprintf("%s %.2f [%.0f,%.0f %.0fx%.0f]", r.Label, r.Score, r.X, r.Y, r.Width, r.Height)
	}
	return fmt.Sprintf("%.2f [%.0f,%.0f %.0fx%.0f]", r.Score, r.X, r.Y, r.Width, r.Height)
}
