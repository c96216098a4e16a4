// Package overlay maps bounding boxes from the canonical inference space onto
// an image as it is rendered on screen, and hit-tests pointer positions
// against the projected rectangles.
//
// Boxes are [yMin, xMin, yMax, xMax] in a space where the larger side of the
// image measures CanonicalLongSide units.
package overlay

import "math"

// CanonicalLongSide is the length of the larger image side in box space.
const CanonicalLongSide = 1024.0

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an on-screen rectangle.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether (x, y) lies within the rectangle, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Left+r.Width && y >= r.Top && y <= r.Top+r.Height
}

// Renderable reports whether the rectangle has a positive area.
func (r Rect) Renderable() bool {
	return r.Width > 0 && r.Height > 0 && !math.IsNaN(r.Width) && !math.IsNaN(r.Height)
}

// Projection holds the scale and letterbox offsets for one natural/on-screen pair.
type Projection struct {
	ScaleFactor  float64
	DisplayScale float64
	OffsetX      float64
	OffsetY      float64
}

// NewProjection computes the projection for an image with the given natural
// size shown in an on-screen box of the given size. It reports false when
// either size is not positive.
func NewProjection(natural, onScreen Size) (Projection, bool) {
	if natural.Width <= 0 || natural.Height <= 0 || onScreen.Width <= 0 || onScreen.Height <= 0 {
		return Projection{}, false
	}
	scaleFactor := CanonicalLongSide / math.Max(natural.Width, natural.Height)
	backendW := natural.Width * scaleFactor
	backendH := natural.Height * scaleFactor
	displayScale := math.Min(onScreen.Width/backendW, onScreen.Height/backendH)
	return Projection{
		ScaleFactor:  scaleFactor,
		DisplayScale: displayScale,
		OffsetX:      (onScreen.Width - backendW*displayScale) / 2,
		OffsetY:      (onScreen.Height - backendH*displayScale) / 2,
	}, true
}

// Rect projects one canonical-space box.
func (p Projection) Rect(box [4]float64) Rect {
	yMin, xMin, yMax, xMax := box[0], box[1], box[2], box[3]
	k := p.ScaleFactor * p.DisplayScale
	return Rect{
		Left:   xMin*k + p.OffsetX,
		Top:    yMin*k + p.OffsetY,
		Width:  (xMax - xMin) * k,
		Height: (yMax - yMin) * k,
	}
}

// Project is a shortcut for NewProjection followed by Rect.
func Project(box [4]float64, natural, onScreen Size) (Rect, bool) {
	p, ok := NewProjection(natural, onScreen)
	if !ok {
		return Rect{}, false
	}
	return p.Rect(box), true
}
