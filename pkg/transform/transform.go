// Package transform converts between normalized box coordinates, image pixels
// and view pixels, and manipulates the pan/zoom state of a viewport.
//
// A view point v and an image point p are related by v = (p - origin) * zoom.
package transform

import (
	"image"
	"math"

	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// Zoom ranges and framing defaults.
const (
	FlashcardZoomMin = 0.2
	EditorZoomMin    = 0.1
	ZoomMax          = 10.0
	DefaultMargin    = 3.0
	FitFill          = 0.9
)

// Corner identifies a resize handle of a box.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "tl"
	case TopRight:
		return "tr"
	case BottomLeft:
		return "bl"
	case BottomRight:
		return "br"
	}
	return "?"
}

// Transform holds the image size and the current view of it.
type Transform struct {
	ImageW  float64
	ImageH  float64
	View    types.ViewState
	ZoomMin float64
	ZoomMax float64
}

// New returns a transform for a width x height image at zoom 1 and origin 0,
// clamped to [zoomMin, zoomMax].
func New(width, height int, zoomMin, zoomMax float64) *Transform {
	t := &Transform{
		ImageW:  float64(width),
		ImageH:  float64(height),
		ZoomMin: zoomMin,
		ZoomMax: zoomMax,
	}
	t.View.Zoom = t.clampZoom(1)
	return t
}

func (t *Transform) clampZoom(z float64) float64 {
	if t.ZoomMin > 0 && z < t.ZoomMin {
		z = t.ZoomMin
	}
	if t.ZoomMax > 0 && z > t.ZoomMax {
		z = t.ZoomMax
	}
	return z
}

// NormalizedToImagePixel returns the box edges in image pixels.
func (t *Transform) NormalizedToImagePixel(b types.Box) types.PixelRect {
	return types.PixelRect{
		Left:   (b.CX - b.W/2) * t.ImageW,
		Top:    (b.CY - b.H/2) * t.ImageH,
		Right:  (b.CX + b.W/2) * t.ImageW,
		Bottom: (b.CY + b.H/2) * t.ImageH,
	}
}

// ImagePixelToView maps an image pixel to view coordinates.
func (t *Transform) ImagePixelToView(x, y float64) (float64, float64) {
	return (x - t.View.OriginX) * t.View.Zoom, (y - t.View.OriginY) * t.View.Zoom
}

// ViewToImagePixel maps a view point to image pixel coordinates.
func (t *Transform) ViewToImagePixel(x, y float64) (float64, float64) {
	return t.View.OriginX + x/t.View.Zoom, t.View.OriginY + y/t.View.Zoom
}

// ViewToNormalized maps a view point to normalized image coordinates.
func (t *Transform) ViewToNormalized(x, y float64) (float64, float64) {
	ix, iy := t.ViewToImagePixel(x, y)
	return ix / t.ImageW, iy / t.ImageH
}

// NormalizedToView maps normalized image coordinates to a view point.
func (t *Transform) NormalizedToView(nx, ny float64) (float64, float64) {
	return t.ImagePixelToView(nx*t.ImageW, ny*t.ImageH)
}

// BoxToView returns the box edges in view coordinates.
func (t *Transform) BoxToView(b types.Box) types.PixelRect {
	r := t.NormalizedToImagePixel(b)
	l, top := t.ImagePixelToView(r.Left, r.Top)
	rt, btm := t.ImagePixelToView(r.Right, r.Bottom)
	return types.PixelRect{Left: l, Top: top, Right: rt, Bottom: btm}
}

// AutoFrame zooms so the box occupies roughly 1/margin of the viewport and
// centers it. A non-positive margin uses DefaultMargin.
func (t *Transform) AutoFrame(b types.Box, vpW, vpH, margin float64) {
	if margin <= 0 {
		margin = DefaultMargin
	}
	bw := b.W * t.ImageW
	bh := b.H * t.ImageH

	zoom := t.View.Zoom
	if bw > 0 && bh > 0 {
		zoom = math.Min(vpW/(bw*margin), vpH/(bh*margin))
	}
	t.View.Zoom = t.clampZoom(zoom)

	cx := b.CX * t.ImageW
	cy := b.CY * t.ImageH
	t.View.OriginX = cx - vpW/2/t.View.Zoom
	t.View.OriginY = cy - vpH/2/t.View.Zoom
}

// ZoomAt scales the view by factor keeping the image point under (sx, sy)
// fixed. When the zoom is clamped the point stays fixed at the clamped zoom.
func (t *Transform) ZoomAt(sx, sy, factor float64) {
	ix, iy := t.ViewToImagePixel(sx, sy)
	t.View.Zoom = t.clampZoom(t.View.Zoom * factor)
	t.View.OriginX = ix - sx/t.View.Zoom
	t.View.OriginY = iy - sy/t.View.Zoom
}

// Scale multiplies the zoom by factor around the view origin.
func (t *Transform) Scale(factor float64) {
	t.View.Zoom = t.clampZoom(t.View.Zoom * factor)
}

// Pan moves the view by a drag of (dx, dy) view pixels.
func (t *Transform) Pan(dx, dy float64) {
	t.View.OriginX -= dx / t.View.Zoom
	t.View.OriginY -= dy / t.View.Zoom
}

// FitToWindow scales the whole image into the viewport, leaving a border of
// (1-fill) and resetting the origin. A non-positive fill uses FitFill.
func (t *Transform) FitToWindow(vpW, vpH, fill float64) {
	if fill <= 0 {
		fill = FitFill
	}
	if t.ImageW > 0 && t.ImageH > 0 {
		t.View.Zoom = t.clampZoom(math.Min(vpW/t.ImageW, vpH/t.ImageH) * fill)
	}
	t.View.OriginX = 0
	t.View.OriginY = 0
}

// VisibleWindow returns the integer image rectangle visible in a vpW x vpH
// viewport, clipped to the image. It is empty when the view is off-image.
func (t *Transform) VisibleWindow(vpW, vpH float64) image.Rectangle {
	x1 := max(0, int(t.View.OriginX))
	y1 := max(0, int(t.View.OriginY))
	x2 := min(int(t.ImageW), int(t.View.OriginX+vpW/t.View.Zoom))
	y2 := min(int(t.ImageH), int(t.View.OriginY+vpH/t.View.Zoom))
	if x2 <= x1 || y2 <= y1 {
		return image.Rectangle{}
	}
	return image.Rect(x1, y1, x2, y2)
}

// BoxFromView converts a rectangle dragged between two view points to a
// normalized box of class 0. Corner order does not matter.
func (t *Transform) BoxFromView(x1, y1, x2, y2 float64) types.Box {
	ix1, iy1 := t.ViewToImagePixel(x1, y1)
	ix2, iy2 := t.ViewToImagePixel(x2, y2)
	return fromPixelCorners(ix1, iy1, ix2, iy2, t.ImageW, t.ImageH, 0)
}

// ResizeCorner returns b with the given corner moved to view point (vx, vy).
// Dragging a corner past the opposite one flips the box rather than
// inverting it.
func (t *Transform) ResizeCorner(b types.Box, c Corner, vx, vy float64) types.Box {
	r := t.NormalizedToImagePixel(b)
	nx, ny := t.ViewToImagePixel(vx, vy)

	switch c {
	case TopLeft:
		r.Left, r.Top = nx, ny
	case TopRight:
		r.Right, r.Top = nx, ny
	case BottomLeft:
		r.Left, r.Bottom = nx, ny
	case BottomRight:
		r.Right, r.Bottom = nx, ny
	}
	return fromPixelCorners(r.Left, r.Top, r.Right, r.Bottom, t.ImageW, t.ImageH, b.ClassID)
}

func fromPixelCorners(x1, y1, x2, y2, w, h float64, class int) types.Box {
	bw := math.Abs(x2 - x1)
	bh := math.Abs(y2 - y1)
	return types.Box{
		ClassID: class,
		CX:      (math.Min(x1, x2) + bw/2) / w,
		CY:      (math.Min(y1, y2) + bh/2) / h,
		W:       bw / w,
		H:       bh / h,
	}
}
