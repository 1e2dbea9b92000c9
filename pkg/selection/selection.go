// Package selection resolves pointer positions to boxes and resize handles.
package selection

import (
	"github.com/Willayat060/data-annotating-tool/pkg/transform"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// HandleRadius is the half-size of a corner handle in view pixels.
const HandleRadius = 6.0

// HitTest returns the index of the box containing (nx, ny) in normalized
// coordinates. Edges do not count, and when boxes overlap the one listed
// last wins.
func HitTest(boxes []types.Box, nx, ny float64) (int, bool) {
	for i := len(boxes) - 1; i >= 0; i-- {
		if boxes[i].Contains(nx, ny) {
			return i, true
		}
	}
	return -1, false
}

// HandleAt returns the corner of rect whose handle square, of half-size
// radius, contains the view point (vx, vy). A non-positive radius uses
// HandleRadius. Corners are tried in TL, TR, BL, BR order.
func HandleAt(rect types.PixelRect, vx, vy, radius float64) (transform.Corner, bool) {
	if radius <= 0 {
		radius = HandleRadius
	}
	corners := [4]struct {
		c    transform.Corner
		x, y float64
	}{
		{transform.TopLeft, rect.Left, rect.Top},
		{transform.TopRight, rect.Right, rect.Top},
		{transform.BottomLeft, rect.Left, rect.Bottom},
		{transform.BottomRight, rect.Right, rect.Bottom},
	}
	for _, h := range corners {
		if vx >= h.x-radius && vx <= h.x+radius && vy >= h.y-radius && vy <= h.y+radius {
			return h.c, true
		}
	}
	return 0, false
}
