// Package session holds the interactive state of the two review styles: the
// flashcard session walks the dataset box by box with undo and saves after
// every change, the editor session works on one whole image at a time and
// saves on page change or on request.
package session

import (
	"log/slog"
	"slices"

	"github.com/Willayat060/data-annotating-tool/pkg/classes"
	"github.com/Willayat060/data-annotating-tool/pkg/transform"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// Options configures a session viewport.
type Options struct {
	ViewportW float64
	ViewportH float64
	// Margin is the auto-frame margin of the flashcard session.
	Margin  float64
	ZoomMin float64
	ZoomMax float64
	// ZoomStep is the wheel factor used by ZoomIn and ZoomOut.
	ZoomStep float64
	Logger   *slog.Logger
}

// DefaultOptions returns a 1000x800 viewport with a 3x frame margin.
func DefaultOptions() Options {
	return Options{
		ViewportW: 1000,
		ViewportH: 800,
		Margin:    transform.DefaultMargin,
		ZoomMax:   transform.ZoomMax,
		ZoomStep:  1.1,
	}
}

func (o Options) withDefaults(zoomMin float64) Options {
	d := DefaultOptions()
	if o.ViewportW <= 0 {
		o.ViewportW = d.ViewportW
	}
	if o.ViewportH <= 0 {
		o.ViewportH = d.ViewportH
	}
	if o.Margin <= 0 {
		o.Margin = d.Margin
	}
	if o.ZoomMin <= 0 {
		o.ZoomMin = zoomMin
	}
	if o.ZoomMax <= 0 {
		o.ZoomMax = d.ZoomMax
	}
	if o.ZoomStep <= 1 {
		o.ZoomStep = d.ZoomStep
	}
	return o
}

// LegendEntry is the number of boxes of one class on an image.
type LegendEntry struct {
	ClassID int
	Name    string
	Count   int
}

// Legend counts boxes per class, sorted by class id. Ids missing from cls are
// named classes.Unknown.
func Legend(boxes []types.Box, cls classes.List) []LegendEntry {
	counts := make(map[int]int)
	for _, b := range boxes {
		counts[b.ClassID]++
	}
	out := make([]LegendEntry, 0, len(counts))
	for id, n := range counts {
		name, ok := cls.Lookup(id)
		if !ok {
			name = classes.Unknown
		}
		out = append(out, LegendEntry{ClassID: id, Name: name, Count: n})
	}
	slices.SortFunc(out, func(a, b LegendEntry) int { return a.ClassID - b.ClassID })
	return out
}
