package session

import (
	"log/slog"
	"math"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/internal/logging"
	"github.com/Willayat060/data-annotating-tool/pkg/classes"
	"github.com/Willayat060/data-annotating-tool/pkg/selection"
	"github.com/Willayat060/data-annotating-tool/pkg/store"
	"github.com/Willayat060/data-annotating-tool/pkg/transform"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// MinDrawSize is the narrowest drag, in view pixels, that creates a box.
const MinDrawSize = 5.0

// Editor zoom buttons.
const (
	ZoomInFactor  = 1.2
	ZoomOutFactor = 0.8
)

// Editor edits all boxes of one image at a time. Changes stay in memory until
// Save or until another image is opened.
type Editor struct {
	store   *store.Store
	classes classes.List
	order   []string
	opts    Options
	logger  *slog.Logger

	page     int
	selected int
	tr       *transform.Transform
}

// NewEditor opens the first image of st, fitted to the viewport.
func NewEditor(st *store.Store, cls classes.List, opts Options) *Editor {
	e := &Editor{
		store:    st,
		classes:  cls,
		order:    st.Paths(),
		opts:     opts.withDefaults(transform.EditorZoomMin),
		logger:   logging.OrDiscard(opts.Logger).With("component", "editor"),
		selected: -1,
	}
	if len(e.order) > 0 {
		e.open(0)
	}
	return e
}

// open shows image p. The first image is fitted to the viewport, later ones
// keep the current view.
func (e *Editor) open(p int) {
	ent, _ := e.store.Entry(e.order[p])
	tr := transform.New(ent.Width, ent.Height, e.opts.ZoomMin, e.opts.ZoomMax)
	if p == 0 || e.tr == nil {
		tr.FitToWindow(e.opts.ViewportW, e.opts.ViewportH, transform.FitFill)
	} else {
		tr.View = e.tr.View
	}
	e.tr = tr
	e.page = p
	e.selected = -1
	e.logger.Debug("image opened", "page", p+1, "path", ent.Path, "boxes", len(ent.Boxes))
}

func (e *Editor) noImage() error {
	return errors.Newf("no image open: %w", errors.ErrNoImage).
		Component("editor").
		Category(errors.CategoryState).
		Build()
}

func (e *Editor) noSelection() error {
	return errors.New(errors.ErrNoSelection).
		Component("editor").
		Category(errors.CategoryState).
		Build()
}

// Image returns the path of the open image, "" when the dataset is empty.
func (e *Editor) Image() string {
	if len(e.order) == 0 {
		return ""
	}
	return e.order[e.page]
}

// Page returns the 1-based number of the open image.
func (e *Editor) Page() int {
	if len(e.order) == 0 {
		return 0
	}
	return e.page + 1
}

// Pages returns the number of images.
func (e *Editor) Pages() int { return len(e.order) }

// Boxes returns the boxes of the open image.
func (e *Editor) Boxes() []types.Box { return e.store.Boxes(e.Image()) }

// Selected returns the index of the selected box.
func (e *Editor) Selected() (int, bool) { return e.selected, e.selected >= 0 }

// Transform returns the view of the open image.
func (e *Editor) Transform() *transform.Transform { return e.tr }

// Viewport returns the configured viewport size.
func (e *Editor) Viewport() (float64, float64) { return e.opts.ViewportW, e.opts.ViewportH }

// Dirty reports whether the open image has unsaved changes.
func (e *Editor) Dirty() bool { return e.store.IsDirty(e.Image()) }

// Status returns "UNSAVED" or "Saved".
func (e *Editor) Status() string {
	if e.Dirty() {
		return "UNSAVED"
	}
	return "Saved"
}

// Legend counts the boxes of the open image per class.
func (e *Editor) Legend() []LegendEntry { return Legend(e.Boxes(), e.classes) }

// goTo saves pending changes and opens image p. When the save fails the
// current image stays open.
func (e *Editor) goTo(p int) error {
	if err := e.store.FlushIfDirty(e.Image()); err != nil {
		return err
	}
	e.refresh(e.order[p])
	e.open(p)
	return nil
}

// refresh reloads img when its label file now resolves elsewhere, as after
// SetLabelDir. Unsaved changes are kept.
func (e *Editor) refresh(img string) {
	ent, ok := e.store.Entry(img)
	if !ok || ent.Dirty {
		return
	}
	if lbl, _ := e.store.ResolveLabelPath(img); lbl == ent.LabelPath {
		return
	}
	if err := e.store.Reload(img); err != nil {
		e.logger.Warn("label file not reloaded", "path", img, "error", err)
	}
}

// Next opens the following image, if any.
func (e *Editor) Next() error {
	if e.page >= len(e.order)-1 {
		return nil
	}
	return e.goTo(e.page + 1)
}

// Prev opens the preceding image, if any.
func (e *Editor) Prev() error {
	if e.page <= 0 {
		return nil
	}
	return e.goTo(e.page - 1)
}

// JumpToPage opens the 1-based image number p.
func (e *Editor) JumpToPage(p int) error {
	if p < 1 || p > len(e.order) {
		return errors.Newf("page %d outside 1-%d: %w", p, len(e.order), errors.ErrOutOfRange).
			Component("editor").
			Category(errors.CategoryValidation).
			Context("page", p).
			Build()
	}
	return e.goTo(p - 1)
}

// Select picks the box under the view point (vx, vy), or clears the
// selection when there is none.
func (e *Editor) Select(vx, vy float64) (int, bool) {
	if e.tr == nil {
		return -1, false
	}
	nx, ny := e.tr.ViewToNormalized(vx, vy)
	i, ok := selection.HitTest(e.Boxes(), nx, ny)
	e.selected = i
	return i, ok
}

// Draw adds the rectangle dragged between two view points as a class 0 box
// and selects it. Drags narrower than MinDrawSize, or without height, add
// nothing and report false.
func (e *Editor) Draw(x1, y1, x2, y2 float64) (int, bool, error) {
	if e.tr == nil {
		return -1, false, e.noImage()
	}
	if math.Abs(x2-x1) < MinDrawSize {
		return -1, false, nil
	}
	b := e.tr.BoxFromView(x1, y1, x2, y2)
	if !b.Valid() {
		return -1, false, nil
	}
	i, err := e.store.Append(e.Image(), b)
	if err != nil {
		return -1, false, err
	}
	e.selected = i
	return i, true, e.store.MarkDirty(e.Image())
}

// Delete removes the selected box.
func (e *Editor) Delete() error {
	if e.selected < 0 {
		return e.noSelection()
	}
	if _, err := e.store.Remove(e.Image(), e.selected); err != nil {
		return err
	}
	e.selected = -1
	return e.store.MarkDirty(e.Image())
}

// Reclass sets the class of the selected box to the one named by input.
func (e *Editor) Reclass(input string) error {
	if e.selected < 0 {
		return e.noSelection()
	}
	id, err := e.classes.Resolve(input)
	if err != nil {
		return err
	}
	b, err := e.store.Box(e.Image(), e.selected)
	if err != nil {
		return err
	}
	b.ClassID = id
	if _, err := e.store.Replace(e.Image(), e.selected, b); err != nil {
		return err
	}
	return e.store.MarkDirty(e.Image())
}

// Save writes the open image's label file now.
func (e *Editor) Save() error {
	if len(e.order) == 0 {
		return e.noImage()
	}
	return e.store.SaveImmediately(e.Image())
}

// SetLabelDir saves pending changes, switches the label directory and
// reloads the open image from it. Other images pick it up when opened.
func (e *Editor) SetLabelDir(dir string) error {
	if len(e.order) == 0 {
		return e.noImage()
	}
	if err := e.store.FlushIfDirty(e.Image()); err != nil {
		return err
	}
	e.store.SetLabelDir(dir)
	e.selected = -1
	return e.store.Reload(e.Image())
}

// ZoomIn scales the view by ZoomInFactor.
func (e *Editor) ZoomIn() {
	if e.tr != nil {
		e.tr.Scale(ZoomInFactor)
	}
}

// ZoomOut scales the view by ZoomOutFactor.
func (e *Editor) ZoomOut() {
	if e.tr != nil {
		e.tr.Scale(ZoomOutFactor)
	}
}

// Pan moves the view by a drag of (dx, dy) view pixels.
func (e *Editor) Pan(dx, dy float64) {
	if e.tr != nil {
		e.tr.Pan(dx, dy)
	}
}

// Close saves pending changes of the open image.
func (e *Editor) Close() error {
	if len(e.order) == 0 {
		return nil
	}
	return e.store.FlushIfDirty(e.Image())
}
