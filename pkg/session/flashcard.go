package session

import (
	"fmt"
	"log/slog"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/internal/logging"
	"github.com/Willayat060/data-annotating-tool/pkg/classes"
	"github.com/Willayat060/data-annotating-tool/pkg/history"
	"github.com/Willayat060/data-annotating-tool/pkg/queue"
	"github.com/Willayat060/data-annotating-tool/pkg/selection"
	"github.com/Willayat060/data-annotating-tool/pkg/store"
	"github.com/Willayat060/data-annotating-tool/pkg/transform"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// Flashcard reviews the dataset one box at a time. Every committed change is
// written to the label file of its image before the call returns, and every
// change can be undone.
type Flashcard struct {
	store   *store.Store
	classes classes.List
	order   []string
	queue   *queue.Queue
	log     *history.Log
	opts    Options
	logger  *slog.Logger

	image string
	tr    *transform.Transform
}

// NewFlashcard builds the review queue over every box of st, in image order,
// and frames the first box.
func NewFlashcard(st *store.Store, cls classes.List, opts Options) *Flashcard {
	f := &Flashcard{
		store:   st,
		classes: cls,
		order:   st.Paths(),
		log:     history.New(),
		opts:    opts.withDefaults(transform.FlashcardZoomMin),
		logger:  logging.OrDiscard(opts.Logger).With("component", "flashcard"),
	}
	f.queue = queue.Build(f.order, st.Count)
	f.focus()
	f.logger.Info("review queue built", "images", len(f.order), "boxes", f.queue.Len())
	return f
}

// focus loads the image of the current entry if it changed and frames the
// current box.
func (f *Flashcard) focus() {
	cur, ok := f.queue.Current()
	if !ok {
		return
	}
	if cur.ImagePath != f.image || f.tr == nil {
		e, _ := f.store.Entry(cur.ImagePath)
		f.image = cur.ImagePath
		f.tr = transform.New(e.Width, e.Height, f.opts.ZoomMin, f.opts.ZoomMax)
	}
	if b, err := f.store.Box(cur.ImagePath, cur.BoxIndex); err == nil {
		f.tr.AutoFrame(b, f.opts.ViewportW, f.opts.ViewportH, f.opts.Margin)
	}
}

func (f *Flashcard) emptyError() error {
	return errors.Newf("nothing to review: %w", errors.ErrOutOfRange).
		Component("flashcard").
		Category(errors.CategoryState).
		Build()
}

// Current returns the entry under review.
func (f *Flashcard) Current() (types.Entry, bool) { return f.queue.Current() }

// CurrentBox returns the box under review.
func (f *Flashcard) CurrentBox() (types.Box, error) {
	cur, ok := f.queue.Current()
	if !ok {
		return types.Box{}, f.emptyError()
	}
	return f.store.Box(cur.ImagePath, cur.BoxIndex)
}

// Image returns the path of the image on screen.
func (f *Flashcard) Image() string { return f.image }

// Boxes returns the boxes of the image on screen.
func (f *Flashcard) Boxes() []types.Box { return f.store.Boxes(f.image) }

// Active returns the index of the box under review on the image on screen,
// or -1.
func (f *Flashcard) Active() int {
	if cur, ok := f.queue.Current(); ok && cur.ImagePath == f.image {
		return cur.BoxIndex
	}
	return -1
}

// Transform returns the view of the image on screen, nil before any box.
func (f *Flashcard) Transform() *transform.Transform { return f.tr }

// Viewport returns the configured viewport size.
func (f *Flashcard) Viewport() (float64, float64) { return f.opts.ViewportW, f.opts.ViewportH }

// Len returns the number of boxes in the queue.
func (f *Flashcard) Len() int { return f.queue.Len() }

// Pos returns the 1-based number of the box under review, 0 when empty.
func (f *Flashcard) Pos() int {
	if f.queue.Len() == 0 {
		return 0
	}
	return f.queue.Pos() + 1
}

// Page returns the 1-based position of the image on screen in the dataset,
// 0 when no image is shown.
func (f *Flashcard) Page() int {
	for i, p := range f.order {
		if p == f.image {
			return i + 1
		}
	}
	return 0
}

// Pages returns the number of images.
func (f *Flashcard) Pages() int { return len(f.order) }

// CanUndo reports whether Undo has anything to do.
func (f *Flashcard) CanUndo() bool { return f.log.CanUndo() }

// CanRedo reports whether Redo has anything to do.
func (f *Flashcard) CanRedo() bool { return f.log.CanRedo() }

// Status formats the progress line, e.g. "Box 3/120 : [2] car".
func (f *Flashcard) Status() string {
	b, err := f.CurrentBox()
	if err != nil {
		return "No boxes"
	}
	return fmt.Sprintf("Box %d/%d : [%d] %s", f.Pos(), f.Len(), b.ClassID, f.classes.Name(b.ClassID))
}

// Next moves to the following box. It stops at the last one.
func (f *Flashcard) Next() {
	f.queue.Advance(1)
	f.focus()
}

// Prev moves to the preceding box. It stops at the first one.
func (f *Flashcard) Prev() {
	f.queue.Advance(-1)
	f.focus()
}

// JumpToBox moves to the 1-based box number n.
func (f *Flashcard) JumpToBox(n int) error {
	if err := f.queue.JumpToBoxNumber(n); err != nil {
		return err
	}
	f.focus()
	return nil
}

// JumpToPage moves to the first box of the 1-based image number p.
func (f *Flashcard) JumpToPage(p int) error {
	if err := f.queue.JumpToPage(p, f.order); err != nil {
		return err
	}
	f.focus()
	return nil
}

// ZoomAt zooms by factor around the view point (sx, sy).
func (f *Flashcard) ZoomAt(sx, sy, factor float64) {
	if f.tr != nil {
		f.tr.ZoomAt(sx, sy, factor)
	}
}

// ZoomIn zooms one step around the viewport center.
func (f *Flashcard) ZoomIn() { f.ZoomAt(f.opts.ViewportW/2, f.opts.ViewportH/2, f.opts.ZoomStep) }

// ZoomOut zooms one step out around the viewport center.
func (f *Flashcard) ZoomOut() { f.ZoomAt(f.opts.ViewportW/2, f.opts.ViewportH/2, 1/f.opts.ZoomStep) }

// Pan moves the view by a drag of (dx, dy) view pixels.
func (f *Flashcard) Pan(dx, dy float64) {
	if f.tr != nil {
		f.tr.Pan(dx, dy)
	}
}

// Reframe restores the automatic framing of the box under review.
func (f *Flashcard) Reframe() { f.focus() }

// HandleAt returns the resize handle of the box under review at view point
// (vx, vy).
func (f *Flashcard) HandleAt(vx, vy float64) (transform.Corner, bool) {
	b, err := f.CurrentBox()
	if err != nil || f.tr == nil {
		return 0, false
	}
	return selection.HandleAt(f.tr.BoxToView(b), vx, vy, selection.HandleRadius)
}

// Delete removes the box under review. The cursor moves to the following box.
func (f *Flashcard) Delete() error {
	cur, ok := f.queue.Current()
	if !ok {
		return f.emptyError()
	}
	old, err := f.store.Box(cur.ImagePath, cur.BoxIndex)
	if err != nil {
		return err
	}
	cmd := types.Command{Kind: types.CommandDelete, ImagePath: cur.ImagePath, Index: cur.BoxIndex, Old: &old}
	if err := f.record(cmd); err != nil {
		return err
	}
	f.focus()
	return f.persist(cur.ImagePath)
}

// Add appends b to the image on screen and moves to it.
func (f *Flashcard) Add(b types.Box) error {
	if f.image == "" {
		return f.emptyError()
	}
	return f.AddTo(f.image, b)
}

// AddTo appends b to the image at path, queues it right after the current
// box and moves to it. The image does not need existing boxes.
func (f *Flashcard) AddTo(path string, b types.Box) error {
	if !b.Valid() {
		return errors.Newf("box %s has no area", b).
			Component("flashcard").
			Category(errors.CategoryValidation).
			Build()
	}
	cmd := types.Command{Kind: types.CommandAdd, ImagePath: path, Index: f.store.Count(path), New: &b}
	if err := f.record(cmd); err != nil {
		return err
	}
	f.queue.Advance(1)
	f.focus()
	return f.persist(path)
}

// AddFromView adds the rectangle dragged between two view points to the image
// on screen with the class named by input. Unresolved input adds nothing.
func (f *Flashcard) AddFromView(x1, y1, x2, y2 float64, input string) error {
	if f.tr == nil {
		return f.emptyError()
	}
	id, err := f.classes.Resolve(input)
	if err != nil {
		return err
	}
	b := f.tr.BoxFromView(x1, y1, x2, y2)
	b.ClassID = id
	return f.Add(b)
}

// Reclass changes the class of the box under review to the one named by input.
func (f *Flashcard) Reclass(input string) error {
	id, err := f.classes.Resolve(input)
	if err != nil {
		return err
	}
	return f.modify(func(b types.Box) types.Box {
		b.ClassID = id
		return b
	})
}

// ResizeCorner moves corner c of the box under review to view point (vx, vy).
func (f *Flashcard) ResizeCorner(c transform.Corner, vx, vy float64) error {
	if f.tr == nil {
		return f.emptyError()
	}
	return f.modify(func(b types.Box) types.Box {
		return f.tr.ResizeCorner(b, c, vx, vy)
	})
}

func (f *Flashcard) modify(change func(types.Box) types.Box) error {
	cur, ok := f.queue.Current()
	if !ok {
		return f.emptyError()
	}
	old, err := f.store.Box(cur.ImagePath, cur.BoxIndex)
	if err != nil {
		return err
	}
	nb := change(old)
	if !nb.Valid() {
		return errors.Newf("box %s has no area", nb).
			Component("flashcard").
			Category(errors.CategoryValidation).
			Build()
	}
	cmd := types.Command{Kind: types.CommandModify, ImagePath: cur.ImagePath, Index: cur.BoxIndex, Old: &old, New: &nb}
	if err := f.record(cmd); err != nil {
		return err
	}
	return f.persist(cur.ImagePath)
}

// Undo reverts the last change. It reports false when there is nothing to
// undo. Undoing an add returns to the box before the added one; undoing a
// delete brings the box back under the cursor.
func (f *Flashcard) Undo() (bool, error) {
	cmd, ok := f.log.PeekUndo()
	if !ok {
		return false, nil
	}

	var target history.Target = f
	if cmd.Kind == types.CommandDelete {
		target = restorer{f}
	}
	cur, _ := f.queue.Current()
	onAdded := cmd.Kind == types.CommandAdd && cur.ImagePath == cmd.ImagePath && cur.BoxIndex == cmd.Index
	pos := f.queue.Pos()

	done, err := f.log.Undo(target)
	if err != nil || !done {
		return done, err
	}
	if onAdded {
		f.queue.SetPos(pos - 1)
	}
	if cmd.Kind != types.CommandModify {
		f.focus()
	}
	f.logger.Debug("undo", "kind", cmd.Kind, "image", cmd.ImagePath, "index", cmd.Index)
	return true, f.persist(cmd.ImagePath)
}

// Redo re-applies the last undone change. It reports false when there is
// nothing to redo.
func (f *Flashcard) Redo() (bool, error) {
	cmd, ok := f.log.PeekRedo()
	if !ok {
		return false, nil
	}
	done, err := f.log.Redo(f)
	if err != nil || !done {
		return done, err
	}
	switch cmd.Kind {
	case types.CommandAdd:
		f.queue.Advance(1)
		f.focus()
	case types.CommandDelete:
		f.focus()
	}
	f.logger.Debug("redo", "kind", cmd.Kind, "image", cmd.ImagePath, "index", cmd.Index)
	return true, f.persist(cmd.ImagePath)
}

func (f *Flashcard) record(cmd types.Command) error {
	if err := f.log.Record(f, cmd); err != nil {
		return err
	}
	f.logger.Debug("command recorded", "kind", cmd.Kind, "image", cmd.ImagePath, "index", cmd.Index)
	return nil
}

// persist writes path now. A failed write leaves the image dirty so a later
// flush can retry it.
func (f *Flashcard) persist(path string) error {
	if err := f.store.SaveImmediately(path); err != nil {
		_ = f.store.MarkDirty(path)
		return err
	}
	return nil
}

// Flush retries every write that failed earlier.
func (f *Flashcard) Flush() error { return f.store.FlushAll() }

// InsertBox implements history.Target. The new box is queued right after the
// cursor.
func (f *Flashcard) InsertBox(path string, i int, b types.Box) error {
	if err := f.store.Insert(path, i, b); err != nil {
		return err
	}
	f.queue.OnInsert(path, i)
	return nil
}

// RemoveBox implements history.Target.
func (f *Flashcard) RemoveBox(path string, i int) error {
	if _, err := f.store.Remove(path, i); err != nil {
		return err
	}
	f.queue.OnDelete(path, i)
	return nil
}

// ReplaceBox implements history.Target.
func (f *Flashcard) ReplaceBox(path string, i int, b types.Box) error {
	_, err := f.store.Replace(path, i, b)
	return err
}

// restorer is the target used when undoing a delete: the box comes back
// under the cursor instead of after it.
type restorer struct{ *Flashcard }

func (r restorer) InsertBox(path string, i int, b types.Box) error {
	if err := r.store.Insert(path, i, b); err != nil {
		return err
	}
	r.queue.Restore(path, i)
	return nil
}
