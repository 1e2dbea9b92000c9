// Package store holds the annotations of every dataset image in memory and
// persists them to per-image label files.
package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/internal/logging"
	"github.com/Willayat060/data-annotating-tool/internal/utils"
	"github.com/Willayat060/data-annotating-tool/pkg/labels"
	"github.com/Willayat060/data-annotating-tool/pkg/loader"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// LabelsDirName is the conventional label directory next to the image directory.
const LabelsDirName = "labels"

// Options configures a Store.
type Options struct {
	// LabelDir, when set, is searched first for label files and receives
	// label files that do not exist yet.
	LabelDir string
	// Sizer reads image dimensions. Defaults to a header-reading loader.
	Sizer loader.Sizer
	// ReadLabels reads one label file. Defaults to labels.ReadFile.
	ReadLabels func(path string, width, height int) (labels.Result, error)
	Logger     *slog.Logger
}

// LoadReport summarizes a Load call.
type LoadReport struct {
	Images  int
	Boxes   int
	Pixel   int
	Skipped map[string][]labels.SkippedLine
	Failed  map[string]error
}

// Store maps image paths to their entries, in load order.
type Store struct {
	labelDir   string
	sizer      loader.Sizer
	readLabels func(string, int, int) (labels.Result, error)
	log        *slog.Logger

	order   []string
	entries map[string]*types.ImageEntry
	// unread holds the images whose label file exists but could not be read.
	unread map[string]error
}

// New creates an empty store.
func New(opts Options) *Store {
	s := &Store{
		labelDir:   opts.LabelDir,
		sizer:      opts.Sizer,
		readLabels: opts.ReadLabels,
		log:        logging.OrDiscard(opts.Logger).With("component", "store"),
		entries:    make(map[string]*types.ImageEntry),
		unread:     make(map[string]error),
	}
	if s.sizer == nil {
		s.sizer = loader.New()
	}
	if s.readLabels == nil {
		s.readLabels = labels.ReadFile
	}
	return s
}

// ResolveLabelPath returns the label file for img and whether it exists.
// Existing files are looked up in the label directory override, then
// <image dir>/../labels, then the image directory. When none exists the
// returned path is where a new file will be written: the override if set,
// otherwise <image dir>/../labels.
func (s *Store) ResolveLabelPath(img string) (string, bool) {
	name := utils.Stem(img) + ".txt"
	dir := filepath.Dir(img)
	sibling := filepath.Join(filepath.Dir(dir), LabelsDirName, name)

	var candidates []string
	if s.labelDir != "" {
		candidates = append(candidates, filepath.Join(s.labelDir, name))
	}
	candidates = append(candidates, sibling, filepath.Join(dir, name))

	for _, c := range candidates {
		if utils.FileExists(c) {
			return c, true
		}
	}
	if s.labelDir != "" {
		return candidates[0], false
	}
	return sibling, false
}

// Load reads dimensions and labels of every path, in order. Images whose
// dimensions cannot be read are left out of the store. Images whose label file
// cannot be read are kept without boxes and refuse to save until a Reload
// succeeds. Both kinds are listed in the report; the returned error joins
// them and is nil when every image loaded. Paths already in the store are
// reloaded.
func (s *Store) Load(paths []string) (LoadReport, error) {
	report := LoadReport{
		Skipped: make(map[string][]labels.SkippedLine),
		Failed:  make(map[string]error),
	}
	var errs []error

	for _, p := range paths {
		entry, res, err := s.read(p)
		if entry == nil {
			report.Failed[p] = err
			errs = append(errs, err)
			s.log.Warn("image not loaded", "path", p, "error", err)
			continue
		}
		if _, exists := s.entries[p]; !exists {
			s.order = append(s.order, p)
		}
		s.entries[p] = entry
		if err != nil {
			report.Failed[p] = err
			errs = append(errs, err)
			s.log.Warn("label file not read", "path", p, "label", entry.LabelPath, "error", err)
		}

		report.Images++
		report.Boxes += len(entry.Boxes)
		report.Pixel += res.Pixel
		if len(res.Skipped) > 0 {
			report.Skipped[p] = res.Skipped
			s.log.Warn("skipped malformed label lines", "label", entry.LabelPath, "lines", len(res.Skipped))
		}
	}

	s.log.Info("dataset loaded", "images", report.Images, "boxes", report.Boxes, "failed", len(report.Failed))
	return report, errors.Join(errs...)
}

// read builds the entry of img. A nil entry means the image itself failed; a
// non-nil entry with an error means its label file could not be read, the
// entry then has no boxes.
func (s *Store) read(img string) (*types.ImageEntry, labels.Result, error) {
	w, h, err := s.sizer.Size(img)
	if err != nil {
		return nil, labels.Result{}, err
	}
	lbl, exists := s.ResolveLabelPath(img)
	entry := &types.ImageEntry{Path: img, Width: w, Height: h, LabelPath: lbl}

	delete(s.unread, img)
	if !exists {
		return entry, labels.Result{}, nil
	}
	res, err := s.readLabels(lbl, w, h)
	if err != nil {
		s.unread[img] = err
		return entry, labels.Result{}, err
	}
	entry.Boxes = res.Boxes
	return entry, res, nil
}

// Reload re-resolves the label path of img and reads it again, discarding
// unsaved changes.
func (s *Store) Reload(img string) error {
	if _, err := s.get(img); err != nil {
		return err
	}
	entry, res, err := s.read(img)
	if entry == nil {
		return err
	}
	s.entries[img] = entry
	if err != nil {
		s.log.Warn("label file not read", "path", img, "label", entry.LabelPath, "error", err)
		return err
	}
	if len(res.Skipped) > 0 {
		s.log.Warn("skipped malformed label lines", "label", entry.LabelPath, "lines", len(res.Skipped))
	}
	s.log.Debug("image reloaded", "path", img, "label", entry.LabelPath, "boxes", len(entry.Boxes))
	return nil
}

// SetLabelDir changes the label directory override. Loaded images keep their
// label paths until reloaded.
func (s *Store) SetLabelDir(dir string) {
	s.labelDir = dir
}

// ReadError returns the error that kept the label file of img from being
// read, nil when it was read or does not exist.
func (s *Store) ReadError(img string) error { return s.unread[img] }

// LabelDir returns the label directory override.
func (s *Store) LabelDir() string { return s.labelDir }

func (s *Store) get(img string) (*types.ImageEntry, error) {
	e, ok := s.entries[img]
	if !ok {
		return nil, errors.Newf("%s: %w", img, errors.ErrNoImage).
			Component("store").
			Category(errors.CategoryNotFound).
			Context("path", img).
			Build()
	}
	return e, nil
}

func indexError(img string, i, n int) error {
	return errors.Newf("%s: box %d of %d: %w", img, i, n, errors.ErrIndex).
		Component("store").
		Category(errors.CategoryValidation).
		Context("path", img).
		Context("index", i).
		Build()
}

// Paths returns the loaded image paths in load order.
func (s *Store) Paths() []string { return slices.Clone(s.order) }

// Len returns the number of loaded images.
func (s *Store) Len() int { return len(s.order) }

// Entry returns a copy of the entry of img.
func (s *Store) Entry(img string) (types.ImageEntry, bool) {
	e, ok := s.entries[img]
	if !ok {
		return types.ImageEntry{}, false
	}
	out := *e
	out.Boxes = slices.Clone(e.Boxes)
	return out, true
}

// Boxes returns a copy of the boxes of img, nil when img is unknown.
func (s *Store) Boxes(img string) []types.Box {
	e, ok := s.entries[img]
	if !ok {
		return nil
	}
	return slices.Clone(e.Boxes)
}

// Count returns the number of boxes of img.
func (s *Store) Count(img string) int {
	if e, ok := s.entries[img]; ok {
		return len(e.Boxes)
	}
	return 0
}

// Box returns box i of img.
func (s *Store) Box(img string, i int) (types.Box, error) {
	e, err := s.get(img)
	if err != nil {
		return types.Box{}, err
	}
	if i < 0 || i >= len(e.Boxes) {
		return types.Box{}, indexError(img, i, len(e.Boxes))
	}
	return e.Boxes[i], nil
}

// Insert places b at index i of img, 0 <= i <= count.
func (s *Store) Insert(img string, i int, b types.Box) error {
	e, err := s.get(img)
	if err != nil {
		return err
	}
	if i < 0 || i > len(e.Boxes) {
		return indexError(img, i, len(e.Boxes))
	}
	e.Boxes = slices.Insert(e.Boxes, i, b)
	return nil
}

// Append adds b after the last box of img and returns its index.
func (s *Store) Append(img string, b types.Box) (int, error) {
	e, err := s.get(img)
	if err != nil {
		return -1, err
	}
	e.Boxes = append(e.Boxes, b)
	return len(e.Boxes) - 1, nil
}

// Remove deletes box i of img and returns it.
func (s *Store) Remove(img string, i int) (types.Box, error) {
	e, err := s.get(img)
	if err != nil {
		return types.Box{}, err
	}
	if i < 0 || i >= len(e.Boxes) {
		return types.Box{}, indexError(img, i, len(e.Boxes))
	}
	old := e.Boxes[i]
	e.Boxes = slices.Delete(e.Boxes, i, i+1)
	return old, nil
}

// Replace overwrites box i of img and returns the previous value.
func (s *Store) Replace(img string, i int, b types.Box) (types.Box, error) {
	e, err := s.get(img)
	if err != nil {
		return types.Box{}, err
	}
	if i < 0 || i >= len(e.Boxes) {
		return types.Box{}, indexError(img, i, len(e.Boxes))
	}
	old := e.Boxes[i]
	e.Boxes[i] = b
	return old, nil
}

// SaveImmediately writes the label file of img now.
func (s *Store) SaveImmediately(img string) error {
	e, err := s.get(img)
	if err != nil {
		return err
	}
	if rerr := s.unread[img]; rerr != nil {
		return errors.Newf("%s was never read, not overwriting it (%v): %w", e.LabelPath, rerr, errors.ErrUnwritableLabelPath).
			Component("store").
			Category(errors.CategoryState).
			Context("path", img).
			Context("label", e.LabelPath).
			Build()
	}
	if err := labels.WriteFile(e.LabelPath, e.Boxes); err != nil {
		s.log.Error("failed to save labels", "label", e.LabelPath, "error", err)
		return err
	}
	e.Dirty = false
	s.log.Debug("labels saved", "label", e.LabelPath, "boxes", len(e.Boxes))
	return nil
}

// MarkDirty flags img as changed without writing it.
func (s *Store) MarkDirty(img string) error {
	e, err := s.get(img)
	if err != nil {
		return err
	}
	e.Dirty = true
	return nil
}

// IsDirty reports whether img has unsaved changes.
func (s *Store) IsDirty(img string) bool {
	e, ok := s.entries[img]
	return ok && e.Dirty
}

// FlushIfDirty saves img when it has unsaved changes.
func (s *Store) FlushIfDirty(img string) error {
	if !s.IsDirty(img) {
		return nil
	}
	return s.SaveImmediately(img)
}

// FlushAll saves every image with unsaved changes and joins the failures.
func (s *Store) FlushAll() error {
	var errs []error
	for _, p := range s.order {
		if err := s.FlushIfDirty(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dirty returns the paths with unsaved changes.
func (s *Store) Dirty() []string {
	var out []string
	for _, p := range s.order {
		if s.entries[p].Dirty {
			out = append(out, p)
		}
	}
	return out
}

// Summary formats the report for a status line.
func (r LoadReport) Summary() string {
	skipped := 0
	for _, lines := range r.Skipped {
		skipped += len(lines)
	}
	return fmt.Sprintf("Loaded %d boxes from %d images (%d lines skipped, %d images failed)",
		r.Boxes, r.Images, skipped, len(r.Failed))
}

