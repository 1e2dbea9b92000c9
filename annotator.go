// Package annotator reviews and corrects bounding-box labels of an object
// detection dataset.
//
// A dataset is a directory of images with one label file per image, each line
// holding "class cx cy w h" in coordinates normalized to the image size. Open
// discovers the images under the configured root, loads the class names from
// the dataset descriptor and reads every label file:
//
//	cfg := config.Default()
//	cfg.Dataset.Root = "datasets/coco8"
//
//	ws, err := annotator.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fc := ws.Flashcard()
//	for range fc.Len() {
//		fmt.Println(fc.Status())
//		fc.Next()
//	}
//
// Two review styles are available. The flashcard session (pkg/session) steps
// through the dataset one box at a time, frames each box in the viewport,
// saves after every change and keeps an undo history. The editor session
// shows one whole image at a time and saves when another image is opened.
//
// Box proposals for unlabelled images come from pkg/assist, either from a
// local saliency detector or from a vision model served by Ollama or
// llama.cpp. Proposals are added through the flashcard session, so they can
// be undone like any other change.
package annotator

import (
	"context"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Willayat060/data-annotating-tool/internal/config"
	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/internal/logging"
	"github.com/Willayat060/data-annotating-tool/internal/utils"
	"github.com/Willayat060/data-annotating-tool/pkg/assist"
	"github.com/Willayat060/data-annotating-tool/pkg/classes"
	"github.com/Willayat060/data-annotating-tool/pkg/loader"
	"github.com/Willayat060/data-annotating-tool/pkg/render"
	"github.com/Willayat060/data-annotating-tool/pkg/session"
	"github.com/Willayat060/data-annotating-tool/pkg/store"
)

// Version of the annotator
const Version = "1.0.0"

// Workspace is a loaded dataset.
type Workspace struct {
	cfg     *config.Config
	logger  *slog.Logger
	loader  *loader.Loader
	store   *store.Store
	classes classes.List
	images  []string
	report  store.LoadReport
	loadErr error
}

// Open loads the dataset described by cfg without logging.
func Open(cfg *config.Config) (*Workspace, error) {
	return OpenWithLogger(cfg, nil)
}

// OpenWithLogger loads the dataset described by cfg. Images whose dimensions
// or labels cannot be read are left out and listed in Report; only a missing
// root or an unreadable class descriptor fails the call.
func OpenWithLogger(cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.OrDiscard(logger)

	root := cfg.Dataset.Root
	if !utils.DirExists(root) {
		return nil, errors.Newf("dataset root %s is not a directory", root).
			Component("annotator").
			Category(errors.CategoryNotFound).
			Context("root", root).
			Build()
	}

	images, err := utils.ListImageFiles(root)
	if err != nil {
		return nil, errors.New(err).
			Component("annotator").
			Category(errors.CategoryFileIO).
			Context("root", root).
			Build()
	}

	cls, err := loadClasses(root, cfg.Dataset.Descriptor, logger)
	if err != nil {
		return nil, err
	}

	ld := loader.New()
	st := store.New(store.Options{
		LabelDir: cfg.Dataset.LabelDir,
		Sizer:    ld,
		Logger:   logger,
	})
	report, loadErr := st.Load(images)

	return &Workspace{
		cfg:     cfg,
		logger:  logger,
		loader:  ld,
		store:   st,
		classes: cls,
		images:  images,
		report:  report,
		loadErr: loadErr,
	}, nil
}

// loadClasses reads the descriptor named by name. A name with a directory
// part that exists is used as is; otherwise the descriptor is looked up next
// to root. Without one the
// placeholder list classes.Defaults is used.
func loadClasses(root, name string, logger *slog.Logger) (classes.List, error) {
	var path string
	switch {
	case name == "":
		path = classes.FindDescriptor(root, "")
	case filepath.Base(name) != name && utils.FileExists(name):
		path = name
	default:
		path = classes.FindDescriptor(root, filepath.Base(name))
	}
	if path == "" {
		logger.Warn("no class descriptor found, using placeholder names", "root", root, "count", classes.DefaultCount)
		return classes.Defaults(classes.DefaultCount), nil
	}

	cls, err := classes.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("classes loaded", "descriptor", path, "count", len(cls))
	return cls, nil
}

// Config returns the configuration the workspace was opened with.
func (w *Workspace) Config() *config.Config { return w.cfg }

// Images returns every image found under the root, including those that
// failed to load.
func (w *Workspace) Images() []string { return append([]string(nil), w.images...) }

// Classes returns the class names.
func (w *Workspace) Classes() classes.List { return w.classes }

// Store returns the annotation store.
func (w *Workspace) Store() *store.Store { return w.store }

// Report returns the load report and the joined load failures.
func (w *Workspace) Report() (store.LoadReport, error) { return w.report, w.loadErr }

func (w *Workspace) sessionOptions() session.Options {
	v := w.cfg.View
	return session.Options{
		ViewportW: float64(v.ViewportWidth),
		ViewportH: float64(v.ViewportHeight),
		Margin:    v.FrameMargin,
		ZoomMin:   v.ZoomMin,
		ZoomMax:   v.ZoomMax,
		ZoomStep:  v.ZoomStep,
		Logger:    w.logger,
	}
}

// Flashcard starts a box-by-box review session over the whole dataset.
func (w *Workspace) Flashcard() *session.Flashcard {
	return session.NewFlashcard(w.store, w.classes, w.sessionOptions())
}

// Editor starts a whole-image editing session. view.zoom_min applies to
// flashcard review only; the editor zooms out to transform.EditorZoomMin.
func (w *Workspace) Editor() *session.Editor {
	opts := w.sessionOptions()
	opts.ZoomMin = 0
	return session.NewEditor(w.store, w.classes, opts)
}

// LoadImage decodes the image at path.
func (w *Workspace) LoadImage(path string) (image.Image, error) {
	return w.loader.LoadImage(path)
}

// Snapshot renders what the flashcard session currently shows and writes it
// to path in the configured render format.
func (w *Workspace) Snapshot(fc *session.Flashcard, path string) error {
	if fc.Image() == "" {
		return errors.Newf("nothing to render: %w", errors.ErrNoImage).
			Component("annotator").
			Category(errors.CategoryState).
			Build()
	}
	img, err := w.loader.LoadImage(fc.Image())
	if err != nil {
		return err
	}
	vpW, vpH := fc.Viewport()
	out := render.View(img, fc.Transform(), fc.Boxes(), fc.Active(), int(vpW), int(vpH))

	if dir := filepath.Dir(path); dir != "" {
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
	}
	if err := render.Save(out, path, w.cfg.Render.Format, w.cfg.Render.Quality); err != nil {
		return err
	}
	w.logger.Info("view rendered", "image", fc.Image(), "box", fc.Pos(), "out", path)
	return nil
}

// Proposer returns the box proposer selected by the assist configuration.
func (w *Workspace) Proposer() (assist.Proposer, error) {
	a := w.cfg.Assist
	return assist.New(assist.Options{
		Backend: a.Backend,
		URL:     a.URL,
		Model:   a.Model,
		Timeout: a.Timeout,
		Logger:  w.logger,
	})
}

// SuggestReport summarizes a Suggest run.
type SuggestReport struct {
	Candidates int
	Added      int
	NoSubject  []string
	Failed     map[string]error
}

// Suggest asks p for one box on every image that has none and adds each
// proposal through fc, so it lands in the undo history and is saved at once.
// Images where p finds nothing are listed in NoSubject. Failures of single
// images are collected; a save failure or a cancelled ctx stops the run.
func (w *Workspace) Suggest(ctx context.Context, fc *session.Flashcard, p assist.Proposer) (SuggestReport, error) {
	report := SuggestReport{Failed: make(map[string]error)}

	for _, path := range w.store.Paths() {
		if w.store.Count(path) > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Candidates++

		img, err := w.loader.LoadImage(path)
		if err != nil {
			report.Failed[path] = err
			continue
		}
		prop, err := p.Propose(ctx, img)
		switch {
		case errors.Is(err, errors.ErrNoSubject):
			report.NoSubject = append(report.NoSubject, path)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return report, err
			}
			report.Failed[path] = err
			w.logger.Warn("proposal failed", "image", path, "error", err)
			continue
		}

		if err := fc.AddTo(path, prop.Box); err != nil {
			return report, err
		}
		report.Added++
		w.logger.Info("box proposed", "image", path, "source", prop.Source,
			"label", prop.Label, "confidence", prop.Confidence, "box", prop.Box.String())
	}
	return report, nil
}

// WriteDefaultConfig writes the default configuration to path unless a file
// already exists there.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("%s already exists", path).
			Component("annotator").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	return config.Default().SaveToFile(path)
}
