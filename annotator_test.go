package annotator

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Willayat060/data-annotating-tool/internal/config"
	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/pkg/assist"
	"github.com/Willayat060/data-annotating-tool/pkg/classes"
)

// createTestImage draws a white square spanning [x0,x1) x [y0,y1) over a dark
// background. An empty square gives a uniform image.
func createTestImage(w, h, x0, y0, x1, y1 int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{40, 40, 40, 255}
			if x >= x0 && x < x1 && y >= y0 && y < y1 {
				c = color.NRGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// createDataset lays out a.png with one labelled box, b.png with an unlabelled
// square and a uniform c.png, plus a class descriptor.
func createDataset(t *testing.T) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()
	imgDir := filepath.Join(root, "images")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))

	require.NoError(t, imaging.Save(createTestImage(100, 100, 30, 30, 60, 60), filepath.Join(imgDir, "a.png")))
	require.NoError(t, imaging.Save(createTestImage(100, 100, 40, 20, 70, 50), filepath.Join(imgDir, "b.png")))
	require.NoError(t, imaging.Save(createTestImage(100, 100, 0, 0, 0, 0), filepath.Join(imgDir, "c.png")))

	writeFile(t, filepath.Join(root, "labels", "a.txt"), "1 0.450000 0.450000 0.300000 0.300000\n")
	writeFile(t, filepath.Join(root, classes.DefaultDescriptor), "names:\n  - person\n  - square\n")

	cfg := config.Default()
	cfg.Dataset.Root = root
	cfg.View.ViewportWidth = 200
	cfg.View.ViewportHeight = 160
	return root, cfg
}

func TestOpen(t *testing.T) {
	root, cfg := createDataset(t)

	ws, err := Open(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "images", "a.png"),
		filepath.Join(root, "images", "b.png"),
		filepath.Join(root, "images", "c.png"),
	}, ws.Images())
	assert.Equal(t, classes.List{"person", "square"}, ws.Classes())
	assert.Equal(t, 3, ws.Store().Len())

	report, loadErr := ws.Report()
	assert.NoError(t, loadErr)
	assert.Equal(t, 3, report.Images)
	assert.Equal(t, 1, report.Boxes)
	assert.Empty(t, report.Failed)

	fc := ws.Flashcard()
	assert.Equal(t, 1, fc.Len())
	assert.Equal(t, "Box 1/1 : [1] square", fc.Status())

	ed := ws.Editor()
	assert.Equal(t, 1, ed.Page())
	assert.Equal(t, 3, ed.Pages())
}

func TestOpenErrors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		cfg := config.Default()
		cfg.Dataset.Root = filepath.Join(t.TempDir(), "nope")
		_, err := Open(cfg)
		require.Error(t, err)
		assert.Equal(t, errors.CategoryNotFound, errors.CategoryOf(err))
	})

	t.Run("bad descriptor", func(t *testing.T) {
		root, cfg := createDataset(t)
		writeFile(t, filepath.Join(root, classes.DefaultDescriptor), "names: [\n")
		_, err := Open(cfg)
		assert.Error(t, err)
	})
}

func TestOpenWithoutDescriptor(t *testing.T) {
	root, cfg := createDataset(t)
	require.NoError(t, os.Remove(filepath.Join(root, classes.DefaultDescriptor)))

	ws, err := Open(cfg)
	require.NoError(t, err)
	assert.Len(t, ws.Classes(), classes.DefaultCount)
	assert.Equal(t, "Class 1", ws.Classes().Name(1))
}

func TestOpenExplicitDescriptor(t *testing.T) {
	root, cfg := createDataset(t)
	other := filepath.Join(root, "meta", "classes.yaml")
	writeFile(t, other, "names:\n  0: cat\n  2: dog\n")
	cfg.Dataset.Descriptor = other

	ws, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, classes.List{"cat", "?", "dog"}, ws.Classes())
}

func TestOpenReportsUnreadableImages(t *testing.T) {
	root, cfg := createDataset(t)
	broken := filepath.Join(root, "images", "broken.png")
	writeFile(t, broken, "not an image")

	ws, err := Open(cfg)
	require.NoError(t, err)

	assert.Len(t, ws.Images(), 4)
	assert.Equal(t, 3, ws.Store().Len())
	report, loadErr := ws.Report()
	assert.Error(t, loadErr)
	assert.Contains(t, report.Failed, broken)
}

func TestSnapshot(t *testing.T) {
	_, cfg := createDataset(t)
	ws, err := Open(cfg)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "shots", "view.png")
	require.NoError(t, ws.Snapshot(ws.Flashcard(), out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	conf, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 200, conf.Width)
	assert.Equal(t, 160, conf.Height)
}

func TestSnapshotWithoutBoxes(t *testing.T) {
	root, cfg := createDataset(t)
	require.NoError(t, os.Remove(filepath.Join(root, "labels", "a.txt")))
	ws, err := Open(cfg)
	require.NoError(t, err)

	err = ws.Snapshot(ws.Flashcard(), filepath.Join(t.TempDir(), "view.png"))
	assert.ErrorIs(t, err, errors.ErrNoImage)
}

func TestSuggest(t *testing.T) {
	root, cfg := createDataset(t)
	ws, err := Open(cfg)
	require.NoError(t, err)
	fc := ws.Flashcard()

	report, err := ws.Suggest(context.Background(), fc, assist.NewSaliency())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, []string{filepath.Join(root, "images", "c.png")}, report.NoSubject)
	assert.Empty(t, report.Failed)

	bPath := filepath.Join(root, "images", "b.png")
	boxes := ws.Store().Boxes(bPath)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.55, boxes[0].CX, 0.03)
	assert.InDelta(t, 0.35, boxes[0].CY, 0.03)
	assert.InDelta(t, 0.30, boxes[0].W, 0.04)

	label := filepath.Join(root, "labels", "b.txt")
	data, err := os.ReadFile(label)
	require.NoError(t, err)
	assert.NotEmpty(t, string(data))
	assert.Equal(t, 2, fc.Len())

	undone, err := fc.Undo()
	require.NoError(t, err)
	assert.True(t, undone)
	data, err = os.ReadFile(label)
	require.NoError(t, err)
	assert.Empty(t, string(data))
}

func TestSuggestCancelled(t *testing.T) {
	_, cfg := createDataset(t)
	ws, err := Open(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := ws.Suggest(ctx, ws.Flashcard(), assist.NewSaliency())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Added)
}

func TestProposer(t *testing.T) {
	_, cfg := createDataset(t)
	ws, err := Open(cfg)
	require.NoError(t, err)

	p, err := ws.Proposer()
	require.NoError(t, err)
	assert.IsType(t, &assist.Saliency{}, p)

	cfg.Assist.Backend = "llamacpp"
	p, err = ws.Proposer()
	require.NoError(t, err)
	assert.IsType(t, &assist.ModelProposer{}, p)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "annotator.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().View, cfg.View)

	assert.Error(t, WriteDefaultConfig(path))
}
