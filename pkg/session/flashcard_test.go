package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/pkg/classes"
	"github.com/Willayat060/data-annotating-tool/pkg/loader"
	"github.com/Willayat060/data-annotating-tool/pkg/store"
	"github.com/Willayat060/data-annotating-tool/pkg/transform"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

var names = classes.List{"person", "car", "dog"}

const (
	labelsA = "0 0.200000 0.200000 0.100000 0.100000\n" +
		"1 0.500000 0.500000 0.200000 0.200000\n" +
		"2 0.800000 0.800000 0.100000 0.100000\n"
	labelsC = "1 0.300000 0.300000 0.200000 0.200000\n" +
		"0 0.600000 0.600000 0.200000 0.200000\n"
)

type fixture struct {
	root  string
	imgs  []string
	store *store.Store
}

func (fx fixture) label(name string) string {
	return filepath.Join(fx.root, "labels", name+".txt")
}

func (fx fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(fx.label(name))
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newFixture lays out three 100x100 images: a with three boxes, b with none
// and c with two.
func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	fx := fixture{root: root}
	for _, n := range []string{"a", "b", "c"} {
		p := filepath.Join(root, "images", n+".jpg")
		writeFile(t, p, "")
		fx.imgs = append(fx.imgs, p)
	}
	writeFile(t, fx.label("a"), labelsA)
	writeFile(t, fx.label("c"), labelsC)

	fx.store = store.New(store.Options{
		Sizer: loader.SizerFunc(func(string) (int, int, error) { return 100, 100, nil }),
	})
	_, err := fx.store.Load(fx.imgs)
	require.NoError(t, err)
	return fx
}

func entry(path string, i int) types.Entry {
	return types.Entry{ImagePath: path, BoxIndex: i}
}

func current(t *testing.T, f *Flashcard) types.Entry {
	t.Helper()
	cur, ok := f.Current()
	require.True(t, ok)
	return cur
}

func TestFlashcardNavigation(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())

	assert.Equal(t, 5, f.Len())
	assert.Equal(t, 1, f.Pos())
	assert.Equal(t, 1, f.Page())
	assert.Equal(t, 3, f.Pages())
	assert.Equal(t, "Box 1/5 : [0] person", f.Status())

	for range 10 {
		f.Next()
	}
	assert.Equal(t, 5, f.Pos(), "no wraparound")
	assert.Equal(t, fx.imgs[2], f.Image())
	f.Prev()
	assert.Equal(t, entry(fx.imgs[2], 0), current(t, f))

	assert.ErrorIs(t, f.JumpToBox(0), errors.ErrOutOfRange)
	assert.ErrorIs(t, f.JumpToBox(6), errors.ErrOutOfRange)
	assert.Equal(t, 4, f.Pos(), "pointer unchanged")
	require.NoError(t, f.JumpToBox(1))
	require.NoError(t, f.JumpToBox(5))

	assert.ErrorIs(t, f.JumpToPage(2), errors.ErrNoBoxesOnPage)
	assert.ErrorIs(t, f.JumpToPage(4), errors.ErrOutOfRange)
	assert.Equal(t, 5, f.Pos())
	require.NoError(t, f.JumpToPage(1))
	assert.Equal(t, entry(fx.imgs[0], 0), current(t, f))
}

func TestFlashcardFramesCurrentBox(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())

	for range 4 {
		b, err := f.CurrentBox()
		require.NoError(t, err)
		vx, vy := f.Transform().NormalizedToView(b.CX, b.CY)
		assert.InDelta(t, 500, vx, 1)
		assert.InDelta(t, 400, vy, 1)
		f.Next()
	}

	// Zoom stays within the flashcard range: 800/(20*3) = 13.3 clamps to 10.
	require.NoError(t, f.JumpToBox(2))
	assert.Equal(t, transform.ZoomMax, f.Transform().View.Zoom)
}

func TestFlashcardDeleteUndoRedo(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())
	require.NoError(t, f.JumpToBox(2))

	require.NoError(t, f.Delete())
	assert.Equal(t, 4, f.Len())
	assert.Equal(t, entry(fx.imgs[0], 1), current(t, f), "cursor rests on the following box")
	assert.Equal(t, "0 0.200000 0.200000 0.100000 0.100000\n2 0.800000 0.800000 0.100000 0.100000\n", fx.read(t, "a"))

	ok, err := f.Undo()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, f.Len())
	assert.Equal(t, labelsA, fx.read(t, "a"))
	b, err := f.CurrentBox()
	require.NoError(t, err)
	assert.Equal(t, 1, b.ClassID, "restored box is under the cursor")

	want := []types.Entry{
		entry(fx.imgs[0], 0), entry(fx.imgs[0], 1), entry(fx.imgs[0], 2),
		entry(fx.imgs[2], 0), entry(fx.imgs[2], 1),
	}
	assert.Equal(t, want, f.queue.Entries())

	ok, err = f.Redo()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, f.Len())
	assert.Equal(t, 2, strings.Count(fx.read(t, "a"), "\n"))
}

func TestFlashcardAddUndoRedo(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())

	nb := types.Box{ClassID: 1, CX: 0.4, CY: 0.4, W: 0.1, H: 0.1}
	require.NoError(t, f.Add(nb))
	assert.Equal(t, 6, f.Len())
	assert.Equal(t, 2, f.Pos())
	assert.Equal(t, entry(fx.imgs[0], 3), current(t, f))
	assert.Equal(t, labelsA+"1 0.400000 0.400000 0.100000 0.100000\n", fx.read(t, "a"))

	ok, err := f.Undo()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, f.Len())
	assert.Equal(t, entry(fx.imgs[0], 0), current(t, f), "back on the box before the added one")
	assert.Equal(t, labelsA, fx.read(t, "a"))

	ok, err = f.Redo()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry(fx.imgs[0], 3), current(t, f))

	assert.Error(t, f.Add(types.Box{CX: 0.5, CY: 0.5}), "zero-area box")
}

func TestFlashcardAddToEmptyImage(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())
	require.NoError(t, f.JumpToBox(3))

	require.NoError(t, f.AddTo(fx.imgs[1], types.Box{ClassID: 2, CX: 0.5, CY: 0.5, W: 0.5, H: 0.5}))
	assert.Equal(t, entry(fx.imgs[1], 0), current(t, f))
	assert.Equal(t, fx.imgs[1], f.Image())
	assert.Equal(t, "2 0.500000 0.500000 0.500000 0.500000\n", fx.read(t, "b"))

	f.Next()
	require.NoError(t, f.JumpToPage(2))
	assert.Equal(t, 4, f.Pos())

	assert.ErrorIs(t, f.AddTo("missing.jpg", types.Box{W: 0.1, H: 0.1}), errors.ErrNoImage)
}

func TestFlashcardAddFromView(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())

	assert.ErrorIs(t, f.AddFromView(0, 0, 50, 50, "zebra"), errors.ErrUnresolvedClass)
	assert.Equal(t, 5, f.Len())
	assert.False(t, f.CanUndo())

	require.NoError(t, f.AddFromView(450, 350, 550, 450, "Car"))
	b, err := f.CurrentBox()
	require.NoError(t, err)
	assert.Equal(t, 1, b.ClassID)
	assert.InDelta(t, 0.2, b.CX, 1e-9, "view center maps to the framed box center")
	assert.InDelta(t, 0.2, b.CY, 1e-9)
}

func TestFlashcardReclassAndResize(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())

	require.NoError(t, f.Reclass("2"))
	assert.Equal(t, "Box 1/5 : [2] dog", f.Status())
	assert.True(t, strings.HasPrefix(fx.read(t, "a"), "2 0.200000"))

	assert.ErrorIs(t, f.Reclass("unicorn"), errors.ErrUnresolvedClass)

	r := f.Transform().BoxToView(mustBox(t, f))
	c, ok := f.HandleAt(r.Left+2, r.Top-2)
	require.True(t, ok)
	assert.Equal(t, transform.TopLeft, c)
	_, ok = f.HandleAt((r.Left+r.Right)/2, (r.Top+r.Bottom)/2)
	assert.False(t, ok)

	require.NoError(t, f.ResizeCorner(transform.BottomRight, r.Right+r.Width(), r.Bottom+r.Height()))
	b := mustBox(t, f)
	assert.InDelta(t, 0.2, b.W, 1e-9)
	assert.InDelta(t, 0.25, b.CX, 1e-9)
	assert.Equal(t, 2, b.ClassID)

	assert.Error(t, f.ResizeCorner(transform.BottomRight, r.Left, r.Bottom), "zero-width result")

	for f.CanUndo() {
		_, err := f.Undo()
		require.NoError(t, err)
	}
	assert.Equal(t, labelsA, fx.read(t, "a"))
}

func mustBox(t *testing.T, f *Flashcard) types.Box {
	t.Helper()
	b, err := f.CurrentBox()
	require.NoError(t, err)
	return b
}

func TestFlashcardUndoAllRestoresDataset(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())
	boxesOf := func(p string) []types.Box {
		return append([]types.Box{}, fx.store.Boxes(p)...)
	}
	before := map[string][]types.Box{}
	for _, p := range fx.imgs {
		before[p] = boxesOf(p)
	}

	require.NoError(t, f.Delete())
	require.NoError(t, f.Reclass("person"))
	require.NoError(t, f.Add(types.Box{ClassID: 1, CX: 0.1, CY: 0.9, W: 0.05, H: 0.05}))
	require.NoError(t, f.JumpToPage(3))
	require.NoError(t, f.Delete())
	require.NoError(t, f.AddTo(fx.imgs[1], types.Box{ClassID: 0, CX: 0.5, CY: 0.5, W: 0.3, H: 0.3}))
	require.NoError(t, f.JumpToBox(1))
	require.NoError(t, f.Delete())
	require.NoError(t, f.Reclass("car"))

	undone := 0
	for {
		ok, err := f.Undo()
		require.NoError(t, err)
		if !ok {
			break
		}
		undone++
	}
	assert.Equal(t, 7, undone)

	for _, p := range fx.imgs {
		assert.Equal(t, before[p], boxesOf(p), p)
	}
	assert.Equal(t, labelsA, fx.read(t, "a"))
	assert.Equal(t, labelsC, fx.read(t, "c"))
	assert.Equal(t, "", fx.read(t, "b"))
	assert.Equal(t, 5, f.Len())
}

func TestFlashcardBranchDiscard(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())

	require.NoError(t, f.Reclass("car"))
	require.NoError(t, f.Reclass("dog"))
	_, err := f.Undo()
	require.NoError(t, err)
	_, err = f.Undo()
	require.NoError(t, err)
	assert.True(t, f.CanRedo())

	require.NoError(t, f.Reclass("person"))
	assert.False(t, f.CanRedo())
	ok, err := f.Redo()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlashcardSaveFailureSurfaces(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())

	// A plain file where the label directory should be blocks every write.
	require.NoError(t, os.RemoveAll(filepath.Join(fx.root, "labels")))
	writeFile(t, filepath.Join(fx.root, "labels"), "")

	err := f.Delete()
	assert.ErrorIs(t, err, errors.ErrUnwritableLabelPath)
	assert.Equal(t, 4, f.Len(), "change kept in memory")
	assert.True(t, f.CanUndo())
	assert.True(t, fx.store.IsDirty(fx.imgs[0]))

	require.NoError(t, os.Remove(filepath.Join(fx.root, "labels")))
	require.NoError(t, f.Flush())
	assert.False(t, fx.store.IsDirty(fx.imgs[0]))
	assert.Equal(t, 2, strings.Count(fx.read(t, "a"), "\n"))
}

func TestFlashcardEmptyDataset(t *testing.T) {
	st := store.New(store.Options{})
	f := NewFlashcard(st, names, Options{})

	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 0, f.Pos())
	assert.Equal(t, "No boxes", f.Status())
	assert.Nil(t, f.Transform())
	assert.ErrorIs(t, f.Delete(), errors.ErrOutOfRange)
	assert.ErrorIs(t, f.Add(types.Box{W: 1, H: 1}), errors.ErrOutOfRange)
	ok, err := f.Undo()
	assert.NoError(t, err)
	assert.False(t, ok)
	f.Next()
	f.ZoomIn()
	f.Pan(10, 10)
}

func TestFlashcardZoomAndPan(t *testing.T) {
	fx := newFixture(t)
	f := NewFlashcard(fx.store, names, DefaultOptions())
	tr := f.Transform()
	z := tr.View.Zoom

	f.ZoomOut()
	assert.InDelta(t, z/1.1, tr.View.Zoom, 1e-9)
	b := mustBox(t, f)
	vx, vy := tr.NormalizedToView(b.CX, b.CY)
	assert.InDelta(t, 500, vx, 1e-6, "zoom keeps the viewport center fixed")
	assert.InDelta(t, 400, vy, 1e-6)

	f.Pan(30, -20)
	vx2, vy2 := tr.NormalizedToView(b.CX, b.CY)
	assert.InDelta(t, vx+30, vx2, 1e-6)
	assert.InDelta(t, vy-20, vy2, 1e-6)

	f.Reframe()
	vx, _ = tr.NormalizedToView(b.CX, b.CY)
	assert.InDelta(t, 500, vx, 1)
}
