package main

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	annotator "github.com/Willayat060/data-annotating-tool"
	"github.com/Willayat060/data-annotating-tool/internal/config"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// createDataset writes two 80x60 images, a.png with two boxes and b.png with
// one, a descriptor and a config file pointing at them.
func createDataset(t *testing.T) (root, cfgFile string) {
	t.Helper()
	root = t.TempDir()
	for _, n := range []string{"a", "b"} {
		img := imaging.New(80, 60, color.NRGBA{90, 90, 90, 255})
		require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
		require.NoError(t, imaging.Save(img, filepath.Join(root, "images", n+".png")))
	}
	writeFile(t, filepath.Join(root, "labels", "a.txt"),
		"0 0.250000 0.250000 0.200000 0.200000\n1 0.700000 0.600000 0.300000 0.400000\n")
	writeFile(t, filepath.Join(root, "labels", "b.txt"), "2 0.500000 0.500000 0.500000 0.500000\n")
	writeFile(t, filepath.Join(root, "data_cleaned.yaml"), "names:\n  - person\n  - car\n  - dog\n")

	cfg := config.Default()
	cfg.Dataset.Root = root
	cfg.View.ViewportWidth = 160
	cfg.View.ViewportHeight = 120
	cfg.Log.Level = "error"
	cfgFile = filepath.Join(root, "annotator.yaml")
	require.NoError(t, cfg.SaveToFile(cfgFile))
	return root, cfgFile
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	defer a.close()
	cmd := rootCommand(a)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCheckCommand(t *testing.T) {
	root, cfgFile := createDataset(t)

	out, err := run(t, "check", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 3 boxes from 2 images (0 lines skipped, 0 images failed)")

	writeFile(t, filepath.Join(root, "labels", "b.txt"), "2 0.5 0.5 0.5 0.5\nnot a box\n")
	out, err = run(t, "check", "--config", cfgFile)
	require.Error(t, err)
	assert.Contains(t, out, "SKIP "+filepath.Join(root, "labels", "b.txt")+":2:")
	assert.Contains(t, err.Error(), "1 lines malformed")
}

func TestCheckCommandRootArgument(t *testing.T) {
	_, cfgFile := createDataset(t)
	other, _ := createDataset(t)
	require.NoError(t, os.Remove(filepath.Join(other, "labels", "b.txt")))

	out, err := run(t, "check", other, "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 2 boxes from 2 images")
}

func TestLegendCommand(t *testing.T) {
	_, cfgFile := createDataset(t)

	out, err := run(t, "legend", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("images", "a.png")+": [0] person x1, [1] car x1")
	assert.Contains(t, out, filepath.Join("images", "b.png")+": [2] dog x1")
}

func TestRenderCommand(t *testing.T) {
	_, cfgFile := createDataset(t)
	out := filepath.Join(t.TempDir(), "box2.jpg")

	stdout, err := run(t, "render", "--config", cfgFile, "--box", "2", "--out", out, "--format", "jpg")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Box 2/3 : [1] car")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	conf, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 160, conf.Width)
	assert.Equal(t, 120, conf.Height)

	_, err = run(t, "render", "--config", cfgFile, "--box", "9", "--out", out)
	assert.Error(t, err)
}

func TestSuggestCommandNothingToDo(t *testing.T) {
	_, cfgFile := createDataset(t)

	out, err := run(t, "suggest", "--config", cfgFile, "--backend", "saliency")
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 0 unlabelled images got a box (backend saliency)")
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotator.yaml")

	out, err := run(t, "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "saliency", cfg.Assist.Backend)

	_, err = run(t, "init", path)
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	_, cfgFile := createDataset(t)
	_, err := run(t, "render", "--config", cfgFile, "--format", "gif")
	assert.Error(t, err)
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m tea.Model, keys ...tea.KeyMsg) (reviewModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		m, cmd = m.Update(k)
	}
	rm, ok := m.(reviewModel)
	require.True(t, ok)
	return rm, cmd
}

func TestReviewModel(t *testing.T) {
	root, cfgFile := createDataset(t)
	cfg, err := config.LoadFromFile(cfgFile)
	require.NoError(t, err)
	ws, err := annotator.Open(cfg)
	require.NoError(t, err)

	shots := t.TempDir()
	m := newReviewModel(ws, shots)
	assert.Contains(t, m.View(), "Box 1/3 : [0] person")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 2, m.fc.Pos())

	m, _ = press(t, m, keyRunes("c"), keyRunes("do"), keyRunes("g"))
	assert.Equal(t, "dog", m.input)
	assert.Contains(t, m.View(), "[2] dog")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, promptNone, m.prompt)
	assert.Equal(t, "class changed", m.message)
	box, err := m.fc.CurrentBox()
	require.NoError(t, err)
	assert.Equal(t, 2, box.ClassID)

	m, _ = press(t, m, keyRunes("d"))
	assert.Equal(t, 2, m.fc.Len())
	m, _ = press(t, m, keyRunes("u"))
	assert.Equal(t, 3, m.fc.Len())
	assert.Equal(t, "undone", m.message)

	m, _ = press(t, m, keyRunes("u"), keyRunes("u"))
	assert.Equal(t, "nothing to undo", m.message)
	data, err := os.ReadFile(filepath.Join(root, "labels", "a.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1 0.700000 0.600000")

	m, _ = press(t, m, keyRunes("g"), keyRunes("3"), tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 3, m.fc.Pos())
	assert.False(t, m.isErr)

	m, _ = press(t, m, keyRunes("g"), keyRunes("x"), tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.isErr)
	m, _ = press(t, m, keyRunes("p"), keyRunes("7"), tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.isErr)

	m, _ = press(t, m, keyRunes("c"), keyRunes("x"), tea.KeyMsg{Type: tea.KeyBackspace}, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, promptNone, m.prompt)
	assert.Equal(t, 3, m.fc.Pos())

	m, _ = press(t, m, keyRunes("v"))
	require.False(t, m.isErr, m.message)
	assert.True(t, strings.HasPrefix(m.message, "saved "))
	assert.FileExists(t, filepath.Join(shots, "b_box3.png"))

	_, cmd := press(t, m, keyRunes("q"))
	assert.NotNil(t, cmd)
}

func TestMinimap(t *testing.T) {
	boxes := []types.Box{
		{CX: 0.25, CY: 0.25, W: 0.5, H: 0.5},
		{CX: 0.75, CY: 0.75, W: 0.2, H: 0.2},
	}
	got := minimap(boxes, 1, 8, 4)
	assert.Equal(t, []string{
		".....   ",
		".   .   ",
		".....## ",
		"     ## ",
	}, got)
}
