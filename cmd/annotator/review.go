package main

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	annotator "github.com/Willayat060/data-annotating-tool"
	"github.com/Willayat060/data-annotating-tool/internal/utils"
	"github.com/Willayat060/data-annotating-tool/pkg/classes"
	"github.com/Willayat060/data-annotating-tool/pkg/session"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// reviewCommand runs the flashcard review TUI.
func reviewCommand(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "review [root]",
		Short: "Review boxes one at a time",
		Long:  "Step through every box of the dataset, fix classes, delete wrong boxes and undo mistakes. Every change is saved at once.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(args)
			if err != nil {
				return err
			}
			m := newReviewModel(ws, outDir)
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			final, err := p.Run()
			if err != nil {
				return err
			}
			if rm, ok := final.(reviewModel); ok && rm.flushErr != nil {
				return rm.flushErr
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "snapshots", "directory for views rendered with v")
	return cmd
}

type promptKind int

const (
	promptNone promptKind = iota
	promptClass
	promptBox
	promptPage
)

func (p promptKind) label() string {
	switch p {
	case promptClass:
		return "class"
	case promptBox:
		return "go to box"
	case promptPage:
		return "go to page"
	}
	return ""
}

const (
	panStep       = 50.0
	mapCols       = 48
	mapRows       = 16
	maxCandidates = 8
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	mapStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("236")).Padding(0, 1)
)

type reviewModel struct {
	ws     *annotator.Workspace
	fc     *session.Flashcard
	outDir string

	width  int
	height int

	prompt promptKind
	input  string

	message  string
	isErr    bool
	flushErr error
}

func newReviewModel(ws *annotator.Workspace, outDir string) reviewModel {
	report, _ := ws.Report()
	return reviewModel{
		ws:      ws,
		fc:      ws.Flashcard(),
		outDir:  outDir,
		message: report.Summary(),
	}
}

func (m reviewModel) Init() tea.Cmd { return nil }

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		if m.prompt != promptNone {
			return m.updatePrompt(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m *reviewModel) report(err error, okMsg string) {
	if err != nil {
		m.message, m.isErr = err.Error(), true
		return
	}
	m.message, m.isErr = okMsg, false
}

func (m reviewModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.flushErr = m.fc.Flush()
		return m, tea.Quit
	case "right", " ", "n":
		m.fc.Next()
		m.message = ""
	case "left", "b":
		m.fc.Prev()
		m.message = ""
	case "d", "delete":
		m.report(m.fc.Delete(), "box deleted")
	case "c":
		m.prompt, m.input = promptClass, ""
	case "g":
		m.prompt, m.input = promptBox, ""
	case "p":
		m.prompt, m.input = promptPage, ""
	case "u", "ctrl+z":
		ok, err := m.fc.Undo()
		m.report(err, pick(ok, "undone", "nothing to undo"))
	case "r", "ctrl+y":
		ok, err := m.fc.Redo()
		m.report(err, pick(ok, "redone", "nothing to redo"))
	case "+", "=":
		m.fc.ZoomIn()
	case "-":
		m.fc.ZoomOut()
	case "f":
		m.fc.Reframe()
	case "shift+left":
		m.fc.Pan(panStep, 0)
	case "shift+right":
		m.fc.Pan(-panStep, 0)
	case "shift+up":
		m.fc.Pan(0, panStep)
	case "shift+down":
		m.fc.Pan(0, -panStep)
	case "v":
		m.snapshot()
	}
	return m, nil
}

func (m *reviewModel) snapshot() {
	if m.fc.Image() == "" {
		m.report(fmt.Errorf("nothing to render"), "")
		return
	}
	out := utils.GenerateOutputFilename(m.fc.Image(), m.outDir, "", fmt.Sprintf("_box%d", m.fc.Pos()), m.ws.Config().Render.Format)
	m.report(m.ws.Snapshot(m.fc, out), "saved "+out)
}

func (m reviewModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.prompt, m.input = promptNone, ""
	case tea.KeyEnter:
		m.submit()
		m.prompt, m.input = promptNone, ""
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
	return m, nil
}

func (m *reviewModel) submit() {
	input := strings.TrimSpace(m.input)
	switch m.prompt {
	case promptClass:
		m.report(m.fc.Reclass(input), "class changed")
	case promptBox, promptPage:
		n, err := strconv.Atoi(input)
		if err != nil {
			m.report(fmt.Errorf("%q is not a number", input), "")
			return
		}
		if m.prompt == promptBox {
			m.report(m.fc.JumpToBox(n), "")
		} else {
			m.report(m.fc.JumpToPage(n), "")
		}
	}
}

func (m reviewModel) View() string {
	var b strings.Builder
	root := m.ws.Config().Dataset.Root

	header := titleStyle.Render("annotator")
	if img := m.fc.Image(); img != "" {
		header += "  " + relPath(root, img) + dimStyle.Render(fmt.Sprintf("  page %d/%d", m.fc.Page(), m.fc.Pages()))
	}
	b.WriteString(header + "\n\n")
	b.WriteString(statusStyle.Render(m.fc.Status()))
	b.WriteString(dimStyle.Render(fmt.Sprintf("   undo %s  redo %s", mark(m.fc.CanUndo()), mark(m.fc.CanRedo()))) + "\n")

	if box, err := m.fc.CurrentBox(); err == nil {
		fmt.Fprintf(&b, "cx %.3f  cy %.3f  w %.3f  h %.3f", box.CX, box.CY, box.W, box.H)
		if tr := m.fc.Transform(); tr != nil {
			b.WriteString(dimStyle.Render(fmt.Sprintf("   zoom %.2f", tr.View.Zoom)))
		}
		b.WriteString("\n")
		b.WriteString(mapStyle.Render(strings.Join(minimap(m.fc.Boxes(), m.fc.Active(), mapCols, mapRows), "\n")) + "\n")
		b.WriteString(formatLegend(session.Legend(m.fc.Boxes(), m.ws.Classes())) + "\n")
	}
	b.WriteString("\n")

	if m.prompt != promptNone {
		b.WriteString(promptStyle.Render(m.prompt.label()+": "+m.input+"_") + "\n")
		if m.prompt == promptClass {
			b.WriteString(dimStyle.Render(candidates(m.ws.Classes(), m.input)) + "\n")
		}
	} else if m.message != "" {
		style := okStyle
		if m.isErr {
			style = errStyle
		}
		b.WriteString(style.Render(m.message) + "\n")
	}

	b.WriteString(dimStyle.Render("→/space next  ← prev  d delete  c class  u undo  r redo  g box  p page  +/- zoom  f frame  v render  q quit"))
	return b.String()
}

func pick(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func mark(ok bool) string { return pick(ok, "✓", "·") }

func candidates(cls classes.List, filter string) string {
	found := cls.Suggest(filter)
	more := ""
	if len(found) > maxCandidates {
		more = fmt.Sprintf("  (+%d)", len(found)-maxCandidates)
		found = found[:maxCandidates]
	}
	parts := make([]string, len(found))
	for i, c := range found {
		parts[i] = c.String()
	}
	return strings.Join(parts, "  ") + more
}

// minimap draws the boxes of an image on a cols x rows character grid. Box
// outlines use '.', the active box '#'.
func minimap(boxes []types.Box, active, cols, rows int) []string {
	grid := make([][]rune, rows)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(" ", cols))
	}

	cell := func(v float64, n int) int {
		return min(n-1, max(0, int(v*float64(n))))
	}
	draw := func(b types.Box, ch rune) {
		l, t, r, btm := b.Bounds()
		x0, x1 := cell(l, cols), cell(r, cols)
		y0, y1 := cell(t, rows), cell(btm, rows)
		for x := x0; x <= x1; x++ {
			grid[y0][x], grid[y1][x] = ch, ch
		}
		for y := y0; y <= y1; y++ {
			grid[y][x0], grid[y][x1] = ch, ch
		}
	}

	for i, b := range boxes {
		if i != active {
			draw(b, '.')
		}
	}
	if active >= 0 && active < len(boxes) {
		draw(boxes[active], '#')
	}

	out := make([]string, rows)
	for y, row := range grid {
		out[y] = string(row)
	}
	return out
}
