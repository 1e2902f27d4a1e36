package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/pipeline"
	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/source"
)

// Editor styles
var (
	editorLabelStyle   = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	editorFocusStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	editorBarStyle     = lipgloss.NewStyle().Foreground(colorCyan)
	editorTrackStyle   = lipgloss.NewStyle().Foreground(colorDim)
	editorPanelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
	editorHelpStyle    = lipgloss.NewStyle().Foreground(colorDim)
	editorStatusStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	editorErrorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	editorLoadingStyle = lipgloss.NewStyle().Foreground(colorGray).Italic(true)
)

const (
	barWidth = 24

	// Rows reserved below the preview for controls, stats, status and help.
	chromeRows = 9
	infoRows   = 7 // border, heading and infoLines
)

// infoLines is the fixed text of the collapsible info panel.
var infoLines = []string{
	"How does it work? Open an image, tweak the controls, download the result.",
	"Everything runs locally and the source is open, so nothing leaves your machine.",
	"JPEG and PNG images are supported.",
	"No further features are planned for now.",
}

// =============================================================================
// Controls
// =============================================================================

// control identifies one of the adjustable parameters.
type control int

const (
	controlSlices control = iota
	controlBlur
	controlBrightness
	numControls
)

func (c control) label() string {
	switch c {
	case controlSlices:
		return "Slices"
	case controlBlur:
		return "Blur"
	default:
		return "Brightness"
	}
}

// step moves the focused parameter by dir steps and clamps the result.
func (c control) step(p render.Params, dir int) render.Params {
	switch c {
	case controlSlices:
		p.SliceCount += dir
	case controlBlur:
		p.BlurRadius += 0.5 * float64(dir)
	case controlBrightness:
		p.BrightnessPercent += 5 * dir
	}
	return p.Clamp()
}

// fraction returns where p's value for c sits in its range, in [0, 1].
func (c control) fraction(p render.Params) float64 {
	switch c {
	case controlSlices:
		return float64(p.SliceCount-render.MinSlices) / float64(render.MaxSlices-render.MinSlices)
	case controlBlur:
		return (p.BlurRadius - render.MinBlur) / (render.MaxBlur - render.MinBlur)
	default:
		return float64(p.BrightnessPercent-render.MinBrightness) / float64(render.MaxBrightness-render.MinBrightness)
	}
}

func (c control) value(p render.Params) string {
	switch c {
	case controlSlices:
		return fmt.Sprintf("%d", p.SliceCount)
	case controlBlur:
		return fmt.Sprintf("%.1f px", p.BlurRadius)
	default:
		return fmt.Sprintf("%d%%", p.BrightnessPercent)
	}
}

// =============================================================================
// Messages
// =============================================================================

type sourceLoadedMsg struct {
	img *source.Image
	err error
}

// renderedMsg carries a finished preview. Results whose generation is not
// the latest are dropped, so the newest parameters always win.
type renderedMsg struct {
	gen      uint64
	surface  *render.Surface
	preview  string
	duration time.Duration
	err      error
}

type exportedMsg struct {
	path   string
	bytes  int
	cached bool
	err    error
}

// =============================================================================
// EditorModel
// =============================================================================

// EditorModel is the bubbletea model for the interactive editor.
type EditorModel struct {
	ctx    context.Context
	runner *pipeline.Runner
	opts   pipeline.Options
	future *source.Future
	path   string
	output string

	src    *source.Image
	params render.Params
	focus  control

	// gen is the generation of the latest requested render, shown the one on screen.
	gen   uint64
	shown uint64

	surface    *render.Surface
	preview    string
	renderTime time.Duration
	rendering  bool

	showInfo bool
	width    int
	height   int
	status   string
	err      error
}

// NewEditorModel creates an editor for the image that future resolves to.
// opts supplies the initial parameters, viewport and rendering knobs;
// downloads are written to output.
func NewEditorModel(ctx context.Context, runner *pipeline.Runner, future *source.Future, path string, opts pipeline.Options, output string) EditorModel {
	params := opts.Params
	if params == (render.Params{}) {
		params = render.DefaultParams()
	}
	return EditorModel{
		ctx:    ctx,
		runner: runner,
		opts:   opts,
		future: future,
		path:   path,
		output: output,
		params:   params.Clamp(),
		showInfo: true,
		width:    80,
		height:   24,
	}
}

func (m EditorModel) Init() tea.Cmd {
	future, ctx := m.future, m.ctx
	return func() tea.Msg {
		img, err := future.Wait(ctx)
		return sourceLoadedMsg{img: img, err: err}
	}
}

func (m EditorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		cmd := m.requestRender()
		return m, cmd

	case sourceLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.src = msg.img
		cmd := m.requestRender()
		return m, cmd

	case renderedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.rendering = false
		m.shown = msg.gen
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.surface = msg.surface
		m.preview = msg.preview
		m.renderTime = msg.duration
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.status = ""
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		if msg.bytes == 0 {
			m.status = "Nothing to save: the surface is empty"
			return m, nil
		}
		m.status = fmt.Sprintf("Saved %s (%s)", msg.path, formatBytes(msg.bytes))
		return m, nil
	}
	return m, nil
}

func (m EditorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.focus = (m.focus + numControls - 1) % numControls
	case "down", "j", "tab":
		m.focus = (m.focus + 1) % numControls
	case "left", "h":
		return m.setParams(m.focus.step(m.params, -1))
	case "right", "l":
		return m.setParams(m.focus.step(m.params, +1))
	case "r":
		m.status = "Reset to defaults"
		m.params = render.DefaultParams()
		cmd := m.requestRender()
		return m, cmd
	case "i":
		m.showInfo = !m.showInfo
		cmd := m.requestRender()
		return m, cmd
	case "d":
		if m.src == nil {
			return m, nil
		}
		m.status = "Saving..."
		return m, m.exportCmd()
	}
	return m, nil
}

// setParams replaces the parameters wholesale and re-renders if they changed.
func (m EditorModel) setParams(p render.Params) (tea.Model, tea.Cmd) {
	if p == m.params {
		return m, nil
	}
	m.params = p
	cmd := m.requestRender()
	return m, cmd
}

// requestRender starts a new render generation. There is nothing to render
// until the source has loaded.
func (m *EditorModel) requestRender() tea.Cmd {
	if m.src == nil {
		return nil
	}
	m.gen++
	m.rendering = true

	gen := m.gen
	ctx, runner, src := m.ctx, m.runner, m.src
	opts := m.opts
	opts.Params = m.params
	cols, rows := m.previewSize()

	return func() tea.Msg {
		start := time.Now()
		surface, err := runner.Render(ctx, src, opts)
		if err != nil {
			return renderedMsg{gen: gen, err: err}
		}
		return renderedMsg{
			gen:      gen,
			surface:  surface,
			preview:  halfBlocks(surface.Image, cols, rows),
			duration: time.Since(start),
		}
	}
}

// exportCmd writes the full-size render of the current parameters to the
// output path.
func (m EditorModel) exportCmd() tea.Cmd {
	ctx, runner, src, path := m.ctx, m.runner, m.src, m.output
	opts := m.opts
	opts.Params = m.params
	return func() tea.Msg {
		if err := errors.ValidateOutputPath(path); err != nil {
			return exportedMsg{path: path, err: err}
		}
		res, err := runner.Execute(ctx, src, opts)
		if err != nil {
			return exportedMsg{path: path, err: err}
		}
		if len(res.PNG) == 0 {
			return exportedMsg{path: path}
		}
		if err := os.WriteFile(path, res.PNG, 0o644); err != nil {
			return exportedMsg{path: path, err: fmt.Errorf("write %s: %w", path, err)}
		}
		return exportedMsg{path: path, bytes: len(res.PNG), cached: res.CacheInfo.RenderHit}
	}
}

// previewSize returns the cell area available to the preview.
func (m EditorModel) previewSize() (cols, rows int) {
	cols = max(m.width-2, 8)
	rows = m.height - chromeRows
	if m.showInfo {
		rows -= infoRows
	}
	return cols, max(rows, 4)
}

// Params returns the current parameters.
func (m EditorModel) Params() render.Params { return m.params }

// Err returns the last error shown in the editor.
func (m EditorModel) Err() error { return m.err }

// =============================================================================
// View
// =============================================================================

func (m EditorModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(appName))
	b.WriteString(StyleDim.Render("  " + m.path))
	b.WriteString("\n\n")

	switch {
	case m.src == nil && m.err == nil:
		b.WriteString(editorLoadingStyle.Render("Loading image..."))
	case m.preview != "":
		b.WriteString(m.preview)
	case m.rendering:
		b.WriteString(editorLoadingStyle.Render("Rendering..."))
	}
	b.WriteString("\n\n")

	for c := control(0); c < numControls; c++ {
		b.WriteString(m.viewControl(c))
		b.WriteString("\n")
	}

	if stats := m.viewStats(); stats != "" {
		b.WriteString(stats)
		b.WriteString("\n")
	}

	if m.showInfo {
		b.WriteString(m.viewInfo())
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(editorErrorStyle.Render(iconError + " " + errors.UserMessage(m.err)))
	case m.status != "":
		b.WriteString(editorStatusStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(editorHelpStyle.Render("←/→ adjust  ↑/↓ select  r reset  d download  i info  q quit"))

	return b.String()
}

func (m EditorModel) viewControl(c control) string {
	cursor := "  "
	label := editorLabelStyle.Render(c.label())
	if c == m.focus {
		cursor = editorFocusStyle.Render("▸ ")
		label = editorFocusStyle.Width(12).Render(c.label())
	}

	filled := int(c.fraction(m.params)*barWidth + 0.5)
	filled = min(max(filled, 0), barWidth)
	bar := editorBarStyle.Render(strings.Repeat("━", filled)) +
		editorTrackStyle.Render(strings.Repeat("─", barWidth-filled))

	return cursor + label + " " + bar + " " + StyleValue.Render(c.value(m.params))
}

// viewStats summarises the source and the surface on screen in one line.
func (m EditorModel) viewStats() string {
	var parts []string
	if src := m.src; src != nil {
		parts = append(parts,
			fmt.Sprintf("%s (%s)", src.Name, src.Format),
			fmt.Sprintf("%dx%d", src.Width, src.Height),
			formatBytes(int(src.Size)))
	}
	if s := m.surface; s != nil {
		parts = append(parts,
			fmt.Sprintf("surface %dx%d", s.Width(), s.Height()),
			m.renderTime.Round(time.Millisecond).String())
	}
	if len(parts) == 0 {
		return ""
	}
	parts = append(parts, iconArrow+" "+m.output)
	return joinDim(parts)
}

// viewInfo draws the info panel. Its text is fixed and does not depend on
// the editor state.
func (m EditorModel) viewInfo() string {
	lines := []string{editorFocusStyle.Render("Info:")}
	for _, l := range infoLines {
		lines = append(lines, "• "+l)
	}
	return editorPanelStyle.Render(strings.Join(lines, "\n"))
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
