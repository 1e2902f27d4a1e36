package cli

import (
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/pipeline"
	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/source"
)

func testSource(w, h int) *source.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 0xff, 0xff
	}
	return &source.Image{Image: img, Width: w, Height: h, Format: source.FormatPNG, Name: "red.png", Size: 1234}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// newTestEditor returns an editor whose source has loaded, with the first
// render already applied.
func newTestEditor(t *testing.T, output string) EditorModel {
	t.Helper()
	runner := pipeline.NewRunner(nil, nil, log.New(io.Discard))
	src := testSource(40, 20)
	m := NewEditorModel(context.Background(), runner, source.Resolved(src, nil), "red.png", pipeline.Options{}, output)

	loaded := m.Init()()
	m = update(t, m, loaded)
	return m
}

// update applies msg and runs any resulting command synchronously, feeding
// its message back in once.
func update(t *testing.T, m EditorModel, msg tea.Msg) EditorModel {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(EditorModel)
	if cmd != nil {
		if out := cmd(); out != nil {
			next, _ = m.Update(out)
			m = next.(EditorModel)
		}
	}
	return m
}

func TestEditorLoadsAndRenders(t *testing.T) {
	m := newTestEditor(t, "out.png")

	if m.surface == nil || m.surface.Width() != 40 || m.surface.Height() != 20 {
		t.Fatalf("surface = %+v", m.surface)
	}
	if m.preview == "" {
		t.Error("preview not drawn")
	}
	if m.gen != 1 || m.shown != 1 || m.rendering {
		t.Errorf("gen=%d shown=%d rendering=%v", m.gen, m.shown, m.rendering)
	}
	if m.Params() != render.DefaultParams() {
		t.Errorf("Params() = %+v", m.Params())
	}
}

func TestEditorLoadError(t *testing.T) {
	runner := pipeline.NewRunner(nil, nil, log.New(io.Discard))
	loadErr := errors.New(errors.ErrCodeDecode, "bad image")
	m := NewEditorModel(context.Background(), runner, source.Resolved(nil, loadErr), "x.png", pipeline.Options{}, "out.png")

	m = update(t, m, m.Init()())
	if m.Err() == nil || !errors.Is(m.Err(), errors.ErrCodeDecode) {
		t.Fatalf("Err() = %v", m.Err())
	}
	if !strings.Contains(m.View(), "bad image") {
		t.Error("view does not show the load error")
	}

	// Nothing to render or save without a source.
	next, cmd := m.Update(key("d"))
	if cmd != nil || next.(EditorModel).status != "" {
		t.Error("download without a source should do nothing")
	}
}

func TestEditorAdjustsFocusedControl(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want render.Params
	}{
		{"slices up", []string{"right"}, render.Params{SliceCount: 26, BlurRadius: 0, BrightnessPercent: 100}},
		{"slices down vim", []string{"h", "h"}, render.Params{SliceCount: 23, BlurRadius: 0, BrightnessPercent: 100}},
		{"blur up", []string{"down", "l", "l"}, render.Params{SliceCount: 25, BlurRadius: 1, BrightnessPercent: 100}},
		{"brightness down", []string{"j", "j", "left"}, render.Params{SliceCount: 25, BlurRadius: 0, BrightnessPercent: 95}},
		{"focus wraps up", []string{"up", "right"}, render.Params{SliceCount: 25, BlurRadius: 0, BrightnessPercent: 105}},
		{"blur clamps at zero", []string{"tab", "left"}, render.DefaultParams()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestEditor(t, "out.png")
			for _, k := range tt.keys {
				m = update(t, m, key(k))
			}
			if m.Params() != tt.want {
				t.Errorf("Params() = %+v, want %+v", m.Params(), tt.want)
			}
		})
	}
}

func TestEditorClampsAtRangeEnds(t *testing.T) {
	m := newTestEditor(t, "out.png")
	m.params.SliceCount = render.MaxSlices
	m = update(t, m, key("right"))
	if m.params.SliceCount != render.MaxSlices {
		t.Errorf("slices = %d, want %d", m.params.SliceCount, render.MaxSlices)
	}

	gen := m.gen
	if _, cmd := m.Update(key("right")); cmd != nil {
		t.Error("unchanged params should not re-render")
	}
	if m.gen != gen {
		t.Errorf("gen moved to %d", m.gen)
	}
}

func TestEditorDropsStaleRenders(t *testing.T) {
	m := newTestEditor(t, "out.png")

	next, first := m.Update(key("right"))
	m = next.(EditorModel)
	next, second := m.Update(key("right"))
	m = next.(EditorModel)
	if m.gen != 3 {
		t.Fatalf("gen = %d, want 3", m.gen)
	}

	stale, fresh := first(), second()

	next, _ = m.Update(stale)
	m = next.(EditorModel)
	if m.shown != 1 || !m.rendering {
		t.Errorf("stale render applied: shown=%d rendering=%v", m.shown, m.rendering)
	}

	next, _ = m.Update(fresh)
	m = next.(EditorModel)
	if m.shown != 3 || m.rendering {
		t.Errorf("fresh render not applied: shown=%d rendering=%v", m.shown, m.rendering)
	}
	if got := m.surface.Plan.Slices; len(got) != 27 {
		t.Errorf("shown plan has %d slices, want 27", len(got))
	}
}

func TestEditorReset(t *testing.T) {
	m := newTestEditor(t, "out.png")
	m = update(t, m, key("l"))
	m = update(t, m, key("j"))
	m = update(t, m, key("l"))
	if m.Params() == render.DefaultParams() {
		t.Fatal("params did not change")
	}

	m = update(t, m, key("r"))
	if m.Params() != render.DefaultParams() {
		t.Errorf("Params() after reset = %+v", m.Params())
	}
	if m.status != "Reset to defaults" {
		t.Errorf("status = %q", m.status)
	}

	// Reset re-renders even when already at the defaults.
	gen := m.gen
	m = update(t, m, key("r"))
	if m.gen != gen+1 {
		t.Errorf("gen = %d, want %d", m.gen, gen+1)
	}
}

func TestEditorInfoPanel(t *testing.T) {
	m := newTestEditor(t, "renders/out.png")
	if !m.showInfo {
		t.Fatal("info panel should be open by default")
	}
	view := m.View()
	for _, line := range infoLines {
		if !strings.Contains(view, line) {
			t.Errorf("open panel missing %q", line)
		}
	}

	_, rowsOpen := m.previewSize()
	m = update(t, m, key("i"))
	_, rowsClosed := m.previewSize()
	if m.showInfo || rowsClosed <= rowsOpen {
		t.Errorf("showInfo=%v rows %d -> %d", m.showInfo, rowsOpen, rowsClosed)
	}
	if view := m.View(); strings.Contains(view, infoLines[0]) || strings.Contains(view, "Info:") {
		t.Error("closed panel still drawn")
	}

	m = update(t, m, key("i"))
	if !m.showInfo || !strings.Contains(m.View(), infoLines[2]) {
		t.Error("second toggle should show the panel again")
	}
}

func TestEditorInfoPanelIsStatic(t *testing.T) {
	m := newTestEditor(t, "out.png")
	before := m.viewInfo()

	m = update(t, m, key("right"))
	m = update(t, m, key("j"))
	m = update(t, m, key("l"))
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	if got := m.viewInfo(); got != before {
		t.Errorf("info panel changed with editor state:\n%s\nvs\n%s", before, got)
	}
}

func TestEditorStatsLine(t *testing.T) {
	m := newTestEditor(t, "renders/out.png")

	stats := m.viewStats()
	for _, want := range []string{"red.png (png)", "40x20", "1.2 KB", "surface 40x20", "renders/out.png"} {
		if !strings.Contains(stats, want) {
			t.Errorf("stats line missing %q: %q", want, stats)
		}
	}

	m = update(t, m, key("i"))
	if !strings.Contains(m.View(), "surface 40x20") {
		t.Error("stats line hidden with the info panel")
	}
}

func TestEditorDownload(t *testing.T) {
	out := filepath.Join(t.TempDir(), "export.png")
	m := newTestEditor(t, out)
	m = update(t, m, key("down"))
	m = update(t, m, key("right"))

	m = update(t, m, key("d"))
	if m.Err() != nil {
		t.Fatalf("Err() = %v", m.Err())
	}
	if !strings.HasPrefix(m.status, "Saved "+out) {
		t.Errorf("status = %q", m.status)
	}

	img := readPNG(t, out)
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("exported %dx%d, want 40x20", b.Dx(), b.Dy())
	}
}

func TestEditorDownloadRejectsPath(t *testing.T) {
	m := newTestEditor(t, "out.jpg")
	m = update(t, m, key("d"))
	if !errors.Is(m.Err(), errors.ErrCodeInvalidPath) {
		t.Errorf("Err() = %v, want INVALID_PATH", m.Err())
	}
	if _, err := os.Stat("out.jpg"); err == nil {
		t.Error("file written despite invalid path")
	}
}

func TestEditorWindowResize(t *testing.T) {
	m := newTestEditor(t, "out.png")
	m = update(t, m, tea.WindowSizeMsg{Width: 20, Height: 18})

	// The open info panel leaves only the minimum preview height.
	cols, rows := m.previewSize()
	if cols != 18 || rows != 4 {
		t.Errorf("previewSize() = %d, %d, want 18, 4", cols, rows)
	}
	// 40x20 fits 18 columns by 8 pixel rows as 16x8, so 4 text rows.
	if lines := strings.Count(m.preview, "\n") + 1; lines != 4 {
		t.Errorf("preview has %d lines, want 4", lines)
	}

	m = update(t, m, key("i"))
	if cols, rows = m.previewSize(); cols != 18 || rows != 9 {
		t.Errorf("previewSize() without panel = %d, %d, want 18, 9", cols, rows)
	}
	// 18x18 pixel box fits 18x9, so 5 text rows.
	if lines := strings.Count(m.preview, "\n") + 1; lines != 5 {
		t.Errorf("preview has %d lines, want 5", lines)
	}
}

func TestEditorQuit(t *testing.T) {
	m := newTestEditor(t, "out.png")
	for _, k := range []string{"q", "esc"} {
		var msg tea.KeyMsg
		if k == "esc" {
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		} else {
			msg = key(k)
		}
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("%s: no command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: command is not quit", k)
		}
	}
}

func TestControlFraction(t *testing.T) {
	p := render.Params{SliceCount: render.MaxSlices, BlurRadius: 5, BrightnessPercent: 0}
	tests := []struct {
		c     control
		want  float64
		value string
	}{
		{controlSlices, 1, "100"},
		{controlBlur, 0.5, "5.0 px"},
		{controlBrightness, 0, "0%"},
	}
	for _, tt := range tests {
		t.Run(tt.c.label(), func(t *testing.T) {
			if got := tt.c.fraction(p); got != tt.want {
				t.Errorf("fraction() = %v, want %v", got, tt.want)
			}
			if got := tt.c.value(p); got != tt.value {
				t.Errorf("value() = %q, want %q", got, tt.value)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 << 20, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestHalfBlocks(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 0xff, A: 0xff})
		}
	}

	out := halfBlocks(img, 4, 2)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if n := strings.Count(out, "▀"); n != 8 {
		t.Errorf("got %d cells, want 8", n)
	}

	if halfBlocks(nil, 4, 2) != "" || halfBlocks(img, 0, 2) != "" || halfBlocks(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 4, 2) != "" {
		t.Error("degenerate input should draw nothing")
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   color.NRGBA
		want color.NRGBA
	}{
		{"opaque kept", color.NRGBA{R: 10, G: 20, B: 30, A: 0xff}, color.NRGBA{R: 10, G: 20, B: 30, A: 0xff}},
		{"transparent is background", color.NRGBA{R: 0xff, A: 0}, previewBackground},
		{"half over background", color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x80}, color.NRGBA{R: 0x8e, G: 0x8e, B: 0x8e, A: 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flatten(tt.in); got != tt.want {
				t.Errorf("flatten(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
