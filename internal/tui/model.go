package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mergeflow/internal/pipeline"
	"mergeflow/internal/render"
	"mergeflow/internal/resolve"
)

// ── Styles ──────────────────────────────────────────────────────────────────

const pad = 2 // horizontal padding on each side

var (
	frameStyle  = lipgloss.NewStyle().Padding(1, pad)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	activeTab   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")).Underline(true)
	inactiveTab = dimStyle
)

type view int

const (
	viewDetect view = iota
	viewResolved
)

// ── Model ───────────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the merge viewer. The detect view shows
// the merged document with conflict markers; the resolved view shows the
// spliced result once resolution finished.
type Model struct {
	runner   *pipeline.Runner
	session  *pipeline.Session
	renderer *render.Renderer

	view          view
	detectLines   []string
	resolvedLines []string
	offset        int

	detecting bool
	resolving bool
	status    string
	err       error

	width  int
	height int
}

func NewModel(runner *pipeline.Runner, session *pipeline.Session, renderer *render.Renderer) Model {
	m := Model{runner: runner, session: session, renderer: renderer}
	m.refreshLines()
	return m
}

// ── Messages ────────────────────────────────────────────────────────────────

type detectedMsg struct {
	session pipeline.Session
	err     error
}

type resolvedMsg struct {
	session pipeline.Session
	report  resolve.Report
	err     error
}

type clearedMsg struct {
	session pipeline.Session
}

// ── Init / Commands ─────────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	if m.session.Detected() {
		return nil
	}
	return m.detect
}

// Commands work on a copy of the session so View never races them.

func (m Model) detect() tea.Msg {
	s := *m.session
	err := m.runner.Reload(context.Background(), &s)
	return detectedMsg{session: s, err: err}
}

func (m Model) resolve() tea.Msg {
	s := *m.session
	report, err := m.runner.Resolve(context.Background(), &s)
	return resolvedMsg{session: s, report: report, err: err}
}

func (m Model) clear() tea.Msg {
	s := *m.session
	m.runner.Clear(context.Background(), &s)
	return clearedMsg{session: s}
}

// ── Update ──────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case detectedMsg:
		m.detecting = false
		m.session = &msg.session
		m.err = msg.err
		m.view = viewDetect
		m.offset = 0
		m.refreshLines()
		if msg.err == nil {
			m.status = m.detectStatus()
		}
	case resolvedMsg:
		m.resolving = false
		if msg.err != nil {
			m.status = errStyle.Render("Resolve failed: " + msg.err.Error())
			break
		}
		m.session = &msg.session
		m.refreshLines()
		m.view = viewResolved
		m.offset = 0
		m.status = resolveStatus(msg.report)
	case clearedMsg:
		m.session = &msg.session
		m.err = nil
		m.view = viewDetect
		m.offset = 0
		m.refreshLines()
		m.status = "Cleared. Press d to detect again."
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) refreshLines() {
	m.detectLines = m.renderer.Merged(m.session.Rendered)
	m.resolvedLines = nil
	if m.session.IsResolved() {
		m.resolvedLines = m.renderer.Resolved(m.session.Resolved)
	}
}

func (m Model) detectStatus() string {
	n := m.session.ConflictCount()
	if !m.session.HasConflicts() {
		return okStyle.Render("No conflicts.")
	}
	if n == 0 {
		return warnStyle.Render("Conflict markers present in unchanged content; nothing to resolve.")
	}
	return warnStyle.Render(fmt.Sprintf("%d conflicting region(s). Press r to resolve.", n))
}

func resolveStatus(report resolve.Report) string {
	failed := len(report.Failed())
	text := fmt.Sprintf("Resolved %d/%d regions in %s (%s).",
		report.ResolvedCount(), len(report.Outcomes), report.Elapsed.Round(time.Millisecond), report.Mode)
	if failed > 0 {
		return warnStyle.Render(text + fmt.Sprintf(" %d failed.", failed))
	}
	return okStyle.Render(text)
}

// ── Key Handling ────────────────────────────────────────────────────────────

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	avail := m.scrollHeight()
	lines := m.currentLines()

	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.offset > 0 {
			m.offset--
		}
	case "down", "j":
		if m.offset < maxOffset(lines, avail) {
			m.offset++
		}
	case "pgup":
		m.offset -= avail
		if m.offset < 0 {
			m.offset = 0
		}
	case "pgdown":
		m.offset += avail
		if m.offset > maxOffset(lines, avail) {
			m.offset = maxOffset(lines, avail)
		}
	case "tab":
		if m.session.IsResolved() {
			if m.view == viewDetect {
				m.view = viewResolved
			} else {
				m.view = viewDetect
			}
			m.offset = 0
		}
	case "r":
		if m.busy() || m.session.ConflictCount() == 0 {
			break
		}
		m.resolving = true
		m.status = "Resolving..."
		return m, m.resolve
	case "d":
		if m.busy() {
			break
		}
		m.detecting = true
		m.status = "Detecting..."
		return m, m.detect
	case "c":
		if m.busy() {
			break
		}
		return m, m.clear
	}
	return m, nil
}

func (m Model) busy() bool { return m.resolving || m.detecting }

func (m Model) currentLines() []string {
	if m.view == viewResolved {
		return m.resolvedLines
	}
	return m.detectLines
}

// ── View ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	var b strings.Builder
	w := m.cw()

	b.WriteString(titleStyle.Render("MERGEFLOW"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("files  "))
	b.WriteString(strings.Join(m.session.Paths(), "  "))
	b.WriteString("\n")
	if m.session.RunID != "" {
		b.WriteString(labelStyle.Render("run    "))
		b.WriteString(m.session.RunID)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.tabs())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n")

	lines := m.currentLines()
	avail := m.scrollHeight()
	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render("Error: " + errorText(m.err)))
		b.WriteString("\n")
	case len(lines) == 0:
		b.WriteString(dimStyle.Render("(nothing to show)"))
		b.WriteString("\n")
	default:
		start, end := scrollWindow(lines, m.offset, avail)
		for _, line := range lines[start:end] {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	if m.view == viewResolved {
		b.WriteString(m.renderer.Legend())
		b.WriteString("\n")
	}
	pct := scrollPercent(lines, m.offset, avail)
	b.WriteString(dimStyle.Render(fmt.Sprintf("r resolve  tab switch  d detect  c clear  j/k scroll  q quit%s", pct)))
	return frameStyle.Render(b.String())
}

func (m Model) tabs() string {
	detect, resolved := inactiveTab, inactiveTab
	if m.view == viewDetect {
		detect = activeTab
	} else {
		resolved = activeTab
	}
	out := detect.Render("Detect")
	if m.session.IsResolved() {
		out += "  " + resolved.Render("Resolved")
	}
	return out
}

func errorText(err error) string {
	if errors.Is(err, pipeline.ErrMissingInput) {
		return err.Error() + " (load all three files, then press d)"
	}
	return err.Error()
}

// ── Helpers ─────────────────────────────────────────────────────────────────

// cw returns content width (terminal width minus frame padding).
func (m Model) cw() int {
	w := m.width - pad*2
	if w < 40 {
		w = 76 // sensible default before first WindowSizeMsg
	}
	return w
}

func (m Model) scrollHeight() int {
	height := m.height
	if height == 0 {
		height = 24 // sensible default before first WindowSizeMsg
	}
	// Frame padding(2) + title(2) + files/run(3) + tabs(2) + status/legend/footer(4).
	h := height - 13
	if h < 1 {
		h = 1
	}
	return h
}

func maxOffset(lines []string, avail int) int {
	mx := len(lines) - avail
	if mx < 0 {
		return 0
	}
	return mx
}

func scrollWindow(lines []string, offset, avail int) (int, int) {
	if avail < 1 {
		avail = 1
	}
	start := offset
	if start > len(lines) {
		start = len(lines)
	}
	end := start + avail
	if end > len(lines) {
		end = len(lines)
	}
	return start, end
}

func scrollPercent(lines []string, offset, avail int) string {
	if len(lines) <= avail {
		return ""
	}
	mx := len(lines) - avail
	if mx <= 0 {
		return ""
	}
	return fmt.Sprintf("  [%d%%]", offset*100/mx)
}
