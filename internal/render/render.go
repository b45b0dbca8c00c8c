// Package render turns merge and resolution results into terminal output.
package render

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"mergeflow/internal/diff3"
	"mergeflow/internal/resolve"
)

var (
	markerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	provenanceStyle = map[resolve.Provenance]lipgloss.Style{
		resolve.ProvenanceLocal:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("25")),
		resolve.ProvenanceRemote:  lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("28")),
		resolve.ProvenanceComplex: lipgloss.NewStyle().Foreground(lipgloss.Color("16")).Background(lipgloss.Color("220")),
		resolve.ProvenanceFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("160")),
	}
)

type Options struct {
	// Color enables marker styling, provenance backgrounds and highlighting.
	Color bool
	// Language is a chroma lexer name. Empty guesses from Filename, then
	// from the content.
	Language string
	Filename string
	// Style is a chroma style name; empty means monokai.
	Style string
}

// Renderer formats documents for a terminal.
type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

func (r *Renderer) Color() bool { return r.opts.Color }

// Merged styles conflict marker lines and highlights the content between
// them. Output has one entry per input line.
func (r *Renderer) Merged(lines []string) []string {
	if !r.opts.Color {
		return lines
	}
	out := make([]string, len(lines))
	var content []string
	var slots []int
	for i, line := range lines {
		if diff3.IsMarkerLine(line) {
			out[i] = markerStyle.Render(line)
			continue
		}
		content = append(content, line)
		slots = append(slots, i)
	}
	for j, line := range r.highlight(content) {
		out[slots[j]] = line
	}
	return out
}

// Resolved renders the final document with a background per provenance.
// Unchanged lines are syntax highlighted.
func (r *Renderer) Resolved(lines []resolve.ResolvedLine) []string {
	texts := resolve.Texts(lines)
	if !r.opts.Color {
		return texts
	}
	highlighted := r.highlight(texts)
	out := make([]string, len(lines))
	for i, line := range lines {
		style, ok := provenanceStyle[line.Provenance]
		if !ok {
			out[i] = highlighted[i]
			continue
		}
		out[i] = style.Render(line.Text)
	}
	return out
}

// Legend describes the provenance colours.
func (r *Renderer) Legend() string {
	names := []struct {
		p    resolve.Provenance
		name string
	}{
		{resolve.ProvenanceLocal, "local"},
		{resolve.ProvenanceRemote, "remote"},
		{resolve.ProvenanceComplex, "complex"},
		{resolve.ProvenanceFailed, "failed"},
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if r.opts.Color {
			parts = append(parts, provenanceStyle[n.p].Render(" "+n.name+" "))
		} else {
			parts = append(parts, "["+n.name+"]")
		}
	}
	return strings.Join(parts, " ")
}

// highlight returns lines highlighted as one document, or the input
// unchanged when the formatter output does not line up.
func (r *Renderer) highlight(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	code := strings.Join(lines, "\n")
	lexer := r.lexer(code)
	if lexer == nil {
		return lines
	}

	name := r.opts.Style
	if name == "" {
		name = "monokai"
	}
	style := chromaStyles.Get(name)
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return lines
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return lines
	}
	out := strings.Split(buf.String(), "\n")
	if len(out) < len(lines) {
		return lines
	}
	return out[:len(lines)]
}

func (r *Renderer) lexer(code string) chroma.Lexer {
	var lexer chroma.Lexer
	if r.opts.Language != "" {
		lexer = lexers.Get(r.opts.Language)
	}
	if lexer == nil && r.opts.Filename != "" {
		lexer = lexers.Match(filepath.Base(r.opts.Filename))
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return nil
	}
	return chroma.Coalesce(lexer)
}
