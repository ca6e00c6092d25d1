package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

// Palette used for styled output. NO_COLOR disables it.
const (
	colorPrimary = "#E8593B"
	colorMuted   = "#7D7D8A"
	colorText    = "#E4E4E7"
	colorError   = "#F0524F"
	colorSuccess = "#3FB950"
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool

	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Success lipgloss.Style

	Header    lipgloss.Style
	Cell      lipgloss.Style
	CellMuted lipgloss.Style
}

// NewRenderer creates a renderer. Styling is enabled when writing to a TTY,
// or when forceStyled is true, unless NO_COLOR is set.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	width, tty := terminalInfo(w)
	styled := (tty || forceStyled) && os.Getenv("NO_COLOR") == ""

	if styled {
		lipgloss.SetColorProfile(2) // TrueColor
	} else {
		lipgloss.SetColorProfile(0) // Ascii
	}

	r := &Renderer{width: width, styled: styled}
	plain := lipgloss.NewStyle()
	if !styled {
		r.Summary, r.Muted, r.Data, r.Error = plain, plain, plain, plain
		r.Hint, r.Success, r.Header, r.Cell, r.CellMuted = plain, plain, plain, plain, plain
		return r
	}

	r.Summary = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary)).Bold(true)
	r.Muted = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	r.Data = lipgloss.NewStyle().Foreground(lipgloss.Color(colorText))
	r.Error = lipgloss.NewStyle().Foreground(lipgloss.Color(colorError)).Bold(true)
	r.Hint = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)).Italic(true)
	r.Success = lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess))
	r.Header = lipgloss.NewStyle().Foreground(lipgloss.Color(colorText)).Bold(true)
	r.Cell = lipgloss.NewStyle().Foreground(lipgloss.Color(colorText))
	r.CellMuted = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	return r
}

func terminalInfo(w io.Writer) (width int, tty bool) {
	width = 80
	f, ok := w.(*os.File)
	if !ok {
		return width, false
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return width, false
	}
	if cols, _, err := term.GetSize(fd); err == nil && cols >= 40 {
		width = cols
	}
	return width, true
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		b.WriteString("\n\n")
	}

	r.renderData(&b, NormalizeData(resp.Data))

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n")
		b.WriteString(r.Muted.Render("Next:"))
		b.WriteString("\n")
		for _, bc := range resp.Breadcrumbs {
			line := r.Muted.Render("  " + bc.Cmd)
			if bc.Description != "" {
				line += r.Muted.Render("  # " + bc.Description)
			}
			b.WriteString(line + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")
	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		r.renderTable(b, d)
	case map[string]any:
		r.renderObject(b, d)
	case []any:
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + formatCell(item)))
			b.WriteString("\n")
		}
	case string:
		b.WriteString(r.Data.Render(d))
		b.WriteString("\n")
	case nil:
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
	default:
		b.WriteString(r.Data.Render(fmt.Sprintf("%v", data)))
		b.WriteString("\n")
	}
}

// Column priority for table rendering (lower = higher priority)
var columnPriority = map[string]int{
	"id":      1,
	"name":    2,
	"domain":  2,
	"label":   3,
	"status":  4,
	"success": 4,
	"message": 5,
}

var mutedColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

type column struct {
	key      string
	priority int
	width    int
}

func sortedFields(data map[string]any) []column {
	var cols []column
	for key, val := range data {
		switch val.(type) {
		case map[string]any, []map[string]any, []any:
			continue
		}
		p := columnPriority[key]
		if p == 0 {
			p = 50
		}
		cols = append(cols, column{key: key, priority: p})
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].priority != cols[j].priority {
			return cols[i].priority < cols[j].priority
		}
		return cols[i].key < cols[j].key
	})
	return cols
}

func (r *Renderer) renderTable(b *strings.Builder, data []map[string]any) {
	columns := sortedFields(data[0])
	if len(columns) == 0 {
		return
	}

	// Drop low-priority columns until the table fits the terminal.
	for i := range columns {
		columns[i].width = lipgloss.Width(formatHeader(columns[i].key))
		for _, row := range data {
			if cw := lipgloss.Width(formatCell(row[columns[i].key])); cw > columns[i].width {
				columns[i].width = cw
			}
		}
	}
	for len(columns) > 1 {
		total := 0
		for _, c := range columns {
			total += c.width + 2
		}
		if total <= r.width {
			break
		}
		columns = columns[:len(columns)-1]
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.Header
			}
			if col < len(columns) && mutedColumns[columns[col].key] {
				return r.CellMuted
			}
			return r.Cell
		})

	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = formatHeader(c.key)
	}
	t.Headers(headers...)

	for _, item := range data {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = formatCell(item[c.key])
		}
		t.Row(row...)
	}

	b.WriteString(t.String())
	b.WriteString("\n")
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	fields := sortedFields(data)
	if len(fields) == 0 {
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
		return
	}

	maxLen := 0
	for _, f := range fields {
		if l := len(formatHeader(f.key)); l > maxLen {
			maxLen = l
		}
	}
	for _, f := range fields {
		label := r.Muted.Render(fmt.Sprintf("%-*s: ", maxLen, formatHeader(f.key)))
		style := r.Data
		if mutedColumns[f.key] {
			style = r.CellMuted
		}
		b.WriteString(label + style.Render(formatCell(data[f.key])) + "\n")
	}
}

func formatHeader(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.TrimSuffix(key, " at")
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		if len(v) > 48 {
			return v[:45] + "..."
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
