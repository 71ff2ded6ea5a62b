package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorHeader = lipgloss.Color("#5B8DEF")
	colorGood   = lipgloss.Color("#4CAF50")
	colorWarn   = lipgloss.Color("#FFB74D")
	colorBad    = lipgloss.Color("#FF6B6B")
)

// renderTable prints header and rows as aligned columns. Cells in column
// colorCol are colored by value. Colors apply only when w is a terminal.
func renderTable(w io.Writer, header []string, rows [][]string, colorCol int, colors map[string]lipgloss.Color) error {
	renderer := lipgloss.NewRenderer(w)
	headerStyle := renderer.NewStyle().Bold(true).Foreground(colorHeader)
	cellStyle := renderer.NewStyle()

	all := append([][]string{header}, rows...)
	widths := make([]int, len(header))
	for _, row := range all {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var sb strings.Builder
	for r, row := range all {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := cellStyle
			switch {
			case r == 0:
				style = headerStyle
			case i == colorCol:
				if c, ok := colors[cell]; ok {
					style = renderer.NewStyle().Foreground(c)
				}
			}
			if i < len(row)-1 {
				style = style.Width(widths[i] + 2)
			}
			cells[i] = style.Render(cell)
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		sb.WriteByte('\n')
	}

	_, err := fmt.Fprint(w, sb.String())
	return err
}
