package cli

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
)

const (
	columnGap      = "  "
	previewWidth   = 48
	previewEllipse = "…"
)

// writeTable prints a header line followed by rows, padding every column but
// the last to its widest cell. Widths ignore color escapes and count wide
// runes as two columns.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	header := make([]string, len(headers))
	for i, h := range headers {
		header[i] = render(headerStyle, h)
	}
	lines := rows
	if len(header) > 0 {
		lines = append([][]string{header}, rows...)
	}

	widths := columnWidths(lines)
	if len(widths) == 0 {
		return nil
	}

	var b strings.Builder
	for _, line := range lines {
		for col, width := range widths {
			var cell string
			if col < len(line) {
				cell = line[col]
			}
			b.WriteString(cell)
			if col == len(widths)-1 {
				break
			}
			b.WriteString(strings.Repeat(" ", width-ansi.PrintableRuneWidth(cell)))
			b.WriteString(columnGap)
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func columnWidths(lines [][]string) []int {
	var widths []int
	for _, line := range lines {
		for col, cell := range line {
			if col == len(widths) {
				widths = append(widths, 0)
			}
			widths[col] = max(widths[col], ansi.PrintableRuneWidth(cell))
		}
	}
	return widths
}

// preview squeezes text onto one line no wider than previewWidth columns.
func preview(text string) string {
	return runewidth.Truncate(strings.Join(strings.Fields(text), " "), previewWidth, previewEllipse)
}
