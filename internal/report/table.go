package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// cell is one table cell. The style is applied after padding so escape
// codes never count towards the column width.
type cell struct {
	text  string
	style color.Color
}

func plain(s string) cell { return cell{text: s} }

func styled(s string, c color.Color) cell { return cell{text: s, style: c} }

type table struct {
	headers []string
	rows    [][]cell
	// right-aligns the given column indexes
	numeric map[int]bool
}

func newTable(headers ...string) *table {
	return &table{headers: headers, numeric: map[int]bool{}}
}

func (t *table) alignRight(cols ...int) *table {
	for _, c := range cols {
		t.numeric[c] = true
	}
	return t
}

func (t *table) add(cells ...cell) {
	t.rows = append(t.rows, cells)
}

func (t *table) widths() []int {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if w := runewidth.StringWidth(c.text); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

func (t *table) render(w io.Writer, colored bool) {
	widths := t.widths()

	pad := func(i int, s string) string {
		if t.numeric[i] {
			return runewidth.FillLeft(s, widths[i])
		}
		return runewidth.FillRight(s, widths[i])
	}

	header := make([]string, len(t.headers))
	rule := make([]string, len(t.headers))
	for i, h := range t.headers {
		header[i] = pad(i, h)
		if colored {
			header[i] = color.Bold.Sprint(header[i])
		}
		rule[i] = strings.Repeat("-", widths[i])
	}
	fmt.Fprintln(w, "  "+strings.TrimRight(strings.Join(header, "  "), " "))
	fmt.Fprintln(w, "  "+strings.Join(rule, "  "))

	for _, row := range t.rows {
		parts := make([]string, len(row))
		for i, c := range row {
			parts[i] = pad(i, c.text)
			if colored && c.style != 0 {
				parts[i] = c.style.Sprint(parts[i])
			}
		}
		fmt.Fprintln(w, "  "+strings.TrimRight(strings.Join(parts, "  "), " "))
	}
}
