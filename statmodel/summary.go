package statmodel

import (
	"fmt"
	"strings"
)

// Fmter formats the elements of a column.  The first argument is the
// column, the second its heading.
type Fmter func(interface{}, string) []string

// StringFmt left-aligns a []string column to a common width.
func StringFmt(x interface{}, h string) []string {
	y := x.([]string)
	w := len(h)
	for _, v := range y {
		w = max(w, len(v))
	}
	z := make([]string, len(y))
	for i, v := range y {
		z[i] = v + strings.Repeat(" ", w-len(v))
	}
	return z
}

// NumberFmt formats a []float64 column with four decimals.
func NumberFmt(x interface{}, h string) []string {
	y := x.([]float64)
	z := make([]string, len(y))
	for i, v := range y {
		z[i] = fmt.Sprintf("%10.4f", v)
	}
	return z
}

// SummaryTable is a text rendering of a fitted model: a title, pairs of
// model attributes, one row per parameter and trailing messages.
type SummaryTable struct {
	Title string

	// Column headings, one formatter per column, and the columns
	// themselves.  The concrete type of each column must match its
	// formatter.
	ColNames []string
	ColFmt   []Fmter
	Cols     []interface{}

	// Model attributes shown two per line above the table.
	Top []string

	// Messages displayed below the table
	Msg []string
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	const gap = 10

	cells := make([][]string, len(s.Cols))
	widths := make([]int, len(s.Cols))
	var width int
	for j, c := range s.Cols {
		cells[j] = s.ColFmt[j](c, s.ColNames[j])
		widths[j] = len(s.ColNames[j])
		if len(cells[j]) > 0 {
			widths[j] = max(widths[j], len(cells[j][0]))
		}
		width += widths[j]
	}

	// The attributes are laid out in two left-aligned columns.
	var tw [2]int
	for j, v := range s.Top {
		tw[j%2] = max(tw[j%2], len(v))
	}
	width = max(width, len(s.Title), tw[0]+tw[1]+gap)

	var b strings.Builder
	rule := func(c string) {
		b.WriteString(strings.Repeat(c, width) + "\n")
	}

	b.WriteString(strings.Repeat(" ", (width-len(s.Title))/2) + s.Title + "\n")
	rule("=")

	for j, v := range s.Top {
		if j%2 == 0 {
			fmt.Fprintf(&b, "%-*s%s", tw[0], v, strings.Repeat(" ", gap))
		} else {
			fmt.Fprintf(&b, "%-*s\n", tw[1], v)
		}
	}
	if len(s.Top)%2 == 1 {
		b.WriteString("\n")
	}
	rule("-")

	for j, h := range s.ColNames {
		fmt.Fprintf(&b, "%*s", widths[j], h)
	}
	b.WriteString("\n")
	rule("-")

	if len(cells) > 0 {
		for i := range cells[0] {
			for j := range cells {
				fmt.Fprintf(&b, "%*s", widths[j], cells[j][i])
			}
			b.WriteString("\n")
		}
	}
	rule("-")

	for _, m := range s.Msg {
		b.WriteString(m + "\n")
	}

	return b.String()
}
