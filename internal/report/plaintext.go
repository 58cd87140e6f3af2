package report

import (
	"strings"
	"unicode/utf8"

	"github.com/inercia/scanblock/internal/registry"
)

// PlainText renders a column-aligned text table with the columns
// Blocked, Host, Date, Score and Reasons, followed by a Host/Total table. Every
// column is padded to its widest cell plus one space.
type PlainText struct{}

func (PlainText) ContentType() string {
	return "text/plain; charset=utf-8"
}

func (PlainText) Format(snap registry.Snapshot, opts Options) (string, error) {
	table := [][]string{header.cells()}
	for _, r := range rows(snap, opts) {
		table = append(table, r.cells())
	}

	var sb strings.Builder
	writeAligned(&sb, table)

	if len(snap) > 0 {
		summary := [][]string{{"Host", "Total"}}
		for _, t := range totals(snap) {
			summary = append(summary, []string{t[0], t[1]})
		}
		sb.WriteByte('\n')
		writeAligned(&sb, summary)
	}
	return sb.String(), nil
}

func writeAligned(sb *strings.Builder, table [][]string) {
	widths := make([]int, len(table[0]))
	for _, cells := range table {
		for i, cell := range cells {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	for _, cells := range table {
		for i, cell := range cells {
			sb.WriteString(cell)
			sb.WriteString(strings.Repeat(" ", widths[i]+1-utf8.RuneCountInString(cell)))
		}
		sb.WriteByte('\n')
	}
}

func (r row) cells() []string {
	return []string{r.blocked, r.host, r.date, r.score, r.reason}
}
