// Package report renders registry snapshots for the host score listing.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/inercia/scanblock/internal/registry"
)

// Options carries the settings a formatter needs besides the snapshot itself.
type Options struct {
	// BlockThreshold marks hosts whose total score is at or above it as blocked.
	BlockThreshold uint16
}

// Formatter turns a snapshot into a response body.
type Formatter interface {
	Format(snap registry.Snapshot, opts Options) (string, error)
	// ContentType is the MIME type of the formatted output.
	ContentType() string
}

// ByName returns the formatter registered under name. The empty name selects PlainText.
func ByName(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "plain", "text":
		return PlainText{}, nil
	case "json":
		return JSON{}, nil
	case "markdown", "md":
		return Markdown{}, nil
	case "html":
		return NewHTML(), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", name)
	}
}

// row is one (host, day, reason) line of a tabular report. Host-level and
// day-level cells are only filled on the first row they apply to.
type row struct {
	blocked string
	host    string
	date    string
	score   string
	reason  string
}

var header = row{blocked: "Blocked", host: "Host", date: "Date", score: "Score", reason: "Reasons"}

// rows flattens a snapshot: hosts in lexicographic order, days in chronological
// order within a host, one row per reason.
func rows(snap registry.Snapshot, opts Options) []row {
	var out []row
	for _, host := range snap.Hosts() {
		entries := sortedEntries(snap[host])
		blocked := snap.Total(host) >= opts.BlockThreshold

		for i, e := range entries {
			reasons := e.Reasons
			if len(reasons) == 0 {
				reasons = []string{""}
			}
			for j, reason := range reasons {
				var r row
				if i == 0 && j == 0 {
					r.host = host
					if blocked {
						r.blocked = "X"
					}
				}
				if j == 0 {
					r.date = e.Date.String()
					r.score = strconv.Itoa(int(e.Score))
				}
				r.reason = reason
				out = append(out, r)
			}
		}
	}
	return out
}

// totals returns one (host, total score) pair per host in lexicographic order.
func totals(snap registry.Snapshot) [][2]string {
	out := make([][2]string, 0, len(snap))
	for _, host := range snap.Hosts() {
		out = append(out, [2]string{host, strconv.Itoa(int(snap.Total(host)))})
	}
	return out
}

func sortedEntries(entries []registry.Entry) []registry.Entry {
	sorted := make([]registry.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}
