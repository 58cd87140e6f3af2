package report

import (
	"encoding/json"
	"fmt"

	"github.com/inercia/scanblock/internal/registry"
)

// JSON renders the snapshot as a JSON document.
type JSON struct{}

type jsonReport struct {
	BlockThreshold uint16     `json:"block_threshold"`
	Hosts          []jsonHost `json:"hosts"`
}

type jsonHost struct {
	Host    string           `json:"host"`
	Score   uint16           `json:"score"`
	Blocked bool             `json:"blocked"`
	Entries []registry.Entry `json:"entries"`
}

func (JSON) ContentType() string {
	return "application/json"
}

func (JSON) Format(snap registry.Snapshot, opts Options) (string, error) {
	doc := jsonReport{
		BlockThreshold: opts.BlockThreshold,
		Hosts:          make([]jsonHost, 0, len(snap)),
	}
	for _, host := range snap.Hosts() {
		score := snap.Total(host)
		doc.Hosts = append(doc.Hosts, jsonHost{
			Host:    host,
			Score:   score,
			Blocked: score >= opts.BlockThreshold,
			Entries: sortedEntries(snap[host]),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data) + "\n", nil
}
