// Package scanblock implements the request decision engine: it classifies
// inbound requests against scanner signatures, accumulates per-host suspicion
// scores and blocks hosts that cross the configured threshold.
package scanblock

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/inercia/scanblock/internal/registry"
	"github.com/inercia/scanblock/internal/report"
	"github.com/inercia/scanblock/internal/rules"
)

const (
	// DefaultBlockThreshold is the score at or above which a host is blocked.
	DefaultBlockThreshold uint16 = 20

	// DefaultListingPath serves the host score report.
	DefaultListingPath = "/scanblock/hosts"

	// DefaultRequestMarker is the key recorded on a request once it has been evaluated.
	DefaultRequestMarker = "ScanBlockFeature"

	// DefaultSweepInterval is how often idle ledgers are purged in the background.
	DefaultSweepInterval = time.Hour
)

var (
	// ErrMissingPredicate is returned by New when a required predicate is nil.
	ErrMissingPredicate = errors.New("required predicate is not set")

	// ErrInvalidThreshold is returned by New when the block threshold can never or always trigger.
	ErrInvalidThreshold = errors.New("invalid block threshold")
)

// HostFunc resolves the host identifier the registry tracks for an HTTP request.
type HostFunc func(r *http.Request) string

// Config configures an Engine.
type Config struct {
	// BlockThreshold is the cumulative score at which a host's requests are rejected.
	// Must be between 1 and registry.MaxScore.
	BlockThreshold uint16

	// Rules is the signature set used to classify requests, with its tier scores.
	Rules rules.Set

	// PermanentlyAllowedHosts are never scored nor blocked. Entries match
	// the host identifier exactly; entries in CIDR notation also match any
	// IP address inside the range.
	PermanentlyAllowedHosts []string

	// ListingPath is the path (compared case-insensitively) that serves the
	// host score report when AllowListing authorizes it. Empty disables listing.
	ListingPath string

	// RequestMarker is the key recorded on a request once it has been
	// evaluated, so the engine does not evaluate it again in the same pass.
	RequestMarker string

	// Formatter renders the listing. Defaults to report.PlainText.
	Formatter report.Formatter

	// AllowListing decides whether a request may read the host score listing. Required.
	AllowListing Predicate

	// SkipScoring exempts a request from scoring, e.g. authenticated traffic. Required.
	SkipScoring Predicate

	// Hooks receives scored and blocked notifications. Defaults to no-ops.
	Hooks Hooks

	// HostFunc resolves the host for HTTP requests. Defaults to the remote address
	// without its port.
	HostFunc HostFunc

	// SweepInterval is how often the background sweeper purges stale ledgers.
	// Zero disables the sweeper; scores are still purged lazily.
	SweepInterval time.Duration

	// Clock returns the current time; used to pick "today" for score entries.
	// Defaults to time.Now.
	Clock func() time.Time

	// Logger is the engine logger. Defaults to logging.Engine().
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with the default rule set, scores,
// threshold and allow-list. The predicates must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		BlockThreshold:          DefaultBlockThreshold,
		Rules:                   rules.Default(),
		PermanentlyAllowedHosts: []string{"localhost", "127.0.0.1", "::1"},
		ListingPath:             DefaultListingPath,
		RequestMarker:           DefaultRequestMarker,
		Formatter:               report.PlainText{},
		Hooks:                   NopHooks{},
		SweepInterval:           DefaultSweepInterval,
	}
}

// clockOption returns the registry option for the configured clock.
func (c Config) clockOption() []registry.Option {
	if c.Clock == nil {
		return nil
	}
	return []registry.Option{registry.WithClock(c.Clock)}
}
