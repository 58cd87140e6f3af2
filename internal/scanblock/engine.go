package scanblock

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inercia/scanblock/internal/logging"
	"github.com/inercia/scanblock/internal/registry"
	"github.com/inercia/scanblock/internal/report"
	"github.com/inercia/scanblock/internal/rules"
)

// Engine evaluates requests against the rule set and tracks host scores.
// It is safe for concurrent use.
type Engine struct {
	cfg        Config
	classifier atomic.Pointer[rules.Classifier]
	registry   *registry.Registry
	allowed    *allowList
	logger     *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup // waits for the sweeper to exit
	stopped bool
}

// New validates cfg and creates an Engine. Invalid rules, a threshold outside
// 1..registry.MaxScore or a missing predicate are configuration errors.
// When cfg.SweepInterval is positive a background sweeper is started; call
// Close to stop it.
func New(cfg Config) (*Engine, error) {
	if cfg.BlockThreshold == 0 || cfg.BlockThreshold > registry.MaxScore {
		return nil, fmt.Errorf("%w: %d must be between 1 and %d", ErrInvalidThreshold, cfg.BlockThreshold, registry.MaxScore)
	}
	if cfg.AllowListing == nil {
		return nil, fmt.Errorf("%w: AllowListing", ErrMissingPredicate)
	}
	if cfg.SkipScoring == nil {
		return nil, fmt.Errorf("%w: SkipScoring", ErrMissingPredicate)
	}
	if cfg.ListingPath != "" && !strings.HasPrefix(cfg.ListingPath, "/") {
		return nil, fmt.Errorf("listing path %q must start with '/'", cfg.ListingPath)
	}

	classifier, err := rules.Compile(cfg.Rules)
	if err != nil {
		return nil, err
	}

	allowed, err := newAllowList(cfg.PermanentlyAllowedHosts)
	if err != nil {
		return nil, fmt.Errorf("invalid permanently allowed host: %w", err)
	}

	if cfg.RequestMarker == "" {
		cfg.RequestMarker = DefaultRequestMarker
	}
	if cfg.Formatter == nil {
		cfg.Formatter = report.PlainText{}
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NopHooks{}
	}
	if cfg.HostFunc == nil {
		cfg.HostFunc = RemoteHost
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Engine()
	}

	e := &Engine{
		cfg:      cfg,
		registry: registry.New(cfg.clockOption()...),
		allowed:  allowed,
		logger:   cfg.Logger,
		stopCh:   make(chan struct{}),
	}
	e.classifier.Store(classifier)

	if cfg.SweepInterval > 0 {
		e.wg.Add(1)
		go e.sweepLoop(cfg.SweepInterval)
	}

	return e, nil
}

// Decide evaluates req and returns the action to take. It updates the
// host's score when the request matches a signature and invokes the hooks,
// but never writes a response.
func (e *Engine) Decide(req Request) Decision {
	path := req.Path()
	host := req.Host()
	if path == "" || host == "" {
		return Decision{Action: ActionPass, Step: StepMalformed, Host: host}
	}

	if !req.Mark(e.cfg.RequestMarker) {
		return Decision{Action: ActionPass, Step: StepProcessed, Host: host}
	}

	if e.cfg.ListingPath != "" && strings.EqualFold(path, e.cfg.ListingPath) && e.cfg.AllowListing.Match(req) {
		return Decision{Action: ActionList, Step: StepListing, Host: host}
	}

	if e.cfg.SkipScoring.Match(req) {
		return Decision{Action: ActionPass, Step: StepSkipped, Host: host}
	}

	if e.allowed.Contains(host) {
		return Decision{Action: ActionPass, Step: StepAllowed, Host: host}
	}

	d := Decision{Action: ActionPass, Step: StepEvaluated, Host: host}

	if m, ok := e.classifier.Load().Classify(path, req.RawURL()); ok {
		d.Matched = true
		d.Match = m
		added := e.registry.AddScore(host, m.Score, m.Reason)
		e.logger.Debug("request_scored",
			"host", host,
			"tier", m.Tier.String(),
			"score", m.Score,
			"recorded", added,
		)
		e.cfg.Hooks.OnScored(req, m.Reason)
	}

	d.Score = e.registry.GetScore(host)
	if d.Score < e.cfg.BlockThreshold {
		return d
	}

	// only hosts already over the threshold pay for a purge
	e.registry.PurgeOldScores(host)
	d.Score = e.registry.GetScore(host)
	if d.Score < e.cfg.BlockThreshold {
		return d
	}

	d.Action = ActionBlock
	d.Reason = fmt.Sprintf("host score %d reached block threshold %d", d.Score, e.cfg.BlockThreshold)
	e.cfg.Hooks.OnBlocked(req, d.Reason)
	return d
}

// Report renders the current host scores with the configured formatter.
// The registry snapshot is taken first; no ledger lock is held while formatting.
func (e *Engine) Report() (body, contentType string, err error) {
	snap := e.registry.GetScoreSnapshot()
	body, err = e.cfg.Formatter.Format(snap, report.Options{BlockThreshold: e.cfg.BlockThreshold})
	if err != nil {
		return "", "", fmt.Errorf("failed to format host scores: %w", err)
	}
	return body, e.cfg.Formatter.ContentType(), nil
}

// Registry returns the engine's host score registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Classifier returns the compiled rule set.
func (e *Engine) Classifier() *rules.Classifier {
	return e.classifier.Load()
}

// ReloadRules compiles s and replaces the rule set used by subsequent
// requests. Recorded scores are kept. On error the current rules stay active.
func (e *Engine) ReloadRules(s rules.Set) error {
	classifier, err := rules.Compile(s)
	if err != nil {
		return err
	}
	e.classifier.Store(classifier)
	e.logger.Info("rules_reloaded",
		"full_paths", len(s.FullPaths),
		"partial_urls", len(s.PartialURLs),
		"bad_suffixes", len(s.BadSuffixes),
		"bad_partial_paths", len(s.BadPartialPaths),
	)
	return nil
}

// BlockThreshold returns the configured block threshold.
func (e *Engine) BlockThreshold() uint16 {
	return e.cfg.BlockThreshold
}

// Score returns the current score of host.
func (e *Engine) Score(host string) uint16 {
	return e.registry.GetScore(host)
}

// Blocked reports whether host's current score is at or above the threshold.
func (e *Engine) Blocked(host string) bool {
	return e.registry.GetScore(host) >= e.cfg.BlockThreshold
}

// Snapshot returns a point-in-time copy of all host ledgers.
func (e *Engine) Snapshot() registry.Snapshot {
	return e.registry.GetScoreSnapshot()
}

// Unblock forgets everything recorded for host.
func (e *Engine) Unblock(host string) bool {
	removed := e.registry.Remove(host)
	if removed {
		e.logger.Info("host_unblocked", "host", host)
	}
	return removed
}

// Reset clears every host score.
func (e *Engine) Reset() {
	e.registry.Reset()
	e.logger.Info("registry_reset")
}

// sweepLoop periodically purges stale entries of every tracked host.
func (e *Engine) sweepLoop(interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := e.registry.Sweep(); removed > 0 {
				e.logger.Debug("registry_sweep",
					"removed", removed,
					"hosts", e.registry.Len(),
				)
			}
		case <-e.stopCh:
			return
		}
	}
}

// Close stops the background sweeper. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()

	e.logger.Debug("engine_closed", "hosts", e.registry.Len())
	return nil
}
