// Package registry keeps the per-host suspicion scores.
//
// Scores are grouped into one Entry per host per calendar day. Entries older than
// RetentionDays are purged lazily, and a host's total never exceeds MaxScore. Once a
// host reaches MaxScore it stops accumulating and its history is no longer purged,
// so the block it triggered can only be lifted by Reset or Remove.
//
// The ledger is sharded by host. Each host has its own lock, so operations on
// different hosts never wait for each other, and every operation on one host is
// applied as a single atomic step.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

const (
	// RetentionDays is how many days of history are kept before the current day.
	RetentionDays = 7

	// MaxScore is the ceiling of a host's total score.
	MaxScore uint16 = 100

	shardCount = 64
)

// Entry holds the score a host accumulated on one calendar day.
type Entry struct {
	Date    Date     `json:"date"`
	Score   uint16   `json:"score"`
	Reasons []string `json:"reasons"`
}

// Snapshot is a point-in-time copy of the registry, keyed by host.
// Entries are in insertion order.
type Snapshot map[string][]Entry

// Hosts returns the snapshot hosts in lexicographic order.
func (s Snapshot) Hosts() []string {
	hosts := make([]string, 0, len(s))
	for h := range s {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Total returns the summed score of a host in the snapshot.
func (s Snapshot) Total(host string) uint16 {
	return total(s[host])
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source used to determine the current day.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// ledger is the score history of one host.
type ledger struct {
	mu      sync.Mutex
	entries []Entry
	// removed is set once the ledger has been dropped from its shard; holders
	// must look the host up again.
	removed bool
}

type shard struct {
	mu    sync.RWMutex
	hosts map[string]*ledger
}

// Registry maps hosts to their score ledgers. It is safe for concurrent use.
type Registry struct {
	shards [shardCount]shard
	now    func() time.Time
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{now: time.Now}
	for i := range r.shards {
		r.shards[i].hosts = make(map[string]*ledger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) today() Date {
	return DateOf(r.now())
}

func (r *Registry) shardFor(host string) *shard {
	return &r.shards[xxh3.HashString(host)%shardCount]
}

// lockLedger returns the host's ledger with its mutex held. When create is false
// and the host is unknown it returns nil.
func (r *Registry) lockLedger(host string, create bool) *ledger {
	s := r.shardFor(host)
	for {
		s.mu.RLock()
		l := s.hosts[host]
		s.mu.RUnlock()

		if l == nil {
			if !create {
				return nil
			}
			s.mu.Lock()
			if l = s.hosts[host]; l == nil {
				l = &ledger{}
				s.hosts[host] = l
			}
			s.mu.Unlock()
		}

		l.mu.Lock()
		if !l.removed {
			return l
		}
		l.mu.Unlock()
	}
}

// drop detaches a ledger from its shard. The caller must hold l.mu.
func (r *Registry) drop(host string, l *ledger) {
	l.removed = true
	l.entries = nil

	s := r.shardFor(host)
	s.mu.Lock()
	if s.hosts[host] == l {
		delete(s.hosts, host)
	}
	s.mu.Unlock()
}

// AddScore records score points for host on the current day and reports whether
// anything was recorded. It is a no-op once the host's total has reached MaxScore;
// otherwise stale entries are purged first and the points are added to today's
// entry, capped so the total never exceeds MaxScore.
func (r *Registry) AddScore(host string, score uint16, reason string) bool {
	if score == 0 {
		return false
	}

	l := r.lockLedger(host, true)
	defer l.mu.Unlock()

	current := total(l.entries)
	if current >= MaxScore {
		return false
	}

	today := r.today()
	l.entries = purge(l.entries, today)
	current = total(l.entries)

	if room := MaxScore - current; score > room {
		score = room
	}

	// today's entry, if any, is normally the last one
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Date == today {
			e := &l.entries[i]
			e.Score = addSaturating(e.Score, score)
			e.Reasons = append(e.Reasons, reason)
			return true
		}
	}

	l.entries = append(l.entries, Entry{Date: today, Score: score, Reasons: []string{reason}})
	return true
}

// GetScore returns the summed score of all retained entries for host, or 0 for an
// unknown host.
func (r *Registry) GetScore(host string) uint16 {
	l := r.lockLedger(host, false)
	if l == nil {
		return 0
	}
	defer l.mu.Unlock()
	return total(l.entries)
}

// Entries returns a copy of the host's entries in insertion order.
func (r *Registry) Entries(host string) []Entry {
	l := r.lockLedger(host, false)
	if l == nil {
		return nil
	}
	defer l.mu.Unlock()
	return copyEntries(l.entries)
}

// PurgeOldScores drops the host's entries dated before the retention window and
// reports whether the host was removed from the registry as a result. Hosts at or
// above MaxScore are left untouched.
func (r *Registry) PurgeOldScores(host string) bool {
	l := r.lockLedger(host, false)
	if l == nil {
		return false
	}
	defer l.mu.Unlock()

	if total(l.entries) >= MaxScore {
		return false
	}

	l.entries = purge(l.entries, r.today())
	if len(l.entries) == 0 {
		r.drop(host, l)
		return true
	}
	return false
}

// Sweep purges stale entries of every host and returns the number of hosts that
// were removed entirely.
func (r *Registry) Sweep() int {
	removed := 0
	for _, host := range r.hostNames() {
		if r.PurgeOldScores(host) {
			removed++
		}
	}
	return removed
}

// Remove forgets a single host, lifting any block on it. It reports whether the
// host was known.
func (r *Registry) Remove(host string) bool {
	l := r.lockLedger(host, false)
	if l == nil {
		return false
	}
	defer l.mu.Unlock()
	r.drop(host, l)
	return true
}

// Reset clears the whole registry.
func (r *Registry) Reset() {
	var detached []*ledger
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, l := range s.hosts {
			detached = append(detached, l)
		}
		s.hosts = make(map[string]*ledger)
		s.mu.Unlock()
	}

	for _, l := range detached {
		l.mu.Lock()
		l.removed = true
		l.entries = nil
		l.mu.Unlock()
	}
}

// Len returns the number of tracked hosts.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.hosts)
		s.mu.RUnlock()
	}
	return n
}

// GetScoreSnapshot returns a deep copy of every host's entries. Later mutations of
// the registry do not affect the returned value.
func (r *Registry) GetScoreSnapshot() Snapshot {
	snap := make(Snapshot)
	for i := range r.shards {
		s := &r.shards[i]

		s.mu.RLock()
		ledgers := make(map[string]*ledger, len(s.hosts))
		for h, l := range s.hosts {
			ledgers[h] = l
		}
		s.mu.RUnlock()

		for h, l := range ledgers {
			l.mu.Lock()
			if !l.removed && len(l.entries) > 0 {
				snap[h] = copyEntries(l.entries)
			}
			l.mu.Unlock()
		}
	}
	return snap
}

func (r *Registry) hostNames() []string {
	var hosts []string
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for h := range s.hosts {
			hosts = append(hosts, h)
		}
		s.mu.RUnlock()
	}
	return hosts
}

// purge keeps the entries dated on or after today minus RetentionDays.
func purge(entries []Entry, today Date) []Entry {
	cutoff := today.AddDays(-RetentionDays)
	kept := entries[:0]
	for _, e := range entries {
		if !e.Date.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	// clear the tail so dropped reasons can be collected
	for i := len(kept); i < len(entries); i++ {
		entries[i] = Entry{}
	}
	return kept
}

func total(entries []Entry) uint16 {
	var sum uint16
	for _, e := range entries {
		sum = addSaturating(sum, e.Score)
	}
	return sum
}

func addSaturating(a, b uint16) uint16 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint16(0)
}

func copyEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{
			Date:    e.Date,
			Score:   e.Score,
			Reasons: append([]string(nil), e.Reasons...),
		}
	}
	return out
}
