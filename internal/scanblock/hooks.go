package scanblock

import "net/http"

// Request is the view of an inbound request the engine evaluates.
type Request interface {
	// Path is the request path without the query string.
	Path() string
	// RawURL is the request URI as received, including the query string.
	RawURL() string
	// Host is the origin identifier scores are tracked against.
	Host() string
	Method() string
	Headers() http.Header
	// ID identifies the request in logs.
	ID() string
	// Mark records key on the request and reports whether it was not recorded before.
	Mark(key string) bool
}

// Predicate answers a yes/no question about a request.
type Predicate interface {
	Match(req Request) bool
}

// PredicateFunc adapts a function to a Predicate.
type PredicateFunc func(req Request) bool

func (f PredicateFunc) Match(req Request) bool {
	return f(req)
}

// Always returns a predicate that matches every request.
func Always() Predicate {
	return PredicateFunc(func(Request) bool { return true })
}

// Never returns a predicate that matches no request.
func Never() Predicate {
	return PredicateFunc(func(Request) bool { return false })
}

// Hooks are notified synchronously while a request is evaluated, before the
// response is written. Implementations must be safe for concurrent use.
type Hooks interface {
	// OnScored is called after a request matched a signature and was scored.
	OnScored(req Request, reason string)
	// OnBlocked is called before a blocked response is written.
	OnBlocked(req Request, reason string)
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) OnScored(Request, string)  {}
func (NopHooks) OnBlocked(Request, string) {}

// HookFuncs adapts a pair of functions to Hooks. Nil functions are skipped.
type HookFuncs struct {
	Scored  func(req Request, reason string)
	Blocked func(req Request, reason string)
}

func (h HookFuncs) OnScored(req Request, reason string) {
	if h.Scored != nil {
		h.Scored(req, reason)
	}
}

func (h HookFuncs) OnBlocked(req Request, reason string) {
	if h.Blocked != nil {
		h.Blocked(req, reason)
	}
}

// MultiHooks fans notifications out to each hook in order.
type MultiHooks []Hooks

func (m MultiHooks) OnScored(req Request, reason string) {
	for _, h := range m {
		h.OnScored(req, reason)
	}
}

func (m MultiHooks) OnBlocked(req Request, reason string) {
	for _, h := range m {
		h.OnBlocked(req, reason)
	}
}
