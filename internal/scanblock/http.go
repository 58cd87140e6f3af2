package scanblock

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// pass is the per-request state shared by every engine hook that sees the
// same request.
type pass struct {
	id string

	mu       sync.Mutex
	marks    map[string]struct{}
	decision Decision
	decided  bool
}

func (p *pass) mark(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.marks[key]; seen {
		return false
	}
	if p.marks == nil {
		p.marks = make(map[string]struct{})
	}
	p.marks[key] = struct{}{}
	return true
}

func (p *pass) record(d Decision) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.decided {
		p.decision = d
		p.decided = true
	}
}

type passKey struct{}

func passFrom(r *http.Request) *pass {
	p, _ := r.Context().Value(passKey{}).(*pass)
	return p
}

// Track attaches the per-request pass state to r, unless it already carries
// one. Outer middleware calls it so it can read OutcomeOf after the engine ran.
func Track(r *http.Request) *http.Request {
	if passFrom(r) != nil {
		return r
	}
	p := &pass{id: uuid.NewString()}
	return r.WithContext(context.WithValue(r.Context(), passKey{}, p))
}

// RequestID returns the id assigned by Track, or "" for untracked requests.
func RequestID(r *http.Request) string {
	if p := passFrom(r); p != nil {
		return p.id
	}
	return ""
}

// OutcomeOf returns the decision the engine made for a tracked request.
func OutcomeOf(r *http.Request) (Decision, bool) {
	p := passFrom(r)
	if p == nil {
		return Decision{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decision, p.decided
}

// httpRequest adapts *http.Request to Request.
type httpRequest struct {
	r    *http.Request
	p    *pass
	host string
}

func (h *httpRequest) Path() string {
	if h.r.URL == nil {
		return ""
	}
	return h.r.URL.Path
}

func (h *httpRequest) RawURL() string {
	if h.r.RequestURI != "" {
		return h.r.RequestURI
	}
	if h.r.URL == nil {
		return ""
	}
	return h.r.URL.RequestURI()
}

func (h *httpRequest) Host() string         { return h.host }
func (h *httpRequest) Method() string       { return h.r.Method }
func (h *httpRequest) Headers() http.Header { return h.r.Header }
func (h *httpRequest) ID() string           { return h.p.id }
func (h *httpRequest) Mark(key string) bool { return h.p.mark(key) }

// HTTPRequest returns the underlying *http.Request of a Request created by
// the HTTP handlers, or nil.
func HTTPRequest(req Request) *http.Request {
	if h, ok := req.(*httpRequest); ok {
		return h.r
	}
	return nil
}

// Middleware runs the engine before every request. Listing and blocked
// requests are answered directly; everything else reaches next.
func (e *Engine) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = Track(r)
		if e.serve(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CatchAll runs the engine for requests no other route handled, then hands
// passing requests to fallback (404 Not Found when nil). A request already
// evaluated by Middleware is not evaluated again.
func (e *Engine) CatchAll(fallback http.Handler) http.Handler {
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = Track(r)
		if e.serve(w, r) {
			return
		}
		fallback.ServeHTTP(w, r)
	})
}

// serve evaluates r and writes the response for terminal decisions.
// It reports whether the response has been written.
func (e *Engine) serve(w http.ResponseWriter, r *http.Request) bool {
	p := passFrom(r)
	d := e.Decide(&httpRequest{r: r, p: p, host: e.cfg.HostFunc(r)})
	if d.Step != StepProcessed {
		p.record(d)
	}

	switch d.Action {
	case ActionList:
		e.writeListing(w)
		return true
	case ActionBlock:
		writeErrorJSON(w, http.StatusServiceUnavailable, "ServiceUnavailable", http.StatusText(http.StatusServiceUnavailable))
		return true
	default:
		return false
	}
}

func (e *Engine) writeListing(w http.ResponseWriter) {
	body, contentType, err := e.Report()
	if err != nil {
		e.logger.Error("listing_failed", "error", err)
		http.Error(w, "Failed to render host scores", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// writeErrorJSON writes a JSON error body with the given status code.
func writeErrorJSON(w http.ResponseWriter, status int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
