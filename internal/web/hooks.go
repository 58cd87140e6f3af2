package web

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/inercia/scanblock/internal/logging"
	"github.com/inercia/scanblock/internal/scanblock"
)

// Default log budget for scan notifications. A busy scanner can trigger a
// notification per request, so lines beyond the budget are counted and
// reported on the next line that is written.
const (
	DefaultHookLogsPerSecond = 20
	DefaultHookLogBurst      = 50
)

// LogHooks logs engine notifications at a bounded rate.
// It implements scanblock.Hooks.
type LogHooks struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

var _ scanblock.Hooks = (*LogHooks)(nil)

// NewLogHooks creates hooks that log through logger, at most perSecond lines
// per second with the given burst. A non-positive perSecond disables the limit.
func NewLogHooks(logger *slog.Logger, perSecond float64, burst int) *LogHooks {
	if logger == nil {
		logger = logging.Engine()
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &LogHooks{
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// OnScored logs a request that matched a signature.
func (h *LogHooks) OnScored(req scanblock.Request, reason string) {
	h.log(slog.LevelInfo, "request_scored", req, reason)
}

// OnBlocked logs a request that was refused.
func (h *LogHooks) OnBlocked(req scanblock.Request, reason string) {
	h.log(slog.LevelWarn, "request_blocked", req, reason)
}

// Suppressed returns how many lines were dropped since the last written one.
func (h *LogHooks) Suppressed() int64 {
	return h.suppressed.Load()
}

func (h *LogHooks) log(level slog.Level, msg string, req scanblock.Request, reason string) {
	if !h.limiter.Allow() {
		h.suppressed.Add(1)
		return
	}

	attrs := []any{
		"method", req.Method(),
		"path", req.Path(),
		"reason", reason,
	}
	if n := h.suppressed.Swap(0); n > 0 {
		attrs = append(attrs, "suppressed", n)
	}
	logging.WithRequest(h.logger, req.Host(), req.ID()).Log(context.Background(), level, msg, attrs...)
}
