package web

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/inercia/scanblock/internal/scanblock"
)

// AccessLogConfig holds configuration for access logging.
type AccessLogConfig struct {
	// Path is the file path for the access log.
	// Empty string disables access logging.
	Path string

	// MaxSizeMB is the maximum size of the log file in megabytes before rotation.
	// Default: 10MB
	MaxSizeMB int

	// MaxBackups is the maximum number of old log files to retain.
	// Default: 1
	MaxBackups int
}

// DefaultAccessLogConfig returns the default access log configuration.
func DefaultAccessLogConfig() AccessLogConfig {
	return AccessLogConfig{
		MaxSizeMB:  10,
		MaxBackups: 1,
	}
}

// AccessLogger writes one line per scored, blocked or listing request to a
// rotated file. Clean passing requests are not logged.
type AccessLogger struct {
	writer io.WriteCloser
	mu     sync.Mutex
	now    func() time.Time
}

// NewAccessLogger creates a new access logger that writes to the specified file.
// If path is empty, returns nil (access logging disabled).
func NewAccessLogger(config AccessLogConfig) *AccessLogger {
	if config.Path == "" {
		return nil
	}

	maxSize := config.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := config.MaxBackups
	if maxBackups < 0 {
		maxBackups = 1
	}

	return newAccessLoggerWriter(&lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    maxSize,    // megabytes
		MaxBackups: maxBackups, // number of backups
	})
}

func newAccessLoggerWriter(w io.WriteCloser) *AccessLogger {
	return &AccessLogger{writer: w, now: time.Now}
}

// Close closes the access logger.
func (a *AccessLogger) Close() error {
	if a == nil || a.writer == nil {
		return nil
	}
	return a.writer.Close()
}

// LogEntry represents a single access log entry.
type LogEntry struct {
	Timestamp    time.Time
	RequestID    string
	ClientIP     string
	Method       string
	URI          string
	StatusCode   int
	BytesWritten int64
	Duration     time.Duration
	UserAgent    string

	// Decision context
	Action string // pass, list, block
	Step   string // listing, allowed, evaluated, ...
	Score  uint16
	Reason string
}

// Write writes a log entry to the access log file.
// Format:
// timestamp ip "method uri" status bytes duration_ms "user-agent" action step score=N [id=...] [reason="..."]
func (a *AccessLogger) Write(entry LogEntry) {
	if a == nil || a.writer == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s \"%s %s\" %d %d %dms \"%s\" %s %s score=%d",
		entry.Timestamp.Format(time.RFC3339),
		entry.ClientIP,
		entry.Method,
		escapeQuotes(entry.URI),
		entry.StatusCode,
		entry.BytesWritten,
		entry.Duration.Milliseconds(),
		escapeQuotes(entry.UserAgent),
		entry.Action,
		entry.Step,
		entry.Score,
	)
	if entry.RequestID != "" {
		fmt.Fprintf(&b, " id=%s", entry.RequestID)
	}
	if entry.Reason != "" {
		fmt.Fprintf(&b, " reason=\"%s\"", escapeQuotes(entry.Reason))
	}
	b.WriteByte('\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = io.WriteString(a.writer, b.String())
}

// escapeQuotes escapes quotes in a string for log safety.
func escapeQuotes(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			result = append(result, '\\', '"')
		case '\\':
			result = append(result, '\\', '\\')
		case '\n':
			result = append(result, '\\', 'n')
		default:
			result = append(result, s[i])
		}
	}
	return string(result)
}

// shouldLog reports whether a decision is worth an access log line.
func shouldLog(d scanblock.Decision) bool {
	switch d.Action {
	case scanblock.ActionBlock, scanblock.ActionList:
		return true
	}
	return d.Matched
}

// accessLogResponseWriter wraps http.ResponseWriter to capture status code and bytes written.
type accessLogResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (w *accessLogResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *accessLogResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher to support streaming upstream responses.
func (w *accessLogResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for interface detection.
func (w *accessLogResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware tracks the request so the engine records its decision, then
// logs the outcome once the inner handlers return.
func (a *AccessLogger) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = scanblock.Track(r)
		start := a.now()
		rw := &accessLogResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		d, ok := scanblock.OutcomeOf(r)
		if !ok || !shouldLog(d) {
			return
		}
		reason := d.Reason
		if reason == "" && d.Matched {
			reason = d.Match.Reason
		}
		a.Write(LogEntry{
			Timestamp:    start,
			RequestID:    scanblock.RequestID(r),
			ClientIP:     d.Host,
			Method:       r.Method,
			URI:          r.RequestURI,
			StatusCode:   rw.statusCode,
			BytesWritten: rw.bytesWritten,
			Duration:     a.now().Sub(start),
			UserAgent:    r.UserAgent(),
			Action:       d.Action.String(),
			Step:         d.Step.String(),
			Score:        d.Score,
			Reason:       reason,
		})
	})
}
