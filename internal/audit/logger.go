//
//
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Actions recorded in the audit trail.
const (
	ActionEngage     = "engage"
	ActionDisengage  = "disengage"
	ActionTransition = "transition"
	ActionCommand    = "command"
	ActionFault      = "fault"
	ActionInject     = "inject"
)

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Outcome   string         `json:"outcome"`
	Code      string         `json:"code"`
}

// Config locates and bounds the audit file.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger appends entries to a rotating JSONL file.
type Logger struct {
	mu     sync.Mutex
	path   string
	out    *lumberjack.Logger
	closed bool
}

// NewLogger opens the audit file, creating its directory if needed.
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	// Open eagerly so a bad path fails at startup rather than on the first record.
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = f.Close()

	return &Logger{
		path: cfg.Path,
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		},
	}, nil
}

// Record writes one entry. Timestamp, actor and code are filled in when empty.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Actor == "" {
		e.Actor = ActorFromContext(ctx)
	}
	if e.Code == "" {
		e.Code = "SUCCESS"
	}
	l.writeEntry(e)
}

// RecordError writes an entry whose outcome is err.
func (l *Logger) RecordError(ctx context.Context, e Entry, err error) {
	if err != nil {
		e.Outcome = err.Error()
		e.Code = CodeFromError(err)
	}
	l.Record(ctx, e)
}

func (l *Logger) writeEntry(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// codes are matched against error text in order.
var codes = []string{
	"MISSING_PRECONDITION",
	"NO_ACTION",
	"MALFORMED_PAYLOAD",
	"INVALID_RANGE",
	"UNAVAILABLE",
	"BUSY",
	"UNAUTHORIZED",
	"FORBIDDEN",
}

// CodeFromError maps an error to its audit code.
func CodeFromError(err error) string {
	if err == nil {
		return "SUCCESS"
	}
	msg := err.Error()
	for _, c := range codes {
		if strings.Contains(msg, c) {
			return c
		}
	}
	return "ERROR"
}

// Rotate starts a new audit file, keeping the old one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Rotate()
}

// Close flushes and closes the file. Later records are discarded.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.out.Close()
}

// Path returns the audit file path.
func (l *Logger) Path() string {
	return l.path
}

type actorKey struct{}

// WithActor records who is acting on behalf of the request.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by WithActor, or "system".
func ActorFromContext(ctx context.Context) string {
	if ctx != nil {
		if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
			return a
		}
	}
	return "system"
}
