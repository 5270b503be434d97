package binread

import (
	"context"
	"log/slog"
	"sync"
)

// Tracer receives structural events while values are read. Implementations
// must not influence the read; events are purely observational.
type Tracer interface {
	// StartType is emitted when a struct or variant body begins.
	StartType(name string)
	// EndType is emitted when a body finishes, successfully or not. The
	// argument is the trace name of the field the body was read for.
	EndType(traceName string)
	// Comment carries free-form diagnostics such as "Error: ...".
	Comment(text string)
}

// NopTracer discards all events.
type NopTracer struct{}

func (NopTracer) StartType(string) {}
func (NopTracer) EndType(string)   {}
func (NopTracer) Comment(string)   {}

// SlogTracer writes events to a structured logger.
type SlogTracer struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogTracer logs events at debug level. A nil logger uses slog.Default.
func NewSlogTracer(logger *slog.Logger) *SlogTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogTracer{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the tracer logging at level.
func (t *SlogTracer) WithLevel(level slog.Level) *SlogTracer {
	return &SlogTracer{logger: t.logger, level: level}
}

func (t *SlogTracer) StartType(name string) {
	t.logger.Log(context.Background(), t.level, "Start type", "type_name", name)
}

func (t *SlogTracer) EndType(traceName string) {
	t.logger.Log(context.Background(), t.level, "End type", "trace_name", traceName)
}

func (t *SlogTracer) Comment(text string) {
	t.logger.Log(context.Background(), t.level, "Trace comment", "text", text)
}

// TraceEventKind tags a recorded trace event.
type TraceEventKind int

const (
	TraceStart TraceEventKind = iota
	TraceEnd
	TraceComment
)

// TraceEvent is one event captured by a RecordingTracer.
type TraceEvent struct {
	Kind TraceEventKind
	Text string
}

// RecordingTracer keeps every event in memory, in order.
type RecordingTracer struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (t *RecordingTracer) record(kind TraceEventKind, text string) {
	t.mu.Lock()
	t.events = append(t.events, TraceEvent{Kind: kind, Text: text})
	t.mu.Unlock()
}

func (t *RecordingTracer) StartType(name string)    { t.record(TraceStart, name) }
func (t *RecordingTracer) EndType(traceName string) { t.record(TraceEnd, traceName) }
func (t *RecordingTracer) Comment(text string)      { t.record(TraceComment, text) }

// Events returns a copy of the recorded events.
func (t *RecordingTracer) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}
