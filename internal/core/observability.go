package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// TraceRecord is one finished span written by JSONTracer.
type TraceRecord struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTracer writes each finished span as one JSON line and keeps a bounded
// in-memory tail for inspection.
type JSONTracer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	keep    int
	records []TraceRecord
	now     func() time.Time
}

// NewJSONTracer writes spans to w (nil disables output) and retains the last
// keep records; keep <= 0 retains everything.
func NewJSONTracer(w io.Writer, keep int) *JSONTracer {
	t := &JSONTracer{keep: keep, now: func() time.Time { return time.Now().UTC() }}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Records returns a copy of the retained spans, oldest first.
func (t *JSONTracer) Records() []TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceRecord(nil), t.records...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: t.now()}
}

func (t *JSONTracer) finish(rec TraceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	if t.keep > 0 && len(t.records) > t.keep {
		t.records = t.records[len(t.records)-t.keep:]
	}
	if t.enc != nil {
		_ = t.enc.Encode(rec)
	}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	ended := s.tracer.now()
	rec := TraceRecord{
		Operation:  s.operation,
		Status:     string(AuditStatusSuccess),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		rec.Status = string(AuditStatusError)
		rec.Error = err.Error()
	}
	s.tracer.finish(rec)
}
