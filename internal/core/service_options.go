package core

import (
	"context"
	"time"

	"scenegraph/internal/blob"
	"scenegraph/pkg/domain"
)

// Clock supplies timestamps for audit entries and archive records.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logging surface used by the service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus is the outcome recorded for an operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation.
type AuditEntry struct {
	Operation string        `json:"operation"`
	NodeID    string        `json:"node_id,omitempty"`
	Status    AuditStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// AuditRecorder receives an entry after every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// MetricsRecorder observes operation outcomes and latency.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// SceneGauge is optionally implemented by a MetricsRecorder that tracks the
// size of the scene after each operation.
type SceneGauge interface {
	SetSceneSize(nodes, undoDepth, redoDepth int)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

type serviceOptions struct {
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	archive domain.SceneArchive
	blobs   blob.Store
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
}

// WithClock overrides the service clock.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger routes service logs to l.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuditRecorder installs an audit sink.
func WithAuditRecorder(r AuditRecorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

// WithMetricsRecorder installs a metrics sink.
func WithMetricsRecorder(r MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithArchive enables SaveArchive and LoadArchive.
func WithArchive(a domain.SceneArchive) ServiceOption {
	return func(s *Service) { s.archive = a }
}

// WithBlobStore enables ExportBundle and ImportBundle.
func WithBlobStore(b blob.Store) ServiceOption {
	return func(s *Service) { s.blobs = b }
}
