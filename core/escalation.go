package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Escalation describes a failure handed to the reporting sink.
type Escalation struct {
	Operation      string
	Classification Classification
	// RefreshFailure marks failures caused by the credential provider.
	RefreshFailure bool
	// Terminal failures also signal the environment that the session is
	// unauthenticated.
	Terminal bool
	Err      error
}

type Escalator struct {
	sink     ReportingSink
	signal   UnauthenticatedSignal
	observer observer
}

func NewEscalator(sink ReportingSink, signal UnauthenticatedSignal, logger Logger) *Escalator {
	if signal == nil {
		signal = NopUnauthenticatedSignal{}
	}
	if sink == nil {
		sink = NewLoggerReportingSink(logger)
	}
	return &Escalator{
		sink:     sink,
		signal:   signal,
		observer: observer{logger: logger},
	}
}

// Escalate reports the failure and, for terminal failures, signals the
// environment. It returns the escalation id used in the report.
func (e *Escalator) Escalate(ctx context.Context, in Escalation) string {
	if e == nil {
		return ""
	}
	id := uuid.NewString()
	fields := map[string]any{
		"escalation_id":   id,
		"operation":       in.Operation,
		"classification":  string(in.Classification.Kind),
		"reason":          in.Classification.Reason,
		"status_code":     in.Classification.StatusCode,
		"error_code":      in.Classification.ErrorCode,
		"refresh_failure": in.RefreshFailure,
		"terminal":        in.Terminal,
	}
	e.safely(ctx, "report", func() {
		e.sink.Report(ctx, in.Err, fields)
	})
	if in.Terminal {
		e.safely(ctx, "signal_unauthenticated", func() {
			e.signal.SignalUnauthenticated(ctx, in.Err)
		})
	}
	return id
}

func (e *Escalator) safely(ctx context.Context, step string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.observer.logError(ctx, "escalation "+step+" panicked", map[string]any{
				"panic": fmt.Sprint(recovered),
			})
		}
	}()
	fn()
}

// LoggerReportingSink writes reports to a logger.
type LoggerReportingSink struct {
	observer observer
}

func NewLoggerReportingSink(logger Logger) LoggerReportingSink {
	return LoggerReportingSink{observer: observer{logger: logger}}
}

func (s LoggerReportingSink) Report(ctx context.Context, err error, fields map[string]any) {
	payload := cloneFields(fields)
	if err != nil {
		payload["error"] = err.Error()
	}
	s.observer.logError(ctx, "request failure escalated", payload)
}

type NopUnauthenticatedSignal struct{}

func (NopUnauthenticatedSignal) SignalUnauthenticated(context.Context, error) {}

// ChannelSignal delivers unauthenticated transitions on a buffered channel.
// Deliveries never block; when the buffer is full the signal is dropped and
// counted.
type ChannelSignal struct {
	ch      chan error
	mu      sync.Mutex
	dropped int
}

func NewChannelSignal(buffer int) *ChannelSignal {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSignal{ch: make(chan error, buffer)}
}

func (s *ChannelSignal) C() <-chan error {
	return s.ch
}

func (s *ChannelSignal) SignalUnauthenticated(_ context.Context, reason error) {
	select {
	case s.ch <- reason:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

func (s *ChannelSignal) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

var (
	_ ReportingSink         = LoggerReportingSink{}
	_ UnauthenticatedSignal = NopUnauthenticatedSignal{}
	_ UnauthenticatedSignal = (*ChannelSignal)(nil)
)
