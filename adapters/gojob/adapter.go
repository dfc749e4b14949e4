package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-authretry/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDRefresh      = "authretry.refresh"
	refreshScriptPath = "authretry/refresh"

	DefaultRetryDelay = 5 * time.Second
)

// Refresher runs one refresh cycle. *core.Client satisfies it.
type Refresher interface {
	ForceRefresh(ctx context.Context) error
}

// RetryPolicy bounds how failed refresh jobs are retried.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps opts for the given attempt so a failing job never
// loops forever.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Delay doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// NewRefreshMessage builds the execution message for a background refresh.
// Messages sharing an idempotency key are collapsed by the queue.
func NewRefreshMessage(reason string, idempotencyKey string) *job.ExecutionMessage {
	params := map[string]any{}
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		params["reason"] = trimmed
	}
	return &job.ExecutionMessage{
		JobID:          JobIDRefresh,
		ScriptPath:     refreshScriptPath,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

type RefreshEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewRefreshEnqueuer(enqueuer queue.Enqueuer) *RefreshEnqueuer {
	return &RefreshEnqueuer{enqueuer: enqueuer}
}

func (e *RefreshEnqueuer) EnqueueRefresh(ctx context.Context, reason string, idempotencyKey string) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return e.enqueuer.Enqueue(ctx, NewRefreshMessage(reason, idempotencyKey))
}

// RefreshHandler runs refresh jobs against a Refresher, acking on success
// and nacking through the retry policy on failure.
type RefreshHandler struct {
	refresher Refresher
	policy    RetryPolicy
	logger    core.Logger
}

func NewRefreshHandler(refresher Refresher, policy RetryPolicy, logger core.Logger) *RefreshHandler {
	return &RefreshHandler{
		refresher: refresher,
		policy:    policy,
		logger:    glog.Ensure(logger),
	}
}

// Handle processes one delivery. attempt is 1-based.
func (h *RefreshHandler) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if h == nil || h.refresher == nil {
		return fmt.Errorf("gojob: refresher is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDRefresh {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		h.logger.Warn("authretry refresh job rejected", "job_id", jobID)
		return delivery.Nack(ctx, queue.NackOptions{
			DeadLetter: true,
			Reason:     "unsupported job id",
		})
	}

	if err := h.refresher.ForceRefresh(ctx); err != nil {
		opts := h.policy.NormalizeAttempt(queue.NackOptions{
			Delay:   h.policy.Delay(attempt),
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		h.logger.Warn("authretry refresh job failed",
			"attempt", attempt,
			"requeue", opts.Requeue,
			"dead_letter", opts.DeadLetter,
			"error", err,
		)
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			return nackErr
		}
		return err
	}
	return delivery.Ack(ctx)
}

// ProcessNext dequeues one delivery and handles it.
func (h *RefreshHandler) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return h.Handle(ctx, delivery, attempt)
}

// LoggingHook reports worker lifecycle events for refresh jobs.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("authretry job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("authretry job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("authretry job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("authretry job retrying", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	jobID := ""
	if message != nil {
		jobID = message.JobID
	}
	fields := []any{
		"job_id", jobID,
		"attempt", event.Attempt,
		"delay_ms", event.Delay.Milliseconds(),
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err)
	}
	return fields
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
	_ Refresher   = (*core.Client)(nil)
)
