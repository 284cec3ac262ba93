package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
)

const defaultMaxRetryAttempts = 5

// retryBackoff is the exponential schedule spec.md requires: min(2^attempt *
// 500ms, 30s).
func retryBackoff(attempt int) time.Duration {
	d := 500 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}

// RetryWorker drains retry:messages, sleeping the exponential backoff for
// each record's attempt count before re-attempting the save. A record that
// exhausts maxAttempts is routed to dlq:messages instead of retried again.
type RetryWorker struct {
	base        *Base
	store       ports.Store
	streams     ports.StreamManager
	logger      ports.Logger
	maxAttempts int
}

// NewRetryWorker constructs the Retry Worker (spec §4.8.1).
func NewRetryWorker(processID string, streams ports.StreamManager, store ports.Store, logger ports.Logger, maxAttempts int) *RetryWorker {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxRetryAttempts
	}
	w := &RetryWorker{store: store, streams: streams, logger: logger, maxAttempts: maxAttempts}
	w.base = NewBase(ConsumerConfig{
		Name:          "retry",
		Stream:        streaming.StreamRetryMessages,
		Group:         "retry-workers",
		Consumer:      streaming.ConsumerName(processID, "retry"),
		FromBeginning: true,
	}, streams, logger, w.handle)
	return w
}

// Run blocks draining retry:messages until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) error { return w.base.Run(ctx) }

// Stop signals Run to return.
func (w *RetryWorker) Stop() { w.base.Stop() }

// Stats reports the Retry Worker's counters.
func (w *RetryWorker) Stats() domain.WorkerStats { return w.base.Stats() }

func (w *RetryWorker) handle(ctx context.Context, rec domain.StreamRecord) error {
	var fb events.FallbackRecord
	if err := jsonx.Unmarshal(rec.Payload, &fb); err != nil {
		return fmt.Errorf("decode retry record: %w", err)
	}

	if fb.Attempt >= w.maxAttempts {
		return w.routeToDLQ(ctx, fb, "max retry attempts exhausted")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(retryBackoff(fb.Attempt)):
	}

	msg := domain.Message{
		ID:             fb.ID,
		ConversationID: fb.Payload.ConversationID,
		SenderID:       fb.Payload.SenderID,
		ReceiverID:     fb.Payload.ReceiverID,
		Content:        fb.Payload.Content,
		Type:           fb.Payload.Type,
		AttachmentID:   fb.Payload.AttachmentID,
		CreatedAt:      time.Now(),
	}

	if err := w.store.SaveMessage(ctx, msg); err != nil {
		if w.logger != nil {
			w.logger.Warn("retry attempt failed",
				ports.Field{Key: "messageId", Value: fb.ID}, ports.Field{Key: "attempt", Value: fb.Attempt}, ports.Field{Key: "error", Value: err.Error()})
		}
		return w.reenqueue(ctx, fb)
	}

	payload, err := jsonx.Marshal(events.NewMessageEvent{EventType: "NEW_MESSAGE", Message: msg})
	if err != nil {
		return fmt.Errorf("encode events:messages: %w", err)
	}
	if _, err := w.streams.Append(ctx, streaming.StreamEventsMessages, payload); err != nil {
		return fmt.Errorf("append events:messages: %w", err)
	}
	return nil
}

func (w *RetryWorker) reenqueue(ctx context.Context, fb events.FallbackRecord) error {
	payload, err := jsonx.Marshal(events.FallbackRecord{
		ID: fb.ID, CorrelationID: fb.CorrelationID, Payload: fb.Payload, Attempt: fb.Attempt + 1,
	})
	if err != nil {
		return fmt.Errorf("encode retry record: %w", err)
	}
	if _, err := w.streams.Append(ctx, streaming.StreamRetryMessages, payload); err != nil {
		return fmt.Errorf("%w: re-append retry:messages: %v", apperrors.ErrTransientBroker, err)
	}
	return nil
}

func (w *RetryWorker) routeToDLQ(ctx context.Context, fb events.FallbackRecord, reason string) error {
	payload, err := jsonx.Marshal(struct {
		events.FallbackRecord
		Reason string `json:"reason"`
	}{FallbackRecord: fb, Reason: reason})
	if err != nil {
		return fmt.Errorf("encode dlq:messages: %w", err)
	}
	if _, err := w.streams.Append(ctx, streaming.StreamDLQMessages, payload); err != nil {
		return fmt.Errorf("append dlq:messages: %w", err)
	}
	if w.logger != nil {
		w.logger.Error("message routed to dead letter queue",
			ports.Field{Key: "messageId", Value: fb.ID}, ports.Field{Key: "reason", Value: reason})
	}
	return nil
}
