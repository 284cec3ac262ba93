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

// FallbackWorker drains fallback:messages, the queue the Ingest Path routes
// to when the Message Store Gateway's circuit is open or a save attempt
// fails with a retryable error. Every record gets exactly one immediate
// retry here before falling through to the backoff schedule in retry:messages.
type FallbackWorker struct {
	base    *Base
	store   ports.Store
	streams ports.StreamManager
	logger  ports.Logger
}

// NewFallbackWorker constructs the Fallback Worker (spec §4.8.2).
func NewFallbackWorker(processID string, streams ports.StreamManager, store ports.Store, logger ports.Logger) *FallbackWorker {
	w := &FallbackWorker{store: store, streams: streams, logger: logger}
	w.base = NewBase(ConsumerConfig{
		Name:          "fallback",
		Stream:        streaming.StreamFallbackMessages,
		Group:         "fallback-workers",
		Consumer:      streaming.ConsumerName(processID, "fallback"),
		FromBeginning: true,
	}, streams, logger, w.handle)
	return w
}

// Run blocks draining fallback:messages until ctx is cancelled.
func (w *FallbackWorker) Run(ctx context.Context) error { return w.base.Run(ctx) }

// Stop signals Run to return.
func (w *FallbackWorker) Stop() { w.base.Stop() }

// Stats reports the Fallback Worker's counters.
func (w *FallbackWorker) Stats() domain.WorkerStats { return w.base.Stats() }

func (w *FallbackWorker) handle(ctx context.Context, rec domain.StreamRecord) error {
	var fb events.FallbackRecord
	if err := jsonx.Unmarshal(rec.Payload, &fb); err != nil {
		return fmt.Errorf("decode fallback record: %w", err)
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
			w.logger.Warn("fallback retry failed, routing to backoff queue",
				ports.Field{Key: "messageId", Value: fb.ID}, ports.Field{Key: "error", Value: err.Error()})
		}
		return w.reroute(ctx, fb)
	}

	if err := w.publishSaved(ctx, msg); err != nil {
		return err
	}
	return nil
}

func (w *FallbackWorker) reroute(ctx context.Context, fb events.FallbackRecord) error {
	payload, err := jsonx.Marshal(events.FallbackRecord{
		ID: fb.ID, CorrelationID: fb.CorrelationID, Payload: fb.Payload, Attempt: fb.Attempt + 1,
	})
	if err != nil {
		return fmt.Errorf("encode retry record: %w", err)
	}
	if _, err := w.streams.Append(ctx, streaming.StreamRetryMessages, payload); err != nil {
		return fmt.Errorf("%w: append retry:messages: %v", apperrors.ErrTransientBroker, err)
	}
	return nil
}

func (w *FallbackWorker) publishSaved(ctx context.Context, msg domain.Message) error {
	payload, err := jsonx.Marshal(events.NewMessageEvent{EventType: "NEW_MESSAGE", Message: msg})
	if err != nil {
		return fmt.Errorf("encode events:messages: %w", err)
	}
	if _, err := w.streams.Append(ctx, streaming.StreamEventsMessages, payload); err != nil {
		return fmt.Errorf("append events:messages: %w", err)
	}
	return nil
}
