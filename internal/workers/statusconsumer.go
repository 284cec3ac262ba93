package workers

import (
	"context"
	"fmt"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/socket"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
)

// StatusConsumerWorker drains events:status, relaying each delivery/read
// status change to the conversation's online participants (other than the
// one whose action triggered it) so they see read receipts without polling.
type StatusConsumerWorker struct {
	base     *Base
	notifier ports.Notifier
	logger   ports.Logger
}

// NewStatusConsumerWorker constructs the Status Consumer Worker (spec §4.8.6).
func NewStatusConsumerWorker(processID string, streams ports.StreamManager, notifier ports.Notifier, logger ports.Logger) *StatusConsumerWorker {
	w := &StatusConsumerWorker{notifier: notifier, logger: logger}
	w.base = NewBase(ConsumerConfig{
		Name:          "status-consumer",
		Stream:        streaming.StreamEventsStatus,
		Group:         "status-consumers",
		Consumer:      streaming.ConsumerName(processID, "status-consumer"),
		FromBeginning: true,
	}, streams, logger, w.handle)
	return w
}

// Run blocks draining events:status until ctx is cancelled.
func (w *StatusConsumerWorker) Run(ctx context.Context) error { return w.base.Run(ctx) }

// Stop signals Run to return.
func (w *StatusConsumerWorker) Stop() { w.base.Stop() }

// Stats reports the Status Consumer Worker's counters.
func (w *StatusConsumerWorker) Stats() domain.WorkerStats { return w.base.Stats() }

func (w *StatusConsumerWorker) handle(ctx context.Context, rec domain.StreamRecord) error {
	var evt events.StatusEvent
	if err := jsonx.Unmarshal(rec.Payload, &evt); err != nil {
		return fmt.Errorf("decode status event: %w", err)
	}
	if evt.ConversationID == "" {
		return nil
	}

	outboundEvent := socket.OutboundMessageStatusChanged
	if evt.Status == domain.StatusRead {
		outboundEvent = socket.OutboundMessageRead
	}

	// §4.8.6: deliver to the originator and the other participants, not the
	// originator alone — everyone in the conversation tracks read receipts.
	delivered := w.notifier.DeliverToConversation(ctx, evt.ConversationID, ports.OutboundEvent{Event: outboundEvent, Payload: evt}, evt.RecipientID)
	if w.logger != nil {
		w.logger.Debug("status change relayed", ports.Field{Key: "messageId", Value: evt.MessageID}, ports.Field{Key: "status", Value: string(evt.Status)}, ports.Field{Key: "deliveredSockets", Value: delivered})
	}
	return nil
}
