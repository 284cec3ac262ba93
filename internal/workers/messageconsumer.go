package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/events"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/socket"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/internal/workerpool"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
)

// fanoutPoolSize bounds how many recipient deliveries a single message fans
// out across concurrently; rooms bigger than this still deliver correctly,
// just with some deliveries queueing behind others.
const fanoutPoolSize = 8

// MessageConsumerWorker drains events:messages, resolving every online
// conversation participant other than the sender and pushing the message
// over their socket connections. A recipient that is offline (or whose
// socket write fails) is not re-appended anywhere: per spec §4.8.5 they
// catch up through backfill on their next reconnect.
type MessageConsumerWorker struct {
	base     *Base
	rooms    ports.RoomRegistry
	presence ports.PresenceRegistry
	notifier ports.Notifier
	logger   ports.Logger
	pool     *workerpool.Pool
}

// NewMessageConsumerWorker constructs the Message Consumer Worker (spec §4.8.5).
func NewMessageConsumerWorker(processID string, streams ports.StreamManager, rooms ports.RoomRegistry, presence ports.PresenceRegistry, notifier ports.Notifier, logger ports.Logger) *MessageConsumerWorker {
	w := &MessageConsumerWorker{rooms: rooms, presence: presence, notifier: notifier, logger: logger, pool: workerpool.New(fanoutPoolSize)}
	w.base = NewBase(ConsumerConfig{
		Name:          "message-consumer",
		Stream:        streaming.StreamEventsMessages,
		Group:         "message-consumers",
		Consumer:      streaming.ConsumerName(processID, "message-consumer"),
		FromBeginning: true,
	}, streams, logger, w.handle)
	return w
}

// Run starts the fan-out pool and blocks draining events:messages until ctx
// is cancelled.
func (w *MessageConsumerWorker) Run(ctx context.Context) error {
	w.pool.Start(ctx)
	defer w.pool.Stop()
	return w.base.Run(ctx)
}

// Stop signals Run to return.
func (w *MessageConsumerWorker) Stop() { w.base.Stop() }

// Stats reports the Message Consumer Worker's counters.
func (w *MessageConsumerWorker) Stats() domain.WorkerStats { return w.base.Stats() }

func (w *MessageConsumerWorker) handle(ctx context.Context, rec domain.StreamRecord) error {
	var evt events.NewMessageEvent
	if err := jsonx.Unmarshal(rec.Payload, &evt); err != nil {
		return fmt.Errorf("decode new message event: %w", err)
	}
	msg := evt.Message

	recipients, err := w.rooms.MembersOnline(ctx, msg.ConversationID, w.presence)
	if err != nil {
		return fmt.Errorf("resolve online recipients: %w", err)
	}

	var (
		mu        sync.Mutex
		delivered int
		wg        sync.WaitGroup
	)
	deliverOne := func(ctx context.Context, identity string) {
		n := w.notifier.DeliverToIdentity(ctx, identity, ports.OutboundEvent{Event: socket.OutboundNewMessage, Payload: msg})
		mu.Lock()
		delivered += n
		mu.Unlock()
	}
	for _, identity := range recipients {
		if identity == msg.SenderID {
			continue
		}
		identity := identity
		wg.Add(1)
		submitted := w.pool.Submit(func(ctx context.Context) {
			defer wg.Done()
			deliverOne(ctx, identity)
		})
		if !submitted {
			wg.Done()
			deliverOne(ctx, identity)
		}
	}
	wg.Wait()

	if w.logger != nil {
		w.logger.Debug("new message fanned out", ports.Field{Key: "messageId", Value: msg.ID}, ports.Field{Key: "deliveredSockets", Value: delivered})
	}
	return nil
}
