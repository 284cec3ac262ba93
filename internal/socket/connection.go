package socket

import (
	"context"
	"sync"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	"github.com/agency-portal/chat-pipeline/pkg/ringbuffer"
	"github.com/coder/websocket"
)

// outboundQueueCapacity bounds the per-connection write-behind queue; it
// must be a power of two for ringbuffer.New.
const outboundQueueCapacity = 256

// dedupWindowSize bounds the per-connection set of message ids the client
// acknowledged with messageReceived. AlreadyDelivered reports membership;
// no delivery path consults it, so no frames are suppressed, and a new
// connection starts with an empty set.
const dedupWindowSize = 128

// Connection wraps one authenticated long-lived socket: a write-behind
// ring buffer feeding a single writer goroutine, and a bounded
// first-in-first-out window of acknowledged message ids.
type Connection struct {
	Identity string
	Endpoint string

	ws       *websocket.Conn
	outbound *ringbuffer.RingBuffer[ports.OutboundEvent]
	wake     chan struct{}

	mu           sync.Mutex
	delivered    []string
	deliveredSet map[string]struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// newConnection wraps ws for identity, identified externally by endpoint
// (an opaque per-connection id the Presence Registry stores).
func newConnection(ws *websocket.Conn, identity, endpoint string) *Connection {
	return &Connection{
		Identity:     identity,
		Endpoint:     endpoint,
		ws:           ws,
		outbound:     ringbuffer.New[ports.OutboundEvent](outboundQueueCapacity),
		wake:         make(chan struct{}, 1),
		deliveredSet: make(map[string]struct{}, dedupWindowSize),
		closed:       make(chan struct{}),
	}
}

// Enqueue appends event to the outbound queue, dropping the oldest frame if
// the queue is saturated (a slow consumer must not block the hub).
func (c *Connection) Enqueue(event ports.OutboundEvent) bool {
	if !c.outbound.Put(&event) {
		c.outbound.DropOldest(1, nil)
		c.outbound.Put(&event)
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// MarkDelivered records messageID in this connection's bounded window,
// evicting the oldest id once dedupWindowSize ids are held.
func (c *Connection) MarkDelivered(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.deliveredSet[messageID]; ok {
		return
	}
	if len(c.delivered) >= dedupWindowSize {
		oldest := c.delivered[0]
		c.delivered = c.delivered[1:]
		delete(c.deliveredSet, oldest)
	}
	c.delivered = append(c.delivered, messageID)
	c.deliveredSet[messageID] = struct{}{}
}

// AlreadyDelivered reports whether messageID is in this connection's window
// of ids recorded by MarkDelivered.
func (c *Connection) AlreadyDelivered(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.deliveredSet[messageID]
	return ok
}

// runWriter drains the outbound queue to the socket until ctx is canceled
// or the connection closes. Runs on its own goroutine, one per connection,
// so a single slow write never blocks another connection's delivery.
func (c *Connection) runWriter(ctx context.Context) {
	for {
		for {
			item := c.outbound.Get()
			if item == nil {
				break
			}
			data, err := jsonx.Marshal(item)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = c.ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-c.wake:
		}
	}
}

// Close closes the underlying socket exactly once.
func (c *Connection) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close(code, reason)
	})
}
