package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel carrying notification events between
// instances.
const Channel = "notifications"

// Event is the live payload pushed to an open subscriber connection. The
// persisted notification row is written separately by the caller; losing an
// Event only loses real-time delivery.
type Event struct {
	ReceiverID string    `json:"receiverId"`
	Message    string    `json:"message"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// subscriber buffer; a receiver that falls this far behind loses events
// rather than blocking the dispatching request.
const eventBuffer = 16

// Dispatcher owns the receiver-id -> live-connection registry. At most one
// connection per receiver id: a new Subscribe replaces the previous one.
// When a Redis client is configured, Dispatch goes through pub/sub so every
// instance's registry sees the event; without Redis it delivers in-process.
type Dispatcher struct {
	mu    sync.RWMutex
	conns map[string]chan Event
	rdb   *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{
		conns: make(map[string]chan Event),
		rdb:   rdb,
	}
}

// Run consumes the Redis channel and forwards events to locally registered
// connections. It returns when ctx is canceled. Without Redis it is a no-op.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.rdb == nil {
		return
	}

	sub := d.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	log.Println("[NOTIFY] [INFO] dispatcher subscribed to redis channel:", Channel)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Println("[NOTIFY] [ERROR] bad event payload:", err)
				continue
			}
			d.deliver(ev)
		}
	}
}

// Subscribe registers a live connection for the receiver and returns the
// event stream plus a cancel function. Cancel is safe to call more than once
// and must run on every termination path; it removes the registry entry
// unless a newer connection has already replaced it.
func (d *Dispatcher) Subscribe(receiverID string) (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	d.mu.Lock()
	if old, ok := d.conns[receiverID]; ok {
		close(old)
	}
	d.conns[receiverID] = ch
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			if current, ok := d.conns[receiverID]; ok && current == ch {
				delete(d.conns, receiverID)
				close(ch)
			}
			d.mu.Unlock()
		})
	}
	return ch, cancel
}

// Dispatch pushes the event toward the receiver's live connection. Delivery
// is fire-and-forget: a missing subscriber, a full buffer or a Redis outage
// never surfaces to the triggering workflow.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	if d.rdb != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := d.rdb.Publish(ctx, Channel, payload).Err(); err == nil {
				return
			} else {
				log.Println("[NOTIFY] [WARN] redis publish failed, delivering locally:", err)
			}
		}
	}

	d.deliver(ev)
}

func (d *Dispatcher) deliver(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, ok := d.conns[ev.ReceiverID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		log.Println("[NOTIFY] [WARN] dropping event for slow receiver:", ev.ReceiverID)
	}
}

// Connected reports whether the receiver currently has a live connection.
func (d *Dispatcher) Connected(receiverID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.conns[receiverID]
	return ok
}

// Close drops every live connection. Used on shutdown.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ch := range d.conns {
		close(ch)
		delete(d.conns, id)
	}
}
