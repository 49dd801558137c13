package chat

import (
	"log"
	"sync"

	"carparter/internal/models"
)

// per-subscriber buffer; a viewer that stops reading misses messages on the
// live channel but can always replay them from history.
const messageBuffer = 32

// Hub relays persisted chat messages to every connection currently attached
// to a room topic. Unlike the notification registry, a room fans out to any
// number of subscribers (both parties, multiple tabs).
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[chan models.ChatMessage]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[chan models.ChatMessage]struct{})}
}

// Join attaches a subscriber to the room topic and returns its stream plus a
// leave function. Leave is idempotent and must run on every termination path.
func (h *Hub) Join(roomID string) (<-chan models.ChatMessage, func()) {
	ch := make(chan models.ChatMessage, messageBuffer)

	h.mu.Lock()
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[chan models.ChatMessage]struct{})
		h.rooms[roomID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	leave := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.rooms[roomID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.rooms, roomID)
				}
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, leave
}

// Broadcast relays a persisted message to all room subscribers. Slow
// subscribers are skipped rather than blocking the sending request.
func (h *Hub) Broadcast(roomID string, msg models.ChatMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.rooms[roomID] {
		select {
		case ch <- msg:
		default:
			log.Println("[CHAT] [WARN] dropping message for slow subscriber in room:", roomID)
		}
	}
}

// Subscribers reports how many connections are attached to the room.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
