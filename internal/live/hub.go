package live

import (
	"sync"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// Hub fans probe results out to live subscribers. Broadcast never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan domain.ProbeResult]struct{}
	buffer  int
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{clients: make(map[chan domain.ProbeResult]struct{}), buffer: buffer}
}

func (h *Hub) Subscribe() chan domain.ProbeResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := make(chan domain.ProbeResult, h.buffer)
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) Unsubscribe(c chan domain.ProbeResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c)
	}
}

func (h *Hub) Broadcast(r domain.ProbeResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c <- r:
		default:
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
