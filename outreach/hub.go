package outreach

import "sync"

// Hub fans each pass result out to websocket subscribers. Slow
// subscribers drop results instead of blocking the executor.
type Hub struct {
	mu   sync.Mutex
	subs map[chan ProcessResult]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan ProcessResult]struct{})}
}

// Subscribe registers a listener. The caller must Unsubscribe when done.
func (h *Hub) Subscribe() chan ProcessResult {
	ch := make(chan ProcessResult, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan ProcessResult) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(result ProcessResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- result:
		default:
		}
	}
}
