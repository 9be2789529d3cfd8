package store

import "sync"

const subscriberBuffer = 100

// hub fans records out to subscribers without blocking the publisher.
type hub struct {
	mu          sync.RWMutex
	subscribers map[chan CycleRecord]struct{}
}

func newHub() *hub {
	return &hub{subscribers: make(map[chan CycleRecord]struct{})}
}

// Subscribe creates a subscription with a buffer of 100 records. If the
// buffer fills, new records are dropped for this subscriber.
func (h *hub) Subscribe() <-chan CycleRecord {
	ch := make(chan CycleRecord, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (h *hub) Unsubscribe(ch <-chan CycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subCh := range h.subscribers {
		if subCh == ch {
			delete(h.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (h *hub) publish(rec CycleRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
			// subscriber is slow, drop the record
		}
	}
}

// closeAll closes every subscriber channel.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
