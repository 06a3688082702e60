// Package progress is an in-memory pub/sub hub for job progress updates.
// Producers publish phase/done/total snapshots against a job id; any number
// of subscribers receive them. Delivery is best effort: a slow subscriber
// misses updates rather than stalling the producer, and the persisted job
// row always holds the authoritative latest state.
package progress

import (
	"sync"
)

// Update is one progress snapshot for a job.
type Update struct {
	Phase string `json:"phase"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Update]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Update]struct{}),
	}
}

// Subscribe registers a listener for one job id. Returns a receive-only
// channel and an unsubscribe function; the channel is never closed, callers
// select on it together with their own done signal.
func (h *Hub) Subscribe(jobID string) (<-chan Update, func()) {
	ch := make(chan Update, 16)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan Update]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	unsub := func() {
		h.mu.Lock()
		delete(h.subs[jobID], ch)
		if len(h.subs[jobID]) == 0 {
			delete(h.subs, jobID)
		}
		h.mu.Unlock()
		// Empty anything already queued so the buffer is not pinned.
		for {
			select {
			case <-ch:
			default:
				return
			}
		}
	}

	return ch, unsub
}

// Publish sends an update to all subscribers of the job.
// Non-blocking: slow subscribers are skipped.
func (h *Hub) Publish(jobID string, u Update) {
	h.mu.Lock()
	set := h.subs[jobID]
	// Copy the set under lock to avoid holding it during sends.
	channels := make([]chan Update, 0, len(set))
	for ch := range set {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- u:
		default:
			// skip slow subscriber
		}
	}
}
