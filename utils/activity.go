package utils

import (
	"sync"
	"time"
)

// ActivityEvent describes a save that websocket clients may want to render
type ActivityEvent struct {
	Type           string    `json:"type"`
	OrganizationID uint      `json:"organization_id"`
	DecisionID     uint      `json:"decision_id"`
	ObjectID       uint      `json:"object_id"`
	ActorID        *uint     `json:"actor_id,omitempty"`
	Excerpt        string    `json:"excerpt"`
	At             time.Time `json:"at"`
}

// ActivityHub fans events out to subscribers of an organization
type ActivityHub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan ActivityEvent]struct{}
}

func NewActivityHub() *ActivityHub {
	return &ActivityHub{subscribers: make(map[uint]map[chan ActivityEvent]struct{})}
}

// Subscribe registers for events of the organizations. The returned cancel
// function must be called to release the channel.
func (h *ActivityHub) Subscribe(orgIDs ...uint) (<-chan ActivityEvent, func()) {
	ch := make(chan ActivityEvent, 16)

	h.mu.Lock()
	for _, id := range orgIDs {
		if h.subscribers[id] == nil {
			h.subscribers[id] = make(map[chan ActivityEvent]struct{})
		}
		h.subscribers[id][ch] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			for _, id := range orgIDs {
				delete(h.subscribers[id], ch)
				if len(h.subscribers[id]) == 0 {
					delete(h.subscribers, id)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks; slow subscribers miss events
func (h *ActivityHub) Publish(event ActivityEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[event.OrganizationID] {
		select {
		case ch <- event:
		default:
		}
	}
}
