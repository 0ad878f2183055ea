package service

import (
	"sync"
	"time"
)

// Event is a bot lifecycle notification fanned out to websocket watchers.
// Events are delivered best-effort and never persisted.
type Event struct {
	BotID   int64     `json:"bot_id"`
	Type    string    `json:"type"` // started, stopped, start_failed, reaped, roster
	Status  string    `json:"status"`
	PID     *int32    `json:"pid,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// EventHub is a small per-bot pub/sub. Slow subscribers drop events rather
// than block publishers.
type EventHub struct {
	mu   sync.RWMutex
	subs map[int64]map[chan Event]struct{}
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{subs: map[int64]map[chan Event]struct{}{}}
}

// Subscribe registers a watcher for one bot. The returned cancel function
// must be called when the watcher goes away.
func (h *EventHub) Subscribe(botID int64) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[botID] == nil {
		h.subs[botID] = map[chan Event]struct{}{}
	}
	h.subs[botID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[botID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, botID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to the bot's watchers without blocking
func (h *EventHub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[e.BotID] {
		select {
		case ch <- e:
		default:
		}
	}
}
