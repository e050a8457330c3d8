package repository

import (
	"context"
	"sync"

	"github.com/mealvault/mealvault/internal/models"
)

// EventType classifies a watch notification.
type EventType string

const (
	// EventUpdated signals a successful update of the watched meal.
	EventUpdated EventType = "updated"
	// EventDeleted signals the watched meal was removed.
	EventDeleted EventType = "deleted"
)

// MealEvent is delivered to watchers after the repository invalidates the
// corresponding cache entry, so any follow-up read observes fresh data.
type MealEvent struct {
	Type EventType    `json:"type"`
	ID   string       `json:"id"`
	Meal *models.Meal `json:"meal,omitempty"`
}

const watchBuffer = 8

// watchHub fans successful mutations out to per-id subscribers. Slow
// subscribers have events dropped rather than blocking writers.
type watchHub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan MealEvent
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[string]map[int]chan MealEvent)}
}

func (h *watchHub) subscribe(ctx context.Context, id string) (<-chan MealEvent, func()) {
	ch := make(chan MealEvent, watchBuffer)

	h.mu.Lock()
	token := h.next
	h.next++
	if h.subs[id] == nil {
		h.subs[id] = make(map[int]chan MealEvent)
	}
	h.subs[id][token] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[id]; ok {
				delete(set, token)
				if len(set) == 0 {
					delete(h.subs, id)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return ch, cancel
}

func (h *watchHub) publish(event MealEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[event.ID] {
		select {
		case ch <- event:
		default: // subscriber is not draining; drop rather than block the writer
		}
	}
}
