package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the per-subscriber channel capacity. Slow subscribers drop events.
const subscriberBuffer = 32

// Bus logs every emitted event and fans it out to subscribers.
type Bus struct {
	log     zerolog.Logger
	mu      sync.RWMutex
	nextID  int
	subs    map[int]chan Event
	dropped map[int]int
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:     log.With().Str("service", "events").Logger(),
		subs:    make(map[int]chan Event),
		dropped: make(map[int]int),
	}
}

// Emit emits an event
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	b.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped[id]++
		}
	}
}

// EmitTyped emits an event built from typed data
func (b *Bus) EmitTyped(module string, data EventData) {
	b.Emit(data.EventType(), module, toMap(data))
}

// Subscribe registers a subscriber. The returned function unsubscribes and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			if n := b.dropped[id]; n > 0 {
				b.log.Warn().Int("dropped", n).Msg("Subscriber dropped events")
			}
			delete(b.dropped, id)
			close(ch)
		})
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
