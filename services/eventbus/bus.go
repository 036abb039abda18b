package eventbus

import (
	"sync"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/event"
)

type HandlerFunc func(event.Event) error

// InMemoryBus dispatches events to handlers synchronously and to streams without blocking.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerFunc
	streams  map[int]chan event.Event
	nextID   int
	logger   core.Logger
}

var _ event.Publisher = (*InMemoryBus)(nil)

func NewInMemoryBus(logger core.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[event.Type][]HandlerFunc),
		streams:  make(map[int]chan event.Event),
		logger:   logger,
	}
}

func (b *InMemoryBus) Subscribe(eventType event.Type, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Stream returns a channel receiving every published event and a func to close it.
// Events are dropped for streams whose buffer is full.
func (b *InMemoryBus) Stream(buffer int) (<-chan event.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan event.Event, buffer)
	b.streams[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.streams, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *InMemoryBus) Publish(evt event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.handlers[evt.Type] {
		if err := handler(evt); err != nil && b.logger != nil {
			b.logger.Error("event handler: "+err.Error(), err, map[string]interface{}{"type": evt.Type})
		}
	}
	for _, ch := range b.streams {
		select {
		case ch <- evt:
		default:
			if b.logger != nil {
				b.logger.Warn("event stream full, dropping event", map[string]interface{}{"type": evt.Type})
			}
		}
	}
}
