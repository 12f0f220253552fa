package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a handle lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Store is the store name the event concerns.
	Store string `json:"store,omitempty"`

	// Backend is the storage backend of the store.
	Backend string `json:"backend,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types published for handles.
const (
	EventTypeHandleOpened   = "handle.opened"
	EventTypeStoreCreated   = "store.created"
	EventTypeOpenFallback   = "handle.open_fallback"
	EventTypeCreateFailed   = "handle.create_failed"
	EventTypeHandleReleased = "handle.released"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrPublisherStopped is returned by Publish after Shutdown.
var ErrPublisherStopped = errors.New("event publisher stopped")

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers, either inline or from a
// background goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	stopOnce    sync.Once
	stopped     chan struct{}
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{
		config:  cfg,
		stopped: make(chan struct{}),
	}
	if !cfg.Enabled {
		return ep, nil
	}

	if cfg.EnableAsync {
		if cfg.BufferSize <= 0 {
			return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
		}
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	select {
	case <-ep.stopped:
		return ErrPublisherStopped
	default:
	}

	if ep.buffer != nil {
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, %s event dropped", event.Type)
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishHandleOpened publishes a handle opened event.
func (ep *EventPublisher) PublishHandleOpened(store, backend, mode string, elapsed time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeHandleOpened,
		Store:   store,
		Backend: backend,
		Message: fmt.Sprintf("Store %s opened on %s (%s)", store, backend, mode),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"mode":     mode,
			"duration": elapsed.Seconds(),
		},
	})
}

// PublishStoreCreated publishes a store created event.
func (ep *EventPublisher) PublishStoreCreated(store, backend string) error {
	return ep.Publish(Event{
		Type:    EventTypeStoreCreated,
		Store:   store,
		Backend: backend,
		Message: fmt.Sprintf("Store %s created on %s", store, backend),
		Level:   EventLevelInfo,
	})
}

// PublishOpenFallback publishes an event when opening an existing store
// failed and creation is attempted.
func (ep *EventPublisher) PublishOpenFallback(store, backend, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeOpenFallback,
		Store:   store,
		Backend: backend,
		Message: fmt.Sprintf("Store %s could not be opened, creating it: %s", store, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishCreateFailed publishes a construction failure event.
func (ep *EventPublisher) PublishCreateFailed(store, backend, kind string) error {
	return ep.Publish(Event{
		Type:    EventTypeCreateFailed,
		Store:   store,
		Backend: backend,
		Message: fmt.Sprintf("Store %s handle failed: %s", store, kind),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"kind": kind,
		},
	})
}

// PublishHandleReleased publishes a handle released event.
func (ep *EventPublisher) PublishHandleReleased(store, backend string) error {
	return ep.Publish(Event{
		Type:    EventTypeHandleReleased,
		Store:   store,
		Backend: backend,
		Message: fmt.Sprintf("Store %s released", store),
		Level:   EventLevelInfo,
	})
}

// Subscribe adds a new event subscriber. filter may be nil.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events until shutdown, then drains the buffer.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.stopped:
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent calls every matching subscriber in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	entries := make([]subscriberEntry, len(ep.subscribers))
	copy(entries, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher and waits for buffered events to be delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.stopOnce.Do(func() { close(ep.stopped) })

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByStore creates a filter that only allows events for one store.
func FilterByStore(store string) EventFilter {
	return func(event Event) bool {
		return event.Store == store
	}
}

// LogSubscriber returns a subscriber that writes each event to logger at
// debug level.
func LogSubscriber(logger *Logger) EventSubscriber {
	return func(event Event) {
		fields := map[string]interface{}{
			"event":    event.Type,
			"event_id": event.ID,
		}
		for k, v := range event.Data {
			fields[k] = v
		}
		logger.WithStore(event.Store, event.Backend).WithFields(fields).Debug(event.Message)
	}
}
