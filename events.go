package stepdiag

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience
type CloudEvent = cloudevents.Event

// EventType constants for the diagnostic run lifecycle. Following the
// CloudEvents specification, these use reverse domain notation.
const (
	EventTypeRunStarted   = "com.stepdiag.run.started"
	EventTypeRunCompleted = "com.stepdiag.run.completed"
	EventTypeRunFailed    = "com.stepdiag.run.failed"

	EventTypeFeatureProcessed = "com.stepdiag.feature.processed"
	EventTypeRegistryLoaded   = "com.stepdiag.registry.loaded"

	EventTypeWatchTriggered = "com.stepdiag.watch.triggered"
	EventTypeServeRefreshed = "com.stepdiag.serve.refreshed"
)

// eventSource is the CloudEvents source attribute of every event this
// package emits.
const eventSource = "stepdiag"

// Observer defines the interface for objects that want to be notified of
// run events. Observers register with a Subject and should handle events
// quickly to avoid blocking other observers.
type Observer interface {
	// OnEvent is called when an event the observer is interested in occurs.
	OnEvent(ctx context.Context, event CloudEvent) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// Subject defines the interface for objects that emit run events.
type Subject interface {
	// RegisterObserver adds an observer to receive notifications. Observers
	// can optionally filter events by type; an empty eventTypes list means
	// all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent; unregistering an
	// unknown observer is not an error.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all registered observers without
	// blocking the caller; observer errors are logged, never propagated.
	NotifyObservers(ctx context.Context, event CloudEvent) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer for debugging and monitoring.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// FunctionalObserver provides a simple way to create observers from plain
// functions without defining full structs.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event CloudEvent) error
}

// NewFunctionalObserver creates an observer that delegates to handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event CloudEvent) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements Observer by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event CloudEvent) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// NewRunEvent creates a properly formatted CloudEvent for a run lifecycle
// event, with a time-ordered unique id.
func NewRunEvent(eventType string, data interface{}) CloudEvent {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(eventSource)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// generateEventID generates event identifiers using UUIDv7, whose embedded
// timestamp keeps ids time-ordered.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails for any reason
		id = uuid.New()
	}
	return id.String()
}

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// RunSubject is the Subject implementation diagnostic runs emit through.
// Notification is asynchronous per observer, with panic isolation, so a slow
// or faulty observer cannot stall or abort a run.
type RunSubject struct {
	log       Logger
	observers map[string]*observerRegistration
	mu        sync.RWMutex
}

// NewRunSubject creates an empty subject logging observer failures to log.
func NewRunSubject(log Logger) *RunSubject {
	if log == nil {
		log = NoopLogger{}
	}
	return &RunSubject{
		log:       log,
		observers: make(map[string]*observerRegistration),
	}
}

// RegisterObserver adds an observer, optionally filtered to eventTypes.
func (s *RunSubject) RegisterObserver(observer Observer, eventTypes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}
	s.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}
	s.log.Debug("observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Idempotent.
func (s *RunSubject) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.observers[observer.ObserverID()]; exists {
		delete(s.observers, observer.ObserverID())
		s.log.Debug("observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

// NotifyObservers sends the event to every interested observer in its own
// goroutine. Observer errors and panics are logged and contained.
func (s *RunSubject) NotifyObservers(ctx context.Context, event CloudEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := event.Validate(); err != nil {
		s.log.Error("invalid CloudEvent", "eventType", event.Type(), "error", err)
		return fmt.Errorf("invalid CloudEvent: %w", err)
	}

	for _, registration := range s.observers {
		registration := registration
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("observer panicked",
						"observerID", registration.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()
			if err := registration.observer.OnEvent(ctx, event); err != nil {
				s.log.Error("observer error",
					"observerID", registration.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

// GetObservers returns information about currently registered observers.
func (s *RunSubject) GetObservers() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(s.observers))
	for _, registration := range s.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}
