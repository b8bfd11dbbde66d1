package stepdiag

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingObserver collects delivered events and signals each arrival.
type recordingObserver struct {
	id       string
	failWith error
	panicOn  string

	mu       sync.Mutex
	received []CloudEvent
	arrivals chan CloudEvent
}

func newRecordingObserver(id string) *recordingObserver {
	return &recordingObserver{id: id, arrivals: make(chan CloudEvent, 16)}
}

func (o *recordingObserver) OnEvent(ctx context.Context, event CloudEvent) error {
	if o.panicOn != "" && event.Type() == o.panicOn {
		panic("observer exploded")
	}
	o.mu.Lock()
	o.received = append(o.received, event)
	o.mu.Unlock()
	o.arrivals <- event
	return o.failWith
}

func (o *recordingObserver) ObserverID() string {
	return o.id
}

func waitForEvent(t *testing.T, o *recordingObserver) CloudEvent {
	t.Helper()
	select {
	case event := <-o.arrivals:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("observer %q received no event in time", o.id)
		return CloudEvent{}
	}
}

func assertNoEvent(t *testing.T, o *recordingObserver) {
	t.Helper()
	select {
	case event := <-o.arrivals:
		t.Fatalf("observer %q unexpectedly received %s", o.id, event.Type())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewRunEvent(t *testing.T) {
	t.Parallel()
	event := NewRunEvent(EventTypeRunStarted, map[string]interface{}{"features": 3})

	if event.Type() != EventTypeRunStarted {
		t.Errorf("Expected type %q, got %q", EventTypeRunStarted, event.Type())
	}
	if event.Source() != "stepdiag" {
		t.Errorf("Expected source 'stepdiag', got %q", event.Source())
	}
	if event.SpecVersion() != "1.0" {
		t.Errorf("Expected spec version '1.0', got %q", event.SpecVersion())
	}
	if event.ID() == "" {
		t.Error("Expected a non-empty event id")
	}
	if event.Time().IsZero() {
		t.Error("Expected the event time to be set")
	}
	if err := event.Validate(); err != nil {
		t.Errorf("Expected a valid CloudEvent, got %v", err)
	}

	other := NewRunEvent(EventTypeRunStarted, nil)
	if other.ID() == event.ID() {
		t.Error("Expected distinct event ids")
	}
}

func TestRunSubjectNotifyObservers(t *testing.T) {
	t.Parallel()
	subject := NewRunSubject(nil)
	observer := newRecordingObserver("recorder")
	if err := subject.RegisterObserver(observer); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}

	event := NewRunEvent(EventTypeRunCompleted, map[string]interface{}{"definitions": 2})
	if err := subject.NotifyObservers(context.Background(), event); err != nil {
		t.Fatalf("NotifyObservers failed: %v", err)
	}

	got := waitForEvent(t, observer)
	if got.Type() != EventTypeRunCompleted {
		t.Errorf("Expected %q, got %q", EventTypeRunCompleted, got.Type())
	}
	if got.ID() != event.ID() {
		t.Errorf("Expected event id %q, got %q", event.ID(), got.ID())
	}
}

func TestRunSubjectEventTypeFilter(t *testing.T) {
	t.Parallel()
	subject := NewRunSubject(nil)
	observer := newRecordingObserver("filtered")
	if err := subject.RegisterObserver(observer, EventTypeRunCompleted); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}

	if err := subject.NotifyObservers(context.Background(), NewRunEvent(EventTypeRunStarted, nil)); err != nil {
		t.Fatalf("NotifyObservers failed: %v", err)
	}
	if err := subject.NotifyObservers(context.Background(), NewRunEvent(EventTypeRunCompleted, nil)); err != nil {
		t.Fatalf("NotifyObservers failed: %v", err)
	}

	got := waitForEvent(t, observer)
	if got.Type() != EventTypeRunCompleted {
		t.Errorf("Expected only %q to be delivered, got %q", EventTypeRunCompleted, got.Type())
	}
	assertNoEvent(t, observer)
}

func TestRunSubjectObserverErrorIsContained(t *testing.T) {
	t.Parallel()
	subject := NewRunSubject(nil)
	failing := newRecordingObserver("failing")
	failing.failWith = errors.New("observer failure")
	if err := subject.RegisterObserver(failing); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}

	if err := subject.NotifyObservers(context.Background(), NewRunEvent(EventTypeRunStarted, nil)); err != nil {
		t.Fatalf("Expected observer errors to be contained, got %v", err)
	}
	waitForEvent(t, failing)

	if err := subject.NotifyObservers(context.Background(), NewRunEvent(EventTypeRunCompleted, nil)); err != nil {
		t.Fatalf("NotifyObservers failed after observer error: %v", err)
	}
	waitForEvent(t, failing)
}

func TestRunSubjectObserverPanicIsContained(t *testing.T) {
	t.Parallel()
	subject := NewRunSubject(nil)
	panicking := newRecordingObserver("panicking")
	panicking.panicOn = EventTypeRunStarted
	healthy := newRecordingObserver("healthy")
	if err := subject.RegisterObserver(panicking); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}
	if err := subject.RegisterObserver(healthy); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}

	if err := subject.NotifyObservers(context.Background(), NewRunEvent(EventTypeRunStarted, nil)); err != nil {
		t.Fatalf("NotifyObservers failed: %v", err)
	}
	got := waitForEvent(t, healthy)
	if got.Type() != EventTypeRunStarted {
		t.Errorf("Expected healthy observer to still receive events, got %q", got.Type())
	}
}

func TestRunSubjectUnregisterObserver(t *testing.T) {
	t.Parallel()
	subject := NewRunSubject(nil)
	observer := newRecordingObserver("transient")
	if err := subject.RegisterObserver(observer); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}
	if err := subject.UnregisterObserver(observer); err != nil {
		t.Fatalf("UnregisterObserver failed: %v", err)
	}
	if err := subject.UnregisterObserver(observer); err != nil {
		t.Fatalf("Expected unregister to be idempotent, got %v", err)
	}

	if err := subject.NotifyObservers(context.Background(), NewRunEvent(EventTypeRunStarted, nil)); err != nil {
		t.Fatalf("NotifyObservers failed: %v", err)
	}
	assertNoEvent(t, observer)
}

func TestRunSubjectGetObservers(t *testing.T) {
	t.Parallel()
	subject := NewRunSubject(nil)
	if err := subject.RegisterObserver(newRecordingObserver("first")); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}
	if err := subject.RegisterObserver(newRecordingObserver("second"), EventTypeRunFailed); err != nil {
		t.Fatalf("RegisterObserver failed: %v", err)
	}

	info := subject.GetObservers()
	if len(info) != 2 {
		t.Fatalf("Expected 2 observers, got %d", len(info))
	}
	byID := make(map[string]ObserverInfo, len(info))
	for _, i := range info {
		byID[i.ID] = i
		if i.RegisteredAt.IsZero() {
			t.Errorf("Expected a registration time for %q", i.ID)
		}
	}
	if len(byID["first"].EventTypes) != 0 {
		t.Errorf("Expected no filter for 'first', got %v", byID["first"].EventTypes)
	}
	if len(byID["second"].EventTypes) != 1 || byID["second"].EventTypes[0] != EventTypeRunFailed {
		t.Errorf("Expected 'second' filtered to %q, got %v", EventTypeRunFailed, byID["second"].EventTypes)
	}
}

func TestRunSubjectRejectsInvalidEvent(t *testing.T) {
	t.Parallel()
	subject := NewRunSubject(nil)
	invalid := NewRunEvent("", nil)
	if err := subject.NotifyObservers(context.Background(), invalid); err == nil {
		t.Fatal("Expected an error for a CloudEvent without a type")
	}
}
