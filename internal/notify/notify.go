// Package notify holds the kiosk's transient notifications and fans events
// out to listeners (the SSE stream) and optional sinks such as MQTT.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Level is the severity shown with a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Event types delivered to listeners.
const (
	EventNotification = "notification"
	EventRecognition  = "recognition"
	EventState        = "state"
)

// Notification is a message that expires after the center's TTL.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Event is one item on the event stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Sink receives the notification and recognition events published through a
// Center. State events stay on the local listeners.
type Sink interface {
	Send(event Event) error
	Close()
}

// Center keeps the most recent notification and broadcasts events.
type Center struct {
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.RWMutex
	current   *Notification
	listeners []chan Event
	sinks     []Sink
}

// Option configures a Center.
type Option func(*Center)

// WithLogger sets the logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Center) { c.logger = logger }
}

// WithSink adds a sink.
func WithSink(s Sink) Option {
	return func(c *Center) { c.sinks = append(c.sinks, s) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// NewCenter creates a notification center with the given TTL.
func NewCenter(ttl time.Duration, opts ...Option) *Center {
	c := &Center{
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Info posts an informational notification.
func (c *Center) Info(msg string) Notification { return c.Notify(LevelInfo, msg) }

// Success posts a success notification.
func (c *Center) Success(msg string) Notification { return c.Notify(LevelSuccess, msg) }

// Error posts an error notification.
func (c *Center) Error(msg string) Notification { return c.Notify(LevelError, msg) }

// Notify replaces the current notification and broadcasts it.
func (c *Center) Notify(level Level, msg string) Notification {
	created := c.now()
	n := Notification{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   msg,
		CreatedAt: created,
		ExpiresAt: created.Add(c.ttl),
	}

	c.mu.Lock()
	c.current = &n
	c.mu.Unlock()

	c.Publish(Event{Type: EventNotification, Data: n})
	return n
}

// Current returns the latest notification if it has not expired.
func (c *Center) Current() (Notification, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil || !c.now().Before(c.current.ExpiresAt) {
		return Notification{}, false
	}
	return *c.current, true
}

// Dismiss clears the current notification.
func (c *Center) Dismiss() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// Subscribe registers a listener. Slow listeners miss events rather than
// blocking the publisher.
func (c *Center) Subscribe() chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	c.listeners = append(c.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a listener.
func (c *Center) Unsubscribe(ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, listener := range c.listeners {
		if listener == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// forSinks reports whether an event type may leave the kiosk. State events
// carry the registration draft and the student list.
func forSinks(eventType string) bool {
	return eventType == EventNotification || eventType == EventRecognition
}

// Publish sends an event to every listener, and notification and recognition
// events to every sink.
func (c *Center) Publish(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, listener := range c.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
	if !forSinks(event.Type) {
		return
	}
	for _, sink := range c.sinks {
		if err := sink.Send(event); err != nil {
			c.logger.Warn("notification sink failed", "type", event.Type, "error", err)
		}
	}
}

// Close closes every listener and sink.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, listener := range c.listeners {
		close(listener)
	}
	c.listeners = nil
	for _, sink := range c.sinks {
		sink.Close()
	}
	c.sinks = nil
}
