// Package events carries session notifications between the request gateway, the session manager and the
// presentation layer.
//
// A [Bus] is constructed once per process and passed to every consumer; there is no package-level instance.
package events

import (
	"fmt"
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Topics
const (
	TopicUnauthorized       = "session:unauthorized"
	TopicSessionChanged     = "session:changed"
	TopicCredentialsCleared = "credentials:cleared"
)

// Unauthorized is published by the gateway after a 401 has cleared the stored credential.
type Unauthorized struct {
	Method string
	Path   string
}

// SessionChanged is published by the session manager on every state transition.
type SessionChanged struct {
	State    string
	Username string
	Role     string
}

// CredentialsCleared is published whenever every credential surface has been wiped.
type CredentialsCleared struct {
	Reason string
}

// Bus is a synchronous publish/subscribe hub.
//
// The underlying bus holds its lock while handlers run, so a handler must not subscribe or unsubscribe. A
// publish made while another is being delivered is queued and delivered by the goroutine already dispatching,
// after the current handler returns.
type Bus struct {
	bus evbus.Bus

	mu          sync.Mutex
	queue       []pending
	dispatching bool
}

type pending struct {
	topic string
	args  []any
}

// New creates a [Bus].
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish delivers args to every handler subscribed to topic.
func (b *Bus) Publish(topic string, args ...any) {
	b.mu.Lock()
	b.queue = append(b.queue, pending{topic: topic, args: args})
	if b.dispatching {
		b.mu.Unlock()
		return
	}
	b.dispatching = true
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.dispatching = false
			b.mu.Unlock()
			return
		}
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.bus.Publish(next.topic, next.args...)
	}
}

// Subscribe registers fn for topic. fn must be a function whose parameters match the published args.
func (b *Bus) Subscribe(topic string, fn any) error {
	if err := b.bus.Subscribe(topic, fn); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes fn from topic.
func (b *Bus) Unsubscribe(topic string, fn any) error {
	if err := b.bus.Unsubscribe(topic, fn); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", topic, err)
	}
	return nil
}

// HasSubscribers reports whether anything listens on topic.
func (b *Bus) HasSubscribers(topic string) bool {
	return b.bus.HasCallback(topic)
}

// PublishUnauthorized publishes e on [TopicUnauthorized].
func (b *Bus) PublishUnauthorized(e Unauthorized) {
	b.Publish(TopicUnauthorized, e)
}

// PublishSessionChanged publishes e on [TopicSessionChanged].
func (b *Bus) PublishSessionChanged(e SessionChanged) {
	b.Publish(TopicSessionChanged, e)
}

// PublishCredentialsCleared publishes e on [TopicCredentialsCleared].
func (b *Bus) PublishCredentialsCleared(e CredentialsCleared) {
	b.Publish(TopicCredentialsCleared, e)
}

// OnUnauthorized subscribes fn to [TopicUnauthorized] and returns a function that removes it.
func (b *Bus) OnUnauthorized(fn func(Unauthorized)) (func(), error) {
	if err := b.Subscribe(TopicUnauthorized, fn); err != nil {
		return nil, err
	}
	return func() { _ = b.Unsubscribe(TopicUnauthorized, fn) }, nil
}

// OnSessionChanged subscribes fn to [TopicSessionChanged] and returns a function that removes it.
func (b *Bus) OnSessionChanged(fn func(SessionChanged)) (func(), error) {
	if err := b.Subscribe(TopicSessionChanged, fn); err != nil {
		return nil, err
	}
	return func() { _ = b.Unsubscribe(TopicSessionChanged, fn) }, nil
}
