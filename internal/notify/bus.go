package notify

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
)

// Kind is the type of a graph mutation.
type Kind string

// Notification kinds.
const (
	ItemCreated Kind = "ITEM_CREATED"
	ItemUpdated Kind = "ITEM_UPDATED"
	ItemRemoved Kind = "ITEM_REMOVED"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case ItemCreated, ItemUpdated, ItemRemoved:
		return true
	}
	return false
}

// Notification describes one mutation of the entity graph.
type Notification struct {
	Kind       Kind       `json:"kind"`
	EntityKind model.Kind `json:"entity_kind"`
	ID         string     `json:"id"`

	// Entity is a copy of the entity after the mutation (*model.Device,
	// *model.Group, *model.Client or *model.Home). For ItemRemoved it is the
	// last value before deletion.
	Entity any `json:"entity"`

	Time time.Time `json:"time"`
}

// Label returns the entity label when it has one.
func (n Notification) Label() string {
	switch e := n.Entity.(type) {
	case *model.Device:
		return e.Label
	case *model.Group:
		return e.Label
	case *model.Client:
		return e.Label
	}
	return ""
}

// Payload encodes the entity in the cloud's wire shape.
func (n Notification) Payload() ([]byte, error) {
	return json.Marshal(n.Entity)
}

// Handler receives notifications.
type Handler func(Notification)

// Subscription identifies a registered handler.
type Subscription struct {
	ID   string
	Kind Kind // empty for SubscribeAll
}

// Logger defines the logging interface used by the bus.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

type subscriber struct {
	sub     Subscription
	handler Handler
}

// Bus delivers notifications to subscribers.
//
// Thread Safety:
//   - Subscribe, Unsubscribe and Publish are safe for concurrent use.
//   - Handlers may subscribe or unsubscribe from inside a callback.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	logger Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{logger: noopLogger{}}
}

// SetLogger sets the logger used to report recovered panics.
func (b *Bus) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Subscribe registers handler for notifications of kind.
func (b *Bus) Subscribe(kind Kind, handler Handler) Subscription {
	return b.add(kind, handler)
}

// SubscribeAll registers handler for every notification.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	return b.add("", handler)
}

func (b *Bus) add(kind Kind, handler Handler) Subscription {
	sub := Subscription{ID: uuid.NewString(), Kind: kind}
	b.mu.Lock()
	b.subs = append(b.subs, subscriber{sub: sub, handler: handler})
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription. It reports whether it was registered.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.subs, func(s subscriber) bool { return s.sub.ID == sub.ID })
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers n to every matching subscriber and returns how many
// handlers were called.
func (b *Bus) Publish(n Notification) int {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	b.mu.RLock()
	subs := slices.Clone(b.subs)
	logger := b.logger
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if s.sub.Kind != "" && s.sub.Kind != n.Kind {
			continue
		}
		b.deliver(logger, s, n)
		delivered++
	}
	return delivered
}

func (b *Bus) deliver(logger Logger, s subscriber, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification handler panic recovered",
				"subscription", s.sub.ID,
				"kind", n.Kind,
				"entity_id", n.ID,
				"panic", r,
			)
		}
	}()
	s.handler(n)
}
