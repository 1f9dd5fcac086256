package relay

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hmip/internal/notify"
)

// Logger defines the logging interface used by the relay.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Broker is the part of *mqtt.Client the sinks publish through.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
	ClearRetained(topic string) error
}

// event is the body of a change event message.
type event struct {
	Kind       notify.Kind     `json:"kind"`
	EntityKind string          `json:"entity_kind"`
	ID         string          `json:"id"`
	Label      string          `json:"label,omitempty"`
	Time       time.Time       `json:"time"`
	Entity     json.RawMessage `json:"entity"`
}

// MQTTSink mirrors notifications onto the broker.
type MQTTSink struct {
	broker Broker
	topics mqtt.Topics
	logger Logger
}

// NewMQTTSink creates a sink publishing under topics.
func NewMQTTSink(broker Broker, topics mqtt.Topics) *MQTTSink {
	return &MQTTSink{broker: broker, topics: topics, logger: noopLogger{}}
}

// SetLogger sets the logger used for publish failures.
func (s *MQTTSink) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Handle publishes n. It matches notify.Handler.
func (s *MQTTSink) Handle(n notify.Notification) {
	if err := s.Publish(n); err != nil {
		s.logger.Warn("mqtt relay failed", "entity_id", n.ID, "kind", n.Kind, "error", err)
	}
}

// Publish writes the retained state and the change event for n.
func (s *MQTTSink) Publish(n notify.Notification) error {
	payload, err := n.Payload()
	if err != nil {
		return err
	}

	kind := string(n.EntityKind)
	stateTopic := s.topics.EntityState(kind, n.ID)
	if n.Kind == notify.ItemRemoved {
		err = s.broker.ClearRetained(stateTopic)
	} else {
		err = s.broker.PublishRetained(stateTopic, payload)
	}
	if err != nil {
		return err
	}

	body, err := json.Marshal(event{
		Kind:       n.Kind,
		EntityKind: kind,
		ID:         n.ID,
		Label:      n.Label(),
		Time:       n.Time.UTC(),
		Entity:     payload,
	})
	if err != nil {
		return err
	}
	return s.broker.PublishEvent(s.topics.Events(kind), body)
}
