package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hmip/internal/transport"
)

// DefaultCommandTimeout bounds one forwarded command, admission wait included.
const DefaultCommandTimeout = 30 * time.Second

// Sender issues commands to the cloud. *transport.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, path string, body any, headerOverride map[string]string) transport.Result
}

// Subscriber is the part of *mqtt.Client the bridge listens through.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// CommandResult is published after each forwarded command.
type CommandResult struct {
	Path    string          `json:"path"`
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Body    json.RawMessage `json:"body,omitempty"`
	Error   string          `json:"error,omitempty"`

	// Retryable is set when the failure was throttling or a transport
	// fault, so the same command may succeed if sent again later.
	Retryable bool `json:"retryable,omitempty"`
}

// CommandBridge forwards MQTT command messages to the REST endpoint.
type CommandBridge struct {
	sender  Sender
	broker  Broker
	topics  mqtt.Topics
	timeout time.Duration
	logger  Logger
}

// NewCommandBridge creates a bridge. broker may be nil, in which case no
// results are published.
func NewCommandBridge(sender Sender, broker Broker, topics mqtt.Topics) *CommandBridge {
	return &CommandBridge{
		sender:  sender,
		broker:  broker,
		topics:  topics,
		timeout: DefaultCommandTimeout,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger used for command outcomes.
func (b *CommandBridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// SetTimeout overrides DefaultCommandTimeout.
func (b *CommandBridge) SetTimeout(d time.Duration) {
	if d > 0 {
		b.timeout = d
	}
}

// Attach subscribes the bridge to every command topic.
func (b *CommandBridge) Attach(sub Subscriber, qos byte) error {
	return sub.Subscribe(b.topics.AllCommands(), qos, b.Handle)
}

// Handle forwards one command message. It matches mqtt.MessageHandler.
// The returned error is the command's failure, if any; it has already been
// published as a result when a broker is set.
func (b *CommandBridge) Handle(topic string, payload []byte) error {
	path, ok := b.topics.CommandPath(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCommandTopic, topic)
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		err = fmt.Errorf("%w: %s", ErrInvalidCommand, path)
		b.report(CommandResult{Path: path, Error: err.Error()})
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	result := b.sender.Send(ctx, path, json.RawMessage(payload), nil)

	out := CommandResult{
		Path:    path,
		Status:  result.Status,
		Success: result.Success,
		Body:    result.JSON,
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
		out.Retryable = transport.IsRetryable(result.Err)
	}
	b.report(out)

	b.logger.Debug("command forwarded", "path", path, "status", result.Status,
		"success", result.Success, "retryable", out.Retryable)
	return result.Err
}

func (b *CommandBridge) report(res CommandResult) {
	if b.broker == nil {
		return
	}
	body, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := b.broker.PublishEvent(b.topics.CommandResult(res.Path), body); err != nil {
		b.logger.Warn("command result publish failed", "path", res.Path, "error", err)
	}
}
