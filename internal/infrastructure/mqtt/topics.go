package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "hmip"

// Topics builds the mirror's topic names under a common prefix.
//
//	t := mqtt.NewTopics("hmip")
//	t.EntityState("device", "3014F711...")  // hmip/device/3014F711...
//	t.Events("group")                       // hmip/events/group
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// EntityState is the retained topic holding an entity's current value.
func (t Topics) EntityState(kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix, kind, id)
}

// Events is the topic change events for an entity kind are sent on.
func (t Topics) Events(kind string) string {
	return fmt.Sprintf("%s/events/%s", t.Prefix, kind)
}

// AllEvents matches every change event topic.
func (t Topics) AllEvents() string {
	return t.Prefix + "/events/+"
}

// Command is the topic a command for a REST path is received on.
func (t Topics) Command(path string) string {
	return fmt.Sprintf("%s/command/%s", t.Prefix, strings.TrimPrefix(path, "/"))
}

// AllCommands matches every command topic.
func (t Topics) AllCommands() string {
	return t.Prefix + "/command/#"
}

// CommandPath extracts the REST path from a command topic. It reports false
// for topics outside the command tree and for paths with empty, "." or ".."
// levels.
func (t Topics) CommandPath(topic string) (string, bool) {
	base := t.Prefix + "/command/"
	if !strings.HasPrefix(topic, base) {
		return "", false
	}
	path := strings.TrimPrefix(topic, base)
	if path == "" {
		return "", false
	}
	for _, level := range strings.Split(path, "/") {
		switch level {
		case "", ".", "..":
			return "", false
		}
	}
	return path, true
}

// CommandResult is the topic the outcome of a command on path is reported on.
func (t Topics) CommandResult(path string) string {
	return fmt.Sprintf("%s/result/%s", t.Prefix, strings.TrimPrefix(path, "/"))
}

// SystemStatus is the retained online/offline topic.
func (t Topics) SystemStatus() string {
	return t.Prefix + "/system/status"
}
