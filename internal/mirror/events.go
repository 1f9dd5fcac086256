package mirror

import "github.com/nerrad567/gray-logic-hmip/internal/model"

// EventType is the pushEventType tag of a stream event.
type EventType int

// Event types. EventUnknown is never sent by the cloud.
const (
	EventUnknown EventType = iota
	EventHomeChanged
	EventDeviceAdded
	EventDeviceChanged
	EventDeviceRemoved
	EventGroupAdded
	EventGroupChanged
	EventGroupRemoved
	EventClientAdded
	EventClientChanged
	EventClientRemoved
	EventSecurityJournalChanged
)

var eventNames = map[EventType]string{
	EventHomeChanged:            "HOME_CHANGED",
	EventDeviceAdded:            "DEVICE_ADDED",
	EventDeviceChanged:          "DEVICE_CHANGED",
	EventDeviceRemoved:          "DEVICE_REMOVED",
	EventGroupAdded:             "GROUP_ADDED",
	EventGroupChanged:           "GROUP_CHANGED",
	EventGroupRemoved:           "GROUP_REMOVED",
	EventClientAdded:            "CLIENT_ADDED",
	EventClientChanged:          "CLIENT_CHANGED",
	EventClientRemoved:          "CLIENT_REMOVED",
	EventSecurityJournalChanged: "SECURITY_JOURNAL_CHANGED",
}

// String returns the wire tag.
func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseEventType maps a wire tag to an EventType.
func ParseEventType(tag string) (EventType, bool) {
	switch tag {
	case "HOME_CHANGED":
		return EventHomeChanged, true
	case "DEVICE_ADDED":
		return EventDeviceAdded, true
	case "DEVICE_CHANGED":
		return EventDeviceChanged, true
	case "DEVICE_REMOVED":
		return EventDeviceRemoved, true
	case "GROUP_ADDED":
		return EventGroupAdded, true
	case "GROUP_CHANGED":
		return EventGroupChanged, true
	case "GROUP_REMOVED":
		return EventGroupRemoved, true
	case "CLIENT_ADDED":
		return EventClientAdded, true
	case "CLIENT_CHANGED":
		return EventClientChanged, true
	case "CLIENT_REMOVED":
		return EventClientRemoved, true
	case "SECURITY_JOURNAL_CHANGED":
		return EventSecurityJournalChanged, true
	default:
		return EventUnknown, false
	}
}

// action is the mutation an event performs.
type action int

const (
	actionNone action = iota
	actionAdd
	actionChange
	actionRemove
)

// target returns the entity kind and action of an event type.
func (t EventType) target() (model.Kind, action) {
	switch t {
	case EventHomeChanged:
		return model.KindHome, actionChange
	case EventDeviceAdded:
		return model.KindDevice, actionAdd
	case EventDeviceChanged:
		return model.KindDevice, actionChange
	case EventDeviceRemoved:
		return model.KindDevice, actionRemove
	case EventGroupAdded:
		return model.KindGroup, actionAdd
	case EventGroupChanged:
		return model.KindGroup, actionChange
	case EventGroupRemoved:
		return model.KindGroup, actionRemove
	case EventClientAdded:
		return model.KindClient, actionAdd
	case EventClientChanged:
		return model.KindClient, actionChange
	case EventClientRemoved:
		return model.KindClient, actionRemove
	default:
		return "", actionNone
	}
}
