package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// BaseChannelIndex is the device-base channel carrying reachability and
// firmware telemetry.
const BaseChannelIndex = 0

// FunctionalChannel is one addressable capability of a Device.
type FunctionalChannel struct {
	Index    int
	DeviceID string
	Type     string
	Label    string
	Groups   []string

	// Fields holds every attribute of the channel, including the typed ones.
	Fields Attributes
}

// newChannel builds a channel owned by deviceID from its raw attributes.
func newChannel(deviceID string, index int, raw map[string]any) (*FunctionalChannel, error) {
	ch := &FunctionalChannel{Index: index, Fields: Attributes(deepCopyMap(raw))}
	if err := ch.bind(deviceID); err != nil {
		return nil, err
	}
	ch.sync()
	return ch, nil
}

// bind sets the owning device id, rejecting a conflicting back-reference.
func (ch *FunctionalChannel) bind(deviceID string) error {
	if id, ok := ch.Fields.String("deviceId"); ok && id != "" && id != deviceID {
		return fmt.Errorf("%w: channel %d belongs to %q, not %q", ErrValidation, ch.Index, id, deviceID)
	}
	ch.Fields["deviceId"] = deviceID
	ch.DeviceID = deviceID
	return nil
}

// apply merges a partial channel payload into the channel.
func (ch *FunctionalChannel) apply(patch map[string]any) error {
	if id, ok := patch["deviceId"].(string); ok && id != "" && id != ch.DeviceID {
		return fmt.Errorf("%w: channel %d deviceId is immutable", ErrValidation, ch.Index)
	}
	mergeInto(ch.Fields, patch)
	ch.Fields["deviceId"] = ch.DeviceID
	ch.sync()
	return nil
}

// sync re-derives the typed fields from Fields.
func (ch *FunctionalChannel) sync() {
	ch.Fields["index"] = float64(ch.Index)
	ch.Type = ch.Fields.str("functionalChannelType")
	ch.Label = ch.Fields.str("label")
	ch.Groups = ch.Fields.Strings("groups")
}

// Clone returns a deep copy of the channel.
func (ch *FunctionalChannel) Clone() *FunctionalChannel {
	if ch == nil {
		return nil
	}
	cpy := *ch
	cpy.Groups = slices.Clone(ch.Groups)
	cpy.Fields = ch.Fields.Clone()
	return &cpy
}

// MarshalJSON encodes the channel in the cloud's wire shape.
func (ch *FunctionalChannel) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(ch.Fields))
}

// ChannelRef is a non-owning reference from a Group into a Device channel.
type ChannelRef struct {
	DeviceID string `json:"deviceId"`
	Index    int    `json:"channelIndex"`
}

// String formats the reference as deviceId:index.
func (r ChannelRef) String() string {
	return r.DeviceID + ":" + strconv.Itoa(r.Index)
}
