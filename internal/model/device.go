package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Device is a physical HmIP device and its functional channels.
type Device struct {
	ID               string
	HomeID           string
	Label            string
	Type             string
	ModelType        string
	FirmwareVersion  string
	LastStatusUpdate int64

	// Channels is keyed by channel index. Channel 0 is the device base.
	Channels map[int]*FunctionalChannel

	// Attrs holds every top-level attribute except functionalChannels.
	Attrs Attributes
}

// NewDevice builds a Device from its full JSON payload.
func NewDevice(raw []byte) (*Device, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return newDeviceFromMap(m)
}

func newDeviceFromMap(m map[string]any) (*Device, error) {
	if err := validateFull(KindDevice, m); err != nil {
		return nil, err
	}

	d := &Device{Channels: make(map[int]*FunctionalChannel)}
	channels, _ := m["functionalChannels"].(map[string]any)
	attrs := deepCopyMap(m)
	delete(attrs, "functionalChannels")
	d.Attrs = Attributes(attrs)
	d.ID = d.Attrs.str("id")

	for key, v := range channels {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: device %s: channel key %q", ErrValidation, d.ID, key)
		}
		fields, _ := v.(map[string]any)
		ch, err := newChannel(d.ID, idx, fields)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		d.Channels[idx] = ch
	}

	d.sync()
	return d, nil
}

// ApplyPatch merges a partial JSON payload into the device. Channels named
// in the patch are merged field by field; unknown channel indexes are added.
// Nothing is modified when the patch is rejected.
func (d *Device) ApplyPatch(raw []byte) error {
	m, err := decodeObject(raw)
	if err != nil {
		return err
	}
	return d.applyMap(m)
}

func (d *Device) applyMap(m map[string]any) error {
	if err := validatePatch(KindDevice, m); err != nil {
		return err
	}
	if err := checkID(KindDevice, d.ID, m); err != nil {
		return err
	}

	// Work on a copy so a bad channel leaves the device untouched.
	next := d.Clone()
	channels, _ := m["functionalChannels"].(map[string]any)
	top := maps.Clone(m)
	delete(top, "functionalChannels")
	mergeInto(next.Attrs, top)

	for key, v := range channels {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("%w: device %s: channel key %q", ErrValidation, d.ID, key)
		}
		fields, _ := v.(map[string]any)
		if ch, ok := next.Channels[idx]; ok {
			if err := ch.apply(fields); err != nil {
				return fmt.Errorf("device %s: %w", d.ID, err)
			}
			continue
		}
		ch, err := newChannel(d.ID, idx, fields)
		if err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
		next.Channels[idx] = ch
	}

	next.sync()
	*d = *next
	return nil
}

// sync re-derives the typed fields from Attrs.
func (d *Device) sync() {
	d.Attrs["id"] = d.ID
	d.HomeID = d.Attrs.str("homeId")
	d.Label = d.Attrs.str("label")
	d.Type = d.Attrs.str("type")
	d.ModelType = d.Attrs.str("modelType")
	d.FirmwareVersion = d.Attrs.str("firmwareVersion")
	d.LastStatusUpdate, _ = d.Attrs.Int("lastStatusUpdate")
}

// Channel returns the channel at index, or nil.
func (d *Device) Channel(index int) *FunctionalChannel {
	return d.Channels[index]
}

// BaseChannel returns channel 0, or nil if the device has none.
func (d *Device) BaseChannel() *FunctionalChannel {
	return d.Channels[BaseChannelIndex]
}

// ChannelIndexes returns the channel indexes in ascending order.
func (d *Device) ChannelIndexes() []int {
	return slices.Sorted(maps.Keys(d.Channels))
}

// Reachable reports the base channel's reachability. Devices without a
// base channel, or without the flag, are treated as reachable.
func (d *Device) Reachable() bool {
	base := d.BaseChannel()
	if base == nil {
		return true
	}
	unreach, ok := base.Fields.Bool("unreach")
	return !ok || !unreach
}

// EntityID returns the device id.
func (d *Device) EntityID() string { return d.ID }

// Clone returns a deep copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Attrs = d.Attrs.Clone()
	cpy.Channels = make(map[int]*FunctionalChannel, len(d.Channels))
	for idx, ch := range d.Channels {
		cpy.Channels[idx] = ch.Clone()
	}
	return &cpy
}

// MarshalJSON encodes the device in the cloud's wire shape.
func (d *Device) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Attrs)+1)
	maps.Copy(out, d.Attrs)
	channels := make(map[string]any, len(d.Channels))
	for idx, ch := range d.Channels {
		channels[strconv.Itoa(idx)] = map[string]any(ch.Fields)
	}
	out["functionalChannels"] = channels
	return json.Marshal(out)
}
