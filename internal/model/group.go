package model

import (
	"encoding/json"
	"slices"
)

// Group is a set of device channels sharing a type tag, e.g. SWITCHING or
// HEATING. A meta group additionally lists child group ids.
type Group struct {
	ID               string
	HomeID           string
	Label            string
	Type             string
	MetaGroupID      string
	LastStatusUpdate int64

	// Channels references device channels by id and index. References are
	// not resolved eagerly and may point at devices that no longer exist.
	Channels []ChannelRef

	// Children lists the group ids of a meta group.
	Children []string

	Attrs Attributes
}

// NewGroup builds a Group from its full JSON payload.
func NewGroup(raw []byte) (*Group, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return newGroupFromMap(m)
}

func newGroupFromMap(m map[string]any) (*Group, error) {
	if err := validateFull(KindGroup, m); err != nil {
		return nil, err
	}
	g := &Group{Attrs: Attributes(deepCopyMap(m))}
	g.ID = g.Attrs.str("id")
	g.sync()
	return g, nil
}

// ApplyPatch merges a partial JSON payload into the group. A channels or
// groups array in the patch replaces the previous list.
func (g *Group) ApplyPatch(raw []byte) error {
	m, err := decodeObject(raw)
	if err != nil {
		return err
	}
	if err := validatePatch(KindGroup, m); err != nil {
		return err
	}
	if err := checkID(KindGroup, g.ID, m); err != nil {
		return err
	}
	mergeInto(g.Attrs, m)
	g.sync()
	return nil
}

// sync re-derives the typed fields from Attrs.
func (g *Group) sync() {
	a := g.Attrs
	a["id"] = g.ID
	g.HomeID = a.str("homeId")
	g.Label = a.str("label")
	g.Type = a.str("type")
	g.MetaGroupID = a.str("metaGroupId")
	g.LastStatusUpdate, _ = a.Int("lastStatusUpdate")
	g.Children = a.Strings("groups")

	g.Channels = nil
	raw, _ := a["channels"].([]any)
	for _, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		ref := Attributes(obj)
		idx, _ := ref.Int("channelIndex")
		g.Channels = append(g.Channels, ChannelRef{DeviceID: ref.str("deviceId"), Index: int(idx)})
	}
}

// IsMeta reports whether the group aggregates other groups.
func (g *Group) IsMeta() bool {
	return g.Type == "META" || len(g.Children) > 0
}

// EntityID returns the group id.
func (g *Group) EntityID() string { return g.ID }

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	cpy := *g
	cpy.Attrs = g.Attrs.Clone()
	cpy.Channels = slices.Clone(g.Channels)
	cpy.Children = slices.Clone(g.Children)
	return &cpy
}

// MarshalJSON encodes the group in the cloud's wire shape.
func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(g.Attrs))
}
