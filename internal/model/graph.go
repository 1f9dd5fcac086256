package model

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Counts summarises the graph contents.
type Counts struct {
	Devices  int  `json:"devices"`
	Groups   int  `json:"groups"`
	Clients  int  `json:"clients"`
	Channels int  `json:"channels"`
	HasHome  bool `json:"has_home"`
}

// Graph is the mirrored entity graph. It holds at most one Home and any
// number of Devices, Groups and Clients keyed by id.
//
// All public methods are thread-safe. Every entity passed in is owned by the
// graph afterwards; every entity returned is a copy.
type Graph struct {
	mu      sync.RWMutex
	home    *Home
	devices map[string]*Device
	groups  map[string]*Group
	clients map[string]*Client
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		devices: make(map[string]*Device),
		groups:  make(map[string]*Group),
		clients: make(map[string]*Client),
	}
}

// Replace swaps the whole graph contents in one step.
func (g *Graph) Replace(home *Home, devices []*Device, groups []*Group, clients []*Client) {
	dm := make(map[string]*Device, len(devices))
	for _, d := range devices {
		dm[d.ID] = d
	}
	gm := make(map[string]*Group, len(groups))
	for _, grp := range groups {
		gm[grp.ID] = grp
	}
	cm := make(map[string]*Client, len(clients))
	for _, c := range clients {
		cm[c.ID] = c
	}

	g.mu.Lock()
	g.home = home
	g.devices = dm
	g.groups = gm
	g.clients = cm
	g.mu.Unlock()
}

// Home returns a copy of the home.
func (g *Graph) Home() (*Home, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.home == nil {
		return nil, false
	}
	return g.home.Clone(), true
}

// Device returns a copy of the device with the given id.
func (g *Graph) Device(id string) (*Device, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.devices[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Devices returns copies of all devices ordered by id.
func (g *Graph) Devices() []*Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneSorted(g.devices, (*Device).Clone)
}

// DevicesOfType returns copies of the devices with the given type tag.
func (g *Graph) DevicesOfType(deviceType string) []*Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Device
	for _, id := range slices.Sorted(maps.Keys(g.devices)) {
		if d := g.devices[id]; d.Type == deviceType {
			out = append(out, d.Clone())
		}
	}
	return out
}

// Group returns a copy of the group with the given id.
func (g *Graph) Group(id string) (*Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, false
	}
	return grp.Clone(), true
}

// Groups returns copies of all groups ordered by id.
func (g *Graph) Groups() []*Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneSorted(g.groups, (*Group).Clone)
}

// GroupsOfType returns copies of the groups with the given type tag.
func (g *Graph) GroupsOfType(groupType string) []*Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Group
	for _, id := range slices.Sorted(maps.Keys(g.groups)) {
		if grp := g.groups[id]; grp.Type == groupType {
			out = append(out, grp.Clone())
		}
	}
	return out
}

// Client returns a copy of the client with the given id.
func (g *Graph) Client(id string) (*Client, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.clients[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Clients returns copies of all clients ordered by id.
func (g *Graph) Clients() []*Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneSorted(g.clients, (*Client).Clone)
}

// KindOf reports which kind of entity holds id.
func (g *Graph) KindOf(id string) (Kind, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.kindOfLocked(id)
}

func (g *Graph) kindOfLocked(id string) (Kind, bool) {
	if _, ok := g.devices[id]; ok {
		return KindDevice, true
	}
	if _, ok := g.groups[id]; ok {
		return KindGroup, true
	}
	if _, ok := g.clients[id]; ok {
		return KindClient, true
	}
	if g.home != nil && g.home.ID == id {
		return KindHome, true
	}
	return "", false
}

// ResolveChannel follows a group reference to a copy of the channel.
func (g *Graph) ResolveChannel(ref ChannelRef) (*FunctionalChannel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.devices[ref.DeviceID]
	if !ok {
		return nil, false
	}
	ch, ok := d.Channels[ref.Index]
	if !ok {
		return nil, false
	}
	return ch.Clone(), true
}

// DanglingRefs returns the group channel references that do not resolve.
// The result is keyed by group id.
func (g *Graph) DanglingRefs() map[string][]ChannelRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]ChannelRef)
	for id, grp := range g.groups {
		for _, ref := range grp.Channels {
			d, ok := g.devices[ref.DeviceID]
			if ok {
				if _, ok := d.Channels[ref.Index]; ok {
					continue
				}
			}
			out[id] = append(out[id], ref)
		}
	}
	return out
}

// Counts returns the number of entities of each kind.
func (g *Graph) Counts() Counts {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c := Counts{
		Devices: len(g.devices),
		Groups:  len(g.groups),
		Clients: len(g.clients),
		HasHome: g.home != nil,
	}
	for _, d := range g.devices {
		c.Channels += len(d.Channels)
	}
	return c
}

// SetHome installs h as the home, replacing any previous one.
func (g *Graph) SetHome(h *Home) {
	g.mu.Lock()
	g.home = h
	g.mu.Unlock()
}

// PatchHome applies a partial payload to the home and returns a copy of the
// result.
func (g *Graph) PatchHome(raw []byte) (*Home, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.home == nil {
		return nil, ErrNoHome
	}
	next := g.home.Clone()
	if err := next.ApplyPatch(raw); err != nil {
		return nil, err
	}
	g.home = next
	return next.Clone(), nil
}

// InsertDevice adds d unless its id is taken. It reports whether d was
// inserted and returns ErrIDConflict if another kind holds the id.
func (g *Graph) InsertDevice(d *Device) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkKindLocked(d.ID, KindDevice); err != nil {
		return false, err
	}
	if _, ok := g.devices[d.ID]; ok {
		return false, nil
	}
	g.devices[d.ID] = d
	return true, nil
}

// PatchDevice applies a partial payload to the device with id. It returns a
// copy of the patched device, or false if the id is unknown.
func (g *Graph) PatchDevice(id string, raw []byte) (*Device, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.devices[id]
	if !ok {
		return nil, false, nil
	}
	next := d.Clone()
	if err := next.ApplyPatch(raw); err != nil {
		return nil, true, err
	}
	g.devices[id] = next
	return next.Clone(), true, nil
}

// RemoveDevice deletes the device and returns its last value.
func (g *Graph) RemoveDevice(id string) (*Device, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.devices[id]
	if !ok {
		return nil, false
	}
	delete(g.devices, id)
	return d, true
}

// InsertGroup adds grp unless its id is taken.
func (g *Graph) InsertGroup(grp *Group) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkKindLocked(grp.ID, KindGroup); err != nil {
		return false, err
	}
	if _, ok := g.groups[grp.ID]; ok {
		return false, nil
	}
	g.groups[grp.ID] = grp
	return true, nil
}

// PatchGroup applies a partial payload to the group with id.
func (g *Graph) PatchGroup(id string, raw []byte) (*Group, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, false, nil
	}
	next := grp.Clone()
	if err := next.ApplyPatch(raw); err != nil {
		return nil, true, err
	}
	g.groups[id] = next
	return next.Clone(), true, nil
}

// RemoveGroup deletes the group and returns its last value.
func (g *Graph) RemoveGroup(id string) (*Group, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, false
	}
	delete(g.groups, id)
	return grp, true
}

// InsertClient adds c unless its id is taken.
func (g *Graph) InsertClient(c *Client) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkKindLocked(c.ID, KindClient); err != nil {
		return false, err
	}
	if _, ok := g.clients[c.ID]; ok {
		return false, nil
	}
	g.clients[c.ID] = c
	return true, nil
}

// PatchClient applies a partial payload to the client with id.
func (g *Graph) PatchClient(id string, raw []byte) (*Client, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.clients[id]
	if !ok {
		return nil, false, nil
	}
	next := c.Clone()
	if err := next.ApplyPatch(raw); err != nil {
		return nil, true, err
	}
	g.clients[id] = next
	return next.Clone(), true, nil
}

// RemoveClient deletes the client and returns its last value.
func (g *Graph) RemoveClient(id string) (*Client, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.clients[id]
	if !ok {
		return nil, false
	}
	delete(g.clients, id)
	return c, true
}

// checkKindLocked returns ErrIDConflict if id is held by a kind other than want.
func (g *Graph) checkKindLocked(id string, want Kind) error {
	if have, ok := g.kindOfLocked(id); ok && have != want {
		return fmt.Errorf("%w: %q is a %s, not a %s", ErrIDConflict, id, have, want)
	}
	return nil
}

// cloneSorted copies the map values in key order.
func cloneSorted[T any](m map[string]T, clone func(T) T) []T {
	out := make([]T, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		out = append(out, clone(m[id]))
	}
	return out
}
