// Package model holds the in-memory mirror of an HmIP installation: the
// Home singleton, Devices with their Functional Channels, Groups and Clients.
//
// Entities are built from the JSON the cloud sends and keep every attribute
// they were given in an Attributes map. Commonly used fields are lifted into
// typed struct fields and re-derived after each patch.
//
// Patches are partial: keys present in the patch replace (or, for nested
// objects, merge into) the current value, absent keys keep their value.
// Ids never change; a patch naming a different id is rejected with
// ErrValidation. Payloads are checked against embedded JSON schemas before
// any field is touched.
//
// Graph is the container. Reads return deep copies so callers never share
// state with the mirror:
//
//	g := model.NewGraph()
//	g.Replace(home, devices, groups, clients)
//	d, ok := g.Device("3014F7110000000000000001")
//	if ok {
//	    sens, _ := d.Channel(1).Fields.Float("rainSensorSensitivity")
//	}
//
// Group channel references are stored as (device id, channel index) pairs
// and resolved on demand with ResolveChannel. A reference to a device that
// is not (or no longer) in the graph is kept and reported by DanglingRefs.
//
// Thread Safety:
//   - All Graph methods are safe for concurrent use.
//   - Entity values returned from Graph are copies and may be modified freely.
package model
