package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
	"github.com/nerrad567/gray-logic-hmip/internal/notify"
)

const snapshotJSON = `{
	"home": {"id": "H1", "connected": true, "dutyCycle": 2.5, "functionalHomes": {"INDOOR_CLIMATE": {"solution": "INDOOR_CLIMATE"}}},
	"devices": {
		"D1": {
			"id": "D1", "homeId": "H1", "label": "Rain sensor", "type": "RAIN_SENSOR", "lastStatusUpdate": 1000,
			"functionalChannels": {
				"0": {"functionalChannelType": "DEVICE_BASE", "deviceId": "D1", "index": 0, "unreach": false},
				"1": {"functionalChannelType": "RAIN_DETECTION_CHANNEL", "deviceId": "D1", "index": 1, "rainSensorSensitivity": 10.0, "raining": false}
			}
		}
	},
	"groups": {
		"G1": {"id": "G1", "type": "SWITCHING", "label": "All", "channels": [{"deviceId": "D1", "channelIndex": 1}]}
	},
	"clients": {
		"C1": {"id": "C1", "label": "Phone"}
	}
}`

// recorder collects published notifications.
type recorder struct {
	got []notify.Notification
}

func (r *recorder) Publish(n notify.Notification) int {
	r.got = append(r.got, n)
	return 1
}

func newEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e := New(model.NewGraph(), rec)
	rep, err := e.BuildFromSnapshot([]byte(snapshotJSON))
	if err != nil {
		t.Fatalf("BuildFromSnapshot() error = %v", err)
	}
	if len(rep.Diagnostics) != 0 {
		t.Fatalf("BuildFromSnapshot() diagnostics = %v", rep.Diagnostics)
	}
	return e, rec
}

func envelope1(ev string) []byte {
	return []byte(fmt.Sprintf(`{"events":{"0":%s}}`, ev))
}

func TestBuildFromSnapshot(t *testing.T) {
	e, rec := newEngine(t)
	g := e.Graph()

	c := g.Counts()
	if !c.HasHome || c.Devices != 1 || c.Groups != 1 || c.Clients != 1 || c.Channels != 2 {
		t.Errorf("Counts() = %+v", c)
	}
	if len(rec.got) != 0 {
		t.Errorf("snapshot published %d notifications, want 0", len(rec.got))
	}
	if len(g.DanglingRefs()) != 0 {
		t.Errorf("DanglingRefs() = %v", g.DanglingRefs())
	}
}

func TestBuildFromSnapshot_ReplacesGraph(t *testing.T) {
	e, _ := newEngine(t)

	next := `{"home":{"id":"H1"},"devices":{"D2":{"id":"D2","type":"PLUGABLE_SWITCH"}},"groups":{},"clients":{}}`
	if _, err := e.BuildFromSnapshot([]byte(next)); err != nil {
		t.Fatalf("BuildFromSnapshot() error = %v", err)
	}
	g := e.Graph()
	if _, ok := g.Device("D1"); ok {
		t.Error("D1 survived a full rebuild")
	}
	if _, ok := g.Device("D2"); !ok {
		t.Error("D2 missing after rebuild")
	}
	if g.Counts().Groups != 0 {
		t.Error("groups survived a full rebuild")
	}
}

func TestBuildFromSnapshot_SkipsInvalidEntities(t *testing.T) {
	e := New(nil, nil)
	raw := `{
		"home": {"id": "H1"},
		"devices": {
			"D1": {"id": "D1"},
			"D2": {"id": "D2", "lastStatusUpdate": "bad"},
			"D3": {"id": "OTHER"}
		},
		"groups": {"D1": {"id": "D1", "type": "SWITCHING"}, "G2": {"id": "G2"}},
		"clients": {"C1": {"id": "C1"}}
	}`

	rep, err := e.BuildFromSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("BuildFromSnapshot() error = %v", err)
	}
	if rep.Applied != 3 {
		t.Errorf("Applied = %d, want 3 (home, D1, C1)", rep.Applied)
	}
	if rep.Skipped != 4 || len(rep.Diagnostics) != 4 {
		t.Errorf("Skipped = %d, diagnostics = %v", rep.Skipped, rep.Diagnostics)
	}

	var validation, conflict int
	for _, d := range rep.Diagnostics {
		switch {
		case errors.Is(d, ErrKindConflict):
			conflict++
		case errors.Is(d, model.ErrValidation):
			validation++
		}
	}
	if conflict != 1 || validation != 3 {
		t.Errorf("conflict=%d validation=%d, want 1 and 3", conflict, validation)
	}
	if k, _ := e.Graph().KindOf("D1"); k != model.KindDevice {
		t.Errorf("KindOf(D1) = %v", k)
	}
}

func TestBuildFromSnapshot_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"no home", `{"devices":{}}`},
		{"home without id", `{"home":{"connected":true}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(t)
			_, err := e.BuildFromSnapshot([]byte(tt.raw))
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("BuildFromSnapshot() error = %v, want ErrInvalidSnapshot", err)
			}
			if e.Graph().Counts().Devices != 1 {
				t.Error("failed snapshot modified the graph")
			}
		})
	}
}

func TestApply_DeviceChangedPatchesChannel(t *testing.T) {
	e, rec := newEngine(t)

	ev := `{"pushEventType":"DEVICE_CHANGED","device":{
		"id":"D1","homeId":"H1","label":"Rain sensor","type":"RAIN_SENSOR","lastStatusUpdate":2000,
		"functionalChannels":{
			"0":{"functionalChannelType":"DEVICE_BASE","deviceId":"D1","index":0,"unreach":false},
			"1":{"functionalChannelType":"RAIN_DETECTION_CHANNEL","deviceId":"D1","index":1,"rainSensorSensitivity":90.0}
		}}}`

	rep, err := e.Apply(envelope1(ev))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if rep.Applied != 1 {
		t.Errorf("Applied = %d, want 1", rep.Applied)
	}

	d, _ := e.Graph().Device("D1")
	if v, _ := d.Channel(1).Fields.Float("rainSensorSensitivity"); v != 90 {
		t.Errorf("rainSensorSensitivity = %v, want 90", v)
	}
	if d.LastStatusUpdate != 2000 {
		t.Errorf("LastStatusUpdate = %d, want 2000", d.LastStatusUpdate)
	}
	if raining, ok := d.Channel(1).Fields.Bool("raining"); !ok || raining {
		t.Error("field absent from the patch was not kept")
	}

	if len(rec.got) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(rec.got))
	}
	n := rec.got[0]
	if n.Kind != notify.ItemUpdated || n.EntityKind != model.KindDevice || n.ID != "D1" {
		t.Errorf("notification = %+v", n)
	}
	pub, ok := n.Entity.(*model.Device)
	if !ok {
		t.Fatalf("entity type = %T", n.Entity)
	}
	if v, _ := pub.Channel(1).Fields.Float("rainSensorSensitivity"); v != 90 {
		t.Errorf("published value = %v, want post-mutation 90", v)
	}
}

func TestApply_RemoveAbsentIsNoop(t *testing.T) {
	e, rec := newEngine(t)

	rep, err := e.Apply(envelope1(`{"pushEventType":"DEVICE_REMOVED","id":"NOPE"}`))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(rec.got) != 0 {
		t.Errorf("notifications = %d, want 0", len(rec.got))
	}
	if rep.Applied != 0 || rep.Skipped != 1 || len(rep.Diagnostics) != 0 {
		t.Errorf("Report = %+v", rep)
	}
	if e.Graph().Counts().Devices != 1 {
		t.Error("graph changed")
	}
}

func TestApply_ChangeAbsentIsNoop(t *testing.T) {
	e, rec := newEngine(t)

	_, err := e.Apply(envelope1(`{"pushEventType":"DEVICE_CHANGED","device":{"id":"NOPE","label":"x"}}`))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(rec.got) != 0 {
		t.Errorf("notifications = %d, want 0", len(rec.got))
	}
	if _, ok := e.Graph().Device("NOPE"); ok {
		t.Error("change created an entity")
	}
}

func TestApply_AddIsIdempotent(t *testing.T) {
	e, rec := newEngine(t)

	ev := envelope1(`{"pushEventType":"DEVICE_ADDED","device":{"id":"D2","type":"PLUGABLE_SWITCH","label":"Plug",
		"functionalChannels":{"1":{"functionalChannelType":"SWITCH_CHANNEL","on":false}}}}`)

	for i := 0; i < 2; i++ {
		if _, err := e.Apply(ev); err != nil {
			t.Fatalf("Apply() #%d error = %v", i+1, err)
		}
	}

	if n := len(e.Graph().DevicesOfType("PLUGABLE_SWITCH")); n != 1 {
		t.Errorf("devices with id D2 = %d, want 1", n)
	}
	if len(rec.got) != 1 || rec.got[0].Kind != notify.ItemCreated {
		t.Errorf("notifications = %+v, want one ITEM_CREATED", rec.got)
	}
}

func TestApply_RemovePublishesLastValue(t *testing.T) {
	e, rec := newEngine(t)

	if _, err := e.Apply(envelope1(`{"pushEventType":"GROUP_REMOVED","id":"G1"}`)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(rec.got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(rec.got))
	}
	g, ok := rec.got[0].Entity.(*model.Group)
	if !ok || g.Label != "All" || rec.got[0].Kind != notify.ItemRemoved {
		t.Errorf("notification = %+v", rec.got[0])
	}
	if _, ok := e.Graph().Group("G1"); ok {
		t.Error("G1 still present")
	}
}

func TestApply_UnknownTagDoesNotAbortEnvelope(t *testing.T) {
	e, rec := newEngine(t)

	env := `{"events":{
		"0":{"pushEventType":"SOMETHING_NEW","device":{"id":"D1"}},
		"1":{"pushEventType":"CLIENT_CHANGED","client":{"id":"C1","label":"Tablet"}}
	}}`

	rep, err := e.Apply([]byte(env))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if rep.Applied != 1 || len(rep.Diagnostics) != 1 {
		t.Fatalf("Report = %+v", rep)
	}
	if !errors.Is(rep.Diagnostics[0], ErrUnknownEvent) {
		t.Errorf("diagnostic = %v, want ErrUnknownEvent", rep.Diagnostics[0])
	}
	if c, _ := e.Graph().Client("C1"); c.Label != "Tablet" {
		t.Errorf("client label = %q, want Tablet", c.Label)
	}
	if len(rec.got) != 1 {
		t.Errorf("notifications = %d, want 1", len(rec.got))
	}
}

func TestApply_InvalidPatchDoesNotAbortEnvelope(t *testing.T) {
	e, rec := newEngine(t)

	env := `{"events":{
		"0":{"pushEventType":"DEVICE_CHANGED","device":{"id":"D1","lastStatusUpdate":"later"}},
		"1":"garbage",
		"2":{"pushEventType":"HOME_CHANGED","home":{"id":"H1","dutyCycle":7}}
	}}`

	rep, err := e.Apply([]byte(env))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if rep.Applied != 1 || rep.Skipped != 2 {
		t.Errorf("Report = %+v", rep)
	}
	if !errors.Is(rep.Diagnostics[0], model.ErrValidation) || !errors.Is(rep.Diagnostics[1], ErrMalformedEvent) {
		t.Errorf("diagnostics = %v", rep.Diagnostics)
	}
	if d, _ := e.Graph().Device("D1"); d.LastStatusUpdate != 1000 {
		t.Error("rejected patch modified the device")
	}
	if h, _ := e.Graph().Home(); h.DutyCycle != 7 {
		t.Errorf("home duty cycle = %v, want 7", h.DutyCycle)
	}
	if len(rec.got) != 1 || rec.got[0].EntityKind != model.KindHome {
		t.Errorf("notifications = %+v", rec.got)
	}
}

func TestApply_KindConflict(t *testing.T) {
	e, rec := newEngine(t)

	env := `{"events":{
		"0":{"pushEventType":"DEVICE_ADDED","device":{"id":"G1","type":"PLUGABLE_SWITCH"}},
		"1":{"pushEventType":"CLIENT_ADDED","client":{"id":"C2","label":"Watch"}}
	}}`

	rep, err := e.Apply([]byte(env))
	if !errors.Is(err, ErrKindConflict) {
		t.Fatalf("Apply() error = %v, want ErrKindConflict", err)
	}
	if _, ok := e.Graph().Client("C2"); !ok {
		t.Error("events after the conflict were not applied")
	}
	if k, _ := e.Graph().KindOf("G1"); k != model.KindGroup {
		t.Errorf("KindOf(G1) = %v, want group", k)
	}
	if rep.Applied != 1 || len(rec.got) != 1 {
		t.Errorf("Report = %+v, notifications = %d", rep, len(rec.got))
	}
}

func TestApply_SecurityJournalIsIgnored(t *testing.T) {
	e, rec := newEngine(t)

	rep, err := e.Apply(envelope1(`{"pushEventType":"SECURITY_JOURNAL_CHANGED"}`))
	if err != nil || rep.Applied != 0 || len(rep.Diagnostics) != 0 || len(rec.got) != 0 {
		t.Errorf("Apply() = %+v, %v, notifications %d", rep, err, len(rec.got))
	}
}

func TestApply_MalformedEnvelope(t *testing.T) {
	e, _ := newEngine(t)

	if _, err := e.Apply([]byte(`not json`)); !errors.Is(err, ErrMalformedEnvelope) {
		t.Errorf("Apply() error = %v, want ErrMalformedEnvelope", err)
	}
	if err := e.HandleMessage([]byte(`{"events":{}}`)); err != nil {
		t.Errorf("HandleMessage(empty) error = %v", err)
	}
}

func TestApply_WithBus(t *testing.T) {
	bus := notify.NewBus()
	e := New(model.NewGraph(), bus)
	if _, err := e.BuildFromSnapshot([]byte(snapshotJSON)); err != nil {
		t.Fatalf("BuildFromSnapshot() error = %v", err)
	}

	var updated []string
	bus.Subscribe(notify.ItemUpdated, func(n notify.Notification) { updated = append(updated, n.ID) })
	var removed []string
	bus.Subscribe(notify.ItemRemoved, func(n notify.Notification) { removed = append(removed, n.ID) })

	env := `{"events":{
		"0":{"pushEventType":"DEVICE_CHANGED","device":{"id":"D1","label":"Roof"}},
		"1":{"pushEventType":"CLIENT_REMOVED","id":"C1"}
	}}`
	if _, err := e.Apply([]byte(env)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(updated) != 1 || updated[0] != "D1" || len(removed) != 1 || removed[0] != "C1" {
		t.Errorf("updated = %v removed = %v", updated, removed)
	}
}

type fetcherFunc func(ctx context.Context) ([]byte, error)

func (f fetcherFunc) FetchSnapshot(ctx context.Context) ([]byte, error) { return f(ctx) }

func TestBootstrap(t *testing.T) {
	e := New(nil, nil)
	rep, err := e.Bootstrap(context.Background(), fetcherFunc(func(context.Context) ([]byte, error) {
		return []byte(snapshotJSON), nil
	}))
	if err != nil || rep.Applied != 4 {
		t.Errorf("Bootstrap() = %+v, %v", rep, err)
	}

	boom := errors.New("boom")
	_, err = e.Bootstrap(context.Background(), fetcherFunc(func(context.Context) ([]byte, error) {
		return nil, boom
	}))
	if !errors.Is(err, boom) {
		t.Errorf("Bootstrap() error = %v, want boom", err)
	}
}

func TestParseEventType(t *testing.T) {
	for typ, name := range eventNames {
		got, ok := ParseEventType(name)
		if !ok || got != typ {
			t.Errorf("ParseEventType(%q) = %v, %v", name, got, ok)
		}
		if typ.String() != name {
			t.Errorf("%d.String() = %q, want %q", typ, typ.String(), name)
		}
	}
	if _, ok := ParseEventType("DEVICE_MOVED"); ok {
		t.Error("ParseEventType accepted an unknown tag")
	}
	if EventUnknown.String() != "UNKNOWN" {
		t.Errorf("EventUnknown.String() = %q", EventUnknown.String())
	}
}

func TestEventKeys(t *testing.T) {
	keys := eventKeys(map[string]json.RawMessage{"10": nil, "2": nil, "b": nil, "a": nil, "0": nil})
	want := []string{"0", "2", "10", "a", "b"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("eventKeys() = %v, want %v", keys, want)
		}
	}

	extreme := eventKeys(map[string]json.RawMessage{"9223372036854775807": nil, "-9223372036854775808": nil, "0": nil})
	wantExtreme := []string{"-9223372036854775808", "0", "9223372036854775807"}
	for i := range wantExtreme {
		if extreme[i] != wantExtreme[i] {
			t.Fatalf("eventKeys() = %v, want %v", extreme, wantExtreme)
		}
	}
}
