package model

import (
	"encoding/json"
	"errors"
	"testing"
)

const rainDevice = `{
	"id": "D1",
	"homeId": "H1",
	"label": "Rain sensor",
	"type": "RAIN_SENSOR",
	"modelType": "HmIP-SRD",
	"firmwareVersion": "1.0.4",
	"lastStatusUpdate": 1000,
	"functionalChannels": {
		"0": {"functionalChannelType": "DEVICE_BASE", "deviceId": "D1", "index": 0, "unreach": false, "rssiDeviceValue": -60, "groups": []},
		"1": {"functionalChannelType": "RAIN_DETECTION_CHANNEL", "deviceId": "D1", "index": 1, "rainSensorSensitivity": 10.0, "raining": false, "groups": ["G1"]}
	}
}`

func mustDevice(t *testing.T, raw string) *Device {
	t.Helper()
	d, err := NewDevice([]byte(raw))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	return d
}

func TestNewDevice(t *testing.T) {
	d := mustDevice(t, rainDevice)

	if d.ID != "D1" || d.HomeID != "H1" || d.Label != "Rain sensor" {
		t.Errorf("typed fields = %q/%q/%q", d.ID, d.HomeID, d.Label)
	}
	if d.Type != "RAIN_SENSOR" || d.ModelType != "HmIP-SRD" || d.FirmwareVersion != "1.0.4" {
		t.Errorf("type fields = %q/%q/%q", d.Type, d.ModelType, d.FirmwareVersion)
	}
	if d.LastStatusUpdate != 1000 {
		t.Errorf("LastStatusUpdate = %d, want 1000", d.LastStatusUpdate)
	}
	if got := d.ChannelIndexes(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("ChannelIndexes() = %v", got)
	}
	if base := d.BaseChannel(); base == nil || base.Type != "DEVICE_BASE" {
		t.Errorf("BaseChannel() = %+v", base)
	}
	ch := d.Channel(1)
	if ch.DeviceID != "D1" || ch.Type != "RAIN_DETECTION_CHANNEL" {
		t.Errorf("channel 1 = %+v", ch)
	}
	if v, ok := ch.Fields.Float("rainSensorSensitivity"); !ok || v != 10 {
		t.Errorf("rainSensorSensitivity = %v, %v", v, ok)
	}
	if len(ch.Groups) != 1 || ch.Groups[0] != "G1" {
		t.Errorf("Groups = %v", ch.Groups)
	}
	if !d.Reachable() {
		t.Error("Reachable() = false")
	}
	if _, ok := d.Attrs["functionalChannels"]; ok {
		t.Error("Attrs should not carry functionalChannels")
	}
}

func TestNewDevice_Validation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"not an object", `[1,2]`},
		{"null", `null`},
		{"missing id", `{"label":"x"}`},
		{"empty id", `{"id":""}`},
		{"bad lastStatusUpdate", `{"id":"D1","lastStatusUpdate":"yesterday"}`},
		{"channel without type", `{"id":"D1","functionalChannels":{"0":{"index":0}}}`},
		{"channel key not numeric", `{"id":"D1","functionalChannels":{"zero":{"functionalChannelType":"DEVICE_BASE"}}}`},
		{"channel of another device", `{"id":"D1","functionalChannels":{"0":{"functionalChannelType":"DEVICE_BASE","deviceId":"D2"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDevice([]byte(tt.raw))
			if !errors.Is(err, ErrValidation) {
				t.Errorf("NewDevice() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDevice_ApplyPatch_Partial(t *testing.T) {
	d := mustDevice(t, rainDevice)

	patch := `{"id":"D1","lastStatusUpdate":2000,"functionalChannels":{"1":{"rainSensorSensitivity":90.0}}}`
	if err := d.ApplyPatch([]byte(patch)); err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}

	if d.LastStatusUpdate != 2000 {
		t.Errorf("LastStatusUpdate = %d, want 2000", d.LastStatusUpdate)
	}
	ch := d.Channel(1)
	if v, _ := ch.Fields.Float("rainSensorSensitivity"); v != 90 {
		t.Errorf("rainSensorSensitivity = %v, want 90", v)
	}
	// Untouched fields keep their values
	if raining, ok := ch.Fields.Bool("raining"); !ok || raining {
		t.Errorf("raining = %v, %v", raining, ok)
	}
	if ch.Type != "RAIN_DETECTION_CHANNEL" {
		t.Errorf("channel type = %q", ch.Type)
	}
	if d.Label != "Rain sensor" || d.FirmwareVersion != "1.0.4" {
		t.Errorf("unpatched fields changed: %q %q", d.Label, d.FirmwareVersion)
	}
	if rssi, _ := d.BaseChannel().Fields.Float("rssiDeviceValue"); rssi != -60 {
		t.Errorf("base channel rssi = %v, want -60", rssi)
	}
}

func TestDevice_ApplyPatch_AddsChannel(t *testing.T) {
	d := mustDevice(t, rainDevice)

	patch := `{"functionalChannels":{"2":{"functionalChannelType":"SWITCH_CHANNEL","on":true}}}`
	if err := d.ApplyPatch([]byte(patch)); err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	ch := d.Channel(2)
	if ch == nil || ch.DeviceID != "D1" || ch.Index != 2 {
		t.Fatalf("channel 2 = %+v", ch)
	}
}

func TestDevice_ApplyPatch_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{"id change", `{"id":"D2","label":"renamed"}`},
		{"wrong type", `{"label":"renamed","lastStatusUpdate":"soon"}`},
		{"channel moved", `{"label":"renamed","functionalChannels":{"1":{"deviceId":"D9"}}}`},
		{"not an object", `"label"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDevice(t, rainDevice)
			err := d.ApplyPatch([]byte(tt.patch))
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ApplyPatch() error = %v, want ErrValidation", err)
			}
			if d.ID != "D1" || d.Label != "Rain sensor" {
				t.Errorf("device modified by rejected patch: %q %q", d.ID, d.Label)
			}
			if d.Channel(1).DeviceID != "D1" {
				t.Error("channel modified by rejected patch")
			}
		})
	}
}

func TestDevice_CloneIsDeep(t *testing.T) {
	d := mustDevice(t, rainDevice)
	cpy := d.Clone()

	cpy.Label = "changed"
	cpy.Attrs["label"] = "changed"
	cpy.Channel(1).Fields["rainSensorSensitivity"] = 50.0
	cpy.Channel(1).Groups[0] = "G9"

	if d.Label != "Rain sensor" || d.Attrs["label"] != "Rain sensor" {
		t.Error("clone shares top-level state")
	}
	if v, _ := d.Channel(1).Fields.Float("rainSensorSensitivity"); v != 10 {
		t.Error("clone shares channel fields")
	}
	if d.Channel(1).Groups[0] != "G1" {
		t.Error("clone shares channel groups")
	}
}

func TestDevice_MarshalJSON(t *testing.T) {
	d := mustDevice(t, rainDevice)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	again, err := NewDevice(data)
	if err != nil {
		t.Fatalf("NewDevice(marshalled) error = %v", err)
	}
	if again.ID != d.ID || len(again.Channels) != 2 {
		t.Errorf("marshalled device = %+v", again)
	}
}

const homeJSON = `{
	"id": "H1",
	"currentAPVersion": "2.2.18",
	"connected": true,
	"dutyCycle": 8.5,
	"location": {"city": "Leer", "latitude": "53.2", "longitude": "7.4"},
	"weather": {"temperature": 12.5, "humidity": 80, "windSpeed": 3.2, "weatherCondition": "CLOUDY"},
	"functionalHomes": {
		"INDOOR_CLIMATE": {"solution": "INDOOR_CLIMATE", "active": true, "absenceType": "NOT_ABSENT"},
		"LIGHT_AND_SHADOW": {"solution": "LIGHT_AND_SHADOW", "active": true}
	}
}`

func TestHome(t *testing.T) {
	h, err := NewHome([]byte(homeJSON))
	if err != nil {
		t.Fatalf("NewHome() error = %v", err)
	}
	if !h.Connected || h.DutyCycle != 8.5 || h.CurrentAPVersion != "2.2.18" {
		t.Errorf("home = %+v", h)
	}
	if h.Location.City != "Leer" || h.Weather.Temperature != 12.5 || !h.Weather.HasTemperature {
		t.Errorf("location/weather = %+v / %+v", h.Location, h.Weather)
	}
	if got := h.Solutions(); len(got) != 2 || got[0] != "INDOOR_CLIMATE" {
		t.Errorf("Solutions() = %v", got)
	}

	patch := `{"weather":{"temperature":14.0},"functionalHomes":{"INDOOR_CLIMATE":{"absenceType":"PERIOD"}}}`
	if err := h.ApplyPatch([]byte(patch)); err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	if h.Weather.Temperature != 14 || h.Weather.Humidity != 80 {
		t.Errorf("weather after patch = %+v", h.Weather)
	}
	climate, ok := h.FunctionalHome("INDOOR_CLIMATE")
	if !ok {
		t.Fatal("INDOOR_CLIMATE missing")
	}
	if v, _ := climate.String("absenceType"); v != "PERIOD" {
		t.Errorf("absenceType = %q", v)
	}
	if active, _ := climate.Bool("active"); !active {
		t.Error("active lost by nested patch")
	}

	if err := h.ApplyPatch([]byte(`{"id":"H2"}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("id patch error = %v, want ErrValidation", err)
	}
}

func TestGroup(t *testing.T) {
	raw := `{"id":"G1","homeId":"H1","label":"Living","type":"SWITCHING","lastStatusUpdate":5,
		"channels":[{"deviceId":"D1","channelIndex":1},{"deviceId":"D7","channelIndex":3}]}`
	g, err := NewGroup([]byte(raw))
	if err != nil {
		t.Fatalf("NewGroup() error = %v", err)
	}
	if g.Type != "SWITCHING" || len(g.Channels) != 2 {
		t.Fatalf("group = %+v", g)
	}
	if g.Channels[1] != (ChannelRef{DeviceID: "D7", Index: 3}) {
		t.Errorf("Channels[1] = %+v", g.Channels[1])
	}
	if g.IsMeta() {
		t.Error("IsMeta() = true for a switching group")
	}

	if err := g.ApplyPatch([]byte(`{"channels":[{"deviceId":"D1","channelIndex":1}]}`)); err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	if len(g.Channels) != 1 || g.Label != "Living" {
		t.Errorf("after patch = %+v", g)
	}

	if _, err := NewGroup([]byte(`{"id":"G2"}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("group without type error = %v, want ErrValidation", err)
	}
	if _, err := NewGroup([]byte(`{"id":"G2","type":"X","channels":[{"deviceId":"D1"}]}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("ref without index error = %v, want ErrValidation", err)
	}
}

func TestClient(t *testing.T) {
	c, err := NewClient([]byte(`{"id":"C1","homeId":"H1","label":"Phone","clientType":"APP"}`))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Label != "Phone" || c.ClientType != "APP" {
		t.Errorf("client = %+v", c)
	}
	if err := c.ApplyPatch([]byte(`{"label":"Tablet"}`)); err != nil || c.Label != "Tablet" || c.ClientType != "APP" {
		t.Errorf("after patch = %+v, err %v", c, err)
	}
}

func TestAttributes(t *testing.T) {
	a := Attributes{
		"f64":  1.5,
		"i":    3,
		"num":  json.Number("7.25"),
		"s":    "x",
		"b":    true,
		"list": []any{"a", 1, "b"},
		"obj":  map[string]any{"k": "v"},
	}

	if v, ok := a.Float("f64"); !ok || v != 1.5 {
		t.Errorf("Float(f64) = %v, %v", v, ok)
	}
	if v, ok := a.Float("i"); !ok || v != 3 {
		t.Errorf("Float(i) = %v, %v", v, ok)
	}
	if v, ok := a.Float("num"); !ok || v != 7.25 {
		t.Errorf("Float(num) = %v, %v", v, ok)
	}
	if _, ok := a.Float("s"); ok {
		t.Error("Float(s) should fail")
	}
	if v, ok := a.Int("f64"); !ok || v != 1 {
		t.Errorf("Int(f64) = %v, %v", v, ok)
	}
	if got := a.Strings("list"); len(got) != 2 {
		t.Errorf("Strings(list) = %v", got)
	}
	if obj, ok := a.Object("obj"); !ok || obj.str("k") != "v" {
		t.Errorf("Object(obj) = %v, %v", obj, ok)
	}

	dst := map[string]any{"a": map[string]any{"x": 1.0, "y": 2.0}, "b": 1.0}
	mergeInto(dst, map[string]any{"a": map[string]any{"y": 3.0}, "c": []any{1.0}})
	inner := dst["a"].(map[string]any)
	if inner["x"] != 1.0 || inner["y"] != 3.0 || dst["b"] != 1.0 || dst["c"] == nil {
		t.Errorf("mergeInto result = %v", dst)
	}
}
