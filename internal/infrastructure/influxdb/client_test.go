package influxdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hmip/internal/model"
)

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled: true,
		URL:     url,
		Token:   "test-token",
		Org:     "home",
		Bucket:  "hmip",
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://localhost:8086")
	cfg.Enabled = false

	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if c.Bucket() != "hmip" {
		t.Errorf("Bucket() = %q", c.Bucket())
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if n := c.WriteDevice(&model.Device{ID: "D1"}, time.Now()); n != 0 {
		t.Errorf("WriteDevice() after Close wrote %d points", n)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
		wantTags  map[string]string
	}{
		{
			name:      "fallbacks",
			wantBatch: 100,
			wantFlush: 10000,
			wantTags:  map[string]string{SourceTag: ApplicationName},
		},
		{
			name: "configured",
			cfg: config.InfluxDBConfig{
				BatchSize:     500,
				FlushInterval: 2,
				Tags:          map[string]string{"site": "cottage", "empty": "", SourceTag: "other"},
			},
			wantBatch: 500,
			wantFlush: 2000,
			wantTags:  map[string]string{SourceTag: ApplicationName, "site": "cottage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options(tt.cfg).WriteOptions()
			if opts.BatchSize() != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", opts.BatchSize(), tt.wantBatch)
			}
			if opts.FlushInterval() != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", opts.FlushInterval(), tt.wantFlush)
			}
			if opts.Precision() != time.Millisecond {
				t.Errorf("Precision() = %v, want 1ms", opts.Precision())
			}
			tags := opts.DefaultTags()
			if len(tags) != len(tt.wantTags) {
				t.Errorf("DefaultTags() = %v, want %v", tags, tt.wantTags)
			}
			for k, v := range tt.wantTags {
				if tags[k] != v {
					t.Errorf("DefaultTags()[%q] = %q, want %q", k, tags[k], v)
				}
			}
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := Connect(context.Background(), testConfig(url)); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

func TestChannelPoints(t *testing.T) {
	d, err := model.NewDevice([]byte(`{
		"id": "D1",
		"label": "Bathroom",
		"type": "TEMPERATURE_HUMIDITY_SENSOR_DISPLAY",
		"functionalChannels": {
			"0": {"functionalChannelType": "DEVICE_BASE", "index": 0, "rssiDeviceValue": -62, "unreach": false, "groups": []},
			"1": {"functionalChannelType": "WALL_MOUNTED_THERMOSTAT_WITHOUT_DISPLAY_CHANNEL", "index": 1, "actualTemperature": 21.5, "humidity": 48, "groups": []},
			"2": {"functionalChannelType": "EMPTY_CHANNEL", "index": 2, "groups": []}
		}
	}`))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	at := time.Unix(1760000000, 0)
	points := ChannelPoints(d, at)
	if len(points) != 2 {
		t.Fatalf("ChannelPoints() returned %d points, want 2", len(points))
	}

	line := write.PointToLineProtocol(points[1], time.Second)
	for _, want := range []string{
		MeasurementChannel,
		"channel_index=1",
		"device_id=D1",
		"actualTemperature=21.5",
		"humidity=48",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line protocol %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "groups") {
		t.Errorf("line protocol %q carries a non-scalar field", line)
	}

	base := write.PointToLineProtocol(points[0], time.Second)
	if !strings.Contains(base, "unreach=false") || !strings.Contains(base, "rssiDeviceValue=-62") {
		t.Errorf("base channel line = %q", base)
	}

	if ChannelPoints(nil, at) != nil {
		t.Error("ChannelPoints(nil) should be nil")
	}
}

func TestGraphPoint(t *testing.T) {
	line := write.PointToLineProtocol(GraphPoint(model.Counts{Devices: 3, Groups: 2, Clients: 1, Channels: 7}, time.Unix(0, 0)), time.Second)
	for _, want := range []string{MeasurementGraph, "devices=3i", "groups=2i", "channels=7i"} {
		if !strings.Contains(line, want) {
			t.Errorf("line protocol %q missing %q", line, want)
		}
	}
}
