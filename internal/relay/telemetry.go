package relay

import (
	"time"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
	"github.com/nerrad567/gray-logic-hmip/internal/notify"
)

// DeviceWriter is the part of *influxdb.Client the telemetry sink uses.
type DeviceWriter interface {
	WriteDevice(d *model.Device, at time.Time) int
}

// TelemetrySink records device channel values for created and updated
// devices. Removals and other entity kinds are ignored.
type TelemetrySink struct {
	writer DeviceWriter
}

// NewTelemetrySink creates a sink writing through w.
func NewTelemetrySink(w DeviceWriter) *TelemetrySink {
	return &TelemetrySink{writer: w}
}

// Handle matches notify.Handler.
func (s *TelemetrySink) Handle(n notify.Notification) {
	if n.Kind == notify.ItemRemoved {
		return
	}
	d, ok := n.Entity.(*model.Device)
	if !ok || d == nil {
		return
	}
	at := n.Time
	if at.IsZero() {
		at = time.Now()
	}
	s.writer.WriteDevice(d, at)
}
