package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
)

// Measurement names.
const (
	MeasurementChannel = "hmip_channel"
	MeasurementGraph   = "hmip_graph"
)

// Channel fields that identify rather than measure.
var skippedFields = map[string]bool{
	"index": true,
}

// ChannelPoints flattens a device into one point per functional channel.
// Channels with no numeric or boolean fields produce no point.
func ChannelPoints(d *model.Device, at time.Time) []*write.Point {
	if d == nil {
		return nil
	}

	var points []*write.Point
	for _, index := range d.ChannelIndexes() {
		ch := d.Channel(index)
		fields := make(map[string]any)
		for key, value := range ch.Fields {
			if skippedFields[key] {
				continue
			}
			switch v := value.(type) {
			case float64, bool:
				fields[key] = v
			case int:
				fields[key] = float64(v)
			case int64:
				fields[key] = float64(v)
			}
		}
		if len(fields) == 0 {
			continue
		}

		tags := map[string]string{
			"device_id":     d.ID,
			"device_type":   d.Type,
			"channel_index": strconv.Itoa(index),
			"channel_type":  ch.Type,
		}
		if d.Label != "" {
			tags["label"] = d.Label
		}
		points = append(points, write.NewPoint(MeasurementChannel, tags, fields, at))
	}
	return points
}

// GraphPoint records the size of the mirrored graph.
func GraphPoint(counts model.Counts, at time.Time) *write.Point {
	return write.NewPoint(MeasurementGraph,
		map[string]string{},
		map[string]any{
			"devices":  counts.Devices,
			"groups":   counts.Groups,
			"clients":  counts.Clients,
			"channels": counts.Channels,
		},
		at,
	)
}

// WriteDevice queues the channel points of d.
func (c *Client) WriteDevice(d *model.Device, at time.Time) int {
	if !c.IsConnected() {
		return 0
	}
	points := ChannelPoints(d, at)
	for _, p := range points {
		c.writeAPI.WritePoint(p)
	}
	return len(points)
}

// WriteGraphCounts queues a graph size point.
func (c *Client) WriteGraphCounts(counts model.Counts, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(GraphPoint(counts, at))
}

// WritePoint queues a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
