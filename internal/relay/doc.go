// Package relay connects the entity graph to the MQTT broker and to
// InfluxDB.
//
// MQTTSink republishes every notification: the entity's wire JSON is
// retained on <prefix>/<kind>/<id> (cleared on removal) and a change event
// is sent on <prefix>/events/<kind>. TelemetrySink writes the channel fields
// of created and updated devices to InfluxDB. CommandBridge accepts JSON
// bodies on <prefix>/command/<path>, forwards them to the cloud REST
// endpoint and reports the outcome on <prefix>/result/<path>.
//
// The sinks are notify.Handler values; attach them through a notify.Queue
// so broker or database latency never reaches the stream receive loop.
package relay
