// Package influxdb writes mirror telemetry to InfluxDB v2.
//
// Every updated device is flattened into one point per functional channel:
// numeric and boolean channel fields become InfluxDB fields, and the device
// id, device type, channel index and channel type become tags, alongside
// source=hmipmirror and any tags from the configuration. Writes go
// through the non-blocking batched write API; failures are reported
// asynchronously through SetOnError.
package influxdb
