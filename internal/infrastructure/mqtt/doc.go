// Package mqtt connects the HmIP mirror to an MQTT broker.
//
// The mirror uses MQTT in two directions:
//
//   - Out: every graph notification is republished under
//     <prefix>/<kind>/<id> (retained entity state) and <prefix>/events/<kind>
//     (non-retained change events).
//   - In: JSON bodies published to <prefix>/command/<path> are forwarded to
//     the cloud REST endpoint as commands.
//
// The client reconnects on its own (paho auto-reconnect) and restores its
// subscriptions after every reconnect. A retained last-will on
// <prefix>/system/status marks the mirror offline if it dies.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//	topics := client.Topics()
//	client.PublishRetained(topics.EntityState("device", id), payload)
package mqtt
