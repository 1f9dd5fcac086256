// Package api serves the mirrored entity graph over HTTP and relays graph
// notifications to WebSocket clients.
//
// All entity routes are read-only; commands go to the cloud through the
// transport package or the MQTT command bridge. Routes live under /api/v1:
//
//	GET /health                      liveness, stream state, graph counts
//	GET /home                        the Home singleton
//	GET /devices[?type=T]            devices, optionally filtered by type
//	GET /devices/{id}
//	GET /devices/{id}/channels/{index}
//	GET /groups[?type=T]
//	GET /groups/{id}
//	GET /clients
//	GET /clients/{id}
//	GET /history/{id}[?limit=N]      journaled notifications for an entity
//	GET /ws                          notification relay
//
// Every route except /health requires an HS256 bearer token when a JWT
// secret is configured. WebSocket clients may pass the token in the token
// query parameter instead.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
