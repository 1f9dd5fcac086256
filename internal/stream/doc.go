// Package stream holds the persistent websocket connection to the HmIP push
// endpoint.
//
// Listen dials the endpoint with the AUTHTOKEN and CLIENTAUTH headers and
// hands every inbound message to a handler, one at a time and in arrival
// order. When the socket drops, Listen either redials (ReconnectOnError) or
// returns ErrStreamClosed. A rejected handshake (401/403) returns
// ErrAuthentication and is never retried.
//
//	conn := stream.New(stream.Config{URL: url, AuthToken: at, ClientAuthToken: ct, ReconnectOnError: true})
//	conn.SetOnConnect(func(reconnect bool) { ... })
//	err := conn.Listen(ctx, func(msg []byte) error {
//	    _, err := engine.Apply(msg)
//	    return err
//	})
//
// Close (or cancelling ctx) stops the loop without a reconnect and makes
// Listen return nil.
package stream
