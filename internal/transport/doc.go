// Package transport sends commands to the HmIP cloud REST endpoint.
//
// Every call is a POST to <rest_url>/hmip/<path> carrying the AUTHTOKEN,
// CLIENTAUTH and VERSION headers. Outcomes are never returned as Go errors
// from Send; callers always receive a Result and inspect Result.Err:
//
//	res := client.Send(ctx, "device/control/setSwitchState", body, nil)
//	switch {
//	case res.Success:
//	case errors.Is(res.Err, transport.ErrThrottled):
//	case errors.Is(res.Err, transport.ErrAuthentication):
//	}
//
// When a limiter is attached with WithLimiter, each Send first waits for a
// token. A successful command does not mean the mirror already reflects it;
// the change arrives later on the event stream.
package transport
