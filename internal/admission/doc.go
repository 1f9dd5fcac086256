// Package admission provides the token-bucket gate that limits how fast
// commands are sent to the HmIP cloud.
//
// The bucket holds at most Capacity tokens and regains FillRate tokens per
// second. Refill is lazy: tokens are computed from the clock each time the
// bucket is queried, there is no background timer.
//
// Usage:
//
//	lim := admission.New(10, 8)
//	if !lim.TryTake(1) {
//	    // over budget, skip or queue
//	}
//	if err := lim.TakeBlocking(ctx, 1, 2*time.Minute); err != nil {
//	    // admission.ErrTimeout or ctx.Err()
//	}
//
// Thread Safety:
//   - All Limiter methods are safe for concurrent use.
package admission
