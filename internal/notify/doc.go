// Package notify is the typed fan-out for entity graph mutations.
//
// The synchronization engine publishes one Notification per created,
// updated or removed entity. Subscribers register for one Kind or for all
// kinds and are called synchronously, in subscription order, on the
// publishing goroutine. A panicking handler is recovered and logged; it does
// not affect other subscribers.
//
//	bus := notify.NewBus()
//	sub := bus.Subscribe(notify.ItemUpdated, func(n notify.Notification) {
//	    if d, ok := n.Entity.(*model.Device); ok { ... }
//	})
//	defer bus.Unsubscribe(sub)
//
// Handlers run inside the stream receive loop, so they should return
// quickly and must not call back into the engine.
package notify
