// Package history keeps an append-only SQLite journal of entity graph
// notifications.
//
// The journal is an audit trail, not a store for the mirror: the graph is
// always rebuilt from the cloud snapshot. Each row carries the notification
// kind, the entity kind and id, the label at the time, and the entity in the
// cloud's wire shape.
//
//	journal := history.New(db.DB)
//	queue := notify.NewQueue(0, journal.Handle)
//	queue.Attach(bus)
//	go queue.Run(ctx)
//
//	entries, err := journal.History(ctx, deviceID, 20)
package history
