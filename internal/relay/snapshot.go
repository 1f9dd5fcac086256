package relay

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
	"github.com/nerrad567/gray-logic-hmip/internal/notify"
)

// Snapshot returns one ItemUpdated notification per entity in g: the home
// first, then devices, groups and clients in id order. Snapshot rebuilds do
// not publish notifications, so the sinks are replayed from this after a
// bootstrap or resync.
func Snapshot(g *model.Graph, at time.Time) []notify.Notification {
	counts := g.Counts()
	out := make([]notify.Notification, 0, 1+counts.Devices+counts.Groups+counts.Clients)

	if h, ok := g.Home(); ok {
		out = append(out, updated(model.KindHome, h.ID, h, at))
	}
	for _, d := range g.Devices() {
		out = append(out, updated(model.KindDevice, d.ID, d, at))
	}
	for _, grp := range g.Groups() {
		out = append(out, updated(model.KindGroup, grp.ID, grp, at))
	}
	for _, c := range g.Clients() {
		out = append(out, updated(model.KindClient, c.ID, c, at))
	}
	return out
}

func updated(kind model.Kind, id string, entity any, at time.Time) notify.Notification {
	return notify.Notification{Kind: notify.ItemUpdated, EntityKind: kind, ID: id, Entity: entity, Time: at}
}

// Replay feeds Snapshot(g, at) into every queue, waiting for room rather
// than dropping. It stops early when ctx is done and returns its error.
func Replay(ctx context.Context, g *model.Graph, at time.Time, queues ...*notify.Queue) error {
	if len(queues) == 0 {
		return nil
	}
	for _, n := range Snapshot(g, at) {
		for _, q := range queues {
			if err := q.EnqueueWait(ctx, n); err != nil {
				return err
			}
		}
	}
	return nil
}
