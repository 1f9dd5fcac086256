package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Syncer keeps the graph aligned with the cloud. It applies stream
// messages through the engine and rebuilds the graph from a fresh snapshot
// whenever incremental state can no longer be trusted: after an id kind
// conflict and after the stream reconnects (events sent while disconnected
// are lost).
type Syncer struct {
	engine  *Engine
	fetcher SnapshotFetcher
	logger  Logger

	onResync func(Report)

	resyncs atomic.Uint64
}

// NewSyncer creates a syncer for engine, fetching snapshots from fetcher.
func NewSyncer(engine *Engine, fetcher SnapshotFetcher) *Syncer {
	return &Syncer{engine: engine, fetcher: fetcher, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (s *Syncer) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetOnResync registers fn to run after every successful resync. It is
// called on the resyncing goroutine. Set it before the stream starts.
func (s *Syncer) SetOnResync(fn func(Report)) {
	s.onResync = fn
}

// Resync rebuilds the graph from a fresh snapshot. Entities that appeared
// or vanished since the previous graph are published as created or removed.
func (s *Syncer) Resync(ctx context.Context, reason string) (Report, error) {
	s.resyncs.Add(1)
	rep, err := s.engine.Resync(ctx, s.fetcher)
	if err != nil {
		s.logger.Error("resync failed", "reason", reason, "error", err)
		return rep, err
	}
	s.logger.Info("graph resynchronised",
		"reason", reason,
		"applied", rep.Applied,
		"skipped", rep.Skipped,
	)
	if s.onResync != nil {
		s.onResync(rep)
	}
	return rep, nil
}

// Resyncs returns how many resyncs have been attempted.
func (s *Syncer) Resyncs() uint64 {
	return s.resyncs.Load()
}

// Handler returns a stream message handler bound to ctx. A kind conflict
// triggers a resync before the next message is read.
func (s *Syncer) Handler(ctx context.Context) func([]byte) error {
	return func(msg []byte) error {
		err := s.engine.HandleMessage(msg)
		if !errors.Is(err, ErrKindConflict) {
			return err
		}
		if _, rerr := s.Resync(ctx, "kind_conflict"); rerr != nil {
			return fmt.Errorf("%w; resync: %w", err, rerr)
		}
		return nil
	}
}

// OnConnect returns a stream connect callback that resyncs on reconnect.
// The first connection is skipped; the caller bootstraps before listening.
func (s *Syncer) OnConnect(ctx context.Context) func(reconnect bool) {
	return func(reconnect bool) {
		if !reconnect {
			return
		}
		//nolint:errcheck // logged by Resync; the next reconnect retries
		s.Resync(ctx, "reconnect")
	}
}
