package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
	"github.com/nerrad567/gray-logic-hmip/internal/notify"
)

const (
	// DefaultLimit is used when a query asks for zero or fewer entries.
	DefaultLimit = 50

	// MaxLimit caps a single query.
	MaxLimit = 500

	recordTimeout = 5 * time.Second
)

// ErrMissingID is returned when an entry or query has no entity id.
var ErrMissingID = errors.New("history: entity id is required")

// Entry is one journaled notification.
type Entry struct {
	ID         int64           `json:"id"`
	Kind       notify.Kind     `json:"kind"`
	EntityKind model.Kind      `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Label      string          `json:"label,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Logger defines the logging interface used by the journal.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Journal reads and writes the notifications table.
//
// Thread Safety: all methods are safe for concurrent use; serialisation is
// left to database/sql and SQLite.
type Journal struct {
	db     *sql.DB
	logger Logger
}

// New creates a journal on an already migrated database.
func New(db *sql.DB) *Journal {
	return &Journal{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger used by Handle.
func (j *Journal) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	j.logger = logger
}

// Record stores one notification.
func (j *Journal) Record(ctx context.Context, n notify.Notification) error {
	if n.ID == "" {
		return ErrMissingID
	}

	payload, err := n.Payload()
	if err != nil {
		return fmt.Errorf("history: encoding %s %s: %w", n.EntityKind, n.ID, err)
	}

	at := n.Time
	if at.IsZero() {
		at = time.Now()
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO notifications (kind, entity_kind, entity_id, label, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(n.Kind),
		string(n.EntityKind),
		n.ID,
		n.Label(),
		string(payload),
		at.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history: inserting notification: %w", err)
	}
	return nil
}

// Handle records n with a bounded timeout and logs failures. It matches
// notify.Handler.
func (j *Journal) Handle(n notify.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := j.Record(ctx, n); err != nil {
		j.logger.Warn("journal write failed", "entity_id", n.ID, "kind", n.Kind, "error", err)
	}
}

// History returns the newest entries for one entity, newest first.
func (j *Journal) History(ctx context.Context, entityID string, limit int) ([]Entry, error) {
	if entityID == "" {
		return nil, ErrMissingID
	}
	return j.query(ctx,
		`SELECT id, kind, entity_kind, entity_id, label, payload, created_at
		 FROM notifications WHERE entity_id = ? ORDER BY id DESC LIMIT ?`,
		entityID, clampLimit(limit),
	)
}

// Recent returns the newest entries across all entities, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx,
		`SELECT id, kind, entity_kind, entity_id, label, payload, created_at
		 FROM notifications ORDER BY id DESC LIMIT ?`,
		clampLimit(limit),
	)
}

// Prune deletes entries older than olderThan and returns how many went.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive, got %v", olderThan)
	}

	cutoff := time.Now().Add(-olderThan).UTC().UnixMilli()
	result, err := j.db.ExecContext(ctx, "DELETE FROM notifications WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: pruning: %w", err)
	}
	return result.RowsAffected()
}

// RunPruner prunes every interval until ctx is done.
func (j *Journal) RunPruner(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Prune(ctx, retention); err != nil && ctx.Err() == nil {
				j.logger.Warn("journal prune failed", "error", err)
			}
		}
	}
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: querying: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			kind      string
			entity    string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &kind, &entity, &e.EntityID, &e.Label, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scanning: %w", err)
		}
		e.Kind = notify.Kind(kind)
		e.EntityKind = model.Kind(entity)
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating: %w", err)
	}
	return entries, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
