package mirror

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
	"github.com/nerrad567/gray-logic-hmip/internal/notify"
)

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher receives one notification per graph mutation. *notify.Bus
// satisfies it.
type Publisher interface {
	Publish(n notify.Notification) int
}

// SnapshotFetcher returns a full-state document.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) ([]byte, error)
}

// Report summarises one snapshot build or envelope.
type Report struct {
	// Applied counts entities loaded or mutations performed.
	Applied int

	// Skipped counts events that changed nothing: duplicates, absent ids,
	// ignored event types and rejected payloads.
	Skipped int

	// Diagnostics holds one error per rejected entity or event.
	Diagnostics []error
}

func (r *Report) skip(err error) {
	r.Skipped++
	if err != nil {
		r.Diagnostics = append(r.Diagnostics, err)
	}
}

// Engine applies snapshots and push events to a Graph.
//
// Thread Safety:
//   - BuildFromSnapshot and Apply are serialised internally.
//   - Publisher handlers run while the engine lock is held and must not call
//     back into the engine.
type Engine struct {
	mu     sync.Mutex
	graph  *model.Graph
	pub    Publisher
	logger Logger
}

// New creates an Engine mutating graph and publishing to pub. A nil pub
// discards notifications.
func New(graph *model.Graph, pub Publisher) *Engine {
	if graph == nil {
		graph = model.NewGraph()
	}
	return &Engine{graph: graph, pub: pub, logger: noopLogger{}}
}

// SetLogger sets the engine logger.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// Graph returns the graph the engine maintains.
func (e *Engine) Graph() *model.Graph {
	return e.graph
}

// Bootstrap fetches a snapshot and rebuilds the graph from it.
func (e *Engine) Bootstrap(ctx context.Context, fetcher SnapshotFetcher) (Report, error) {
	raw, err := fetcher.FetchSnapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetching snapshot: %w", err)
	}
	return e.BuildFromSnapshot(raw)
}

// snapshot is the getCurrentState document.
type snapshot struct {
	Home    json.RawMessage            `json:"home"`
	Devices map[string]json.RawMessage `json:"devices"`
	Groups  map[string]json.RawMessage `json:"groups"`
	Clients map[string]json.RawMessage `json:"clients"`
}

// Resync fetches a snapshot and rebuilds the graph from it, announcing the
// difference like RebuildFromSnapshot does.
func (e *Engine) Resync(ctx context.Context, fetcher SnapshotFetcher) (Report, error) {
	raw, err := fetcher.FetchSnapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetching snapshot: %w", err)
	}
	return e.RebuildFromSnapshot(raw)
}

// BuildFromSnapshot replaces the whole graph with the snapshot contents.
// Entities that fail validation are skipped and reported. The graph is left
// untouched if the document or its home cannot be parsed. Nothing is
// published.
func (e *Engine) BuildFromSnapshot(raw []byte) (Report, error) {
	return e.build(raw, false)
}

// RebuildFromSnapshot replaces the graph like BuildFromSnapshot and then
// publishes ItemRemoved (with the last known value) for every entity the
// snapshot no longer contains and ItemCreated for every entity it adds. An
// id that moved to another kind counts as one removal and one creation.
// Entities present in both are not announced.
func (e *Engine) RebuildFromSnapshot(raw []byte) (Report, error) {
	return e.build(raw, true)
}

func (e *Engine) build(raw []byte, announce bool) (Report, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if len(snap.Home) == 0 {
		return Report{}, fmt.Errorf("%w: missing home", ErrInvalidSnapshot)
	}
	home, err := model.NewHome(snap.Home)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	var rep Report
	rep.Applied++
	seen := map[string]model.Kind{home.ID: model.KindHome}

	// claim records id under kind, rejecting ids already used by another kind.
	claim := func(kind model.Kind, key, id string) bool {
		if key != id {
			rep.skip(fmt.Errorf("%w: %s key %q does not match id %q", model.ErrValidation, kind, key, id))
			return false
		}
		if have, ok := seen[id]; ok {
			rep.skip(fmt.Errorf("%w: %s %q already used by a %s", ErrKindConflict, kind, id, have))
			return false
		}
		seen[id] = kind
		rep.Applied++
		return true
	}

	var devices []*model.Device
	for _, key := range slices.Sorted(maps.Keys(snap.Devices)) {
		d, err := model.NewDevice(snap.Devices[key])
		if err != nil {
			rep.skip(fmt.Errorf("device %s: %w", key, err))
			continue
		}
		if claim(model.KindDevice, key, d.ID) {
			devices = append(devices, d)
		}
	}

	var groups []*model.Group
	for _, key := range slices.Sorted(maps.Keys(snap.Groups)) {
		g, err := model.NewGroup(snap.Groups[key])
		if err != nil {
			rep.skip(fmt.Errorf("group %s: %w", key, err))
			continue
		}
		if claim(model.KindGroup, key, g.ID) {
			groups = append(groups, g)
		}
	}

	var clients []*model.Client
	for _, key := range slices.Sorted(maps.Keys(snap.Clients)) {
		c, err := model.NewClient(snap.Clients[key])
		if err != nil {
			rep.skip(fmt.Errorf("client %s: %w", key, err))
			continue
		}
		if claim(model.KindClient, key, c.ID) {
			clients = append(clients, c)
		}
	}

	e.mu.Lock()
	var before map[entityKey]any
	if announce {
		before = entityIndex(e.graph)
	}
	e.graph.Replace(home, devices, groups, clients)
	if announce {
		e.announce(before, entityIndex(e.graph))
	}
	e.mu.Unlock()

	for _, d := range rep.Diagnostics {
		e.logger.Warn("snapshot entity skipped", "error", d)
	}
	if dangling := e.graph.DanglingRefs(); len(dangling) > 0 {
		refs := 0
		for _, r := range dangling {
			refs += len(r)
		}
		e.logger.Warn("snapshot has unresolved group channel references",
			"groups", len(dangling),
			"references", refs,
		)
	}
	e.logger.Info("snapshot loaded",
		"home", home.ID,
		"devices", len(devices),
		"groups", len(groups),
		"clients", len(clients),
		"skipped", rep.Skipped,
	)
	return rep, nil
}

// envelope is one push message.
type envelope struct {
	Events map[string]json.RawMessage `json:"events"`
}

// event is one tagged mutation inside an envelope.
type event struct {
	PushEventType string          `json:"pushEventType"`
	ID            string          `json:"id"`
	Home          json.RawMessage `json:"home"`
	Device        json.RawMessage `json:"device"`
	Group         json.RawMessage `json:"group"`
	Client        json.RawMessage `json:"client"`
}

// payload returns the embedded entity of kind.
func (ev *event) payload(kind model.Kind) json.RawMessage {
	var raw json.RawMessage
	switch kind {
	case model.KindHome:
		raw = ev.Home
	case model.KindDevice:
		raw = ev.Device
	case model.KindGroup:
		raw = ev.Group
	case model.KindClient:
		raw = ev.Client
	}
	if string(raw) == "null" {
		return nil
	}
	return raw
}

// entityID returns the id the event targets: the payload id, falling back
// to the top-level id removal events carry.
func (ev *event) entityID(kind model.Kind) string {
	if raw := ev.payload(kind); len(raw) > 0 {
		var head struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(raw, &head) == nil && head.ID != "" {
			return head.ID
		}
	}
	return ev.ID
}

// HandleMessage applies a stream message. It matches the stream handler
// signature.
func (e *Engine) HandleMessage(msg []byte) error {
	_, err := e.Apply(msg)
	return err
}

// Apply decodes a push envelope and applies its events. It returns an error
// only for an undecodable envelope or an id kind conflict; per-event
// problems are reported in the Report.
func (e *Engine) Apply(raw []byte) (Report, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var rep Report
	var conflict error
	for _, key := range eventKeys(env.Events) {
		var ev event
		if err := json.Unmarshal(env.Events[key], &ev); err != nil {
			rep.skip(fmt.Errorf("%w: event %s: %w", ErrMalformedEvent, key, err))
			e.logger.Warn("skipping malformed event", "event", key, "error", err)
			continue
		}

		err := e.applyEvent(&ev, &rep)
		if err == nil {
			continue
		}
		rep.skip(fmt.Errorf("event %s (%s): %w", key, ev.PushEventType, err))
		e.logger.Warn("event not applied",
			"event", key,
			"type", ev.PushEventType,
			"error", err,
		)
		if errors.Is(err, ErrKindConflict) && conflict == nil {
			conflict = err
		}
	}
	return rep, conflict
}

// eventKeys orders envelope keys numerically, then lexically.
func eventKeys(events map[string]json.RawMessage) []string {
	keys := slices.Collect(maps.Keys(events))
	slices.SortFunc(keys, func(a, b string) int {
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		switch {
		case aerr == nil && berr == nil:
			return cmp.Compare(ai, bi)
		case aerr == nil:
			return -1
		case berr == nil:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return keys
}

// applyEvent performs one event. A nil return with no Applied increment is
// a no-op and is counted as skipped here.
func (e *Engine) applyEvent(ev *event, rep *Report) error {
	typ, ok := ParseEventType(ev.PushEventType)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.PushEventType)
	}
	if typ == EventSecurityJournalChanged {
		rep.skip(nil)
		return nil
	}

	kind, act := typ.target()
	var (
		n       notify.Notification
		changed bool
		err     error
	)
	switch act {
	case actionAdd:
		n, changed, err = e.add(kind, ev.payload(kind))
	case actionChange:
		n, changed, err = e.change(kind, ev)
	case actionRemove:
		n, changed, err = e.remove(kind, ev.entityID(kind))
	}
	if err != nil {
		return err
	}
	if !changed {
		rep.skip(nil)
		return nil
	}

	rep.Applied++
	e.logger.Debug("event applied", "type", typ.String(), "id", n.ID)
	if e.pub != nil {
		e.pub.Publish(n)
	}
	return nil
}

func (e *Engine) add(kind model.Kind, raw json.RawMessage) (notify.Notification, bool, error) {
	n := notify.Notification{Kind: notify.ItemCreated, EntityKind: kind}
	if len(raw) == 0 {
		return n, false, fmt.Errorf("%w: %s payload missing", model.ErrValidation, kind)
	}

	var (
		inserted bool
		err      error
	)
	switch kind {
	case model.KindDevice:
		var d *model.Device
		if d, err = model.NewDevice(raw); err == nil {
			n.ID, n.Entity = d.ID, d.Clone()
			inserted, err = e.graph.InsertDevice(d)
		}
	case model.KindGroup:
		var g *model.Group
		if g, err = model.NewGroup(raw); err == nil {
			n.ID, n.Entity = g.ID, g.Clone()
			inserted, err = e.graph.InsertGroup(g)
		}
	case model.KindClient:
		var c *model.Client
		if c, err = model.NewClient(raw); err == nil {
			n.ID, n.Entity = c.ID, c.Clone()
			inserted, err = e.graph.InsertClient(c)
		}
	}
	if errors.Is(err, model.ErrIDConflict) {
		return n, false, fmt.Errorf("%w: %w", ErrKindConflict, err)
	}
	return n, inserted, err
}

func (e *Engine) change(kind model.Kind, ev *event) (notify.Notification, bool, error) {
	n := notify.Notification{Kind: notify.ItemUpdated, EntityKind: kind}
	raw := ev.payload(kind)
	if len(raw) == 0 {
		return n, false, fmt.Errorf("%w: %s payload missing", model.ErrValidation, kind)
	}

	if kind == model.KindHome {
		h, err := e.graph.PatchHome(raw)
		if err != nil {
			return n, false, err
		}
		n.ID, n.Entity = h.ID, h
		return n, true, nil
	}

	id := ev.entityID(kind)
	if id == "" {
		return n, false, fmt.Errorf("%w: %s change without id", model.ErrValidation, kind)
	}
	n.ID = id

	var (
		found bool
		err   error
	)
	switch kind {
	case model.KindDevice:
		var d *model.Device
		d, found, err = e.graph.PatchDevice(id, raw)
		n.Entity = d
	case model.KindGroup:
		var g *model.Group
		g, found, err = e.graph.PatchGroup(id, raw)
		n.Entity = g
	case model.KindClient:
		var c *model.Client
		c, found, err = e.graph.PatchClient(id, raw)
		n.Entity = c
	}
	if err != nil {
		return n, false, err
	}
	return n, found, nil
}

func (e *Engine) remove(kind model.Kind, id string) (notify.Notification, bool, error) {
	n := notify.Notification{Kind: notify.ItemRemoved, EntityKind: kind, ID: id}
	if id == "" {
		return n, false, fmt.Errorf("%w: %s removal without id", model.ErrValidation, kind)
	}

	found := false
	switch kind {
	case model.KindDevice:
		var d *model.Device
		if d, found = e.graph.RemoveDevice(id); found {
			n.Entity = d
		}
	case model.KindGroup:
		var g *model.Group
		if g, found = e.graph.RemoveGroup(id); found {
			n.Entity = g
		}
	case model.KindClient:
		var c *model.Client
		if c, found = e.graph.RemoveClient(id); found {
			n.Entity = c
		}
	}
	return n, found, nil
}

// entityKey identifies an entity across kinds.
type entityKey struct {
	kind model.Kind
	id   string
}

func compareKeys(a, b entityKey) int {
	return cmp.Or(cmp.Compare(a.kind, b.kind), cmp.Compare(a.id, b.id))
}

// entityIndex returns copies of every entity in g keyed by kind and id.
func entityIndex(g *model.Graph) map[entityKey]any {
	out := make(map[entityKey]any)
	if h, ok := g.Home(); ok {
		out[entityKey{model.KindHome, h.ID}] = h
	}
	for _, d := range g.Devices() {
		out[entityKey{model.KindDevice, d.ID}] = d
	}
	for _, grp := range g.Groups() {
		out[entityKey{model.KindGroup, grp.ID}] = grp
	}
	for _, c := range g.Clients() {
		out[entityKey{model.KindClient, c.ID}] = c
	}
	return out
}

// announce publishes removals, then creations, between two indexes. The
// caller holds e.mu.
func (e *Engine) announce(before, after map[entityKey]any) {
	if e.pub == nil {
		return
	}
	emit := func(kind notify.Kind, from, other map[entityKey]any) int {
		var keys []entityKey
		for k := range from {
			if _, ok := other[k]; !ok {
				keys = append(keys, k)
			}
		}
		slices.SortFunc(keys, compareKeys)
		for _, k := range keys {
			e.pub.Publish(notify.Notification{Kind: kind, EntityKind: k.kind, ID: k.id, Entity: from[k]})
		}
		return len(keys)
	}

	removed := emit(notify.ItemRemoved, before, after)
	created := emit(notify.ItemCreated, after, before)
	if removed > 0 || created > 0 {
		e.logger.Info("snapshot rebuild changed entity set", "removed", removed, "created", created)
	}
}
