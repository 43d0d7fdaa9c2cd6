package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/schema"
)

// recoveryDepth is how many recent snapshots Recover tries before it falls
// back to the checkpoint.
const recoveryDepth = 3

// Manager owns the versioned state of one workflow run: defaults, typed
// updates, a rolling window of snapshots and the artifacts persisted for
// them. It is safe for concurrent use.
type Manager struct {
	schema     *schema.Schema
	store      ports.ArtifactStore
	maxHistory int
	strict     bool
	persist    bool
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	history []*domain.Snapshot
	next    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxHistory caps the in-memory snapshot window. Values below 1 are
// ignored.
func WithMaxHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// WithStrict makes updates naming undeclared fields fail instead of being
// dropped with a warning.
func WithStrict(strict bool) Option {
	return func(m *Manager) {
		m.strict = strict
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPersistence toggles writing a state_<index> artifact per snapshot.
// Checkpoints and cursors are written regardless.
func WithPersistence(persist bool) Option {
	return func(m *Manager) {
		m.persist = persist
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a manager for the given schema. store may be nil, in which
// case nothing outlives the process.
func New(s *schema.Schema, store ports.ArtifactStore, opts ...Option) *Manager {
	m := &Manager{
		schema:     s,
		store:      store,
		maxHistory: domain.DefaultMaxHistory,
		persist:    true,
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaterializeDefaults returns a value map holding every declared field at
// its default.
func MaterializeDefaults(s *schema.Schema) map[string]any {
	return s.Defaults()
}

// Schema returns the schema the manager enforces.
func (m *Manager) Schema() *schema.Schema {
	return m.schema
}

// Initialize materializes defaults, applies initial values and records
// them as the first snapshot. Nil initial values keep the default.
func (m *Manager) Initialize(ctx context.Context, initial map[string]any) (*domain.Snapshot, error) {
	values := MaterializeDefaults(m.schema)

	partial := make(map[string]any, len(initial))
	for k, v := range initial {
		if v != nil {
			partial[k] = v
		}
	}
	values, err := m.Update(values, partial)
	if err != nil {
		return nil, err
	}
	return m.Snapshot(ctx, "", values)
}

// Update applies a partial update to current and returns the new values.
// Undeclared fields are dropped with a warning, or rejected with
// domain.ErrUnknownField in strict mode. Map values merge recursively into
// existing maps. Every touched field is type checked against the merged
// result; on any mismatch nothing is applied and a *domain.TypeMismatchError
// is returned. current is never modified.
func (m *Manager) Update(current, partial map[string]any) (map[string]any, error) {
	var unknown []string
	for k := range partial {
		if !m.schema.Has(k) {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	if len(unknown) > 0 {
		if m.strict {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnknownField, unknown)
		}
		m.logger.Warn("ignoring undeclared fields in update", "fields", unknown)
	}

	next := domain.CloneValues(current)
	if next == nil {
		next = make(map[string]any, len(partial))
	}
	touched := make([]string, 0, len(partial))
	for k, v := range partial {
		if !m.schema.Has(k) {
			continue
		}
		existing, isMap := next[k].(map[string]any)
		update, updateIsMap := v.(map[string]any)
		if isMap && updateIsMap {
			next[k] = mergeNested(existing, update)
		} else {
			next[k] = domain.CloneValue(v)
		}
		touched = append(touched, k)
	}
	sort.Strings(touched)

	if err := schema.ValidateFields(m.schema, next, touched...); err != nil {
		return nil, &domain.TypeMismatchError{Fields: schema.FieldNames(err), Err: err}
	}
	normalized, err := m.schema.Normalize(next)
	if err != nil {
		return nil, &domain.TypeMismatchError{Fields: schema.FieldNames(err), Err: err}
	}
	return normalized, nil
}

// mergeNested merges update into a copy of current, recursing where both
// sides hold maps.
func mergeNested(current, update map[string]any) map[string]any {
	out := domain.CloneValues(current)
	for k, v := range update {
		existing, isMap := out[k].(map[string]any)
		nested, nestedIsMap := v.(map[string]any)
		if isMap && nestedIsMap {
			out[k] = mergeNested(existing, nested)
			continue
		}
		out[k] = domain.CloneValue(v)
	}
	return out
}

// ApplyInput merges external input into current: human_input is set and a
// user message is appended to messages and conversation when those fields
// are declared.
func (m *Manager) ApplyInput(current map[string]any, text string) (map[string]any, error) {
	partial := make(map[string]any, 3)
	if m.schema.Has("human_input") {
		partial["human_input"] = text
	}
	message := map[string]any{"role": "user", "content": text}
	for _, field := range []string{"messages", "conversation"} {
		if !m.schema.Has(field) {
			continue
		}
		list, _ := current[field].([]any)
		appended := make([]any, len(list), len(list)+1)
		copy(appended, list)
		partial[field] = append(appended, message)
	}
	return m.Update(current, partial)
}

// Snapshot records values as the next snapshot, attributed to node, and
// writes its artifact when persistence is on. The write is synchronous.
func (m *Manager) Snapshot(ctx context.Context, node string, values map[string]any) (*domain.Snapshot, error) {
	m.mu.Lock()
	snap := &domain.Snapshot{
		Index:     m.next,
		Node:      node,
		Values:    domain.CloneValues(values),
		CreatedAt: m.now(),
	}
	m.next++
	m.history = append(m.history, snap)
	if over := len(m.history) - m.maxHistory; over > 0 {
		m.history = append([]*domain.Snapshot(nil), m.history[over:]...)
	}
	m.mu.Unlock()

	if m.persist && m.store != nil {
		if err := m.write(ctx, snapshotKey(snap.Index), snap.Values); err != nil {
			return snap, fmt.Errorf("persist snapshot %d: %w", snap.Index, err)
		}
	}
	m.logger.Debug("state snapshot", "index", snap.Index, "node", node)
	return snap, nil
}

// Checkpoint overwrites the single checkpoint artifact with snap.
func (m *Manager) Checkpoint(ctx context.Context, snap *domain.Snapshot) error {
	if m.store == nil || snap == nil {
		return nil
	}
	if err := m.write(ctx, CheckpointKey, snap.Values); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	m.logger.Debug("state checkpoint", "index", snap.Index)
	return nil
}

// Latest returns the newest snapshot, or nil before Initialize.
func (m *Manager) Latest() *domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return nil
	}
	return m.history[len(m.history)-1]
}

// History returns the in-memory snapshots, oldest first.
func (m *Manager) History() []*domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

// NextIndex is the index the next snapshot will get.
func (m *Manager) NextIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

// Load returns the snapshot with the given index, from memory when it is
// still in the window and from its artifact otherwise. Every declared
// field must be present.
func (m *Manager) Load(ctx context.Context, index int) (*domain.Snapshot, error) {
	m.mu.Lock()
	for _, s := range m.history {
		if s.Index == index {
			m.mu.Unlock()
			if err := m.conforms(s.Values); err != nil {
				return nil, fmt.Errorf("snapshot %d: %w", index, err)
			}
			return s, nil
		}
	}
	m.mu.Unlock()

	if m.store == nil {
		return nil, fmt.Errorf("snapshot %d: %w", index, domain.ErrArtifactNotFound)
	}
	values, err := m.read(ctx, snapshotKey(index))
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", index, err)
	}
	return &domain.Snapshot{Index: index, Values: values}, nil
}

// LoadCheckpoint reads the checkpoint artifact.
func (m *Manager) LoadCheckpoint(ctx context.Context) (map[string]any, error) {
	if m.store == nil {
		return nil, fmt.Errorf("checkpoint: %w", domain.ErrArtifactNotFound)
	}
	values, err := m.read(ctx, CheckpointKey)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return values, nil
}

// Resume re-seeds the manager from persisted state: values become the
// newest snapshot, continuing the numbering after lastIndex. Used when a
// suspended run is rebuilt in a new process.
func (m *Manager) Resume(node string, lastIndex int, values map[string]any) *domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &domain.Snapshot{
		Index:     lastIndex,
		Node:      node,
		Values:    domain.CloneValues(values),
		CreatedAt: m.now(),
	}
	m.history = []*domain.Snapshot{snap}
	m.next = lastIndex + 1
	return snap
}

// Recover returns the newest state that satisfies the schema, trying the
// last few in-memory snapshots before the checkpoint. The recovered values
// are recorded again as a new snapshot, even when its artifact cannot be
// written. When nothing qualifies the error is a
// *domain.RecoveryExhaustedError.
func (m *Manager) Recover(ctx context.Context) (*domain.Snapshot, error) {
	var tried []string
	var lastErr error

	history := m.History()
	for i := len(history) - 1; i >= 0 && i >= len(history)-recoveryDepth; i-- {
		s := history[i]
		tried = append(tried, snapshotKey(s.Index))
		if err := m.conforms(s.Values); err != nil {
			lastErr = err
			continue
		}
		m.logger.Info("recovered state from history", "index", s.Index)
		return m.rerecord(ctx, s.Node, s.Values), nil
	}

	tried = append(tried, CheckpointKey)
	values, err := m.LoadCheckpoint(ctx)
	if err == nil {
		m.logger.Info("recovered state from checkpoint")
		return m.rerecord(ctx, "", values), nil
	}
	lastErr = err
	return nil, &domain.RecoveryExhaustedError{Tried: tried, Err: lastErr}
}

// rerecord appends recovered values to the history. A failed artifact
// write is logged only: the values are already valid and held in memory.
func (m *Manager) rerecord(ctx context.Context, node string, values map[string]any) *domain.Snapshot {
	snap, err := m.Snapshot(ctx, node, values)
	if err != nil {
		m.logger.Warn("recovered state not persisted", "index", snap.Index, "error", err)
	}
	return snap
}

func (m *Manager) conforms(values map[string]any) error {
	if values == nil {
		return fmt.Errorf("no values")
	}
	return schema.Validate(m.schema, values)
}
