package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// CursorKey is the artifact that marks a namespace as a session.
const CursorKey = "cursor"

// Instance is one workflow run hosted by the Manager.
type Instance interface {
	ports.Workflow
	Restore(ctx context.Context) (*domain.Result, error)
	Status() domain.Status
	Current() map[string]any
	Pending() string
}

// Factory builds a fresh instance for a session whose artifacts live in
// store.
type Factory func(sessionID string, store ports.ArtifactStore) (Instance, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store   ports.ArtifactStore
	factory Factory

	mu    sync.Mutex
	locks map[string]*lockEntry

	instances *gocache.Cache
	locker    ports.DistributedLocker
	lockTTL   time.Duration
	logger    *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock outlives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithIdleTTL sets how long an untouched instance stays in memory.
// Evicted instances are rebuilt from the store on next access.
func WithIdleTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.instances = gocache.New(ttl, ttl)
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager persisting into store.
func NewManager(store ports.ArtifactStore, factory Factory, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		factory:   factory,
		locks:     make(map[string]*lockEntry),
		instances: gocache.New(30*time.Minute, 10*time.Minute),
		lockTTL:   30 * time.Second,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Start creates a session and runs it until it suspends or finishes. An
// empty sessionID gets a random one. Starting an existing session restarts
// its run.
func (m *Manager) Start(ctx context.Context, sessionID string, initial map[string]any) (string, *domain.Result, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	var res *domain.Result
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		inst, err := m.factory(sessionID, ports.Namespace(m.store, sessionID))
		if err != nil {
			return err
		}
		m.instances.Set(sessionID, inst, gocache.DefaultExpiration)
		res, err = inst.Run(ctx, initial)
		return err
	})
	return sessionID, res, err
}

// Resume feeds input to a suspended session.
func (m *Manager) Resume(ctx context.Context, sessionID, input string) (*domain.Result, error) {
	var res *domain.Result
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		inst, err := m.instance(ctx, sessionID)
		if err != nil {
			return err
		}
		res, err = inst.Resume(ctx, input)
		return err
	})
	return res, err
}

// Get reports where a session stands without driving it.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Result, error) {
	var res *domain.Result
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		inst, err := m.instance(ctx, sessionID)
		if err != nil {
			return err
		}
		res = &domain.Result{
			Status:  inst.Status(),
			Values:  inst.Current(),
			Pending: inst.Pending(),
		}
		return nil
	})
	return res, err
}

// Delete drops the session and every artifact it wrote.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		m.instances.Delete(sessionID)
		ns := ports.Namespace(m.store, sessionID)
		keys, err := ns.List(ctx, "")
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := ns.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// List returns the IDs of every persisted session.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	keys, err := m.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, key := range keys {
		if id, ok := strings.CutSuffix(key, "/"+CursorKey); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Cached reports how many instances are held in memory.
func (m *Manager) Cached() int {
	return m.instances.ItemCount()
}

// instance returns the live instance of a session, rebuilding it from the
// store when it is not cached. Must be called under the session lock.
func (m *Manager) instance(ctx context.Context, sessionID string) (Instance, error) {
	if v, ok := m.instances.Get(sessionID); ok {
		m.instances.Set(sessionID, v, gocache.DefaultExpiration)
		return v.(Instance), nil
	}

	inst, err := m.factory(sessionID, ports.Namespace(m.store, sessionID))
	if err != nil {
		return nil, err
	}
	if _, err := inst.Restore(ctx); err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("restore session %s: %w", sessionID, err)
	}
	m.logger.Debug("session rehydrated", "session_id", sessionID)
	m.instances.Set(sessionID, inst, gocache.DefaultExpiration)
	return inst, nil
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
		// another replica may have moved the session on
		m.instances.Delete(sessionID)
	}

	return fn(ctx)
}
