package database

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-bricks-sqlflow/config"
	"github.com/gaborage/go-bricks-sqlflow/logger"
)

// ConfigStore provides per-key database configurations. Single-database
// applications use the key "".
type ConfigStore interface {
	DBConfig(ctx context.Context, key string) (*config.DatabaseConfig, error)
}

// PoolFactory opens the pool for one database configuration.
type PoolFactory func(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	MaxSize int           // Maximum number of pools kept open (default 100)
	IdleTTL time.Duration // Pools unused for longer are closed by the cleanup loop (default 30m)
}

// Manager keeps one Pool per key. Pools are opened lazily, evicted least
// recently used first and closed after sitting idle.
type Manager struct {
	log     logger.Logger
	store   ConfigStore
	factory PoolFactory

	mu    sync.Mutex
	pools map[string]*poolEntry
	lru   *list.List

	maxSize int
	idleTTL time.Duration

	cleanupMu sync.Mutex
	cleanupCh chan struct{}

	sfg singleflight.Group
}

type poolEntry struct {
	pool     *Pool
	element  *list.Element
	lastUsed time.Time
}

// NewManager creates a Manager. A nil factory opens pools with OpenPool,
// using base for everything but the database section.
func NewManager(store ConfigStore, base *config.Config, log logger.Logger, opts ManagerOptions, factory PoolFactory) *Manager {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	log = logger.OrNop(log)

	if factory == nil {
		factory = func(ctx context.Context, dbCfg *config.DatabaseConfig) (*Pool, error) {
			var cfg config.Config
			if base != nil {
				cfg = *base
			}
			cfg.Database = *dbCfg
			return OpenPool(ctx, &cfg, log)
		}
	}

	return &Manager{
		log:     log,
		store:   store,
		factory: factory,
		pools:   make(map[string]*poolEntry),
		lru:     list.New(),
		maxSize: opts.MaxSize,
		idleTTL: opts.IdleTTL,
	}
}

// Get returns the pool for key, opening it on first use. Concurrent first
// calls for the same key open the pool once.
func (m *Manager) Get(ctx context.Context, key string) (*Pool, error) {
	if pool := m.getExisting(key); pool != nil {
		return pool, nil
	}

	result, err, _ := m.sfg.Do(key, func() (any, error) {
		if pool := m.getExisting(key); pool != nil {
			return pool, nil
		}
		return m.open(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Pool), nil
}

func (m *Manager) getExisting(key string) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.pools[key]
	if !ok {
		return nil
	}
	entry.lastUsed = time.Now()
	m.lru.MoveToFront(entry.element)
	return entry.pool
}

func (m *Manager) open(ctx context.Context, key string) (*Pool, error) {
	dbCfg, err := m.store.DBConfig(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get database config for key %s: %w", key, err)
	}

	pool, err := m.factory(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool for key %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictIfNeeded()
	m.pools[key] = &poolEntry{
		pool:     pool,
		element:  m.lru.PushFront(key),
		lastUsed: time.Now(),
	}

	m.log.Info().
		Str("key", key).
		Str("db_type", dbCfg.Type).
		Msg("Opened database pool")

	return pool, nil
}

// evictIfNeeded closes the least recently used pool when at capacity.
// Callers hold m.mu.
func (m *Manager) evictIfNeeded() {
	if len(m.pools) < m.maxSize {
		return
	}
	oldest := m.lru.Back()
	if oldest == nil {
		return
	}
	key := oldest.Value.(string)
	m.remove(key)

	m.log.Debug().
		Str("key", key).
		Msg("Evicted database pool due to LRU limit")
}

// remove closes and forgets the pool for key. Callers hold m.mu.
func (m *Manager) remove(key string) {
	entry := m.pools[key]
	if err := entry.pool.Close(); err != nil {
		m.log.Error().
			Err(err).
			Str("key", key).
			Msg("Error closing database pool")
	}
	delete(m.pools, key)
	m.lru.Remove(entry.element)
}

// StartCleanup starts closing idle pools every interval (default 5m).
func (m *Manager) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	m.cleanupMu.Lock()
	if m.cleanupCh != nil {
		m.cleanupMu.Unlock()
		return
	}
	done := make(chan struct{})
	m.cleanupCh = done
	m.cleanupMu.Unlock()

	go m.cleanupLoop(interval, done)
}

// StopCleanup stops the cleanup loop.
func (m *Manager) StopCleanup() {
	m.cleanupMu.Lock()
	defer m.cleanupMu.Unlock()
	if m.cleanupCh == nil {
		return
	}
	close(m.cleanupCh)
	m.cleanupCh = nil
}

func (m *Manager) cleanupLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupIdle()
		case <-done:
			return
		}
	}
}

func (m *Manager) cleanupIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, entry := range m.pools {
		if idle := now.Sub(entry.lastUsed); idle > m.idleTTL {
			m.remove(key)
			m.log.Debug().
				Str("key", key).
				Dur("idle_time", idle).
				Msg("Closed idle database pool")
		}
	}
}

// Close stops the cleanup loop and closes every pool.
func (m *Manager) Close() error {
	m.StopCleanup()

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, entry := range m.pools {
		if err := entry.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing pool for key %s: %w", key, err))
		}
	}
	m.pools = make(map[string]*poolEntry)
	m.lru.Init()

	return errors.Join(errs...)
}

// Size returns the number of open pools.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}
