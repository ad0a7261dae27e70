package workbooks

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinodismyname/kpibrief/config"
)

// ErrHandleNotFound indicates an unknown or expired dataset ID.
var ErrHandleNotFound = errors.New("workbooks: handle not found")

// Handle is a cached dataset with TTL metadata.
type Handle struct {
	ID        string
	Dataset   *Dataset
	LoadedAt  time.Time
	ExpiresAt time.Time
	key       string
}

// Cache keeps loaded datasets in memory so repeated tool calls on the same
// file skip the parse. Entries expire after an idle TTL and are dropped when
// the file's modification time changes.
type Cache struct {
	mu           sync.RWMutex
	handles      map[string]*Handle
	byKey        map[string]string
	loader       *Loader
	ttl          time.Duration
	cleanupEvery time.Duration
	clock        func() time.Time
	stopCh       chan struct{}
	cleanupWG    sync.WaitGroup
}

// NewCache constructs a cache in front of loader.
// Pass ttl or cleanupEvery <= 0 to use defaults from config; clock defaults to time.Now.
func NewCache(loader *Loader, ttl, cleanupEvery time.Duration, clock func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = config.DefaultFrameIdleTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = config.DefaultFrameCleanupPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		handles:      make(map[string]*Handle),
		byKey:        make(map[string]string),
		loader:       loader,
		ttl:          ttl,
		cleanupEvery: cleanupEvery,
		clock:        clock,
		stopCh:       make(chan struct{}),
	}
}

// Start launches periodic eviction of expired entries.
func (c *Cache) Start() {
	c.cleanupWG.Add(1)
	ticker := time.NewTicker(c.cleanupEvery)
	go func() {
		defer c.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.EvictExpired()
			}
		}
	}()
}

// Close stops background cleanup and drops every entry.
func (c *Cache) Close(ctx context.Context) error {
	close(c.stopCh)
	done := make(chan struct{})
	go func() { c.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = make(map[string]*Handle)
	c.byKey = make(map[string]string)
	return nil
}

// Open returns a cached dataset for path and sheet, loading it when absent or
// stale. The returned handle's TTL is refreshed.
func (c *Cache) Open(ctx context.Context, path, sheet string) (*Handle, error) {
	canonical, err := c.loader.Canonical(path)
	if err != nil {
		return nil, err
	}
	key := canonical + "\x00" + strings.TrimSpace(sheet)

	c.mu.RLock()
	id, ok := c.byKey[key]
	var h *Handle
	if ok {
		h = c.handles[id]
	}
	c.mu.RUnlock()

	if h != nil && !c.stale(h) {
		c.touch(h)
		return h, nil
	}
	if h != nil {
		c.Evict(h.ID)
	}

	ds, err := c.loader.Load(ctx, canonical, sheet)
	if err != nil {
		return nil, err
	}
	now := c.clock()
	h = &Handle{
		ID:        uuid.NewString(),
		Dataset:   ds,
		LoadedAt:  now,
		ExpiresAt: now.Add(c.ttl),
		key:       key,
	}

	c.mu.Lock()
	c.handles[h.ID] = h
	c.byKey[key] = h.ID
	c.mu.Unlock()
	return h, nil
}

// Get returns the handle when present and refreshes its TTL.
func (c *Cache) Get(id string) (*Handle, bool) {
	c.mu.RLock()
	h, ok := c.handles[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c.touch(h)
	return h, true
}

// Evict removes a handle by ID.
func (c *Cache) Evict(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	if !ok {
		return ErrHandleNotFound
	}
	delete(c.handles, id)
	if c.byKey[h.key] == id {
		delete(c.byKey, h.key)
	}
	return nil
}

// EvictExpired drops entries whose idle TTL has passed.
func (c *Cache) EvictExpired() {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, h := range c.handles {
		if now.After(h.ExpiresAt) {
			delete(c.handles, id)
			if c.byKey[h.key] == id {
				delete(c.byKey, h.key)
			}
		}
	}
}

// Count returns the current number of cached datasets.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

func (c *Cache) touch(h *Handle) {
	c.mu.Lock()
	h.ExpiresAt = c.clock().Add(c.ttl)
	c.mu.Unlock()
}

func (c *Cache) stale(h *Handle) bool {
	info, err := os.Stat(h.Dataset.Path)
	if err != nil {
		return true
	}
	return !info.ModTime().Equal(h.Dataset.ModTime)
}
