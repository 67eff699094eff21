// Package cache holds the persisted story-list projection used for
// offline/instant list rendering. The cache is an optimization, not a source
// of truth: persistence failures are logged and swallowed, degrading the
// cache to in-memory-only rather than blocking the caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"story-client/internal/kvstore"
	"story-client/internal/models"

	"go.uber.org/zap"
)

const storageKey = "story_list"

// StoryCache is a mapping from story id to its LocalCacheEntry, serialized
// as an ordered sequence (insertion order = display order, most-recent-first).
// The reconciliation engine is its sole writer.
type StoryCache struct {
	store  kvstore.Store
	logger *zap.Logger

	mu      sync.RWMutex
	entries []models.LocalCacheEntry
	loaded  bool
}

// NewStoryCache creates a cache backed by the given store.
func NewStoryCache(store kvstore.Store, logger *zap.Logger) *StoryCache {
	return &StoryCache{
		store:  store,
		logger: logger.Named("StoryCache"),
	}
}

// Get returns a copy of the cached entries, most-recent-first.
func (c *StoryCache) Get(ctx context.Context) []models.LocalCacheEntry {
	c.mu.Lock()
	c.ensureLoaded(ctx)
	out := make([]models.LocalCacheEntry, len(c.entries))
	copy(out, c.entries)
	c.mu.Unlock()
	return out
}

// Upsert replaces the entry with the same id in place, preserving its
// position, or prepends a new one.
func (c *StoryCache) Upsert(ctx context.Context, entry models.LocalCacheEntry) {
	c.mu.Lock()
	c.ensureLoaded(ctx)
	replaced := false
	for i := range c.entries {
		if c.entries[i].ID == entry.ID {
			c.entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		// Новые истории показываются первыми
		c.entries = append([]models.LocalCacheEntry{entry}, c.entries...)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
}

// ReplaceAll atomically swaps the whole cache for the server-confirmed list.
// Readers either see the old list or the new one, never a mix.
func (c *StoryCache) ReplaceAll(ctx context.Context, entries []models.LocalCacheEntry) {
	fresh := make([]models.LocalCacheEntry, len(entries))
	copy(fresh, entries)

	c.mu.Lock()
	c.entries = fresh
	c.loaded = true
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
}

// PatchStatus updates only the status field of an existing entry; unknown
// ids are a no-op.
func (c *StoryCache) PatchStatus(ctx context.Context, id string, status models.JobStatus) {
	c.mu.Lock()
	c.ensureLoaded(ctx)
	patched := false
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries[i].Status = status
			patched = true
			break
		}
	}
	var snapshot []models.LocalCacheEntry
	if patched {
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()

	if patched {
		c.persist(ctx, snapshot)
	}
}

// Remove deletes an entry after an explicit user delete.
func (c *StoryCache) Remove(ctx context.Context, id string) {
	c.mu.Lock()
	c.ensureLoaded(ctx)
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
}

// ensureLoaded lazily hydrates the in-memory list from the store once.
// Must be called with c.mu held.
func (c *StoryCache) ensureLoaded(ctx context.Context) {
	if c.loaded {
		return
	}
	c.loaded = true

	raw, err := c.store.Get(ctx, storageKey)
	if err != nil {
		if !errors.Is(err, models.ErrKeyNotFound) {
			c.logger.Warn("Failed to load story cache, starting empty", zap.Error(err))
		}
		return
	}
	var entries []models.LocalCacheEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		// Испорченные данные не должны ломать список; начинаем с чистого
		c.logger.Warn("Failed to parse persisted story cache, starting empty", zap.Error(err))
		return
	}
	c.entries = entries
}

// snapshotLocked copies the current list for persistence outside the lock.
// Must be called with c.mu held.
func (c *StoryCache) snapshotLocked() []models.LocalCacheEntry {
	out := make([]models.LocalCacheEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// persist writes the list back to the store; failures degrade to
// in-memory-only for this operation.
func (c *StoryCache) persist(ctx context.Context, entries []models.LocalCacheEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.Error("Failed to marshal story cache", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, storageKey, string(data)); err != nil {
		c.logger.Warn("Failed to persist story cache, keeping in-memory copy", zap.Error(err))
	}
}
