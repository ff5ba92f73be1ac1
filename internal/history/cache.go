// Package history keeps the most recent successful generations, newest first,
// mirrored to a storage.Store under a single key.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"aistudio/internal/domain"
	"aistudio/internal/storage"
)

const (
	// Capacity is the maximum number of entries retained.
	Capacity = 5
	// DefaultKey is the storage key used when none is configured.
	DefaultKey = "ai-studio:history"
)

// Cache is safe for concurrent use.
type Cache struct {
	store    storage.Store
	key      string
	capacity int
	logger   zerolog.Logger

	// writeMu orders persistence so the stored value always matches the
	// latest in-memory collection.
	writeMu sync.Mutex
	mu      sync.RWMutex
	entries []domain.HistoryEntry
}

// New builds a Cache and hydrates it from store. A missing key or a corrupt
// value yields an empty cache; neither is an error.
func New(ctx context.Context, store storage.Store, key string, logger zerolog.Logger) *Cache {
	if key == "" {
		key = DefaultKey
	}
	c := &Cache{
		store:    store,
		key:      key,
		capacity: Capacity,
		logger:   logger.With().Str("component", "history").Str("key", key).Logger(),
	}
	c.entries = c.hydrate(ctx)
	return c
}

func (c *Cache) hydrate(ctx context.Context) []domain.HistoryEntry {
	if c.store == nil {
		return nil
	}
	raw, err := c.store.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn().Err(err).Msg("history load failed; starting empty")
		}
		return nil
	}
	var entries []domain.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.logger.Warn().Err(err).Msg("stored history is corrupt; starting empty")
		return nil
	}
	if len(entries) > c.capacity {
		entries = entries[:c.capacity]
	}
	return entries
}

// Record prepends entry, evicts the oldest beyond capacity and persists the
// whole collection.
func (c *Cache) Record(ctx context.Context, entry domain.HistoryEntry) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	next := make([]domain.HistoryEntry, 0, c.capacity)
	next = append(next, entry)
	next = append(next, c.entries...)
	if len(next) > c.capacity {
		next = next[:c.capacity]
	}
	c.entries = next
	snapshot := c.copyLocked()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
}

// Entries returns a copy of the entries, newest first.
func (c *Cache) Entries() []domain.HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyLocked()
}

// Find looks up an entry by id.
func (c *Cache) Find(id string) (domain.HistoryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.ID == id {
			return e, true
		}
	}
	return domain.HistoryEntry{}, false
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry and removes the stored key.
func (c *Cache) Clear(ctx context.Context) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, c.key); err != nil {
		c.logger.Error().Err(err).Msg("history clear failed")
	}
}

// Restore maps an entry back onto the generation form.
func (c *Cache) Restore(entry domain.HistoryEntry) domain.FormState {
	return domain.FormState{
		ImageDataURL: entry.ImageURL,
		Prompt:       entry.Prompt,
		Style:        entry.Style,
	}
}

func (c *Cache) persist(ctx context.Context, entries []domain.HistoryEntry) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		c.logger.Error().Err(err).Msg("history encode failed")
		return
	}
	if err := c.store.Put(ctx, c.key, raw); err != nil {
		c.logger.Error().Err(err).Msg("history persist failed")
	}
}

func (c *Cache) copyLocked() []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
