package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/benjaminschubert/cacheproxy/internal/database"
	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

type SnapshotDatabase = database.Database[StoredResponse, *StoredResponse]

// Cache keys are request bodies, of arbitrary size, so they are hashed to
// get a database key.
func storageKey(key string) string {
	hash := blake3.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Snapshot makes db hold exactly the entries currently cached. Entries that
// are already stored unchanged are not rewritten, and stored entries that
// are no longer cached are deleted. Entries whose lock is unusable are
// skipped.
func (c *Cache) Snapshot(ctx context.Context, db *SnapshotDatabase) (int, error) {
	stored := make(map[string]StoredResponse)

	c.lock.RLock()
	if c.unusable {
		c.lock.RUnlock()
		return 0, ErrLockUnusable
	}
	for key, entry := range c.entries {
		err := entry.View(func(resp *wire.Response) error {
			stored[storageKey(key)] = newStoredResponse(key, resp)
			return nil
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("key", storageKey(key)).Msg("not saving unusable entry")
		}
	}
	c.lock.RUnlock()

	var stale []string
	err := db.Iterate(ctx, func(key string, _ *database.Entry[StoredResponse]) error {
		if _, ok := stored[key]; !ok {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("unable to list saved entries: %w", err)
	}

	for _, key := range stale {
		if err := db.Delete(key); err != nil {
			return 0, err
		}
	}

	for key, value := range stored {
		if err := saveEntry(db, key, value); err != nil {
			return 0, fmt.Errorf("unable to save entry: %w", err)
		}
	}
	return len(stored), nil
}

func saveEntry(db *SnapshotDatabase, key string, value StoredResponse) error {
	existing, err := db.Get(key)
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return db.New(key, value)
		}
		return err
	}

	if existing.Value.equal(value) {
		return nil
	}

	existing.Value = value
	return db.Save(key, existing)
}

// Restore inserts every entry from db that is not expired yet. Entries
// already present in the cache are kept.
func (c *Cache) Restore(ctx context.Context, db *SnapshotDatabase) (int, error) {
	now := c.now()
	restored := 0

	err := db.Iterate(ctx, func(_ string, value *database.Entry[StoredResponse]) error {
		resp := value.Value.toResponse()
		if date, ok := ResponseDate(resp); ok && now.Sub(date) >= TTL {
			return nil
		}

		_, inserted, err := c.InsertIfAbsent(value.Value.Key, resp)
		if err != nil {
			return err
		}
		if inserted {
			restored++
		}
		return nil
	})
	if err != nil {
		return restored, fmt.Errorf("unable to restore cache: %w", err)
	}
	return restored, nil
}
