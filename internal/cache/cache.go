// Package cache holds upstream responses shared by every connection.
//
// Two lock levels protect it: a map-level reader/writer lock, taken shared
// by lookups and exclusively by inserts and sweeps, and a lock per entry,
// held while a response is being read.
package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benjaminschubert/cacheproxy/internal/units"
	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

// TTL is the maximum age of an entry, computed from its Date header.
const TTL = 30 * time.Second

var ErrLockUnusable = errors.New("lock left unusable by a holder that terminated abnormally")

type Statistics struct {
	Entries int64
	Size    units.Bytes
}

type Cache struct {
	lock     sync.RWMutex
	unusable bool
	entries  map[string]*Entry

	logger          *zerolog.Logger
	notifyEvictions func(count int)
	now             func() time.Time
	stopSignal      chan struct{}
	stopWait        *sync.WaitGroup
}

func New(logger *zerolog.Logger, notifyEvictions func(count int)) *Cache {
	if notifyEvictions == nil {
		notifyEvictions = func(int) {}
	}

	return &Cache{
		entries:         make(map[string]*Entry),
		logger:          logger,
		notifyEvictions: notifyEvictions,
		now:             time.Now,
		stopWait:        &sync.WaitGroup{},
	}
}

// Lookup returns the entry stored under key, if any.
func (c *Cache) Lookup(key string) (*Entry, bool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.unusable {
		return nil, false, ErrLockUnusable
	}

	entry, ok := c.entries[key]
	return entry, ok, nil
}

// InsertIfAbsent stores resp under key unless an entry already exists, in
// which case resp is discarded and the existing entry returned. inserted
// reports which of the two happened.
func (c *Cache) InsertIfAbsent(key string, resp *wire.Response) (entry *Entry, inserted bool, err error) {
	err = c.withWriteLock(func() error {
		if existing, ok := c.entries[key]; ok {
			entry = existing
			return nil
		}

		entry = &Entry{response: resp}
		c.entries[key] = entry
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, inserted, nil
}

func (c *Cache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.entries)
}

func (c *Cache) GetStatistics() (Statistics, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.unusable {
		return Statistics{}, ErrLockUnusable
	}

	stats := Statistics{Entries: int64(len(c.entries))}
	for _, entry := range c.entries {
		err := entry.View(func(resp *wire.Response) error {
			stats.Size.Bytes += int64(resp.Size())
			return nil
		})
		if err != nil {
			return Statistics{}, err
		}
	}

	return stats, nil
}

// withWriteLock runs fn holding the map lock exclusively. If fn panics, the
// map is marked unusable for every later operation.
func (c *Cache) withWriteLock(fn func() error) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.unusable {
		return ErrLockUnusable
	}

	completed := false
	defer func() {
		if !completed {
			c.unusable = true
		}
	}()

	err := fn()
	completed = true
	return err
}
