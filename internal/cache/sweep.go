package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
)

type SweepResult struct {
	Examined int
	Evicted  int
}

// Sweep removes every entry whose Date header is TTL or more in the past.
// Entries without a parseable Date header are kept.
//
// Entries whose lock was left unusable are evicted too, and reported in the
// returned error.
func (c *Cache) Sweep(now time.Time) (SweepResult, error) {
	result := SweepResult{}
	var unusable []error

	err := c.withWriteLock(func() error {
		for key, entry := range c.entries {
			result.Examined++

			expired, err := entry.isExpired(now)
			if err != nil {
				unusable = append(unusable, fmt.Errorf("entry %q: %w", key, err))
				expired = true
			}

			if expired {
				delete(c.entries, key)
				result.Evicted++
			}
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}

	return result, errors.Join(unusable...)
}

// SweepExpired runs a sweep at the current time and logs its outcome.
func (c *Cache) SweepExpired(logId string) (SweepResult, error) {
	logger := c.logger.With().Str("id", logId).Str("component", "sweeper").Logger()

	start := c.now()
	result, err := c.Sweep(start)
	if result.Evicted > 0 {
		c.notifyEvictions(result.Evicted)
	}

	if err != nil {
		logger.Error().Err(err).Int("evicted", result.Evicted).Msg("unable to sweep the cache cleanly")
		return result, err
	}

	logger.Debug().
		Int("examined", result.Examined).
		Int("evicted", result.Evicted).
		Dur("duration", c.now().Sub(start)).
		Msg("Cache swept")
	return result, nil
}

// StartSweeper sweeps the cache every interval until Close is called.
func (c *Cache) StartSweeper(interval time.Duration) {
	c.stopSignal = make(chan struct{})
	c.stopWait.Add(1)
	go c.manageCache(interval, c.stopSignal)
}

func (c *Cache) manageCache(interval time.Duration, stop chan struct{}) {
	defer c.stopWait.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = c.SweepExpired(xid.New().String())
		case <-stop:
			return
		}
	}
}

func (c *Cache) Close() error {
	if c.stopSignal == nil {
		// Not started, or already stopped
		return nil
	}

	close(c.stopSignal)
	c.stopWait.Wait()
	c.stopSignal = nil
	return nil
}
