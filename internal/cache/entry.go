package cache

import (
	"net/http"
	"sync"
	"time"

	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

// Entry is a cached response. It is never mutated once stored, and stays
// valid for its holders after being evicted from the cache.
type Entry struct {
	lock     sync.Mutex
	unusable bool
	response *wire.Response
}

// View calls fn with the stored response while holding the entry lock.
// fn must not modify the response.
//
// If a previous holder panicked while holding the lock, the entry is
// considered corrupted and ErrLockUnusable is returned without calling fn.
func (e *Entry) View(fn func(resp *wire.Response) error) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.unusable {
		return ErrLockUnusable
	}

	completed := false
	defer func() {
		if !completed {
			e.unusable = true
		}
	}()

	err := fn(e.response)
	completed = true
	return err
}

// Response returns a copy of the stored response.
func (e *Entry) Response() (*wire.Response, error) {
	var resp *wire.Response
	err := e.View(func(r *wire.Response) error {
		resp = r.Clone()
		return nil
	})
	return resp, err
}

func (e *Entry) isExpired(now time.Time) (bool, error) {
	expired := false
	err := e.View(func(resp *wire.Response) error {
		if date, ok := ResponseDate(resp); ok {
			expired = now.Sub(date) >= TTL
		}
		return nil
	})
	return expired, err
}

// ResponseDate returns the first parseable Date header of resp.
func ResponseDate(resp *wire.Response) (time.Time, bool) {
	for _, value := range resp.Headers.Values("Date") {
		if date, err := http.ParseTime(value); err == nil {
			return date, true
		}
		if date, err := time.Parse(time.RFC1123Z, value); err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}
