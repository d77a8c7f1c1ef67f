package alert

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Cooldown tracks the last emission time per alert key. Entries are stored
// without cache expiration because all timing uses the caller's clock.
type Cooldown struct {
	window time.Duration
	expiry time.Duration
	sent   *cache.Cache
}

// NewCooldown suppresses a key for window after each emission and forgets
// keys older than expiry on Purge.
func NewCooldown(window, expiry time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		expiry: expiry,
		sent:   cache.New(cache.NoExpiration, 0),
	}
}

// Allow reports whether key may fire at now and, if so, records the emission.
func (c *Cooldown) Allow(key string, now time.Time) bool {
	if v, ok := c.sent.Get(key); ok {
		if last := v.(time.Time); now.Sub(last) < c.window {
			return false
		}
	}
	c.sent.Set(key, now, cache.NoExpiration)
	return true
}

// Purge drops records older than the expiry and returns how many it dropped.
func (c *Cooldown) Purge(now time.Time) int {
	purged := 0
	for key, item := range c.sent.Items() {
		if last, ok := item.Object.(time.Time); ok && now.Sub(last) > c.expiry {
			c.sent.Delete(key)
			purged++
		}
	}
	return purged
}

// Len returns the number of tracked keys.
func (c *Cooldown) Len() int {
	return c.sent.ItemCount()
}
