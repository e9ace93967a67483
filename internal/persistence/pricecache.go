package persistence

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/talgya/tycoon/internal/economy"
)

const defaultPriceCacheSize = 64

type cachedPrice struct {
	price     economy.MarketPrice
	timestamp time.Time
}

// PriceCache is a read-through cache of market rows with a short expiry.
// Writers remove the item so the next read goes to the database.
type PriceCache struct {
	cache  *lru.Cache
	expiry time.Duration
	now    func() time.Time
}

// NewPriceCache creates a cache holding up to size items for expiry. A zero
// expiry disables caching.
func NewPriceCache(size int, expiry time.Duration) (*PriceCache, error) {
	if size <= 0 {
		size = defaultPriceCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("price cache: %w", err)
	}
	return &PriceCache{cache: cache, expiry: expiry, now: time.Now}, nil
}

// Get returns a copy of a fresh entry.
func (c *PriceCache) Get(item economy.Item) (*economy.MarketPrice, bool) {
	if c.expiry <= 0 {
		return nil, false
	}
	v, ok := c.cache.Get(item)
	if !ok {
		return nil, false
	}
	entry, ok := v.(cachedPrice)
	if !ok || c.now().Sub(entry.timestamp) >= c.expiry {
		c.cache.Remove(item)
		return nil, false
	}
	p := entry.price
	p.History = append([]int64(nil), entry.price.History...)
	return &p, true
}

// Put stores a copy of p.
func (c *PriceCache) Put(p *economy.MarketPrice) {
	if c.expiry <= 0 {
		return
	}
	entry := cachedPrice{price: *p, timestamp: c.now()}
	entry.price.History = append([]int64(nil), p.History...)
	c.cache.Add(p.Item, entry)
}

// Invalidate drops an item.
func (c *PriceCache) Invalidate(item economy.Item) {
	c.cache.Remove(item)
}

// Purge drops everything.
func (c *PriceCache) Purge() {
	c.cache.Purge()
}
