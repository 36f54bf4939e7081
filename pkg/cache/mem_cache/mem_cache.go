package mem_cache

import (
	"sync/atomic"
	"time"

	"github.com/pmkol/tlesync/pkg/lru"
)

const (
	shardSize              = 16
	defaultCleanerInterval = time.Minute
)

// MemCache is an in-process cache.Backend.
type MemCache struct {
	closed           atomic.Bool
	closeCleanerChan chan struct{}
	lru              *lru.Sharded[*elem]
}

type elem struct {
	v      []byte
	expire int64 // unix nano
}

// NewMemCache returns a MemCache holding about size entries.
// A cleanerInterval <= 0 disables the background cleaner; expired
// entries are then only dropped on access or eviction.
func NewMemCache(size int, cleanerInterval time.Duration) *MemCache {
	sizePerShard := size / shardSize
	if sizePerShard < 16 {
		sizePerShard = 16
	}
	c := &MemCache{
		closeCleanerChan: make(chan struct{}),
		lru:              lru.NewSharded[*elem](shardSize, sizePerShard, nil),
	}
	if cleanerInterval > 0 {
		go c.startCleaner(cleanerInterval)
	}
	return c
}

func (c *MemCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.closeCleanerChan)
	}
	return nil
}

func (c *MemCache) Get(key string) ([]byte, bool) {
	if c.closed.Load() {
		return nil, false
	}
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().UnixNano() >= e.expire {
		c.lru.Del(key)
		return nil, false
	}
	return e.v, true
}

func (c *MemCache) Store(key string, v []byte, expire time.Time) {
	if c.closed.Load() || !time.Now().Before(expire) {
		return
	}
	buf := make([]byte, len(v))
	copy(buf, v)
	c.lru.Add(key, &elem{v: buf, expire: expire.UnixNano()})
}

func (c *MemCache) startCleaner(interval time.Duration) {
	if interval <= 0 {
		interval = defaultCleanerInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCleanerChan:
			return
		case <-ticker.C:
			now := time.Now().UnixNano()
			c.lru.Clean(func(_ string, e *elem) bool {
				return e.expire <= now
			})
		}
	}
}

func (c *MemCache) Len() int {
	return c.lru.Len()
}
