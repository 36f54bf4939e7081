package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
)

const (
	keyPrefix = "tle:"

	// SatcatKey holds the cached satellite catalog listing.
	SatcatKey = keyPrefix + "satcat"
)

// ResultCache stores query results as snappy compressed JSON in a Backend.
// A ResultCache without a backend (or a nil *ResultCache) is disabled:
// Get always misses and Set does nothing.
type ResultCache struct {
	backend Backend
}

// NewResultCache wraps b. A nil b disables caching.
func NewResultCache(b Backend) *ResultCache {
	return &ResultCache{backend: b}
}

func (c *ResultCache) Enabled() bool {
	return c != nil && c.backend != nil
}

// Get decodes the value stored under key into v. It reports whether
// a live value was found and decoded.
func (c *ResultCache) Get(key string, v any) bool {
	if !c.Enabled() {
		return false
	}
	b, ok := c.backend.Get(key)
	if !ok {
		return false
	}
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Set stores v under key for ttl.
func (c *ResultCache) Set(key string, v any, ttl time.Duration) error {
	if !c.Enabled() || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	c.backend.Store(key, snappy.Encode(nil, raw), time.Now().Add(ttl))
	return nil
}

func (c *ResultCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.backend.Close()
}

// Key derives the cache key of a query over ids and [start, end].
// The order of ids does not matter.
func Key(ids []int, start, end time.Time) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	var sb strings.Builder
	sb.WriteString("ids=")
	for i, id := range sorted {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(id))
	}
	fmt.Fprintf(&sb, ";start=%d;end=%d", start.Unix(), end.Unix())

	sum := sha1.Sum([]byte(sb.String()))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// RangeKey derives the cache key of a query over the id range [minID, maxID].
func RangeKey(minID, maxID int, start, end time.Time) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("range=%d--%d;start=%d;end=%d", minID, maxID, start.Unix(), end.Unix())))
	return keyPrefix + hex.EncodeToString(sum[:])
}
