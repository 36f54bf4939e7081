package cache

import (
	"io"
	"time"
)

// Backend is an expiring key-value store.
type Backend interface {
	// Get returns the value stored under key.
	// ok is false if key was never stored or has expired.
	// The returned slice must not be modified.
	Get(key string) (v []byte, ok bool)

	// Store keeps a copy of v under key until expire.
	// Values whose expire is not in the future are dropped.
	Store(key string, v []byte, expire time.Time)

	Len() int

	io.Closer
}
