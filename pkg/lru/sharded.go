package lru

import (
	"hash/maphash"
	"sync"
)

// Sharded spreads string keys over a power-of-two number of mutex
// guarded LRUs. It is safe for concurrent use.
type Sharded[V any] struct {
	seed   maphash.Seed
	shards []*shard[V]
	mask   uint64
}

type shard[V any] struct {
	sync.Mutex
	lru *LRU[string, V]
}

func NewSharded[V any](shardNum, maxSizePerShard int, onEvict func(key string, v V)) *Sharded[V] {
	if shardNum <= 0 || shardNum&(shardNum-1) != 0 {
		panic("lru: shardNum must be a power of 2 and > 0")
	}

	s := &Sharded[V]{
		seed:   maphash.MakeSeed(),
		shards: make([]*shard[V], shardNum),
		mask:   uint64(shardNum - 1),
	}
	for i := range s.shards {
		s.shards[i] = &shard[V]{lru: New[string, V](maxSizePerShard, onEvict)}
	}
	return s
}

func (s *Sharded[V]) getShard(key string) *shard[V] {
	return s.shards[maphash.String(s.seed, key)&s.mask]
}

func (s *Sharded[V]) Add(key string, v V) {
	sh := s.getShard(key)
	sh.Lock()
	sh.lru.Add(key, v)
	sh.Unlock()
}

func (s *Sharded[V]) Del(key string) {
	sh := s.getShard(key)
	sh.Lock()
	sh.lru.Del(key)
	sh.Unlock()
}

func (s *Sharded[V]) Get(key string) (v V, ok bool) {
	sh := s.getShard(key)
	sh.Lock()
	v, ok = sh.lru.Get(key)
	sh.Unlock()
	return
}

func (s *Sharded[V]) Clean(f func(key string, v V) bool) (removed int) {
	for _, sh := range s.shards {
		sh.Lock()
		removed += sh.lru.Clean(f)
		sh.Unlock()
	}
	return
}

func (s *Sharded[V]) Len() (n int) {
	for _, sh := range s.shards {
		sh.Lock()
		n += sh.lru.Len()
		sh.Unlock()
	}
	return
}
