package lru

import (
	"container/list"
	"fmt"
)

// LRU is a size bounded least-recently-used map. It is not safe for
// concurrent use, see Sharded.
type LRU[K comparable, V any] struct {
	maxSize int
	onEvict func(key K, v V)

	l *list.List
	m map[K]*list.Element
}

type entry[K comparable, V any] struct {
	key K
	v   V
}

func New[K comparable, V any](maxSize int, onEvict func(key K, v V)) *LRU[K, V] {
	if maxSize <= 0 {
		panic(fmt.Sprintf("lru: invalid max size: %d", maxSize))
	}
	return &LRU[K, V]{
		maxSize: maxSize,
		onEvict: onEvict,
		l:       list.New(),
		m:       make(map[K]*list.Element),
	}
}

// Add inserts or replaces key. The oldest entry is evicted when full.
func (q *LRU[K, V]) Add(key K, v V) {
	if e, ok := q.m[key]; ok {
		e.Value.(*entry[K, V]).v = v
		q.l.MoveToBack(e)
		return
	}

	if q.l.Len() >= q.maxSize {
		q.delElem(q.l.Front())
	}
	q.m[key] = q.l.PushBack(&entry[K, V]{key: key, v: v})
}

func (q *LRU[K, V]) Get(key K) (v V, ok bool) {
	e, ok := q.m[key]
	if !ok {
		return
	}
	q.l.MoveToBack(e)
	return e.Value.(*entry[K, V]).v, true
}

func (q *LRU[K, V]) Del(key K) {
	if e, ok := q.m[key]; ok {
		q.delElem(e)
	}
}

// Clean removes every entry for which f returns true.
func (q *LRU[K, V]) Clean(f func(key K, v V) bool) (removed int) {
	for e := q.l.Front(); e != nil; {
		next := e.Next()
		en := e.Value.(*entry[K, V])
		if f(en.key, en.v) {
			q.delElem(e)
			removed++
		}
		e = next
	}
	return
}

func (q *LRU[K, V]) Len() int {
	return q.l.Len()
}

func (q *LRU[K, V]) delElem(e *list.Element) {
	en := q.l.Remove(e).(*entry[K, V])
	delete(q.m, en.key)
	if q.onEvict != nil {
		q.onEvict(en.key, en.v)
	}
}
