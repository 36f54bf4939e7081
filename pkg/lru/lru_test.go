package lru

import (
	"strconv"
	"sync"
	"testing"
)

func TestLRU(t *testing.T) {
	var evicted []int
	q := New[int, string](3, func(key int, _ string) { evicted = append(evicted, key) })

	q.Add(1, "a")
	q.Add(2, "b")
	q.Add(3, "c")
	if _, ok := q.Get(1); !ok { // 1 becomes the newest
		t.Fatal("missing key 1")
	}
	q.Add(4, "d")

	if _, ok := q.Get(2); ok {
		t.Fatal("key 2 should have been evicted")
	}
	if len(evicted) != 1 || evicted[0] != 2 {
		t.Fatalf("unexpected evictions %v", evicted)
	}

	q.Add(3, "c2")
	if v, _ := q.Get(3); v != "c2" {
		t.Fatalf("want c2, got %s", v)
	}

	q.Del(1)
	if q.Len() != 2 {
		t.Fatalf("want len 2, got %d", q.Len())
	}

	removed := q.Clean(func(key int, _ string) bool { return key == 4 })
	if removed != 1 || q.Len() != 1 {
		t.Fatalf("clean removed %d, len %d", removed, q.Len())
	}
}

func TestSharded(t *testing.T) {
	s := NewSharded[int](4, 16, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 256; i++ {
				k := strconv.Itoa(i)
				s.Add(k, i)
				s.Get(k)
			}
		}()
	}
	wg.Wait()

	if n := s.Len(); n > 4*16 {
		t.Fatalf("sharded lru overflow: %d", n)
	}
	s.Clean(func(string, int) bool { return true })
	if s.Len() != 0 {
		t.Fatal("clean left entries behind")
	}
}
