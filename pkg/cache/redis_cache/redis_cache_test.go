package redis_cache

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func Test_packRedisData(t *testing.T) {
	expire := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	v := []byte("payload")

	gotExpire, gotV, err := unpackRedisValue(packRedisData(expire, v))
	if err != nil {
		t.Fatal(err)
	}
	if !gotExpire.Equal(expire) {
		t.Fatalf("expire mismatched: want %s, got %s", expire, gotExpire)
	}
	if !bytes.Equal(gotV, v) {
		t.Fatalf("value mismatched: %q", gotV)
	}

	if _, _, err := unpackRedisValue([]byte{1, 2}); err == nil {
		t.Fatal("short value should fail")
	}
}

func TestRedisCacheOptsInit(t *testing.T) {
	if _, err := NewRedisCache(RedisCacheOpts{}); err == nil {
		t.Fatal("nil client should fail")
	}
}

func TestRedisCacheUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	r, err := NewRedisCache(RedisCacheOpts{
		Client:        client,
		ClientCloser:  client,
		ClientTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, ok := r.Get("k"); ok {
		t.Fatal("unreachable redis returned a value")
	}
	if !r.disabled() {
		t.Fatal("client should be disabled after an error")
	}
	// Disabled client drops writes without touching the network.
	r.Store("k", []byte("v"), time.Now().Add(time.Minute))
	if _, ok := r.Get("k"); ok {
		t.Fatal("disabled client returned a value")
	}
}

type pingCounter struct {
	redis.Cmdable
	pings atomic.Int32
}

func (c *pingCounter) Ping(ctx context.Context) *redis.StatusCmd {
	c.pings.Add(1)
	return c.Cmdable.Ping(ctx)
}

func TestRedisCacheCloseStopsPing(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	pc := &pingCounter{Cmdable: client}
	r, err := NewRedisCache(RedisCacheOpts{
		Client:        pc,
		ClientCloser:  client,
		ClientTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	r.Get("k")
	deadline := time.Now().Add(5 * time.Second)
	for pc.pings.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no background ping after the client was disabled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	done := make(chan error, 1)
	go func() { done <- r.Close() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	n := pc.pings.Load()
	time.Sleep(2500 * time.Millisecond)
	if got := pc.pings.Load(); got != n {
		t.Fatalf("ping ran after Close: %d -> %d", n, got)
	}

	// A closed cache never starts another ping loop.
	r.clientDisabled.Store(false)
	r.disableClient()
	if err := r.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		t.Fatal(err)
	}
}
