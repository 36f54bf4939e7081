/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of mosdns.
 *
 * mosdns is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * mosdns is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package redis_cache

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var nopLogger = zap.NewNop()

type RedisCacheOpts struct {
	// Client cannot be nil.
	Client redis.Cmdable

	// ClientCloser closes Client when RedisCache.Close is called.
	// Optional.
	ClientCloser io.Closer

	// ClientTimeout specifies the timeout for read and write operations.
	// Default is 1s.
	ClientTimeout time.Duration

	// KeyPrefix is prepended to every key. Optional.
	KeyPrefix string

	// Logger is the *zap.Logger for this RedisCache.
	// A nil Logger will disable logging.
	Logger *zap.Logger
}

func (opts *RedisCacheOpts) Init() error {
	if opts.Client == nil {
		return errors.New("nil client")
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// RedisCache is a cache.Backend shared between processes through redis.
// Any redis error disables the client until a background ping succeeds,
// so an unreachable server degrades to cache misses.
type RedisCache struct {
	opts           RedisCacheOpts
	clientDisabled atomic.Bool

	closeOnce   sync.Once
	closeNotify chan struct{}

	// mu guards pingWg.Add against Close.
	mu     sync.Mutex
	closed bool
	pingWg sync.WaitGroup
}

func NewRedisCache(opts RedisCacheOpts) (*RedisCache, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	return &RedisCache{opts: opts, closeNotify: make(chan struct{})}, nil
}

func (r *RedisCache) disabled() bool {
	return r.clientDisabled.Load()
}

func (r *RedisCache) disableClient() {
	if r.clientDisabled.CompareAndSwap(false, true) {
		r.opts.Logger.Warn("redis temporarily disabled")
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		r.pingWg.Add(1)
		go func() {
			defer r.pingWg.Done()
			const maxBackoff = time.Second * 30
			backoff := time.Millisecond * 100
			for {
				timer := time.NewTimer(backoff)
				select {
				case <-timer.C:
				case <-r.closeNotify:
					timer.Stop()
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*500)
				err := r.opts.Client.Ping(ctx).Err()
				cancel()
				if err != nil {
					if backoff >= maxBackoff {
						backoff = maxBackoff
					} else {
						backoff += time.Duration(rand.Intn(1000))*time.Millisecond + time.Second
					}
					r.opts.Logger.Warn("redis ping failed", zap.Error(err), zap.Duration("next_ping", backoff))
					continue
				}
				r.clientDisabled.Store(false)
				return
			}
		}()
	}
}

func (r *RedisCache) Get(key string) ([]byte, bool) {
	if r.disabled() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.ClientTimeout)
	defer cancel()
	b, err := r.opts.Client.Get(ctx, r.opts.KeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.opts.Logger.Warn("redis get", zap.Error(err))
			r.disableClient()
		}
		return nil, false
	}

	expire, v, err := unpackRedisValue(b)
	if err != nil {
		r.opts.Logger.Warn("redis data unpack error", zap.Error(err))
		return nil, false
	}
	if !time.Now().Before(expire) {
		return nil, false
	}
	return v, true
}

// Store stores kv into redis. The redis key ttl matches expire.
func (r *RedisCache) Store(key string, v []byte, expire time.Time) {
	if r.disabled() {
		return
	}
	ttl := time.Until(expire)
	if ttl <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.ClientTimeout)
	defer cancel()
	if err := r.opts.Client.Set(ctx, r.opts.KeyPrefix+key, packRedisData(expire, v), ttl).Err(); err != nil {
		r.opts.Logger.Warn("redis set", zap.Error(err))
		r.disableClient()
	}
}

// Close stops the background ping and closes the redis client.
func (r *RedisCache) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.closeNotify)
		r.mu.Unlock()
	})
	r.pingWg.Wait()
	if f := r.opts.ClientCloser; f != nil {
		return f.Close()
	}
	return nil
}

func (r *RedisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.ClientTimeout)
	defer cancel()
	i, err := r.opts.Client.DBSize(ctx).Result()
	if err != nil {
		r.opts.Logger.Error("dbsize", zap.Error(err))
		return 0
	}
	return int(i)
}

// packRedisData prefixes v with expire in unix milliseconds.
func packRedisData(expire time.Time, v []byte) []byte {
	b := make([]byte, 8+len(v))
	binary.BigEndian.PutUint64(b[:8], uint64(expire.UnixMilli()))
	copy(b[8:], v)
	return b
}

func unpackRedisValue(b []byte) (expire time.Time, v []byte, err error) {
	if len(b) < 8 {
		return time.Time{}, nil, errors.New("b is too short")
	}
	expire = time.UnixMilli(int64(binary.BigEndian.Uint64(b[:8])))
	return expire, b[8:], nil
}
