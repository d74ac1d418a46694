package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bluele/gcache"
)

// LRU is an in-process Store bounded to a fixed number of entries.
type LRU struct {
	c gcache.Cache
}

// NewLRU returns an LRU holding at most size entries.
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = 1
	}
	return &LRU{c: gcache.New(size).LRU().Build()}
}

func (l *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := l.c.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	data, ok := v.([]byte)
	return data, ok, nil
}

// Set stores value; a non-positive ttl keeps it until evicted.
func (l *LRU) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return l.c.Set(key, value)
	}
	return l.c.SetWithExpire(key, value, ttl)
}

// Len reports the number of live entries.
func (l *LRU) Len() int {
	return l.c.Len(true)
}
