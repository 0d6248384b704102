package db

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/domain"
)

type memItem struct {
	key     string
	value   *domain.TranscriptionResult
	expires time.Time
}

// MemoryCache is a size bounded LRU cache with expiry
type MemoryCache struct {
	size  int
	ttl   time.Duration
	order *list.List
	items map[string]*list.Element
	now   func() time.Time

	lock sync.Mutex
}

// NewMemoryCache creates a cache holding up to size results, ttl 0 means no expiry
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("wrong cache size %d", size)
	}
	goapp.Log.Info().Int("size", size).Dur("ttl", ttl).Msg("Memory cache")
	return &MemoryCache{size: size, ttl: ttl, order: list.New(), items: make(map[string]*list.Element),
		now: time.Now}, nil
}

// Get returns a copy of the cached result
func (mc *MemoryCache) Get(_ context.Context, key string) (*domain.TranscriptionResult, bool, error) {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	el, ok := mc.items[key]
	if !ok {
		return nil, false, nil
	}
	item := el.Value.(*memItem)
	if !item.expires.IsZero() && mc.now().After(item.expires) {
		mc.order.Remove(el)
		delete(mc.items, key)
		return nil, false, nil
	}
	mc.order.MoveToFront(el)
	return item.value.Clone(), true, nil
}

// Save stores a copy of res
func (mc *MemoryCache) Save(_ context.Context, key string, res *domain.TranscriptionResult) error {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	item := &memItem{key: key, value: res.Clone()}
	if mc.ttl > 0 {
		item.expires = mc.now().Add(mc.ttl)
	}
	if el, ok := mc.items[key]; ok {
		el.Value = item
		mc.order.MoveToFront(el)
		return nil
	}
	mc.items[key] = mc.order.PushFront(item)
	for mc.order.Len() > mc.size {
		last := mc.order.Back()
		mc.order.Remove(last)
		delete(mc.items, last.Value.(*memItem).key)
	}
	return nil
}

// Len returns the number of stored results
func (mc *MemoryCache) Len() int {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	return mc.order.Len()
}

func (mc *MemoryCache) Close() error {
	return nil
}
