package docstore

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

// CachedStore is a write-through Store that keeps the most recently used
// documents of a backing Store in memory. Reads that miss the cache fall back
// to the backing store and populate the cache.
type CachedStore[K comparable, V any] struct {
	backing Store[K, V]
	maxSize int

	mu    sync.Mutex
	ll    *list.List
	items map[K]*list.Element
}

// NewCachedStore wraps backing with an LRU cache holding at most maxSize documents.
func NewCachedStore[K comparable, V any](backing Store[K, V], maxSize int) (*CachedStore[K, V], error) {
	if backing == nil {
		return nil, fmt.Errorf("backing store cannot be nil")
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &CachedStore[K, V]{
		backing: backing,
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[K]*list.Element),
	}, nil
}

// Put writes to the backing store first and caches the value only on success.
func (c *CachedStore[K, V]) Put(ctx context.Context, key K, value V) error {
	if err := c.backing.Put(ctx, key, value); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(key, value)
	return nil
}

// Get serves from the cache, falling back to the backing store on a miss.
func (c *CachedStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.ll.MoveToFront(elem)
		c.mu.Unlock()
		return elem.Value.(*lruItem[K, V]).value, nil
	}
	c.mu.Unlock()

	value, err := c.backing.Get(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have populated the key while we were fetching.
	if elem, ok := c.items[key]; ok {
		c.ll.MoveToFront(elem)
		return elem.Value.(*lruItem[K, V]).value, nil
	}
	c.add(key, value)
	return value, nil
}

// Invalidate drops key from the cache without touching the backing store.
func (c *CachedStore[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.ll.Remove(elem)
		delete(c.items, key)
	}
}

// Close closes the backing store.
func (c *CachedStore[K, V]) Close() error {
	return c.backing.Close()
}

// add must be called with mu held.
func (c *CachedStore[K, V]) add(key K, value V) {
	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruItem[K, V]).value = value
		c.ll.MoveToFront(elem)
		return
	}
	c.items[key] = c.ll.PushFront(&lruItem[K, V]{key: key, value: value})
	if c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		item := c.ll.Remove(oldest).(*lruItem[K, V])
		delete(c.items, item.key)
	}
}
