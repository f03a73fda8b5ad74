// Package cache is a small bounded LRU for first-page results, keyed by
// request identity.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/tuannm99/novaquery/sqlrequest"
)

type entry[V any] struct {
	key     uint64
	req     *sqlrequest.Request
	value   V
	expires time.Time
}

// LRU keys entries by sqlrequest.Request.Hash and confirms hits with Equal,
// so a hash collision evicts rather than aliases. Identity ignores the time
// zone, so requests differing only in zone share an entry.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	lruList  *list.List
	items    map[uint64]*list.Element
	now      func() time.Time
}

// New returns a cache holding at most capacity entries. capacity <= 0
// disables caching.
func New[V any](capacity int, ttl time.Duration) *LRU[V] {
	return &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		lruList:  list.New(),
		items:    make(map[uint64]*list.Element),
		now:      time.Now,
	}
}

func (l *LRU[V]) Get(req *sqlrequest.Request) (V, bool) {
	var zero V
	if l.capacity <= 0 {
		return zero, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.items[req.Hash()]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[V])
	if !e.req.Equal(req) {
		return zero, false
	}
	if l.ttl > 0 && !l.now().Before(e.expires) {
		l.removeLocked(elem)
		return zero, false
	}
	l.lruList.MoveToFront(elem)
	return e.value, true
}

func (l *LRU[V]) Put(req *sqlrequest.Request, value V) {
	if l.capacity <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := req.Hash()
	e := &entry[V]{
		key:     key,
		req:     req.Clone(),
		value:   value,
		expires: l.now().Add(l.ttl),
	}

	if elem, ok := l.items[key]; ok {
		elem.Value = e
		l.lruList.MoveToFront(elem)
		return
	}

	l.items[key] = l.lruList.PushFront(e)
	for l.lruList.Len() > l.capacity {
		l.removeLocked(l.lruList.Back())
	}
}

func (l *LRU[V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lruList.Len()
}

func (l *LRU[V]) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry[V])
	delete(l.items, e.key)
	l.lruList.Remove(elem)
}
