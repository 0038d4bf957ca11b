// Package middleware implements the per-chat sequential lock,
// message deduplication, quick-command bypass, and preemption queue
// that sit in front of the Orchestrator.
package middleware

import (
	"container/list"
	"sync"
	"time"
)

// Dedup is a bounded, LRU-eviction, TTL-expiring map from
// (chat_id, message_id) to a monotonic check timestamp. Two
// consecutive checks of the same key within the TTL report duplicate
// on the second; a duplicate check refreshes the timestamp.
type Dedup struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	nowFn   func() time.Time

	order *list.List
	index map[string]*list.Element
}

type dedupElem struct {
	key  string
	seen time.Time
}

func NewDedup(maxSize int, ttl time.Duration) *Dedup {
	return &Dedup{
		maxSize: maxSize,
		ttl:     ttl,
		nowFn:   time.Now,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

func key(chatID, messageID string) string { return chatID + "\x00" + messageID }

// Check reports whether (chatID, messageID) was already seen within
// ttl. It always refreshes the entry's timestamp (and LRU position)
// whether or not it was a duplicate.
func (d *Dedup) Check(chatID, messageID string) (duplicate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key(chatID, messageID)
	now := d.nowFn()

	if el, ok := d.index[k]; ok {
		e := el.Value.(*dedupElem)
		if now.Sub(e.seen) < d.ttl {
			duplicate = true
		}
		e.seen = now
		d.order.MoveToFront(el)
		return duplicate
	}

	el := d.order.PushFront(&dedupElem{key: k, seen: now})
	d.index[k] = el
	d.evictOverflow()
	return false
}

func (d *Dedup) evictOverflow() {
	if d.maxSize <= 0 {
		return
	}
	for d.order.Len() > d.maxSize {
		back := d.order.Back()
		if back == nil {
			return
		}
		d.order.Remove(back)
		delete(d.index, back.Value.(*dedupElem).key)
	}
}
