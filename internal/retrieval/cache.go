package retrieval

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// answerCache is a small TTL + LRU cache for answers to repeated
// questions. It is strictly best-effort: entries are keyed by the
// patient lookup key and a hash of the normalized question, and a hit
// skips the embedding and generation calls entirely.
type answerCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recent
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	key       string
	answer    Answer
	expiresAt time.Time
}

func newAnswerCache(maxSize int, ttl time.Duration) *answerCache {
	return &answerCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(lookupKey, question string) string {
	sum := sha256.Sum256([]byte(lookupKey + "\x00" + question))
	return hex.EncodeToString(sum[:])
}

func (c *answerCache) get(key string) (Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return Answer{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return Answer{}, false
	}
	c.order.MoveToFront(elem)
	return entry.answer, true
}

func (c *answerCache) put(key string, answer Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.answer = answer
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{
		key:       key,
		answer:    answer,
		expiresAt: c.now().Add(c.ttl),
	})
}
