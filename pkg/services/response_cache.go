package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// QuestionKind distinguishes cache entries for the same text asked fresh
// and asked as a follow-up.
type QuestionKind string

const (
	QuestionKindOriginal QuestionKind = "original"
	QuestionKindFollowUp QuestionKind = "followup"
)

// DefaultCacheTTL is how long a succeeded resolution is served from cache.
const DefaultCacheTTL = time.Hour

// CacheStats counts cache traffic since creation or the last Clear.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// ResponseCache keeps succeeded resolutions in memory for a fixed TTL.
type ResponseCache interface {
	Get(kind QuestionKind, question string, prior *PriorContext) (*Resolution, bool)
	Set(kind QuestionKind, question string, prior *PriorContext, res *Resolution)
	Clear()
	Stats() CacheStats
}

type cacheEntry struct {
	res       *Resolution
	expiresAt time.Time
}

type responseCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

// NewResponseCache creates a cache. A non-positive ttl uses DefaultCacheTTL;
// maxEntries <= 0 means unbounded.
func NewResponseCache(ttl time.Duration, maxEntries int) ResponseCache {
	return newResponseCache(ttl, maxEntries, time.Now)
}

func newResponseCache(ttl time.Duration, maxEntries int, now func() time.Time) *responseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		entries:    make(map[string]cacheEntry),
	}
}

// cacheKey hashes the kind and the normalised question. Follow-ups also
// hash the prior SQL so two conversations never share an answer.
func cacheKey(kind QuestionKind, question string, prior *PriorContext) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(normalizeQuestion(question)))
	if kind == QuestionKindFollowUp && prior != nil {
		h.Write([]byte{0})
		h.Write([]byte(normalizeQuestion(prior.Question)))
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(prior.SQL)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeQuestion lower-cases and collapses whitespace.
func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func (c *responseCache) Get(kind QuestionKind, question string, prior *PriorContext) (*Resolution, bool) {
	key := cacheKey(kind, question, prior)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.res.clone(), true
}

// Set stores res if it succeeded. Anything else is ignored.
func (c *responseCache) Set(kind QuestionKind, question string, prior *PriorContext, res *Resolution) {
	if res == nil || res.Outcome != OutcomeSucceeded {
		return
	}
	key := cacheKey(kind, question, prior)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLocked()
		}
	}
	c.entries[key] = cacheEntry{res: res.clone(), expiresAt: c.now().Add(c.ttl)}
}

// evictLocked drops expired entries, then the one closest to expiry if the
// cache is still full.
func (c *responseCache) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *responseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.hits, c.misses = 0, 0
}

func (c *responseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

var _ ResponseCache = (*responseCache)(nil)
