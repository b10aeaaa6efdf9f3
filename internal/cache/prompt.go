package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sync"
)

// Prompt is an LRU cache for assembled base prompts. Unlike TTL, a hit moves
// the entry to the most-recently-used position; eviction is LRU-first. There
// is no explicit expiry: the hour-granularity time bucket is part of the key,
// so entries go stale by construction once the clock hour rolls over.
type Prompt struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	hits    int
	misses  int
}

type promptEntry struct {
	key        string
	text       string
	tokenCount int
}

// PromptStats is a point-in-time snapshot of cache effectiveness.
type PromptStats struct {
	Hits           int     `json:"hits"`
	Misses         int     `json:"misses"`
	Total          int     `json:"total"`
	HitRatePercent float64 `json:"hit_rate_percent"`
	Size           int     `json:"size"`
}

// NewPrompt returns an LRU prompt cache holding at most maxSize entries.
// A maxSize of 0 or less falls back to a single-entry cache.
func NewPrompt(maxSize int) *Prompt {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Prompt{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Key derives a deterministic cache key from the prompt components. Facts are
// serialized with sorted keys, so two maps with equal contents always produce
// the same key regardless of insertion order.
func Key(systemPrompt string, facts map[string]string, historyStr, timeBucket string) string {
	factsStr := ""
	if len(facts) > 0 {
		// encoding/json sorts map keys, which is exactly the stability we need.
		b, err := json.Marshal(facts)
		if err == nil {
			factsStr = string(b)
		}
	}
	h := sha256.New()
	h.Write([]byte(systemPrompt))
	h.Write([]byte("|||"))
	h.Write([]byte(factsStr))
	h.Write([]byte("|||"))
	h.Write([]byte(historyStr))
	h.Write([]byte("|||"))
	h.Write([]byte(timeBucket))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached prompt text and token estimate for the components,
// moving the entry to the most-recently-used position on a hit.
func (p *Prompt) Get(systemPrompt string, facts map[string]string, historyStr, timeBucket string) (string, int, bool) {
	key := Key(systemPrompt, facts, historyStr, timeBucket)

	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.items[key]
	if !ok {
		p.misses++
		return "", 0, false
	}
	p.hits++
	p.lru.MoveToFront(el)
	e := el.Value.(*promptEntry)
	return e.text, e.tokenCount, true
}

// Set stores an assembled prompt under the derived key, evicting
// least-recently-used entries once the cache exceeds its size bound.
func (p *Prompt) Set(systemPrompt string, facts map[string]string, historyStr, timeBucket, promptText string, tokenCount int) {
	key := Key(systemPrompt, facts, historyStr, timeBucket)

	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.items[key]; ok {
		p.lru.MoveToFront(el)
		e := el.Value.(*promptEntry)
		e.text = promptText
		e.tokenCount = tokenCount
		return
	}
	el := p.lru.PushFront(&promptEntry{key: key, text: promptText, tokenCount: tokenCount})
	p.items[key] = el

	for p.lru.Len() > p.maxSize {
		back := p.lru.Back()
		if back == nil {
			break
		}
		p.lru.Remove(back)
		delete(p.items, back.Value.(*promptEntry).key)
	}
}

// Stats returns hit/miss counters for observability.
func (p *Prompt) Stats() PromptStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.hits + p.misses
	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(p.hits)/float64(total)*1000) / 10
	}
	return PromptStats{
		Hits:           p.hits,
		Misses:         p.misses,
		Total:          total,
		HitRatePercent: rate,
		Size:           p.lru.Len(),
	}
}
