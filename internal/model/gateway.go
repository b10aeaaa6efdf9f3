package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"curie/internal/cache"
)

// Stop sequences prevent the model from fabricating the next speaker turn and
// continuing the conversation with itself.
var stopSequences = []string{"</s>", "User:", "user:", "\nUser:", "\nuser:"}

// Fixed decoding parameters for all turns.
const (
	topP              = 0.95
	topK              = 40
	repetitionPenalty = 1.1
)

// Params configures a Gateway. Zero values fall back to safe minimums.
type Params struct {
	Models            []string // candidate model names, in preference order
	PreferredModel    string   // tried first when set
	ContextSize       int
	ContextBuffer     int
	MinTokens         int
	FallbackMaxTokens int
	DefaultMaxTokens  int
	Temperature       float64
	MaxResident       int
	MaxConcurrent     int // simultaneous inference calls; 0 means one per CPU
	GCInterval        time.Duration
}

// AskOptions tune a single Ask call. Zero values use the gateway defaults.
type AskOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Gateway owns resident model instances and the response cache. At most
// MaxResident models stay loaded; loading another evicts the oldest. A model
// serving an in-flight Ask is never closed mid-request: eviction removes it
// from the resident set and marks it doomed, and the final release closes it.
type Gateway struct {
	params  Params
	factory Factory

	// Inference and tokenization are CPU-bound; the semaphore keeps them off
	// an unbounded goroutine stampede while connectors stay responsive.
	sem chan struct{}

	mu        sync.Mutex
	loaded    map[string]*resident
	order     []string // load order, oldest first
	lastGC    time.Time
	gc        func() // runtime.GC, injectable for tests
	responses *cache.TTL[string]
}

type resident struct {
	name    string
	backend Backend
	refs    int
	doomed  bool
}

// NewGateway builds a gateway around the given model factory. responses may
// be nil to disable response caching.
func NewGateway(params Params, factory Factory, responses *cache.TTL[string]) *Gateway {
	if params.MaxResident <= 0 {
		params.MaxResident = 1
	}
	if params.DefaultMaxTokens <= 0 {
		params.DefaultMaxTokens = 128
	}
	if params.Temperature == 0 {
		params.Temperature = 0.7
	}
	if params.MaxConcurrent <= 0 {
		params.MaxConcurrent = max(2, runtime.NumCPU())
	}
	return &Gateway{
		params:    params,
		factory:   factory,
		sem:       make(chan struct{}, params.MaxConcurrent),
		loaded:    make(map[string]*resident),
		gc:        runtime.GC,
		responses: responses,
	}
}

// Preload loads the preferred model, falling back through the configured
// list, and fails when none load. Call once at startup so a broken model
// setup surfaces before the first user turn.
func (g *Gateway) Preload() error {
	name, ok := g.loadWithFallback(g.params.PreferredModel)
	if !ok {
		return fmt.Errorf("model: no model could be loaded (tried %v)", g.candidates(g.params.PreferredModel))
	}
	log.Printf("[Model] preloaded %s", name)
	return nil
}

// ActiveModel returns the most recently loaded resident model name, or "".
func (g *Gateway) ActiveModel() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.order) == 0 {
		return ""
	}
	return g.order[len(g.order)-1]
}

// Ask runs one inference turn. Recoverable failures (no loadable model,
// over-long prompt, inference error) come back as short bracketed strings in
// the reply text with a nil error, because a chat turn must always produce
// some reply. The returned model name is the one that served the request;
// empty when nothing could be loaded.
func (g *Gateway) Ask(ctx context.Context, prompt string, opts AskOptions) (string, string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.params.DefaultMaxTokens
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = g.params.Temperature
	}

	cacheKey := responseKey(prompt, temperature, maxTokens)
	if g.responses != nil {
		if cached, ok := g.responses.Get(cacheKey); ok {
			return cached, g.ActiveModel(), nil
		}
	}

	res := g.acquire(opts.Model)
	if res == nil {
		return "[Error: no model available]", "", nil
	}
	defer g.release(res)

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return "", res.name, ctx.Err()
	}
	defer func() { <-g.sem }()

	capped, tooLong := g.budget(res.backend, prompt, maxTokens)
	if tooLong != "" {
		return tooLong, res.name, nil
	}

	text, err := res.backend.Generate(ctx, prompt, GenerateOptions{
		MaxTokens:         capped,
		Temperature:       temperature,
		TopP:              topP,
		TopK:              topK,
		RepetitionPenalty: repetitionPenalty,
		Stop:              stopSequences,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", res.name, ctx.Err()
		}
		log.Printf("[Model] inference error on %s: %v", res.name, err)
		return fmt.Sprintf("[Error during inference: %v]", err), res.name, nil
	}

	if filtered, tripped := sanityFilter(text); tripped {
		log.Printf("[Model] sanity filter tripped on %s output", res.name)
		text = filtered
	}
	if g.responses != nil {
		g.responses.Set(cacheKey, text)
	}
	return text, res.name, nil
}

// budget computes the token allowance for generation. A prompt leaving less
// than MinTokens of context fails the turn explicitly instead of invoking
// inference with a useless budget; a tokenizer failure falls back to the
// conservative cap.
func (g *Gateway) budget(b Backend, prompt string, requested int) (int, string) {
	promptTokens, err := b.CountTokens(prompt)
	if err != nil {
		log.Printf("[Model] tokenizer failed, using fallback cap: %v", err)
		return min(requested, g.params.FallbackMaxTokens), ""
	}
	available := g.params.ContextSize - promptTokens - g.params.ContextBuffer
	if available < g.params.MinTokens {
		return 0, fmt.Sprintf("[Error: Prompt too long (%d tokens). Maximum context is %d tokens.]",
			promptTokens, g.params.ContextSize)
	}
	return min(requested, available), ""
}

// acquire returns a resident model with its reference count raised. An
// already-resident model is preferred over the requested one to avoid reload
// storms; when nothing is resident, models are loaded with fallback.
func (g *Gateway) acquire(requested string) *resident {
	if r := g.acquireResident(requested); r != nil {
		return r
	}
	if _, ok := g.loadWithFallback(requested); !ok {
		return nil
	}
	return g.acquireResident(requested)
}

// acquireResident picks a live resident model under the lock, or nil.
func (g *Gateway) acquireResident(requested string) *resident {
	g.mu.Lock()
	defer g.mu.Unlock()
	if requested != "" {
		if r, ok := g.loaded[requested]; ok {
			r.refs++
			return r
		}
	}
	// Any resident will do; prefer the most recently loaded.
	for i := len(g.order) - 1; i >= 0; i-- {
		if r, ok := g.loaded[g.order[i]]; ok {
			r.refs++
			return r
		}
	}
	return nil
}

func (g *Gateway) release(r *resident) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r.refs--
	if r.doomed && r.refs <= 0 {
		r.backend.Close()
	}
}

// loadWithFallback tries the preferred name, then each configured model,
// until one loads. Tolerant: returns ok=false instead of an error.
func (g *Gateway) loadWithFallback(preferred string) (string, bool) {
	for _, name := range g.candidates(preferred) {
		g.mu.Lock()
		if _, ok := g.loaded[name]; ok {
			g.mu.Unlock()
			return name, true
		}
		g.mu.Unlock()

		// Loading happens outside the lock so in-flight inference on other
		// models is not blocked behind a slow load.
		backend, err := g.factory(name)
		if err != nil {
			log.Printf("[Model] failed to load %s: %v", name, err)
			continue
		}

		g.mu.Lock()
		if _, ok := g.loaded[name]; ok {
			// Lost a load race; keep the winner.
			g.mu.Unlock()
			backend.Close()
			return name, true
		}
		g.loaded[name] = &resident{name: name, backend: backend}
		g.order = append(g.order, name)
		g.evictExcess()
		g.mu.Unlock()
		return name, true
	}
	return "", false
}

func (g *Gateway) candidates(preferred string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(preferred)
	add(g.params.PreferredModel)
	for _, m := range g.params.Models {
		add(m)
	}
	return out
}

// evictExcess enforces the residency cap. Must be called with the lock held.
// Evicted models leave the resident set immediately; ones still serving
// requests are marked doomed and closed by their final release. Collection
// runs at most once per GCInterval to avoid thrashing.
func (g *Gateway) evictExcess() {
	evicted := false
	for len(g.loaded) > g.params.MaxResident && len(g.order) > 0 {
		oldest := g.order[0]
		g.order = g.order[1:]
		r, ok := g.loaded[oldest]
		if !ok {
			continue
		}
		delete(g.loaded, oldest)
		if r.refs > 0 {
			r.doomed = true
		} else {
			r.backend.Close()
		}
		evicted = true
		log.Printf("[Model] evicted %s (cap %d)", oldest, g.params.MaxResident)
	}
	if evicted && g.params.GCInterval > 0 && time.Since(g.lastGC) >= g.params.GCInterval {
		g.lastGC = time.Now()
		go g.gc()
	}
}

// Resident reports whether the named model is currently loaded.
func (g *Gateway) Resident(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.loaded[name]
	return ok
}

// Close releases every resident model.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, r := range g.loaded {
		if r.refs > 0 {
			r.doomed = true
		} else {
			r.backend.Close()
		}
		delete(g.loaded, name)
	}
	g.order = nil
}

func responseKey(prompt string, temperature float64, maxTokens int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%v|%d", prompt, temperature, maxTokens)
	return hex.EncodeToString(h.Sum(nil))
}
