// Package workflow is the connector-independent chat pipeline: dedupe check,
// context load, prompt build, model call, output sanitation, persistence,
// dedupe store. Connectors normalize their updates and call Process; it
// always returns a reply, never panics outward.
package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"curie/internal/bus"
	"curie/internal/cache"
	"curie/internal/model"
	"curie/internal/persona"
	"curie/internal/prompt"
	"curie/internal/sanitize"
	"curie/internal/store"
)

// ModelUsed markers for degraded modes.
const (
	ModelNone        = "N/A"
	ModelDedupeCache = "dedupe_cache"
)

// Asker is the slice of the model gateway the workflow needs.
type Asker interface {
	Ask(ctx context.Context, prompt string, opts model.AskOptions) (text, modelName string, err error)
}

// Options configure a Workflow.
type Options struct {
	Persona     *persona.Persona
	MaxHistory  int           // turns loaded per request (user+assistant pairs count as two)
	DedupeTTL   time.Duration // 0 disables expiry
	DedupeSize  int
	Temperature float64
	MaxTokens   int
}

// Workflow wires the caches and collaborators for the chat pipeline. All
// state is injected and owned here; construct one per process (or per test)
// and share it across connectors.
type Workflow struct {
	opts      Options
	identity  store.IdentityResolver
	profiles  store.ProfileStore
	history   store.HistoryStore
	asker     Asker
	builder   *prompt.Builder
	sanitizer *sanitize.Sanitizer
	dedupe    *cache.TTL[string]
	clock     func() time.Time

	mu      sync.Mutex
	persona *persona.Persona
}

// New builds a Workflow. The persona defaults when nil; negative cache bounds
// are a construction error, mirroring the cache constructors.
func New(opts Options, st store.Store, asker Asker, builder *prompt.Builder) (*Workflow, error) {
	if opts.Persona == nil {
		opts.Persona = persona.Default()
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 5
	}
	dedupe, err := cache.NewTTL[string](opts.DedupeTTL, opts.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	return &Workflow{
		opts:      opts,
		identity:  st,
		profiles:  st,
		history:   st,
		asker:     asker,
		builder:   builder,
		sanitizer: sanitize.New(opts.Persona.Name),
		dedupe:    dedupe,
		clock:     time.Now,
		persona:   opts.Persona,
	}, nil
}

// SetClock replaces the time source for tests.
func (w *Workflow) SetClock(clock func() time.Time) { w.clock = clock }

// Persona returns the active persona.
func (w *Workflow) Persona() *persona.Persona {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.persona
}

// ChangePersona swaps the active persona and rebuilds the sanitizer for the
// new speaker name.
func (w *Workflow) ChangePersona(p *persona.Persona) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.persona = p
	w.sanitizer = sanitize.New(p.Name)
}

func (w *Workflow) currentSanitizer() *sanitize.Sanitizer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sanitizer
}

// CacheStats reports prompt-cache counters and the dedupe cache size.
type CacheStats struct {
	PromptCache cache.PromptStats `json:"prompt_cache"`
	DedupeSize  int               `json:"dedupe_cache_size"`
	Persona     string            `json:"current_persona"`
}

// Stats returns a snapshot for the observability surface.
func (w *Workflow) Stats() CacheStats {
	return CacheStats{
		PromptCache: w.builder.Stats(),
		DedupeSize:  w.dedupe.Len(),
		Persona:     w.Persona().Name,
	}
}

// Process runs one normalized message through the pipeline and always
// returns a reply: validation failures, duplicate deliveries and model-side
// trouble all surface as text with an appropriate ModelUsed marker.
func (w *Workflow) Process(ctx context.Context, in bus.NormalizedMessage) (reply bus.Reply) {
	start := w.clock()
	finish := func(text, modelUsed string) bus.Reply {
		return bus.Reply{
			Text:             text,
			Timestamp:        w.clock().UTC(),
			ModelUsed:        modelUsed,
			ProcessingTimeMS: float64(w.clock().Sub(start).Microseconds()) / 1000,
		}
	}
	// Collaborators are injected and could misbehave; a panic here must not
	// reach the connector.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Workflow] panic recovered: %v", r)
			reply = finish(fmt.Sprintf("[Error processing message: %v]", r), ModelNone)
		}
	}()

	in.Text = strings.TrimSpace(in.Text)
	if in.ExternalUserID == "" || in.ExternalChatID == "" || in.Text == "" {
		log.Printf("[Workflow] invalid input from %s: missing required fields", in.Platform)
		return finish("[Error: Invalid message format]", ModelNone)
	}

	internalID := in.InternalID
	if internalID == "" {
		id, err := w.identity.GetOrCreateInternalID(ctx, in.Platform, in.ExternalUserID,
			in.Platform+"_"+in.ExternalUserID)
		if err != nil {
			log.Printf("[Workflow] identity resolution failed: %v", err)
			return finish("[Error: could not resolve user identity]", ModelNone)
		}
		internalID = id
	}

	dedupeKey := in.DedupeKey()
	if cached, ok := w.dedupe.Get(dedupeKey); ok {
		return finish(cached, ModelDedupeCache)
	}

	profile, history := w.loadContext(ctx, internalID)

	promptText := w.builder.Build(w.Persona(), profile, history, in.Text)

	text, modelName, err := w.asker.Ask(ctx, promptText, model.AskOptions{
		Temperature: w.opts.Temperature,
		MaxTokens:   w.opts.MaxTokens,
	})
	if err != nil {
		log.Printf("[Workflow] model call failed: %v", err)
		return finish(fmt.Sprintf("[Error processing message: %v]", err), ModelNone)
	}
	if modelName == "" {
		modelName = ModelNone
	}

	text = w.currentSanitizer().Clean(text)
	if text == "" {
		text = "I'm not sure how to respond to that."
	}

	// Order matters: the user turn lands before the assistant turn, and the
	// dedupe store happens only after a successful response.
	if err := w.history.Append(ctx, internalID, "user", in.Text); err != nil {
		log.Printf("[Workflow] failed to persist user turn: %v", err)
	} else if err := w.history.Append(ctx, internalID, "assistant", text); err != nil {
		log.Printf("[Workflow] failed to persist assistant turn: %v", err)
	}

	w.dedupe.Set(dedupeKey, text)

	return finish(text, modelName)
}

// loadContext fetches the profile and recent history concurrently; the two
// reads have no ordering dependency. A failing store degrades to an empty
// profile or history for this turn instead of failing it.
func (w *Workflow) loadContext(ctx context.Context, internalID string) (map[string]string, []store.Turn) {
	var (
		wg      sync.WaitGroup
		profile map[string]string
		history []store.Turn
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		p, err := w.profiles.GetProfile(ctx, internalID)
		if err != nil {
			log.Printf("[Workflow] profile load failed, continuing without: %v", err)
			return
		}
		profile = p
	}()
	go func() {
		defer wg.Done()
		h, err := w.history.LoadRecent(ctx, internalID, w.opts.MaxHistory*2)
		if err != nil {
			log.Printf("[Workflow] history load failed, continuing without: %v", err)
			return
		}
		history = h
	}()
	wg.Wait()

	return profile, history
}
