// Package gateway wires the application together: configuration, storage,
// the model gateway, the chat workflow and the connectors. Both the CLI and
// the long-running server boot through here.
package gateway

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"curie/internal/bus"
	"curie/internal/cache"
	"curie/internal/config"
	"curie/internal/connector"
	"curie/internal/model"
	"curie/internal/persona"
	"curie/internal/proactive"
	"curie/internal/prompt"
	"curie/internal/store"
	"curie/internal/workflow"
)

// Gateway boots and owns the application services.
type Gateway struct {
	ConfigPath string
}

// New creates a Gateway reading configuration from configPath ("" means the
// default path plus environment overrides).
func New(configPath string) *Gateway {
	return &Gateway{ConfigPath: configPath}
}

// Runtime bundles the booted services and their shutdown hooks.
type Runtime struct {
	Config    *config.Config
	Store     store.Store
	Models    *model.Gateway
	Workflow  *workflow.Workflow
	Proactive *proactive.Service

	closeOnce sync.Once
	closers   []func() error
}

// Close releases resources in reverse boot order.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		for i := len(r.closers) - 1; i >= 0; i-- {
			if err := r.closers[i](); err != nil {
				log.Printf("[Gateway] shutdown: %v", err)
			}
		}
	})
}

// InitRuntime boots every service. The inMemory flag swaps SQLite for the
// in-process store; the CLI chat mode uses it so a REPL session leaves no
// database behind.
func (g *Gateway) InitRuntime(ctx context.Context, inMemory bool) (*Runtime, error) {
	cfg := config.Load(g.ConfigPath)

	p, err := loadPersona(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg}

	if inMemory {
		rt.Store = store.NewMemory()
	} else {
		st, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		rt.Store = st
		rt.closers = append(rt.closers, st.Close)
	}

	responses, err := cache.NewTTL[string](cfg.ResponseCacheTTL, cfg.ResponseCacheSize)
	if err != nil {
		return nil, err
	}
	models := model.NewGateway(model.Params{
		Models:            cfg.Models,
		PreferredModel:    cfg.Model,
		ContextSize:       cfg.ContextSize,
		ContextBuffer:     cfg.ContextBuffer,
		MinTokens:         cfg.MinTokens,
		FallbackMaxTokens: cfg.FallbackMaxTokens,
		DefaultMaxTokens:  cfg.DefaultMaxTokens,
		Temperature:       cfg.Temperature,
		MaxResident:       cfg.MaxModels,
		MaxConcurrent:     cfg.MaxConcurrent,
		GCInterval:        cfg.GCInterval,
	}, model.NewOllamaFactory(cfg.OllamaURL), responses)
	if err := models.Preload(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("no model could be loaded: %w", err)
	}
	rt.Models = models
	rt.closers = append(rt.closers, func() error { models.Close(); return nil })

	wf, err := workflow.New(workflow.Options{
		Persona:     p,
		MaxHistory:  cfg.MaxHistory,
		DedupeTTL:   cfg.DedupeTTL,
		DedupeSize:  cfg.DedupeSize,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.DefaultMaxTokens,
	}, rt.Store, models, prompt.NewBuilder(cache.NewPrompt(cfg.PromptCacheSize)))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Workflow = wf

	rt.Proactive = proactive.New(time.Duration(cfg.IdleCheckinMinutes)*time.Minute, p)

	log.Printf("[Gateway] ready, active model: %s", models.ActiveModel())
	return rt, nil
}

// Serve boots the runtime and runs the named connectors until SIGINT or
// SIGTERM. With no names it runs every connector whose credentials are
// configured, plus the HTTP API.
func (g *Gateway) Serve(ctx context.Context, names []string) error {
	rt, err := g.InitRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	conns, err := resolveConnectors(rt.Config, names)
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		return fmt.Errorf("no connector enabled: set TELEGRAM_BOT_TOKEN or DISCORD_BOT_TOKEN, or pass --connector http")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case s := <-sigs:
			log.Printf("[Gateway] received %v, shutting down", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	rt.Proactive.Start()
	defer rt.Proactive.Stop()

	crt := &connector.Runtime{
		Workflow:  rt.Workflow,
		Proactive: rt.Proactive,
		Config:    rt.Config,
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(conns))
	for _, c := range conns {
		wg.Add(1)
		go func(c connector.Connector) {
			defer wg.Done()
			log.Printf("[Gateway] starting connector %s", c.ID())
			if err := c.Start(ctx, crt); err != nil {
				errs <- fmt.Errorf("connector %s: %w", c.ID(), err)
				cancel()
			}
		}(c)
	}
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// Execute runs a single message through the pipeline and prints the reply.
func (g *Gateway) Execute(ctx context.Context, input string) error {
	rt, err := g.InitRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	turnCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	reply := rt.Workflow.Process(turnCtx, cliMessage(input))
	fmt.Println(reply.Text)
	return nil
}

// Run starts an interactive terminal session against the workflow.
func (g *Gateway) Run(ctx context.Context) error {
	rt, err := g.InitRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	p := rt.Workflow.Persona()
	fmt.Printf("%s chat (model=%s)\n", p.Name, rt.Models.ActiveModel())
	fmt.Println("Type /exit to quit, /stats for cache counters, /persona <name> to switch.")
	fmt.Println(p.Greeting)

	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		<-ctx.Done()
		os.Stdin.Close() // Force read error to break loop
	}()

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch input {
		case "/exit", "exit", "quit":
			return nil
		case "/stats":
			s := rt.Workflow.Stats()
			fmt.Printf("prompt cache: %d/%d hits (%.1f%%), dedupe entries: %d\n",
				s.PromptCache.Hits, s.PromptCache.Total, s.PromptCache.HitRatePercent, s.DedupeSize)
			continue
		}
		if name, ok := strings.CutPrefix(input, "/persona "); ok {
			np, err := persona.LoadByName(personasDir(), strings.TrimSpace(name))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			rt.Workflow.ChangePersona(np)
			fmt.Printf("persona switched to %s\n", np.Name)
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		reply := rt.Workflow.Process(turnCtx, cliMessage(input))
		cancel()
		fmt.Println(reply.Text)
	}
}

// cliMessage wraps terminal input as a normalized message. Every turn gets
// a fresh id so the dedupe cache never swallows a repeated question.
func cliMessage(text string) bus.NormalizedMessage {
	return bus.NormalizedMessage{
		Platform:       "cli",
		ExternalUserID: "local",
		ExternalChatID: "local",
		MessageID:      uuid.NewString(),
		Text:           text,
		Timestamp:      time.Now(),
	}
}

// resolveConnectors maps names to registered connectors; with no names it
// selects every connector whose credentials are present.
func resolveConnectors(cfg *config.Config, names []string) ([]connector.Connector, error) {
	if len(names) > 0 {
		var conns []connector.Connector
		for _, name := range names {
			c, err := connector.Get(name)
			if err != nil {
				return nil, err
			}
			conns = append(conns, c)
		}
		return conns, nil
	}

	var conns []connector.Connector
	for _, c := range connector.All() {
		switch c.ID() {
		case "telegram":
			if cfg.TelegramToken == "" {
				continue
			}
		case "discord":
			if cfg.DiscordToken == "" {
				continue
			}
		}
		conns = append(conns, c)
	}
	return conns, nil
}

// personasDir is where `/persona <name>` looks for <name>.json files.
func personasDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "personas"
	}
	return filepath.Join(home, ".curie", "personas")
}

func loadPersona(cfg *config.Config) (*persona.Persona, error) {
	if cfg.PersonaPath == "" {
		return persona.Default(), nil
	}
	p, err := persona.Load(cfg.PersonaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona %s: %w", cfg.PersonaPath, err)
	}
	return p, nil
}
