package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsWhenNothingSet(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := Load("")

	if cfg.ContextSize != DefaultContextSize {
		t.Fatalf("expected context size %d, got %d", DefaultContextSize, cfg.ContextSize)
	}
	if cfg.DedupeTTL != DefaultDedupeTTL {
		t.Fatalf("expected dedupe ttl %v, got %v", DefaultDedupeTTL, cfg.DedupeTTL)
	}
	if cfg.MaxModels != DefaultMaxModels {
		t.Fatalf("expected max models %d, got %d", DefaultMaxModels, cfg.MaxModels)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CURIE_CONTEXT_SIZE", "4096")
	t.Setenv("CURIE_MODELS", "llama3.2, mistral ,")
	t.Setenv("CURIE_TEMPERATURE", "0.2")
	t.Setenv("CURIE_DEDUPE_TTL", "30")

	cfg := Load("")
	if cfg.ContextSize != 4096 {
		t.Fatalf("expected 4096, got %d", cfg.ContextSize)
	}
	if len(cfg.Models) != 2 || cfg.Models[0] != "llama3.2" || cfg.Models[1] != "mistral" {
		t.Fatalf("unexpected models: %#v", cfg.Models)
	}
	if cfg.Temperature != 0.2 {
		t.Fatalf("expected 0.2, got %v", cfg.Temperature)
	}
	if cfg.DedupeTTL != 30*time.Second {
		t.Fatalf("expected 30s, got %v", cfg.DedupeTTL)
	}
}

func TestMalformedValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CURIE_CONTEXT_SIZE", "not-a-number")
	t.Setenv("CURIE_TEMPERATURE", "warm")
	t.Setenv("CURIE_DEDUPE_TTL", "soon")

	cfg := Load("")
	if cfg.ContextSize != DefaultContextSize {
		t.Fatalf("malformed int should fall back, got %d", cfg.ContextSize)
	}
	if cfg.Temperature != DefaultTemperature {
		t.Fatalf("malformed float should fall back, got %v", cfg.Temperature)
	}
	if cfg.DedupeTTL != DefaultDedupeTTL {
		t.Fatalf("malformed duration should fall back, got %v", cfg.DedupeTTL)
	}
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Load("")
	cfg.Model = "llama3.2"
	cfg.APIPort = 9191
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := Load(path)
	if got.Model != "llama3.2" {
		t.Fatalf("expected model round-trip, got %q", got.Model)
	}
	if got.APIPort != 9191 {
		t.Fatalf("expected port round-trip, got %d", got.APIPort)
	}
}

func TestLoadEmptyPathReadsDefaultLocation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	wizard := Load("")
	wizard.Model = "from-wizard"
	if err := wizard.Save(DefaultConfigPath()); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := Load("")
	if got.Model != "from-wizard" {
		t.Fatalf("expected saved default-path config to load, got %q", got.Model)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Load("")
	cfg.Model = "from-file"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	t.Setenv("CURIE_MODEL", "from-env")
	got := Load(path)
	if got.Model != "from-env" {
		t.Fatalf("env must override file, got %q", got.Model)
	}
}
