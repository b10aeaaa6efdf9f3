// Package config resolves process configuration from an optional JSON file
// plus environment variables. Environment variables always win. Malformed
// numeric values never crash the process: they fall back to the default with
// a logged warning.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for every tunable. Names mirror the environment variables.
const (
	DefaultTemperature       = 0.7
	DefaultContextSize       = 2048
	DefaultContextBuffer     = 16
	DefaultMinTokens         = 64
	DefaultFallbackMaxTokens = 512
	DefaultMaxTokens         = 128
	DefaultDedupeTTL         = 600 * time.Second
	DefaultDedupeSize        = 5000
	DefaultPromptCacheSize   = 100
	DefaultResponseTTL       = 300 * time.Second
	DefaultResponseSize      = 1000
	DefaultMaxModels         = 1
	DefaultGCInterval        = 60 * time.Second
	DefaultAPIPort           = 8080
	DefaultMaxHistory        = 5
	DefaultModel             = "tinyllama"
	DefaultOllamaURL         = "http://localhost:11434"
)

// Config is the resolved process configuration.
type Config struct {
	Models    []string `json:"models"`
	Model     string   `json:"model"`
	OllamaURL string   `json:"ollama_url"`

	Temperature       float64 `json:"temperature"`
	ContextSize       int     `json:"context_size"`
	ContextBuffer     int     `json:"context_buffer"`
	MinTokens         int     `json:"min_tokens"`
	FallbackMaxTokens int     `json:"fallback_max_tokens"`
	DefaultMaxTokens  int     `json:"default_max_tokens"`

	DedupeTTL         time.Duration `json:"-"`
	DedupeSize        int           `json:"dedupe_size"`
	PromptCacheSize   int           `json:"prompt_cache_size"`
	ResponseCacheTTL  time.Duration `json:"-"`
	ResponseCacheSize int           `json:"response_cache_size"`
	MaxModels         int           `json:"max_models"`
	MaxConcurrent     int           `json:"max_concurrent"` // 0 sizes to CPU count
	GCInterval        time.Duration `json:"-"`

	DBPath      string `json:"db_path"`
	PersonaPath string `json:"persona_path"`
	MaxHistory  int    `json:"max_history"`

	APIPort       int    `json:"api_port"`
	TelegramToken string `json:"telegram_token"`
	DiscordToken  string `json:"discord_token"`

	IdleCheckinMinutes int `json:"idle_checkin_minutes"`
}

// Load reads .env (if present), then the JSON config file at path, then
// applies environment overrides. An empty path means the default location
// (~/.curie/config.json), so answers saved by the onboarding wizard are
// picked up without any flag. A missing file is not an error.
func Load(path string) *Config {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultConfigPath()
	}
	cfg := defaults()
	if err := cfg.readFile(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] warning: %v", err)
	}
	cfg.applyEnv()
	return cfg
}

func defaults() *Config {
	return &Config{
		Models:             []string{DefaultModel},
		Model:              DefaultModel,
		OllamaURL:          DefaultOllamaURL,
		DBPath:             filepath.Join(configDir(), "curie.db"),
		Temperature:        DefaultTemperature,
		ContextSize:        DefaultContextSize,
		ContextBuffer:      DefaultContextBuffer,
		MinTokens:          DefaultMinTokens,
		FallbackMaxTokens:  DefaultFallbackMaxTokens,
		DefaultMaxTokens:   DefaultMaxTokens,
		DedupeTTL:          DefaultDedupeTTL,
		DedupeSize:         DefaultDedupeSize,
		PromptCacheSize:    DefaultPromptCacheSize,
		ResponseCacheTTL:   DefaultResponseTTL,
		ResponseCacheSize:  DefaultResponseSize,
		MaxModels:          DefaultMaxModels,
		GCInterval:         DefaultGCInterval,
		APIPort:            DefaultAPIPort,
		MaxHistory:         DefaultMaxHistory,
		IdleCheckinMinutes: 0,
	}
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CURIE_MODELS"); v != "" {
		c.Models = splitCSV(v)
	}
	c.Model = stringEnv("CURIE_MODEL", c.Model)
	c.OllamaURL = stringEnv("CURIE_OLLAMA_URL", c.OllamaURL)

	c.Temperature = floatEnv("CURIE_TEMPERATURE", c.Temperature)
	c.ContextSize = intEnv("CURIE_CONTEXT_SIZE", c.ContextSize)
	c.ContextBuffer = intEnv("CURIE_CONTEXT_BUFFER", c.ContextBuffer)
	c.MinTokens = intEnv("CURIE_MIN_TOKENS", c.MinTokens)
	c.FallbackMaxTokens = intEnv("CURIE_FALLBACK_MAX_TOKENS", c.FallbackMaxTokens)
	c.DefaultMaxTokens = intEnv("CURIE_DEFAULT_MAX_TOKENS", c.DefaultMaxTokens)

	c.DedupeTTL = secondsEnv("CURIE_DEDUPE_TTL", c.DedupeTTL)
	c.DedupeSize = intEnv("CURIE_DEDUPE_SIZE", c.DedupeSize)
	c.PromptCacheSize = intEnv("CURIE_PROMPT_CACHE_SIZE", c.PromptCacheSize)
	c.ResponseCacheTTL = secondsEnv("CURIE_RESPONSE_CACHE_TTL", c.ResponseCacheTTL)
	c.ResponseCacheSize = intEnv("CURIE_RESPONSE_CACHE_SIZE", c.ResponseCacheSize)
	c.MaxModels = intEnv("CURIE_MAX_MODELS", c.MaxModels)
	c.MaxConcurrent = intEnv("CURIE_MAX_CONCURRENT", c.MaxConcurrent)
	c.GCInterval = secondsEnv("CURIE_GC_INTERVAL", c.GCInterval)

	c.DBPath = stringEnv("CURIE_DB_PATH", c.DBPath)
	c.PersonaPath = stringEnv("CURIE_PERSONA", c.PersonaPath)
	c.MaxHistory = intEnv("CURIE_MAX_HISTORY", c.MaxHistory)

	c.APIPort = intEnv("CURIE_API_PORT", c.APIPort)
	c.TelegramToken = stringEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.DiscordToken = stringEnv("DISCORD_BOT_TOKEN", c.DiscordToken)

	c.IdleCheckinMinutes = intEnv("CURIE_IDLE_CHECKIN_MINUTES", c.IdleCheckinMinutes)
}

// configDir returns ~/.curie, falling back to the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".curie")
}

// DefaultConfigPath returns ~/.curie/config.json, the path the onboarding
// wizard writes to.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.json")
}

// Save writes the config file, creating the parent directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] warning: invalid value for %s (%q), using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[Config] warning: invalid value for %s (%q), using default %v", key, v, fallback)
		return fallback
	}
	return f
}

func secondsEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] warning: invalid value for %s (%q), using default %v", key, v, fallback)
		return fallback
	}
	return time.Duration(n) * time.Second
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
