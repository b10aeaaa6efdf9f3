// Package model owns the loaded-model lifecycle: lazy loading with fallback,
// residency capping, token budgeting against a fixed context window, response
// caching and degenerate-output filtering.
package model

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// GenerateOptions are the decoding parameters passed to a backend.
type GenerateOptions struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	Stop              []string
}

// Backend is one loaded model capable of tokenization and generation.
type Backend interface {
	Name() string
	// CountTokens estimates the token length of text. An error here is
	// recoverable: callers fall back to a conservative budget.
	CountTokens(text string) (int, error)
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Close() error
}

// Factory loads a named model. Injected so tests can substitute fakes and so
// the gateway stays independent of any one inference server.
type Factory func(name string) (Backend, error)

// ollamaBackend serves a model through a local Ollama server via langchaingo.
type ollamaBackend struct {
	name   string
	client *ollama.LLM
}

// NewOllamaFactory returns a Factory for the Ollama server at serverURL
// (empty = langchaingo's default). Creating the client is cheap; the warmup
// generation forces the server to actually load the model file so that a
// missing model fails here, at load time, instead of on the first user turn.
func NewOllamaFactory(serverURL string) Factory {
	return func(name string) (Backend, error) {
		opts := []ollama.Option{ollama.WithModel(name)}
		if serverURL != "" {
			opts = append(opts, ollama.WithServerURL(serverURL))
		}
		client, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama client for %s: %w", name, err)
		}
		b := &ollamaBackend{name: name, client: client}
		if _, err := b.Generate(context.Background(), "Hi", GenerateOptions{MaxTokens: 1}); err != nil {
			return nil, fmt.Errorf("load model %s: %w", name, err)
		}
		return b, nil
	}
}

func (b *ollamaBackend) Name() string { return b.name }

func (b *ollamaBackend) CountTokens(text string) (int, error) {
	return llms.CountTokens(b.name, text), nil
}

func (b *ollamaBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	callOpts := []llms.CallOption{
		llms.WithModel(b.name),
		llms.WithMaxTokens(opts.MaxTokens),
		llms.WithTemperature(opts.Temperature),
	}
	if opts.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(opts.TopP))
	}
	if opts.TopK > 0 {
		callOpts = append(callOpts, llms.WithTopK(opts.TopK))
	}
	if opts.RepetitionPenalty > 0 {
		callOpts = append(callOpts, llms.WithRepetitionPenalty(opts.RepetitionPenalty))
	}
	if len(opts.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(opts.Stop))
	}
	return llms.GenerateFromSinglePrompt(ctx, b.client, prompt, callOpts...)
}

func (b *ollamaBackend) Close() error { return nil }
