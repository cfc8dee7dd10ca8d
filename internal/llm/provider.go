// Package llm is the single chokepoint for asking a language model a
// question. It hides provider-specific request and response shapes behind one
// Complete call, whether the model runs locally under Ollama or behind a
// cloud chat-completion API.
package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// Provider turns a prompt into completion text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// KeyRef pairs a provider id with its API key.
type KeyRef struct {
	Provider string `json:"provider"`
	Key      string `json:"key"`
}

// Config selects and configures a provider. Field names mirror the app's
// settings file.
type Config struct {
	OllamaURL   string   `json:"ollama_url"`
	OllamaModel string   `json:"ollama_model"`
	APIKeys     []KeyRef `json:"api_keys"`
	Provider    string   `json:"llm_provider"`
	APIKey      string   `json:"api_key"`
}

// Resolve picks the provider for a config:
//
//  1. a configured local Ollama model always wins,
//  2. otherwise the first entry of the api_keys list,
//  3. otherwise the single provider/key pair,
//  4. otherwise local Ollama with defaults.
//
// Resolution is pure; no network happens until Complete is called.
func Resolve(cfg Config, log zerolog.Logger) Provider {
	if cfg.OllamaModel != "" {
		return newOllama(cfg.OllamaURL, cfg.OllamaModel, log)
	}
	if len(cfg.APIKeys) > 0 {
		return newProvider(cfg.APIKeys[0].Provider, cfg.APIKeys[0].Key, cfg, log)
	}
	if cfg.Provider != "" {
		return newProvider(cfg.Provider, cfg.APIKey, cfg, log)
	}
	return newOllama(cfg.OllamaURL, "", log)
}

func newProvider(name, key string, cfg Config, log zerolog.Logger) Provider {
	if name == "" || name == "ollama" {
		return newOllama(cfg.OllamaURL, cfg.OllamaModel, log)
	}
	if ep, ok := registry[name]; ok {
		return newCloud(name, key, ep, log)
	}
	return &unknownProvider{name: name}
}

// unknownProvider fails every call with a non-retryable error.
type unknownProvider struct {
	name string
}

func (p *unknownProvider) Name() string { return p.name }

func (p *unknownProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return "", &Error{Code: ErrUnknownBackend, Provider: p.name, Message: "no such provider in registry"}
}
