// Package config loads application settings from the JSON settings file the
// desktop app maintains, with environment variable overrides for headless
// use.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/minoapp/minosync/internal/llm"
	"github.com/minoapp/minosync/internal/mail"
)

// Config mirrors the settings file's keys.
type Config struct {
	GmailUser    string       `json:"gmail_user"`
	GmailAppPass string       `json:"gmail_app_pass"`
	SubjectTag   string       `json:"subject_tag"`
	OllamaURL    string       `json:"ollama_url"`
	OllamaModel  string       `json:"ollama_model"`
	APIKeys      []llm.KeyRef `json:"api_keys"`
	LLMProvider  string       `json:"llm_provider"`
	APIKey       string       `json:"api_key"`
	DBPath       string       `json:"db_path"`
	SyncDaysBack int          `json:"sync_days_back"`
}

// DefaultPath returns the settings file location under the user's home
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".mino", "config.json")
}

// DefaultDBPath returns the database location used when the settings file
// doesn't name one.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mino.db"
	}
	return filepath.Join(home, ".mino", "mino.db")
}

// Load reads the settings file at path, then applies environment overrides.
// A missing file is not an error; overrides alone can configure a run.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"MINO_GMAIL_USER":     &cfg.GmailUser,
		"MINO_GMAIL_APP_PASS": &cfg.GmailAppPass,
		"MINO_SUBJECT_TAG":    &cfg.SubjectTag,
		"MINO_OLLAMA_URL":     &cfg.OllamaURL,
		"MINO_OLLAMA_MODEL":   &cfg.OllamaModel,
		"MINO_LLM_PROVIDER":   &cfg.LLMProvider,
		"MINO_API_KEY":        &cfg.APIKey,
		"MINO_DB_PATH":        &cfg.DBPath,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

// Mail builds the mailbox configuration for the mail client.
func (c *Config) Mail() mail.Config {
	return mail.Config{
		User:        c.GmailUser,
		AppPassword: c.GmailAppPass,
		SubjectTag:  c.SubjectTag,
	}
}

// LLM builds the provider-selection configuration for the gateway.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		OllamaURL:   c.OllamaURL,
		OllamaModel: c.OllamaModel,
		APIKeys:     c.APIKeys,
		Provider:    c.LLMProvider,
		APIKey:      c.APIKey,
	}
}
