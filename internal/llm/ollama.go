package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "gemma2:2b"
)

// ollamaProvider talks to a local Ollama inference server.
type ollamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        zerolog.Logger
}

func newOllama(baseURL, model string, log zerolog.Logger) *ollamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &ollamaProvider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

func (p *ollamaProvider) Name() string { return "ollama" }

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (p *ollamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:   p.model,
		Prompt:  prompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: 0.7, NumPredict: 1024},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &Error{Code: ErrUnavailable, Provider: p.Name(), Message: "request failed", Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		p.log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("ollama error response")
		return "", &Error{
			Code:      ErrBadStatus,
			Provider:  p.Name(),
			Message:   fmt.Sprintf("status %d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Code: ErrBadResponse, Provider: p.Name(), Message: "decode response", Cause: err}
	}
	return out.Response, nil
}
