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

// cloudProvider speaks to a hosted chat-completion API described by a
// registry endpoint.
type cloudProvider struct {
	name       string
	key        string
	ep         endpoint
	httpClient *http.Client
	log        zerolog.Logger
}

func newCloud(name, key string, ep endpoint, log zerolog.Logger) *cloudProvider {
	return &cloudProvider{
		name: name,
		key:  key,
		ep:   ep,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

func (p *cloudProvider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openai-chat request/response

type openAIChatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// anthropic-messages request/response

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (p *cloudProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p.key == "" {
		// Fail before any network I/O.
		return "", &Error{Code: ErrMissingKey, Provider: p.name, Message: "no API key configured"}
	}

	var payload any
	switch p.ep.Shape {
	case shapeAnthropicMessages:
		payload = anthropicRequest{
			Model:     p.ep.Model,
			MaxTokens: 1024,
			Messages:  []chatMessage{{Role: "user", Content: prompt}},
		}
	default:
		payload = openAIChatRequest{
			Model:     p.ep.Model,
			Messages:  []chatMessage{{Role: "user", Content: prompt}},
			MaxTokens: 1024,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ep.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(p.ep.AuthHeader, p.ep.AuthPrefix+p.key)
	if p.ep.Shape == shapeAnthropicMessages {
		req.Header.Set("anthropic-version", anthropicVersion)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &Error{Code: ErrUnavailable, Provider: p.name, Message: "request failed", Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		p.log.Warn().
			Str("provider", p.name).
			Int("status", resp.StatusCode).
			Str("body", string(errBody)).
			Msg("llm error response")
		return "", &Error{
			Code:      ErrBadStatus,
			Provider:  p.name,
			Message:   fmt.Sprintf("status %d", resp.StatusCode),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	switch p.ep.Shape {
	case shapeAnthropicMessages:
		var out anthropicResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", &Error{Code: ErrBadResponse, Provider: p.name, Message: "decode response", Cause: err}
		}
		if len(out.Content) == 0 {
			return "", &Error{Code: ErrBadResponse, Provider: p.name, Message: "empty content"}
		}
		return out.Content[0].Text, nil
	default:
		var out openAIChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", &Error{Code: ErrBadResponse, Provider: p.name, Message: "decode response", Cause: err}
		}
		if len(out.Choices) == 0 {
			return "", &Error{Code: ErrBadResponse, Provider: p.name, Message: "empty choices"}
		}
		return out.Choices[0].Message.Content, nil
	}
}
