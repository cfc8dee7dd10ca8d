package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gemma2:2b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "extract this", req.Prompt)

		json.NewEncoder(w).Encode(ollamaResponse{Response: `{"amount": 5000}`})
	}))
	defer srv.Close()

	p := newOllama(srv.URL, "", zerolog.Nop())
	text, err := p.Complete(context.Background(), "extract this")
	require.NoError(t, err)
	assert.Equal(t, `{"amount": 5000}`, text)
}

func TestOllamaServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newOllama(srv.URL, "gemma2:2b", zerolog.Nop())
	_, err := p.Complete(context.Background(), "hello")

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrBadStatus, provErr.Code)
	assert.True(t, provErr.Retryable)
}

func TestOllamaUnreachableIsRetryable(t *testing.T) {
	// Reserve then close a port so nothing is listening on it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	p := newOllama(addr, "gemma2:2b", zerolog.Nop())
	_, err := p.Complete(context.Background(), "hello")

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrUnavailable, provErr.Code)
	assert.True(t, provErr.Retryable)
}

func TestOllamaDefaults(t *testing.T) {
	p := newOllama("", "", zerolog.Nop())
	assert.Equal(t, defaultOllamaURL, p.baseURL)
	assert.Equal(t, defaultOllamaModel, p.model)
	assert.Equal(t, "ollama", p.Name())
}
