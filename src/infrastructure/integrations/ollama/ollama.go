package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"askhc/src/infrastructure/log"
)

const (
	DefaultURL = "http://localhost:11434"
)

// Client implements rag.Embedder and rag.LLMProvider on a local Ollama server
type Client struct {
	api            *api.Client
	model          string
	embeddingModel string
	options        map[string]interface{}
}

// NewClient creates a new Ollama API client. A trailing /api on baseURL is
// accepted for compatibility with older settings.
func NewClient(baseURL string, c *http.Client, model, embeddingModel string, maxTokens int, temperature float32) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/api")

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}

	return &Client{
		api:            api.NewClient(u, c),
		model:          model,
		embeddingModel: embeddingModel,
		options: map[string]interface{}{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}, nil
}

// EmbedDocuments generates one embedding vector per text
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("error making embed request: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// EmbedQuery generates the embedding vector of a single text
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Generate performs a non-streaming chat with a system and a user message
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream:  &stream,
		Options: c.options,
	}

	var answer strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		answer.WriteString(resp.Message.Content)
		if resp.Done && resp.DoneReason == "length" {
			log.Info("ollama response was truncated by the token limit", "model", c.model)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("error making chat request: %w", err)
	}
	if answer.Len() == 0 {
		return "", errors.New("no response received from Ollama")
	}
	return answer.String(), nil
}

// Ping checks that the server answers
func (c *Client) Ping(ctx context.Context) error {
	return c.api.Heartbeat(ctx)
}
