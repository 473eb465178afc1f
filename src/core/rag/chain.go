package rag

import (
	"context"
	"fmt"
	"strings"

	"askhc/src/infrastructure/log"
)

const sourcePreviewLength = 200

// Chain answers questions from retrieved document chunks.
type Chain struct {
	embedder      Embedder
	store         VectorStore
	llm           LLMProvider
	k             int
	historyWindow int
}

// NewChain creates a retrieval chain returning the top k chunks per question
// and keeping historyWindow messages of conversation in the prompt.
func NewChain(embedder Embedder, store VectorStore, llm LLMProvider, k, historyWindow int) *Chain {
	return &Chain{
		embedder:      embedder,
		store:         store,
		llm:           llm,
		k:             k,
		historyWindow: historyWindow,
	}
}

// Answer is the result of Chain.Query.
type Answer struct {
	Text    string
	Sources []Source
}

// Retrieve returns the k chunks closest to question.
func (c *Chain) Retrieve(ctx context.Context, question string, k int) ([]SearchResult, error) {
	vector, err := c.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := c.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	return results, nil
}

// Query retrieves context for question, asks the language model and returns
// the trimmed answer. Sources are filled only when withSources is set.
func (c *Chain) Query(ctx context.Context, question string, history []Message, withSources bool) (*Answer, error) {
	log.Debug("processing question", "question", truncate(question, 50))

	results, err := c.Retrieve(ctx, question, c.k)
	if err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(FormatContext(results), question, history, c.historyWindow)
	if err != nil {
		return nil, err
	}

	text, err := c.llm.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := &Answer{Text: strings.TrimSpace(text)}
	if withSources {
		answer.Sources = BuildSources(results)
	}
	return answer, nil
}

// FormatContext joins the retrieved chunk contents with ContextSeparator.
func FormatContext(results []SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return strings.Join(parts, ContextSeparator)
}

// BuildSources turns search results into citations with a content preview.
func BuildSources(results []SearchResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		md := map[string]interface{}{
			"source":      r.Chunk.Source,
			"chunk_index": r.Chunk.Index,
			"score":       r.Score,
		}
		if r.Chunk.Page > 0 {
			md["page"] = r.Chunk.Page
		}
		sources = append(sources, Source{
			Content:  truncate(r.Chunk.Content, sourcePreviewLength) + "...",
			Metadata: md,
		})
	}
	return sources
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
