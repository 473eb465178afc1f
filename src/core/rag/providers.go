package rag

import (
	"context"
)

// Embedder turns text into vectors
type Embedder interface {
	// EmbedDocuments returns one vector per input text, in order
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a search query
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// LLMProvider defines operations for language model interactions
type LLMProvider interface {
	// Generate returns the completion for prompt under the given system message
	Generate(ctx context.Context, system, prompt string) (string, error)
	// Ping checks that the provider is reachable
	Ping(ctx context.Context) error
}

// VectorStore defines operations for vector storage and search
type VectorStore interface {
	// Upsert stores chunks with their vectors, replacing entries with the same ID
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	// Search returns at most k results ordered by decreasing score
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)
	// DeleteBySource removes every chunk of a source document
	DeleteBySource(ctx context.Context, source string) error
	// Count returns the number of stored vectors
	Count(ctx context.Context) (int, error)
	// Clear removes all vectors; the store stays usable
	Clear(ctx context.Context) error
}
