package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"askhc/src/core/rag"
)

// Store is an embedded vector store backed by chromem-go, either in memory
// or persisted under a directory.
type Store struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	name       string
}

// NewStore opens the collection at path. An empty path keeps everything in
// memory.
func NewStore(path, collectionName string) (*Store, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	s := &Store{db: db, name: collectionName}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Vectors are always computed by the caller; a missing embedding is a bug.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("chromem store expects precomputed embeddings")
}

func (s *Store) open() error {
	c, err := s.db.GetOrCreateCollection(s.name, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	s.collection = c
	return nil
}

func (s *Store) Upsert(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks and %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  c.Metadata(),
			Embedding: vectors[i],
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]rag.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem rejects nResults larger than the collection
	count := s.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	res, err := s.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]rag.SearchResult, len(res))
	for i, r := range res {
		results[i] = rag.SearchResult{
			Chunk: rag.ChunkFromMetadata(r.ID, r.Content, r.Metadata),
			Score: r.Similarity,
		}
	}
	return results, nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.collection.Delete(ctx, map[string]string{"source": source}, nil); err != nil {
		return fmt.Errorf("failed to delete documents of %s: %w", source, err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return s.open()
}
