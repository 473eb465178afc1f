package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"askhc/src/core/rag"
)

// Store keeps chunk vectors in an Elasticsearch index with a dense_vector
// field. The index is created on the first upsert, when the dimension is
// known.
type Store struct {
	es    *elasticsearch.Client
	index string

	mu      sync.Mutex
	created bool
}

// NewStore wraps an existing client. The collection name is lowercased to
// form a valid index name.
func NewStore(es *elasticsearch.Client, collection string) *Store {
	return &Store{
		es:    es,
		index: strings.ToLower(collection),
	}
}

// NewClient builds an Elasticsearch client for the given addresses
func NewClient(addresses []string, username, password string, transport http.RoundTripper) (*elasticsearch.Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return es, nil
}

type document struct {
	Source     string    `json:"source"`
	Page       int       `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Vector     []float32 `json:"vector,omitempty"`
}

// Mapping returns the index body for vectors of the given dimension
func Mapping(dims int) map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"source":      map[string]interface{}{"type": "keyword"},
				"page":        map[string]interface{}{"type": "integer"},
				"chunk_index": map[string]interface{}{"type": "integer"},
				"content":     map[string]interface{}{"type": "text"},
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
}

// KNNQuery returns the search body for a kNN query
func KNNQuery(vector []float32, k int) map[string]interface{} {
	return map[string]interface{}{
		"size": k,
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": max(k*10, 100),
		},
		"_source": []string{"source", "page", "chunk_index", "content"},
	}
}

func (s *Store) ensureIndex(ctx context.Context, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}

	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		s.created = true
		return nil
	}

	body, err := encode(Mapping(dims))
	if err != nil {
		return err
	}
	res, err = s.es.Indices.Create(s.index,
		s.es.Indices.Create.WithBody(body),
		s.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := checkResponse(res, "create index"); err != nil {
		return err
	}
	s.created = true
	return nil
}

// Upsert indexes the chunks with one bulk request, using the chunk ID as
// document ID.
func (s *Store) Upsert(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks and %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureIndex(ctx, len(vectors[0])); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, c := range chunks {
		meta := map[string]interface{}{"index": map[string]interface{}{"_id": c.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
		doc := document{
			Source:     c.Source,
			Page:       c.Page,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Vector:     vectors[i],
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}

	res, err := s.es.Bulk(&buf,
		s.es.Bulk.WithIndex(s.index),
		s.es.Bulk.WithRefresh("true"),
		s.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res, "bulk index")
	}

	var bulk struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string `json:"_id"`
			Error *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulk.Errors {
		for _, item := range bulk.Items {
			for _, op := range item {
				if op.Error != nil {
					return fmt.Errorf("failed to index %s: %s", op.ID, op.Error.Reason)
				}
			}
		}
	}
	return nil
}

// Search runs a kNN query. Scores are mapped back from (1+cos)/2 to cosine.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]rag.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	body, err := encode(KNNQuery(vector, k))
	if err != nil {
		return nil, err
	}

	res, err := s.es.Search(
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(body),
		s.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError(res, "search")
	}

	var out struct {
		Hits struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Score  float32  `json:"_score"`
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]rag.SearchResult, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		results = append(results, rag.SearchResult{
			Chunk: rag.Chunk{
				ID:      h.ID,
				Source:  h.Source.Source,
				Page:    h.Source.Page,
				Index:   h.Source.ChunkIndex,
				Content: h.Source.Content,
			},
			Score: 2*h.Score - 1,
		})
	}
	return results, nil
}

// DeleteBySource deletes every document with the given source term
func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	body, err := encode(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"source": source},
		},
	})
	if err != nil {
		return err
	}

	res, err := s.es.DeleteByQuery([]string{s.index}, body,
		s.es.DeleteByQuery.WithRefresh(true),
		s.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete by query: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return responseError(res, "delete by query")
	}
	return nil
}

// Count returns the number of documents; a missing index counts as empty
func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.es.Count(
		s.es.Count.WithIndex(s.index),
		s.es.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, responseError(res, "count")
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return out.Count, nil
}

// Clear drops the index; the next upsert creates it again
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.es.Indices.Delete([]string{s.index},
		s.es.Indices.Delete.WithIgnoreUnavailable(true),
		s.es.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	if err := checkResponse(res, "delete index"); err != nil {
		return err
	}
	s.created = false
	return nil
}

// Ping checks that the cluster answers
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	return checkResponse(res, "ping")
}

func encode(v interface{}) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return &buf, nil
}

// checkResponse closes the body and turns an error status into an error
func checkResponse(res *esapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res, op)
	}
	return nil
}

func responseError(res *esapi.Response, op string) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("elasticsearch %s failed: %s: %s", op, res.Status(), strings.TrimSpace(string(msg)))
}
