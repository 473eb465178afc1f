package weaviate

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"askhc/src/core/rag"
)

const (
	propSource     = "source"
	propPage       = "page"
	propChunkIndex = "chunkIndex"
	propContent    = "content"
)

// SDK stores chunk vectors in one Weaviate class
type SDK struct {
	client    *weaviate.Client
	className string
}

// NewSDK creates a new instance of SDK. The collection name is turned into a
// valid class name, e.g. askhc_documents becomes AskhcDocuments.
func NewSDK(client *weaviate.Client, collection string) *SDK {
	return &SDK{
		client:    client,
		className: ClassName(collection),
	}
}

// ClassName converts a collection name into a Weaviate class name.
func ClassName(collection string) string {
	parts := strings.FieldsFunc(collection, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, p := range parts {
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	if b.Len() == 0 {
		return "Documents"
	}
	return b.String()
}

func classSchema(className string) *models.Class {
	return &models.Class{
		Class:      className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: propSource, DataType: []string{"text"}, Tokenization: "field"},
			{Name: propPage, DataType: []string{"int"}},
			{Name: propChunkIndex, DataType: []string{"int"}},
			{Name: propContent, DataType: []string{"text"}},
		},
	}
}

// ensureClass creates the class when it does not exist yet
func (w *SDK) ensureClass(ctx context.Context) error {
	exists, err := w.classExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = w.client.Schema().ClassCreator().WithClass(classSchema(w.className)).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate class: %w", err)
	}
	return nil
}

// classExists checks if the class exists in the schema
func (w *SDK) classExists(ctx context.Context) (bool, error) {
	exists, err := w.client.Schema().ClassExistenceChecker().WithClassName(w.className).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check if class exists: %w", err)
	}
	return exists, nil
}

// Upsert writes the chunks in one batch. Objects use the chunk ID so that a
// second write replaces the first.
func (w *SDK) Upsert(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks and %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := w.ensureClass(ctx); err != nil {
		return err
	}

	objs := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objs[i] = &models.Object{
			Class:      w.className,
			ID:         strfmt.UUID(c.ID),
			Properties: chunkProperties(c),
			Vector:     vectors[i],
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch add vectors: %w", err)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("failed to add vector %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func chunkProperties(c rag.Chunk) map[string]interface{} {
	return map[string]interface{}{
		propSource:     c.Source,
		propPage:       c.Page,
		propChunkIndex: c.Index,
		propContent:    c.Content,
	}
}

// Search performs a nearVector query. Score is 1 - cosine distance.
func (w *SDK) Search(ctx context.Context, vector []float32, k int) ([]rag.SearchResult, error) {
	exists, err := w.classExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists || k <= 0 {
		return nil, nil
	}

	fields := []graphql.Field{
		{Name: propSource},
		{Name: propPage},
		{Name: propChunkIndex},
		{Name: propContent},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithFields(fields...).
		WithNearVector(w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to query vectors: %s", result.Errors[0].Message)
	}

	return parseSearch(result.Data, w.className), nil
}

// parseSearch reads the Get.<class> section of a GraphQL response
func parseSearch(data map[string]models.JSONObject, className string) []rag.SearchResult {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	results := make([]rag.SearchResult, 0, len(objects))
	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		additional, _ := objMap["_additional"].(map[string]interface{})
		id, _ := additional["id"].(string)
		distance, _ := additional["distance"].(float64)
		source, _ := objMap[propSource].(string)
		content, _ := objMap[propContent].(string)
		page, _ := objMap[propPage].(float64)
		index, _ := objMap[propChunkIndex].(float64)

		results = append(results, rag.SearchResult{
			Chunk: rag.Chunk{
				ID:      id,
				Source:  source,
				Page:    int(page),
				Index:   int(index),
				Content: content,
			},
			Score: float32(1 - distance),
		})
	}
	return results
}

// DeleteBySource batch deletes every object whose source matches
func (w *SDK) DeleteBySource(ctx context.Context, source string) error {
	exists, err := w.classExists(ctx)
	if err != nil || !exists {
		return err
	}

	where := filters.Where().
		WithPath([]string{propSource}).
		WithOperator(filters.Equal).
		WithValueText(source)

	_, err = w.client.Batch().ObjectsBatchDeleter().
		WithClassName(w.className).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete vectors of %s: %w", source, err)
	}
	return nil
}

// Count aggregates the object count of the class
func (w *SDK) Count(ctx context.Context) (int, error) {
	exists, err := w.classExists(ctx)
	if err != nil || !exists {
		return 0, err
	}

	result, err := w.client.GraphQL().Aggregate().
		WithClassName(w.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("failed to count vectors: %s", result.Errors[0].Message)
	}
	return parseCount(result.Data, w.className), nil
}

func parseCount(data map[string]models.JSONObject, className string) int {
	agg, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	rows, ok := agg[className].([]interface{})
	if !ok || len(rows) == 0 {
		return 0
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count)
}

// Clear deletes the class; it is created again on the next upsert
func (w *SDK) Clear(ctx context.Context) error {
	exists, err := w.classExists(ctx)
	if err != nil || !exists {
		return err
	}

	err = w.client.Schema().ClassDeleter().WithClassName(w.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete Weaviate class: %w", err)
	}
	return nil
}

// Ping checks that the server is ready
func (w *SDK) Ping(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("weaviate is not ready")
	}
	return nil
}
