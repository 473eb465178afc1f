package job

import (
	"context"
	"encoding/json"
	"fmt"

	"askhc/src/core/document"
)

const (
	TaskTypeReindex       = "reindex"
	TaskTypeIndexDocument = "index_document"
)

// Indexer is the part of the document service the tasks use
type Indexer interface {
	Reindex(ctx context.Context) (*document.LoadResult, int, error)
	IndexStored(ctx context.Context, name string) (int, error)
}

type IndexDocumentPayload struct {
	Filename string `json:"filename"`
}

type ReindexResult struct {
	document.LoadResult
	TotalDocuments int `json:"total_documents"`
}

type IndexDocumentResult struct {
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
}

// RegisterDocumentTasks registers the reindex and index_document tasks
func RegisterDocumentTasks(s *JobService, docs Indexer) {
	s.Register(TaskTypeReindex, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		res, total, err := docs.Reindex(ctx)
		if err != nil {
			return nil, err
		}
		return ReindexResult{LoadResult: *res, TotalDocuments: total}, nil
	})

	s.Register(TaskTypeIndexDocument, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var p IndexDocumentPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal index_document payload: %w", err)
		}
		name, err := document.SanitizeFilename(p.Filename)
		if err != nil {
			return nil, fmt.Errorf("index_document payload filename %q: %w", p.Filename, err)
		}
		chunks, err := docs.IndexStored(ctx, name)
		if err != nil {
			return nil, err
		}
		return IndexDocumentResult{Filename: name, ChunksCreated: chunks}, nil
	})
}
