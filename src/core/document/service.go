package document

import (
	"context"
	"errors"
	"fmt"

	"askhc/src/core/rag"
	"askhc/src/fsutil"
	"askhc/src/infrastructure/log"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Service manages the document files and their vectors.
type Service struct {
	files     fsutil.FileStore
	store     rag.VectorStore
	embedder  rag.Embedder
	splitter  *Splitter
	batchSize int
}

func NewService(files fsutil.FileStore, store rag.VectorStore, embedder rag.Embedder, splitter *Splitter, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Service{
		files:     files,
		store:     store,
		embedder:  embedder,
		splitter:  splitter,
		batchSize: batchSize,
	}
}

type UploadResult struct {
	Message        string `json:"message"`
	Filename       string `json:"filename"`
	ChunksCreated  int    `json:"chunks_created"`
	TotalDocuments int    `json:"total_documents"`
}

// File is an uploaded file.
type File struct {
	Name string
	Data []byte
}

type FileResult struct {
	Filename      string `json:"filename"`
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created,omitempty"`
	Message       string `json:"message,omitempty"`
}

type BatchUploadResult struct {
	Results               []FileResult `json:"results"`
	TotalChunksCreated    int          `json:"total_chunks_created"`
	TotalDocumentsInStore int          `json:"total_documents_in_store"`
}

type FileEntry struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Extension string `json:"extension"`
}

type ListResult struct {
	Documents      []FileEntry `json:"documents"`
	Count          int         `json:"count"`
	VectorsInStore int         `json:"vectors_in_store"`
}

type LoadResult struct {
	Files       int `json:"files"`
	Failed      int `json:"failed"`
	TotalChunks int `json:"total_chunks"`
}

// Upload stores the file and indexes it. If indexing fails the stored file
// is removed again.
func (s *Service) Upload(ctx context.Context, name string, data []byte) (*UploadResult, error) {
	name, err := SanitizeFilename(name)
	if err != nil {
		return nil, err
	}
	if !IsSupported(name) {
		return nil, unsupported(name)
	}

	if err := s.files.Save(ctx, name, data); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", name, err)
	}

	chunks, err := s.index(ctx, name, data)
	if err != nil {
		if delErr := s.files.Delete(ctx, name); delErr != nil {
			log.Error(delErr, "failed to remove file after indexing error", "file", name)
		}
		if delErr := s.store.DeleteBySource(ctx, name); delErr != nil {
			log.Error(delErr, "failed to remove partial vectors", "file", name)
		}
		return nil, fmt.Errorf("failed to process file: %w", err)
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}

	log.Info("document indexed", "file", name, "chunks", chunks, "vectors", total)
	return &UploadResult{
		Message:        "Document uploaded and indexed successfully",
		Filename:       name,
		ChunksCreated:  chunks,
		TotalDocuments: total,
	}, nil
}

// UploadMany uploads every file independently and reports a result per file.
func (s *Service) UploadMany(ctx context.Context, files []File) (*BatchUploadResult, error) {
	res := &BatchUploadResult{Results: make([]FileResult, 0, len(files))}
	for _, f := range files {
		up, err := s.Upload(ctx, f.Name, f.Data)
		if err != nil {
			res.Results = append(res.Results, FileResult{
				Filename: f.Name,
				Status:   StatusError,
				Message:  err.Error(),
			})
			continue
		}
		res.Results = append(res.Results, FileResult{
			Filename:      up.Filename,
			Status:        StatusSuccess,
			ChunksCreated: up.ChunksCreated,
		})
		res.TotalChunksCreated += up.ChunksCreated
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	res.TotalDocumentsInStore = total
	return res, nil
}

// List returns the stored files with a supported extension.
func (s *Service) List(ctx context.Context) (*ListResult, error) {
	files, err := s.files.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	res := &ListResult{Documents: []FileEntry{}}
	for _, f := range files {
		if !IsSupported(f.Name) {
			continue
		}
		res.Documents = append(res.Documents, FileEntry{
			Filename:  f.Name,
			SizeBytes: f.Size,
			Extension: Extension(f.Name),
		})
	}
	res.Count = len(res.Documents)

	if res.VectorsInStore, err = s.store.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	return res, nil
}

// Delete removes a stored file and its vectors.
func (s *Service) Delete(ctx context.Context, name string) error {
	name, err := SanitizeFilename(name)
	if err != nil {
		return err
	}

	if err := s.files.Delete(ctx, name); err != nil {
		if errors.Is(err, fsutil.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	if err := s.store.DeleteBySource(ctx, name); err != nil {
		return err
	}
	log.Info("document deleted", "file", name)
	return nil
}

// Clear drops every vector. Stored files are kept. It returns the number of
// vectors left in the store.
func (s *Service) Clear(ctx context.Context) (int, error) {
	if err := s.store.Clear(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear vector store: %w", err)
	}
	return s.store.Count(ctx)
}

// Reindex clears the vector store and indexes every stored file again.
func (s *Service) Reindex(ctx context.Context) (*LoadResult, int, error) {
	if _, err := s.Clear(ctx); err != nil {
		return nil, 0, err
	}

	res, err := s.LoadDirectory(ctx, nil)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return res, total, nil
}

// LoadDirectory indexes every supported stored file. Files that fail are
// logged and skipped. progress, if not nil, is called after each file.
func (s *Service) LoadDirectory(ctx context.Context, progress func(name string)) (*LoadResult, error) {
	files, err := s.files.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	res := &LoadResult{}
	for _, f := range files {
		if !IsSupported(f.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunks, err := s.IndexStored(ctx, f.Name)
		if progress != nil {
			progress(f.Name)
		}
		if err != nil {
			log.Error(err, "failed to index document", "file", f.Name)
			res.Failed++
			continue
		}
		res.Files++
		res.TotalChunks += chunks
	}
	return res, nil
}

// IndexStored (re)indexes a file that is already in the file store.
func (s *Service) IndexStored(ctx context.Context, name string) (int, error) {
	data, err := s.files.ReadFile(ctx, name)
	if err != nil {
		if errors.Is(err, fsutil.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
		}
		return 0, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return s.index(ctx, name, data)
}

// Count returns the number of vectors in the store.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// index replaces the vectors of name with freshly embedded chunks of data.
func (s *Service) index(ctx context.Context, name string, data []byte) (int, error) {
	doc, err := Load(name, data)
	if err != nil {
		return 0, err
	}

	chunks, err := s.splitter.SplitDocument(doc)
	if err != nil {
		return 0, err
	}

	if err := s.store.DeleteBySource(ctx, name); err != nil {
		return 0, fmt.Errorf("failed to remove previous vectors: %w", err)
	}
	if len(chunks) == 0 {
		log.Info("document has no text to index", "file", name)
		return 0, nil
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if err := s.store.Upsert(ctx, batch, vectors); err != nil {
			return 0, fmt.Errorf("failed to store chunks %d-%d: %w", start, end-1, err)
		}
		log.Debug("indexed batch", "file", name, "from", start, "to", end-1)
	}

	return len(chunks), nil
}
