package fsutil

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"sort"

	"askhc/src/storage/minioctrl"
)

// ObjectStorage is the part of minioctrl.MinioService used by MinioFileStore.
type ObjectStorage interface {
	EnsureBucketExists(ctx context.Context, bucketName string) error
	GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
	PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, bucketName, objectName string) error
	ListObjects(ctx context.Context, bucketName string) ([]minioctrl.ObjectInfo, error)
}

// MinioFileStore implements FileStore on one object storage bucket
type MinioFileStore struct {
	storage ObjectStorage
	bucket  string
}

// NewMinioFileStore creates the bucket if needed
func NewMinioFileStore(ctx context.Context, storage ObjectStorage, bucket string) (*MinioFileStore, error) {
	if err := storage.EnsureBucketExists(ctx, bucket); err != nil {
		return nil, err
	}
	return &MinioFileStore{storage: storage, bucket: bucket}, nil
}

func (s *MinioFileStore) Save(ctx context.Context, name string, data []byte) error {
	return s.storage.PutObject(ctx, s.bucket, name, data, mime.TypeByExtension(filepath.Ext(name)))
}

func (s *MinioFileStore) ReadFile(ctx context.Context, name string) ([]byte, error) {
	data, err := s.storage.GetObject(ctx, s.bucket, name)
	if errors.Is(err, minioctrl.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *MinioFileStore) Delete(ctx context.Context, name string) error {
	err := s.storage.DeleteObject(ctx, s.bucket, name)
	if errors.Is(err, minioctrl.ErrObjectNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *MinioFileStore) List(ctx context.Context) ([]FileInfo, error) {
	objects, err := s.storage.ListObjects(ctx, s.bucket)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(objects))
	for _, obj := range objects {
		files = append(files, FileInfo{
			Name:    obj.Key,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
