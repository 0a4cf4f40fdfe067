package core

import (
	"context"

	"github.com/quka-ai/knowledge-sync/pkg/object-storage/s3"
)

// FileStorage stores uploads in the configured bucket, objects are addressed by url.
type FileStorage struct {
	cli *s3.S3
}

func NewFileStorage(cli *s3.S3) *FileStorage {
	return &FileStorage{cli: cli}
}

func (f *FileStorage) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	return f.cli.Upload(ctx, key, body, contentType)
}

func (f *FileStorage) Download(ctx context.Context, url string) ([]byte, string, error) {
	key, err := f.cli.KeyFromURL(url)
	if err != nil {
		return nil, "", err
	}
	res, err := f.cli.GetObject(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return res.File, res.FileType, nil
}

func (f *FileStorage) Delete(ctx context.Context, url string) error {
	key, err := f.cli.KeyFromURL(url)
	if err != nil {
		return err
	}
	return f.cli.Delete(ctx, key)
}
