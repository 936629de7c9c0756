package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps each bucket as a directory under root.
type LocalStore struct {
	root      string
	publicURL string
}

func NewLocalStore(root, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root, publicURL: publicURL}, nil
}

func (s *LocalStore) path(bucket, key string) (string, error) {
	if err := validKey(bucket); err != nil {
		return "", err
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, bucket, key), nil
}

func (s *LocalStore) Put(ctx context.Context, bucket, key, contentType string, body io.Reader, size int64) error {
	path, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	}
	return file.Close()
}

func (s *LocalStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	path, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *LocalStore) List(ctx context.Context, bucket string) ([]Object, error) {
	if err := validKey(bucket); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, bucket))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list bucket: %w", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		objects = append(objects, Object{Key: e.Name(), Size: info.Size(), LastModified: info.ModTime()})
	}
	return objects, nil
}

func (s *LocalStore) Delete(ctx context.Context, bucket string, keys ...string) error {
	for _, key := range keys {
		path, err := s.path(bucket, key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

func (s *LocalStore) URL(bucket, key string) string {
	return publicURL(s.publicURL, bucket, key)
}
