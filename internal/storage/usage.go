package storage

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"sort"
)

const recentObjects = 5

type BucketUsage struct {
	Bucket      string   `json:"bucket"`
	ObjectCount int      `json:"object_count"`
	TotalBytes  int64    `json:"total_bytes"`
	Recent      []Object `json:"recent"`
}

// Usage summarizes a bucket: object count, total size and the newest objects.
func Usage(ctx context.Context, store Store, bucket string) (BucketUsage, error) {
	objects, err := store.List(ctx, bucket)
	if err != nil {
		return BucketUsage{}, err
	}

	usage := BucketUsage{Bucket: bucket, ObjectCount: len(objects), Recent: []Object{}}
	for _, o := range objects {
		usage.TotalBytes += o.Size
	}

	sort.Slice(objects, func(i, j int) bool {
		if objects[i].LastModified.Equal(objects[j].LastModified) {
			return objects[i].Key > objects[j].Key
		}
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	if len(objects) > recentObjects {
		objects = objects[:recentObjects]
	}
	usage.Recent = append(usage.Recent, objects...)
	return usage, nil
}

// ArchiveContents lists the objects of bucket in archive order.
func ArchiveContents(ctx context.Context, store Store, bucket string) ([]Object, error) {
	objects, err := store.List(ctx, bucket)
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// WriteArchive streams objects of bucket into a zip written to w, one object at a time.
func WriteArchive(ctx context.Context, store Store, bucket string, objects []Object, w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, o := range objects {
		if err := addToArchive(ctx, store, zw, bucket, o); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func addToArchive(ctx context.Context, store Store, zw *zip.Writer, bucket string, o Object) error {
	rc, err := store.Open(ctx, bucket, o.Key)
	if err != nil {
		return fmt.Errorf("open %s: %w", o.Key, err)
	}
	defer rc.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     o.Key,
		Method:   zip.Store,
		Modified: o.LastModified,
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return fmt.Errorf("archive %s: %w", o.Key, err)
	}
	return nil
}

// Clear deletes every object in bucket and returns the keys removed.
func Clear(ctx context.Context, store Store, bucket string) ([]string, error) {
	objects, err := store.List(ctx, bucket)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	if len(keys) == 0 {
		return keys, nil
	}
	if err := store.Delete(ctx, bucket, keys...); err != nil {
		return nil, err
	}
	return keys, nil
}
