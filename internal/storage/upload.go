package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"wasteportal-backend/internal/models"

	"github.com/google/uuid"
)

var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// UploadError is a client mistake in the uploaded files.
type UploadError struct {
	File string
	Msg  string
}

func (e *UploadError) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return e.File + ": " + e.Msg
}

// ValidateImages checks count, size, extension and sniffed content of each file.
func ValidateImages(files []*multipart.FileHeader, maxFiles int, maxBytes int64) error {
	if len(files) > maxFiles {
		return &UploadError{Msg: fmt.Sprintf("at most %d images per submission", maxFiles)}
	}
	for _, fh := range files {
		if fh.Size > maxBytes {
			return &UploadError{File: fh.Filename, Msg: fmt.Sprintf("image larger than %d bytes", maxBytes)}
		}
		if fh.Size == 0 {
			return &UploadError{File: fh.Filename, Msg: "image is empty"}
		}
		want, ok := allowedImageTypes[strings.ToLower(filepath.Ext(fh.Filename))]
		if !ok {
			return &UploadError{File: fh.Filename, Msg: "only .jpg, .jpeg and .png images are allowed"}
		}
		got, err := sniff(fh)
		if err != nil {
			return err
		}
		if got != want {
			return &UploadError{File: fh.Filename, Msg: "file content does not match its extension"}
		}
	}
	return nil
}

func sniff(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return http.DetectContentType(head[:n]), nil
}

// ObjectKey builds "{username}_{YYYYmmdd_HHMMSS}_{n}_{rand}{ext}".
func ObjectKey(username string, at time.Time, n int, ext string) string {
	rnd := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s%s",
		safeName(username), at.Format("20060102_150405"), n, rnd, strings.ToLower(ext))
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// SaveImages uploads validated files and returns unsaved image rows for them.
// On failure the objects already written are removed.
func SaveImages(ctx context.Context, store Store, bucket string, kind models.SubmissionKind, user string, userID uint, files []*multipart.FileHeader, at time.Time) ([]models.SubmissionImage, error) {
	images := make([]models.SubmissionImage, 0, len(files))
	for i, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		key := ObjectKey(user, at, i+1, ext)

		if err := putFile(ctx, store, bucket, key, allowedImageTypes[ext], fh); err != nil {
			RemoveImages(ctx, store, images)
			return nil, err
		}

		images = append(images, models.SubmissionImage{
			SubmissionKind: kind,
			Bucket:         bucket,
			ObjectKey:      key,
			FileName:       filepath.Base(fh.Filename),
			ContentType:    allowedImageTypes[ext],
			Size:           fh.Size,
			URL:            store.URL(bucket, key),
			UploadedBy:     userID,
		})
	}
	return images, nil
}

func putFile(ctx context.Context, store Store, bucket, key, contentType string, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	return store.Put(ctx, bucket, key, contentType, bytes.NewReader(data), int64(len(data)))
}

// RemoveImages deletes the objects behind images, grouped by bucket. Errors are ignored.
func RemoveImages(ctx context.Context, store Store, images []models.SubmissionImage) {
	byBucket := map[string][]string{}
	for _, img := range images {
		byBucket[img.Bucket] = append(byBucket[img.Bucket], img.ObjectKey)
	}
	for bucket, keys := range byBucket {
		_ = store.Delete(ctx, bucket, keys...)
	}
}
