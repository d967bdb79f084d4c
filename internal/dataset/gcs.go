package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
)

// GCSSource resolves handles to objects in a Cloud Storage bucket.
type GCSSource struct {
	client     *storage.Client
	bucketName string
}

func NewGCSSource(ctx context.Context, bucketName string) (*GCSSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSource{
		client:     client,
		bucketName: bucketName,
	}, nil
}

func (s *GCSSource) Close() error {
	return s.client.Close()
}

func (s *GCSSource) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(handle)

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError(handle, err)
	}
	return reader, nil
}

func classifyGCSError(handle string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, handle)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, handle)
		}
	}
	return fmt.Errorf("failed to create object reader: %w", err)
}

// Save writes an uploaded file to the bucket under a generated handle.
func (s *GCSSource) Save(ctx context.Context, ext string, r io.Reader) (string, error) {
	handle := uuid.New().String() + strings.ToLower(ext)

	w := s.client.Bucket(s.bucketName).Object(handle).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload dataset: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize dataset upload: %w", err)
	}
	return handle, nil
}

// SignedUploadURL lets a browser PUT a dataset straight into the bucket. The
// returned handle is what a later run refers to.
func (s *GCSSource) SignedUploadURL(ext, contentType string, ttl time.Duration) (handle, url string, err error) {
	handle = uuid.New().String() + strings.ToLower(ext)
	url, err = s.client.Bucket(s.bucketName).SignedURL(handle, &storage.SignedURLOptions{
		Expires:     time.Now().Add(ttl),
		Method:      http.MethodPut,
		ContentType: contentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return handle, url, nil
}
