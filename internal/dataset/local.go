package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalSource resolves handles to files inside an upload directory.
type LocalSource struct {
	dir string
}

func NewLocalSource(dir string) (*LocalSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalSource{dir: dir}, nil
}

func (s *LocalSource) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, handle)
		default:
			return nil, fmt.Errorf("failed to open dataset %s: %w", handle, err)
		}
	}

	info, err := f.Stat()
	if err == nil && info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return f, nil
}

// Save stores an uploaded file under a generated handle that keeps the extension.
func (s *LocalSource) Save(ctx context.Context, ext string, r io.Reader) (string, error) {
	handle := uuid.New().String() + strings.ToLower(ext)

	f, err := os.Create(filepath.Join(s.dir, handle))
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return handle, nil
}

// path rejects handles that would escape the upload directory.
func (s *LocalSource) path(handle string) (string, error) {
	if handle == "" || handle != filepath.Base(handle) || handle == "." || handle == ".." {
		return "", fmt.Errorf("%w: invalid handle %q", ErrNotFound, handle)
	}
	return filepath.Join(s.dir, handle), nil
}
