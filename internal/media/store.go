// Package media - загрузка картинок в объектное хранилище.
package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore - хранилище бинарных объектов
type ObjectStore interface {
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	// URL возвращает адрес, по которому объект можно получить
	URL(ctx context.Context, path string) (string, error)
}

// FilesystemStore хранит объекты в каталоге, отдаёт их HTTP-сервер по BaseURL
type FilesystemStore struct {
	Root    string
	BaseURL string
}

func NewFilesystemStore(root, baseURL string) *FilesystemStore {
	return &FilesystemStore{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Put пишет во временный файл и переименовывает его в конечный путь
func (s *FilesystemStore) Put(ctx context.Context, path string, r io.Reader, _ int64, _ string) error {
	dst := filepath.Join(s.Root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *FilesystemStore) URL(_ context.Context, path string) (string, error) {
	return s.BaseURL + "/" + (&url.URL{Path: path}).EscapedPath(), nil
}

// ctxReader прерывает копирование при отмене контекста
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
