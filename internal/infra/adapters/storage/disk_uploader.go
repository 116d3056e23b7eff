package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/qrave1/RoomScribe/internal/application/config"
)

var ErrInvalidPath = errors.New("invalid upload path")

// Uploader - внешнее хранилище записей. Возвращает стабильный публичный URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, subdir string) (string, error)
}

type diskUploader struct {
	dir     string
	baseURL string
}

// NewDiskUploader stores files under cfg.Dir and serves them from cfg.PublicBaseURL.
func NewDiskUploader(cfg config.StorageConfig) Uploader {
	return &diskUploader{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

func (u *diskUploader) Upload(ctx context.Context, data []byte, filename, subdir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if filename == "" || filepath.Base(filename) != filename || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("%w: filename %q", ErrInvalidPath, filename)
	}

	subdir = filepath.Clean(subdir)
	if filepath.IsAbs(subdir) || subdir == ".." || strings.HasPrefix(subdir, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: subdir %q", ErrInvalidPath, subdir)
	}

	dir := filepath.Join(u.dir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	// пишем во временный файл, чтобы по публичному URL не отдавался недописанный файл
	tmp, err := os.CreateTemp(dir, "."+filename+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	if err = os.Rename(tmp.Name(), filepath.Join(dir, filename)); err != nil {
		return "", fmt.Errorf("move upload: %w", err)
	}

	return u.publicURL(subdir, filename)
}

func (u *diskUploader) publicURL(subdir, filename string) (string, error) {
	parts := []string{filename}
	if subdir != "." {
		parts = append(strings.Split(filepath.ToSlash(subdir), "/"), filename)
	}

	return url.JoinPath(u.baseURL, parts...)
}
