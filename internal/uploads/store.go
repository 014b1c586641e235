// Package uploads persists product images on local disk behind a static path.
package uploads

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/multierr"
)

var allowedImageTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
	"image/gif":  {".gif"},
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// LocalStore writes uploads under Dir and exposes them under PublicPath.
type LocalStore struct {
	dir        string
	publicPath string
	maxBytes   int64
	maxFiles   int
	now        func() time.Time
}

// NewLocalStore ensures the upload directory exists.
func NewLocalStore(cfg config.UploadsConfig) (*LocalStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("uploads dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	publicPath := "/" + strings.Trim(cfg.PublicPath, "/")
	return &LocalStore{
		dir:        cfg.Dir,
		publicPath: publicPath,
		maxBytes:   cfg.MaxFileBytes(),
		maxFiles:   cfg.MaxFiles,
		now:        time.Now,
	}, nil
}

// Dir is the directory served under PublicPath.
func (s *LocalStore) Dir() string { return s.dir }

// PublicPath is the URL prefix of stored files.
func (s *LocalStore) PublicPath() string { return s.publicPath }

// MaxRequestBytes bounds a multipart body carrying the maximum number of files.
func (s *LocalStore) MaxRequestBytes() int64 {
	return s.maxBytes*int64(max(s.maxFiles, 1)) + 1<<20
}

// SaveImages validates and writes every file, returning their public URLs in
// order. A failure removes the files already written by this call.
func (s *LocalStore) SaveImages(files []*multipart.FileHeader) ([]string, error) {
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d images are allowed", s.maxFiles)
	}
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		url, err := s.saveImage(fh)
		if err != nil {
			return nil, multierr.Append(err, s.Remove(urls))
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// Remove deletes the files behind the given public URLs. Missing files are ignored.
func (s *LocalStore) Remove(urls []string) error {
	var errs error
	for _, url := range urls {
		name, ok := s.fileName(url)
		if !ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *LocalStore) saveImage(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxBytes {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s exceeds the %d byte limit", fh.Filename, s.maxBytes)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))

	src, err := fh.Open()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable upload")
	}
	defer src.Close()

	detected, err := mimetype.DetectReader(src)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable upload")
	}
	if !extensionMatches(detected.String(), ext) {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a jpeg, png, webp or gif image", fh.Filename)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rewind upload")
	}

	name := fmt.Sprintf("%d-%s", s.now().UnixMilli(), sanitizeName(fh.Filename))
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create upload file")
	}

	written, copyErr := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
	closeErr := dst.Close()
	if err := multierr.Combine(copyErr, closeErr); err != nil {
		_ = os.Remove(dst.Name())
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write upload file")
	}
	if written > s.maxBytes {
		_ = os.Remove(dst.Name())
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s exceeds the %d byte limit", fh.Filename, s.maxBytes)
	}
	return path.Join(s.publicPath, name), nil
}

func (s *LocalStore) fileName(url string) (string, bool) {
	prefix := s.publicPath + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name := filepath.Base(strings.TrimPrefix(url, prefix))
	if name == "." || name == string(filepath.Separator) {
		return "", false
	}
	return name, true
}

func extensionMatches(mime, ext string) bool {
	for allowedMime, exts := range allowedImageTypes {
		if !mimetype.EqualsAny(mime, allowedMime) {
			continue
		}
		for _, allowed := range exts {
			if ext == allowed {
				return true
			}
		}
	}
	return false
}

func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "image"
	}
	return base
}
