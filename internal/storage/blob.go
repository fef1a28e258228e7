// Package storage is the blob-store port for uploaded documents, with a
// local-filesystem implementation. Paths follow the
// users/{uid}/documents/{ts}-{name} convention so personal and per-thread
// collections never collide.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ProgressFunc receives a monotonically non-decreasing percentage while an
// upload is in flight, ending at 100 on success.
type ProgressFunc func(percent int)

type BlobStore interface {
	Put(ctx context.Context, blobPath string, r io.Reader, size int64, progress ProgressFunc) error
	Address(blobPath string) (string, error)
	Delete(ctx context.Context, blobPath string) error
}

// PersonalDocumentPath returns the blob path for a personal upload.
func PersonalDocumentPath(memberID uint, filename string) string {
	return fmt.Sprintf("users/%d/documents/%d-%s", memberID, time.Now().UnixMilli(), sanitizeFilename(filename))
}

// ThreadDocumentPath returns the blob path for a team-thread upload.
func ThreadDocumentPath(memberID, threadID uint, filename string) string {
	return fmt.Sprintf("users/%d/chats/%d/documents/%d-%s", memberID, threadID, time.Now().UnixMilli(), sanitizeFilename(filename))
}

func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return "upload"
	}
	return base
}

type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("blob store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root failed: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Put(ctx context.Context, blobPath string, r io.Reader, size int64, progress ProgressFunc) error {
	full, err := s.resolve(blobPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create blob dir failed: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create blob failed: %w", err)
	}
	defer f.Close()

	written := int64(0)
	reported := 0
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload canceled: %w", err)
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("write blob failed: %w", writeErr)
			}
			written += int64(n)
			if progress != nil && size > 0 {
				pct := int(written * 100 / size)
				if pct > 100 {
					pct = 100
				}
				if pct > reported {
					reported = pct
					progress(pct)
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read upload failed: %w", readErr)
		}
	}
	if progress != nil && reported < 100 {
		progress(100)
	}
	return nil
}

// Address returns the local read path for a stored blob.
func (s *LocalStore) Address(blobPath string) (string, error) {
	full, err := s.resolve(blobPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("blob not found: %w", err)
	}
	return full, nil
}

func (s *LocalStore) Delete(ctx context.Context, blobPath string) error {
	full, err := s.resolve(blobPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob failed: %w", err)
	}
	return nil
}

func (s *LocalStore) resolve(blobPath string) (string, error) {
	cleaned := path.Clean("/" + blobPath)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid blob path %q", blobPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}
