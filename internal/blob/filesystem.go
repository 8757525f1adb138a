// Package blob stores original media files and derived thumbnails on
// the local filesystem.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mbartos/photon/internal/database"
)

// FilesystemStore keeps originals under <root>/originals and thumbnails
// under <root>/thumbs, one file per media UID. It satisfies
// database.BlobStore.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	for _, dir := range []string{"originals", "thumbs"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("could not create blob directory: %w", err)
		}
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) originalPath(mediaUID string) string {
	return filepath.Join(s.root, "originals", mediaUID)
}

func (s *FilesystemStore) thumbPath(mediaUID string) string {
	return filepath.Join(s.root, "thumbs", mediaUID+".jpg")
}

func (s *FilesystemStore) Original(_ context.Context, mediaUID string) ([]byte, error) {
	data, err := os.ReadFile(s.originalPath(mediaUID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("original %s: %w", mediaUID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read original: %w", err)
	}
	return data, nil
}

// SaveOriginal persists an uploaded original and returns its content
// hash. Writes go through a temp file and rename so a crashed upload
// never leaves a partial original behind.
func (s *FilesystemStore) SaveOriginal(_ context.Context, mediaUID string, data []byte) (string, error) {
	if err := writeAtomic(s.originalPath(mediaUID), data); err != nil {
		return "", fmt.Errorf("could not save original: %w", err)
	}
	return contentHash(data), nil
}

func (s *FilesystemStore) SaveThumb(_ context.Context, mediaUID string, data []byte) (string, error) {
	if err := writeAtomic(s.thumbPath(mediaUID), data); err != nil {
		return "", fmt.Errorf("could not save thumbnail: %w", err)
	}
	return contentHash(data), nil
}

// Thumb returns a stored thumbnail, for serving.
func (s *FilesystemStore) Thumb(_ context.Context, mediaUID string) ([]byte, error) {
	data, err := os.ReadFile(s.thumbPath(mediaUID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("thumbnail %s: %w", mediaUID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read thumbnail: %w", err)
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
