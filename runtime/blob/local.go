package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/anotherai/gateway/runtime/apierror"
)

// LocalStore stores blobs as plain files under a base directory, sharded
// into two levels of hex-prefix subdirectories so no single directory ever
// holds more than a few hundred entries at typical volume.
type LocalStore struct {
	baseDir string
}

// NewLocalStore builds a Store rooted at baseDir, creating it if necessary.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "create blob base directory", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) pathFor(key string) string {
	return filepath.Join(s.baseDir, key[:2], key[2:4], key)
}

func (s *LocalStore) Put(_ context.Context, data []byte, contentType string) (Ref, error) {
	key := keyFor(data)
	ref := Ref{Key: key, Size: int64(len(data)), ContentType: contentType}

	path := s.pathFor(key)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Ref{}, apierror.Wrap(apierror.KindInternal, "create blob shard directory", err)
	}

	// Write to a temp file first and rename, so a concurrent Get never
	// observes a partially written blob.
	tmp, err := os.CreateTemp(filepath.Dir(path), "upload-*")
	if err != nil {
		return Ref{}, apierror.Wrap(apierror.KindInternal, "create temp blob file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Ref{}, apierror.Wrap(apierror.KindInternal, "write blob", err)
	}
	if err := tmp.Close(); err != nil {
		return Ref{}, apierror.Wrap(apierror.KindInternal, "close blob temp file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Ref{}, apierror.Wrap(apierror.KindInternal, "finalize blob file", err)
	}
	return ref, nil
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apierror.NotFound("blob", "blob %s not found", key)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "read blob", err)
	}
	return data, nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.pathFor(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, apierror.Wrap(apierror.KindInternal, "stat blob", err)
}
