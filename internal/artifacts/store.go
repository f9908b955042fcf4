// Package artifacts stores task input and result blobs on the local
// filesystem, one directory per task, one file per result kind.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/diagramq/diagramq/pkg/domain"
)

// ErrNotFound is returned when no blob exists for a (task, kind) pair.
var ErrNotFound = errors.New("artifact not found")

type Store interface {
	// Put writes the blob for (taskID, kind) and returns its reference.
	// The write is atomic: concurrent readers observe either the full blob
	// or ErrNotFound, never a partial file.
	Put(ctx context.Context, taskID string, kind domain.ResultKind, data []byte) (string, error)

	Get(ctx context.Context, taskID string, kind domain.ResultKind) ([]byte, error)

	// Delete removes every artifact belonging to the task.
	Delete(ctx context.Context, taskID string) error
}

type localStore struct {
	rootDir string
}

func NewLocalStore(rootDir string) Store {
	return &localStore{rootDir: rootDir}
}

func (s *localStore) path(taskID string, kind domain.ResultKind) string {
	return filepath.Join(s.rootDir, taskID, string(kind))
}

func (s *localStore) Put(ctx context.Context, taskID string, kind domain.ResultKind, data []byte) (string, error) {
	dir := filepath.Join(s.rootDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	// Write to a temp file in the same directory, then rename into place so
	// readers never see a half-written blob.
	tmp, err := os.CreateTemp(dir, "."+string(kind)+".*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	dst := s.path(taskID, kind)
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return fmt.Sprintf("%s/%s", taskID, kind), nil
}

func (s *localStore) Get(ctx context.Context, taskID string, kind domain.ResultKind) ([]byte, error) {
	data, err := os.ReadFile(s.path(taskID, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *localStore) Delete(ctx context.Context, taskID string) error {
	return os.RemoveAll(filepath.Join(s.rootDir, taskID))
}
