package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"whatsapp-session-keeper/types"
)

const sessionExt = ".session"

// FileStore keeps one file per blob under <root>/<identity>/. File names
// carry a nanosecond timestamp prefix so listing can order blobs without
// trusting filesystem mtimes.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed session store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session store root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) identityDir(identity types.BotIdentity) string {
	return filepath.Join(s.root, string(identity))
}

func (s *FileStore) Put(_ context.Context, identity types.BotIdentity, data []byte) (PutResult, error) {
	dir := s.identityDir(identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PutResult{}, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	now := time.Now().UTC()
	id := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.New().String())
	// Atomic rename keeps a crashed write from leaving a half blob behind.
	if err := renameio.WriteFile(filepath.Join(dir, id+sessionExt), data, 0o600); err != nil {
		return PutResult{}, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return PutResult{ID: id, CreatedAt: now}, nil
}

func (s *FileStore) List(_ context.Context, identity types.BotIdentity) ([]types.BlobInfo, error) {
	entries, err := os.ReadDir(s.identityDir(identity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}

	infos := make([]types.BlobInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, sessionExt) {
			continue
		}
		id := strings.TrimSuffix(name, sessionExt)
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, types.BlobInfo{
			ID:        id,
			Identity:  identity,
			Filename:  name,
			Size:      fi.Size(),
			CreatedAt: createdAtFromID(id, fi.ModTime()),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID > infos[j].ID })
	return infos, nil
}

func (s *FileStore) Get(_ context.Context, identity types.BotIdentity, id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.identityDir(identity), id+sessionExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return data, nil
}

func (s *FileStore) Delete(_ context.Context, identity types.BotIdentity, id string) error {
	err := os.Remove(filepath.Join(s.identityDir(identity), id+sessionExt))
	if errors.Is(err, fs.ErrNotExist) {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

// createdAtFromID recovers the timestamp prefix baked into the blob ID,
// falling back to the file mtime for IDs written by other tools.
func createdAtFromID(id string, fallback time.Time) time.Time {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return fallback.UTC()
	}
	nanos, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return fallback.UTC()
	}
	return time.Unix(0, nanos).UTC()
}
