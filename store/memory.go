package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"whatsapp-session-keeper/types"
)

// MemoryStore keeps blobs in process memory. Used by tests and the "none"
// backend for throwaway runs.
type MemoryStore struct {
	mu    sync.RWMutex
	seq   uint64
	blobs map[types.BotIdentity]map[string]memoryRecord
}

type memoryRecord struct {
	data      []byte
	createdAt time.Time
	seq       uint64
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[types.BotIdentity]map[string]memoryRecord)}
}

func (s *MemoryStore) Put(_ context.Context, identity types.BotIdentity, data []byte) (PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blobs[identity] == nil {
		s.blobs[identity] = make(map[string]memoryRecord)
	}
	id := uuid.New().String()
	now := time.Now().UTC()
	s.seq++
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[identity][id] = memoryRecord{data: cp, createdAt: now, seq: s.seq}
	return PutResult{ID: id, CreatedAt: now}, nil
}

func (s *MemoryStore) List(_ context.Context, identity types.BotIdentity) ([]types.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		info types.BlobInfo
		seq  uint64
	}
	entries := make([]entry, 0, len(s.blobs[identity]))
	for id, rec := range s.blobs[identity] {
		entries = append(entries, entry{
			info: types.BlobInfo{
				ID:        id,
				Identity:  identity,
				Size:      int64(len(rec.data)),
				CreatedAt: rec.createdAt,
			},
			seq: rec.seq,
		})
	}
	// Insertion order breaks timestamp ties from rapid successive puts.
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })
	infos := make([]types.BlobInfo, len(entries))
	for i, e := range entries {
		infos[i] = e.info
	}
	return infos, nil
}

func (s *MemoryStore) Get(_ context.Context, identity types.BotIdentity, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.blobs[identity][id]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := make([]byte, len(rec.data))
	copy(cp, rec.data)
	return cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, identity types.BotIdentity, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[identity][id]; !ok {
		return types.ErrNotFound
	}
	delete(s.blobs[identity], id)
	return nil
}
