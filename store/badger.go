package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"whatsapp-session-keeper/types"
)

// BadgerStore is the default embedded session store. Blob bytes and their
// metadata live under separate key prefixes so listing never loads
// payloads.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger session store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func blobKey(identity types.BotIdentity, id string) []byte {
	return []byte(fmt.Sprintf("blob/%s/%s", identity, id))
}

func metaKey(identity types.BotIdentity, id string) []byte {
	return []byte(fmt.Sprintf("meta/%s/%s", identity, id))
}

func metaPrefix(identity types.BotIdentity) []byte {
	return []byte(fmt.Sprintf("meta/%s/", identity))
}

func (s *BadgerStore) Put(_ context.Context, identity types.BotIdentity, data []byte) (PutResult, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	meta, err := json.Marshal(types.BlobInfo{
		ID:        id,
		Identity:  identity,
		Size:      int64(len(data)),
		CreatedAt: now,
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %v", types.ErrStoreRejected, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blobKey(identity, id), data); err != nil {
			return err
		}
		return txn.Set(metaKey(identity, id), meta)
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return PutResult{ID: id, CreatedAt: now}, nil
}

func (s *BadgerStore) List(_ context.Context, identity types.BotIdentity) ([]types.BlobInfo, error) {
	var infos []types.BlobInfo
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = metaPrefix(identity)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var info types.BlobInfo
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &info)
			})
			if err != nil {
				return err
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID > infos[j].ID
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

func (s *BadgerStore) Get(_ context.Context, identity types.BotIdentity, id string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(identity, id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return data, nil
}

func (s *BadgerStore) Delete(_ context.Context, identity types.BotIdentity, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(blobKey(identity, id)); err != nil {
			return err
		}
		if err := txn.Delete(blobKey(identity, id)); err != nil {
			return err
		}
		return txn.Delete(metaKey(identity, id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}
