// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/storage"
)

// EntryRepository implements storage.EntryRepository using BadgerDB.
type EntryRepository struct {
	backend *Backend
	mu      sync.Mutex // serializes appends so row numbers stay dense
}

var _ storage.EntryRepository = (*EntryRepository)(nil)

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(backend *Backend) (*EntryRepository, error) {
	if backend == nil {
		return nil, storage.ErrStorageClosed
	}
	return &EntryRepository{backend: backend}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (r *EntryRepository) Close() error {
	return nil
}

// PutEntries appends entries to a collection in one transaction.
func (r *EntryRepository) PutEntries(ctx context.Context, collection string, entries ...core.Entry) error {
	if collection == "" {
		return storage.ErrInvalidName
	}
	if len(entries) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		info, err := readCollectionInfo(tx, collection)
		if errors.Is(err, storage.ErrNotFound) {
			info = &storage.CollectionInfo{Name: collection}
		} else if err != nil {
			return err
		}

		dim := info.Dim
		if dim == 0 {
			dim = len(entries[0].Vector)
		}
		for i := range entries {
			if err := core.ValidateEntry(&entries[i]); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			if err := core.CheckDim(len(entries[i].Vector), dim); err != nil {
				return fmt.Errorf("entry %d of %q: %w", i, collection, err)
			}
			key := makeEntryKey(collection, info.Size+i)
			if err := tx.Set(key, storage.MarshalEntry(&entries[i])); err != nil {
				return err
			}
		}

		info.Size += len(entries)
		info.Dim = dim
		return tx.Set(makeCollectionKey(collection), storage.MarshalCollectionInfo(info))
	})
}

// LoadPool reads all rows of a collection in row order.
func (r *EntryRepository) LoadPool(ctx context.Context, collection string) (*core.Pool, error) {
	var entries []core.Entry

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		info, err := readCollectionInfo(tx, collection)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", storage.ErrEmptyCollection, collection)
		}
		if err != nil {
			return err
		}

		entries = make([]core.Entry, 0, info.Size)
		return scanPrefix(tx, makeEntryPrefix(collection), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := storage.UnmarshalEntry(val)
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %q", storage.ErrEmptyCollection, collection)
	}
	return core.NewPool(entries)
}

// Collection returns the description of one collection.
func (r *EntryRepository) Collection(ctx context.Context, collection string) (*storage.CollectionInfo, error) {
	var info *storage.CollectionInfo
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		info, err = readCollectionInfo(tx, collection)
		return err
	}, false)
	return info, err
}

// Collections lists all collections ordered by name.
func (r *EntryRepository) Collections(ctx context.Context) ([]storage.CollectionInfo, error) {
	var infos []storage.CollectionInfo
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(collectionPrefix+":"), func(_, val []byte) error {
			info, err := storage.UnmarshalCollectionInfo(val)
			if err != nil {
				return err
			}
			infos = append(infos, *info)
			return nil
		})
	}, false)
	return infos, err
}

// DeleteCollection removes a collection and all its rows.
func (r *EntryRepository) DeleteCollection(ctx context.Context, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.Collection(ctx, collection); err != nil {
		return err
	}
	err := r.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeCollectionKey(collection))
	})
	if err != nil {
		return err
	}
	return r.backend.DeletePrefix(ctx, makeEntryPrefix(collection))
}

// readCollectionInfo reads collection metadata within a transaction.
// Returns storage.ErrNotFound if the collection doesn't exist.
func readCollectionInfo(tx *badger.Txn, collection string) (*storage.CollectionInfo, error) {
	return readInfo(tx, makeCollectionKey(collection))
}

func readInfo(tx *badger.Txn, key []byte) (*storage.CollectionInfo, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var info *storage.CollectionInfo
	err = item.Value(func(val []byte) error {
		info, err = storage.UnmarshalCollectionInfo(val)
		return err
	})
	return info, err
}
