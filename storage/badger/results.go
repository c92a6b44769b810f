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
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/storage"
)

// ResultRepository implements storage.ResultRepository using BadgerDB.
type ResultRepository struct {
	backend *Backend
	mu      sync.Mutex
}

var _ storage.ResultRepository = (*ResultRepository)(nil)

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(backend *Backend) (*ResultRepository, error) {
	if backend == nil {
		return nil, storage.ErrStorageClosed
	}
	return &ResultRepository{backend: backend}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (r *ResultRepository) Close() error {
	return nil
}

// SaveResults replaces the table stored under name. Rows are written with a
// write batch, then the metadata key is committed so a table only becomes
// visible once all its rows are in place.
func (r *ResultRepository) SaveResults(ctx context.Context, name string, table *core.ResultTable) error {
	if name == "" {
		return storage.ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.delete(ctx, name); err != nil {
		return err
	}

	rows := table.All()
	err := r.backend.WriteBatch(ctx, func(wb *badger.WriteBatch) error {
		for i := range rows {
			if err := wb.Set(makeResultKey(name, i), storage.MarshalQueryResult(&rows[i])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	meta := &storage.CollectionInfo{Name: name, Size: len(rows)}
	return r.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeResultMetaKey(name), storage.MarshalCollectionInfo(meta))
	})
}

// LoadResults reads a stored table in row order.
func (r *ResultRepository) LoadResults(ctx context.Context, name string) (*core.ResultTable, error) {
	table := &core.ResultTable{}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readInfo(tx, makeResultMetaKey(name))
		if err != nil {
			return fmt.Errorf("result set %q: %w", name, err)
		}

		table.Results = make([]core.QueryResult, 0, meta.Size)
		err = scanPrefix(tx, makeResultPrefix(name), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := storage.UnmarshalQueryResult(val)
			if err != nil {
				return err
			}
			table.Results = append(table.Results, *result)
			return nil
		})
		if err != nil {
			return err
		}
		if len(table.Results) != meta.Size {
			return fmt.Errorf("%w: result set %q has %d of %d rows", storage.ErrTruncatedData, name, len(table.Results), meta.Size)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return table, nil
}

// DeleteResults removes a stored table.
func (r *ResultRepository) DeleteResults(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := readInfo(tx, makeResultMetaKey(name))
		return err
	}, false)
	if err != nil {
		return err
	}
	return r.delete(ctx, name)
}

// delete removes the metadata key first so a partly deleted table is never visible.
func (r *ResultRepository) delete(ctx context.Context, name string) error {
	err := r.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeResultMetaKey(name))
	})
	if err != nil {
		return err
	}
	return r.backend.DeletePrefix(ctx, makeResultPrefix(name))
}
