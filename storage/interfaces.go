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


package storage

import (
	"context"

	"github.com/poiesic/candirank/core"
)

// CollectionInfo describes a stored collection.
type CollectionInfo struct {
	Name string
	Size int // Number of rows
	Dim  int // Vector dimensionality, 0 for an empty collection
}

// EntryRepository stores named collections of entries.
type EntryRepository interface {
	// PutEntries appends entries to a collection, creating it if needed.
	// Row order is preserved. All vectors must match the collection's
	// dimensionality, otherwise core.ErrDimensionMismatch is returned and
	// nothing is written.
	PutEntries(ctx context.Context, collection string, entries ...core.Entry) error

	// LoadPool reads a whole collection in row order.
	// Returns ErrEmptyCollection if it does not exist.
	LoadPool(ctx context.Context, collection string) (*core.Pool, error)

	// Collection returns the description of one collection.
	// Returns ErrNotFound if it does not exist.
	Collection(ctx context.Context, collection string) (*CollectionInfo, error)

	// Collections lists all collections ordered by name.
	Collections(ctx context.Context) ([]CollectionInfo, error)

	// DeleteCollection removes a collection and all its rows.
	// Returns ErrNotFound if it does not exist.
	DeleteCollection(ctx context.Context, collection string) error

	// Close releases resources held by the repository.
	Close() error
}

// ResultRepository stores named ranking result tables.
type ResultRepository interface {
	// SaveResults stores table under name, replacing any previous table.
	SaveResults(ctx context.Context, name string, table *core.ResultTable) error

	// LoadResults reads a table back in its original row order.
	// Returns ErrNotFound if no table has that name.
	LoadResults(ctx context.Context, name string) (*core.ResultTable, error)

	// DeleteResults removes a stored table.
	// Returns ErrNotFound if no table has that name.
	DeleteResults(ctx context.Context, name string) error

	// Close releases resources held by the repository.
	Close() error
}
