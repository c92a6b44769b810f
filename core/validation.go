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


package core

import "fmt"

// ValidateEntry validates an Entry according to domain rules.
//
// Validation rules:
//   - Vector must not be empty
//
// NOT validated:
//   - Item texts (an empty string is a legal candidate)
//   - ID (0 is a valid external identifier)
func ValidateEntry(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidEntry)
	}
	if len(entry.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, ErrEmptyVector)
	}
	return nil
}

// ValidatePool checks every entry and that all vectors share one dimensionality.
// An empty pool is valid here; the index rejects it at construction.
func ValidatePool(pool *Pool) error {
	if pool == nil {
		return nil
	}
	dim := pool.Dim()
	for i := range pool.Entries {
		if err := ValidateEntry(&pool.Entries[i]); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if got := len(pool.Entries[i].Vector); got != dim {
			return fmt.Errorf("%w: row %d has %d dimensions, expected %d", ErrDimensionMismatch, i, got, dim)
		}
	}
	return nil
}

// CheckDim returns ErrDimensionMismatch when got differs from want.
func CheckDim(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, got, want)
	}
	return nil
}
