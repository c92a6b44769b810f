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

import "errors"

// Structural errors shared by the index and the similarity scorer.
var (
	// ErrDimensionMismatch indicates vectors of different lengths were compared.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyIndex indicates an index was built from an empty candidate pool.
	ErrEmptyIndex = errors.New("candidate pool is empty")

	// ErrInvalidEntry indicates an Entry failed validation.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrEmptyVector indicates an entry has no vector.
	ErrEmptyVector = errors.New("vector cannot be empty")
)
