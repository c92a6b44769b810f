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
	"encoding/binary"

	"github.com/poiesic/candirank/core"
)

const (
	collectionPrefix = "coll"
	entryPrefix      = "entry"
	resultMetaPrefix = "resmeta"
	resultPrefix     = "result"
)

// nameID maps a collection or result set name to a fixed-width key component.
func nameID(name string) core.ID {
	return core.IDFromContent(name)
}

// makeCollectionKey generates the metadata key of a collection.
// Format: prefix:name
func makeCollectionKey(name string) []byte {
	return []byte(collectionPrefix + ":" + name)
}

// makeEntryKey generates a composite key for one row of a collection.
// Format: prefix:collectionID:row
func makeEntryKey(collection string, row int) []byte {
	return makeRowKey(entryPrefix, nameID(collection), row)
}

// makeEntryPrefix generates the prefix shared by all rows of a collection.
func makeEntryPrefix(collection string) []byte {
	return makeRowPrefix(entryPrefix, nameID(collection))
}

// makeResultMetaKey generates the key recording that a result set exists.
// Format: prefix:name
func makeResultMetaKey(name string) []byte {
	return []byte(resultMetaPrefix + ":" + name)
}

// makeResultKey generates a composite key for one row of a result set.
// Format: prefix:nameID:row
func makeResultKey(name string, row int) []byte {
	return makeRowKey(resultPrefix, nameID(name), row)
}

// makeResultPrefix generates the prefix shared by all rows of a result set.
func makeResultPrefix(name string) []byte {
	return makeRowPrefix(resultPrefix, nameID(name))
}

func makeRowPrefix(prefix string, id core.ID) []byte {
	buf := make([]byte, len(prefix)+2+8)
	offset := copy(buf, prefix+":")
	// BigEndian so lexicographic order matches numeric order
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	buf[offset+8] = ':'
	return buf
}

func makeRowKey(prefix string, id core.ID, row int) []byte {
	buf := makeRowPrefix(prefix, id)
	return binary.BigEndian.AppendUint64(buf, uint64(row))
}
