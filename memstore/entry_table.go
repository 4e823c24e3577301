//  Copyright (c) 2017-2018 Uber Technologies, Inc.
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

package memstore

import (
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/YuaNFrank/spark/memstore/common"
)

// EntryTable is an insertion-ordered map from block id to entry that keeps
// access order: a Get moves the key to the most-recently-accessed end, and
// iteration yields keys from least- to most-recently-accessed. A new Put is
// MRU at that moment.
type EntryTable struct {
	sync.Mutex
	entries *linkedhashmap.Map
}

// NewEntryTable creates an empty entry table.
func NewEntryTable() *EntryTable {
	return &EntryTable{
		entries: linkedhashmap.New(),
	}
}

// Put installs the entry for b at the most-recently-accessed end.
func (t *EntryTable) Put(b common.BlockID, e common.Entry) {
	t.Lock()
	defer t.Unlock()
	// Re-insertion moves an existing key to the tail.
	t.entries.Remove(b)
	t.entries.Put(b, e)
}

// Get returns the entry for b and marks it most recently accessed.
func (t *EntryTable) Get(b common.BlockID) (common.Entry, bool) {
	t.Lock()
	defer t.Unlock()
	v, ok := t.entries.Get(b)
	if !ok {
		return nil, false
	}
	t.entries.Remove(b)
	t.entries.Put(b, v)
	return v.(common.Entry), true
}

// Peek returns the entry for b without touching access order.
func (t *EntryTable) Peek(b common.BlockID) (common.Entry, bool) {
	t.Lock()
	defer t.Unlock()
	v, ok := t.entries.Get(b)
	if !ok {
		return nil, false
	}
	return v.(common.Entry), true
}

// Remove deletes the entry for b and returns it.
func (t *EntryTable) Remove(b common.BlockID) (common.Entry, bool) {
	t.Lock()
	defer t.Unlock()
	v, ok := t.entries.Get(b)
	if !ok {
		return nil, false
	}
	t.entries.Remove(b)
	return v.(common.Entry), true
}

// Contains tells whether b has an entry.
func (t *EntryTable) Contains(b common.BlockID) bool {
	t.Lock()
	defer t.Unlock()
	_, ok := t.entries.Get(b)
	return ok
}

// Size returns the number of cached entries.
func (t *EntryTable) Size() int {
	t.Lock()
	defer t.Unlock()
	return t.entries.Size()
}

// Keys returns a snapshot of the block ids from least- to most-recently-
// accessed.
func (t *EntryTable) Keys() []common.BlockID {
	t.Lock()
	defer t.Unlock()
	raw := t.entries.Keys()
	keys := make([]common.BlockID, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(common.BlockID))
	}
	return keys
}

// Clear drops all entries.
func (t *EntryTable) Clear() {
	t.Lock()
	defer t.Unlock()
	t.entries.Clear()
}
