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

package common

// Entry is one cached block, either as a deserialized value array or a chunked
// byte buffer. The two forms are mutually exclusive.
type Entry interface {
	// Size returns the entry size in bytes.
	Size() int64
	// MemoryMode returns the memory region backing the entry.
	MemoryMode() MemoryMode
	// IsSerialized distinguishes the two entry forms.
	IsSerialized() bool
}

// DeserializedEntry holds a block as a value array. Deserialized entries live
// on heap only.
type DeserializedEntry struct {
	Values    []interface{}
	SizeBytes int64
	ClassTag  string
}

// Size returns the estimated size of the value array in bytes.
func (e *DeserializedEntry) Size() int64 {
	return e.SizeBytes
}

// MemoryMode of a deserialized entry is always on-heap.
func (e *DeserializedEntry) MemoryMode() MemoryMode {
	return OnHeap
}

// IsSerialized returns false.
func (e *DeserializedEntry) IsSerialized() bool {
	return false
}

// SerializedEntry holds a block as a chunked byte buffer.
type SerializedEntry struct {
	Chunks   [][]byte
	Mode     MemoryMode
	ClassTag string
}

// Size returns the total size of all chunks in bytes.
func (e *SerializedEntry) Size() int64 {
	var total int64
	for _, c := range e.Chunks {
		total += int64(len(c))
	}
	return total
}

// MemoryMode returns the memory region backing the chunks.
func (e *SerializedEntry) MemoryMode() MemoryMode {
	return e.Mode
}

// IsSerialized returns true.
func (e *SerializedEntry) IsSerialized() bool {
	return true
}

// ValueIterator iterates the values of a block being materialized.
type ValueIterator interface {
	HasNext() bool
	Next() interface{}
}

// SliceIterator adapts a value slice to ValueIterator.
type SliceIterator struct {
	values []interface{}
	pos    int
}

// NewSliceIterator creates a ValueIterator over the given values.
func NewSliceIterator(values []interface{}) *SliceIterator {
	return &SliceIterator{values: values}
}

// HasNext tells whether more values remain.
func (it *SliceIterator) HasNext() bool {
	return it.pos < len(it.values)
}

// Next returns the next value.
func (it *SliceIterator) Next() interface{} {
	v := it.values[it.pos]
	it.pos++
	return v
}
