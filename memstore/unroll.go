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
	"github.com/YuaNFrank/spark/memstore/common"
)

// PartialUnrolledIterator is returned when a value put ran out of unroll
// memory. It concatenates the already-materialized prefix with the remaining
// input, and retains the unroll reservation until the caller consumes it to
// the end or discards it.
type PartialUnrolledIterator struct {
	account     *MemoryAccount
	taskID      int64
	mode        common.MemoryMode
	unrollBytes int64

	unrolled []interface{}
	pos      int
	rest     common.ValueIterator
	released bool
}

// HasNext tells whether more values remain. Exhausting the iterator frees the
// retained unroll memory.
func (it *PartialUnrolledIterator) HasNext() bool {
	if it.pos < len(it.unrolled) || (it.rest != nil && it.rest.HasNext()) {
		return true
	}
	it.Close()
	return false
}

// Next returns the next value, first from the materialized prefix, then from
// the remaining input.
func (it *PartialUnrolledIterator) Next() interface{} {
	if it.pos < len(it.unrolled) {
		v := it.unrolled[it.pos]
		it.pos++
		return v
	}
	return it.rest.Next()
}

// Close discards the continuation and frees the retained unroll memory. Safe
// to call more than once.
func (it *PartialUnrolledIterator) Close() {
	if it.released {
		return
	}
	it.released = true
	if it.unrollBytes > 0 {
		it.account.ReleaseUnroll(it.taskID, it.unrollBytes, it.mode)
	}
}

// PartialSerializedBlock is returned when a serializing put ran out of unroll
// memory. It exposes the chunks written so far plus the remaining input, and
// retains the unroll reservation until discarded.
type PartialSerializedBlock struct {
	account     *MemoryAccount
	taskID      int64
	mode        common.MemoryMode
	unrollBytes int64

	// Chunks serialized before memory ran out.
	Chunks [][]byte
	// Rest of the input that was never serialized.
	Rest     common.ValueIterator
	released bool
}

// Close discards the partial result and frees the retained unroll memory.
// Safe to call more than once.
func (p *PartialSerializedBlock) Close() {
	if p.released {
		return
	}
	p.released = true
	if p.unrollBytes > 0 {
		p.account.ReleaseUnroll(p.taskID, p.unrollBytes, p.mode)
	}
}
