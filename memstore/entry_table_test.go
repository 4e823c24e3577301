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
	"github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/YuaNFrank/spark/memstore/common"
)

func testEntry(size int64) common.Entry {
	return &common.SerializedEntry{Chunks: [][]byte{make([]byte, size)}}
}

var _ = ginkgo.Describe("entry table", func() {
	blockA := common.NewRDDBlockID(1, 0)
	blockB := common.NewRDDBlockID(1, 1)
	blockC := common.NewRDDBlockID(2, 0)

	ginkgo.It("iterates in insertion order initially", func() {
		table := NewEntryTable()
		table.Put(blockA, testEntry(1))
		table.Put(blockB, testEntry(2))
		table.Put(blockC, testEntry(3))
		Ω(table.Keys()).Should(Equal([]common.BlockID{blockA, blockB, blockC}))
		Ω(table.Size()).Should(Equal(3))
	})

	ginkgo.It("moves an accessed key to the most recent end", func() {
		table := NewEntryTable()
		table.Put(blockA, testEntry(1))
		table.Put(blockB, testEntry(2))
		table.Put(blockC, testEntry(3))

		entry, ok := table.Get(blockA)
		Ω(ok).Should(BeTrue())
		Ω(entry.Size()).Should(Equal(int64(1)))
		Ω(table.Keys()).Should(Equal([]common.BlockID{blockB, blockC, blockA}))

		// Peek does not touch access order.
		_, ok = table.Peek(blockB)
		Ω(ok).Should(BeTrue())
		Ω(table.Keys()).Should(Equal([]common.BlockID{blockB, blockC, blockA}))
	})

	ginkgo.It("removes and reports containment", func() {
		table := NewEntryTable()
		table.Put(blockA, testEntry(1))
		Ω(table.Contains(blockA)).Should(BeTrue())

		entry, ok := table.Remove(blockA)
		Ω(ok).Should(BeTrue())
		Ω(entry.Size()).Should(Equal(int64(1)))
		Ω(table.Contains(blockA)).Should(BeFalse())

		_, ok = table.Remove(blockA)
		Ω(ok).Should(BeFalse())
	})
})
