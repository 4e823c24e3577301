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

func putBlock(store *MemoryStore, b common.BlockID, size int64) bool {
	return store.PutBytes(b, size, common.OnHeap, func() [][]byte {
		return [][]byte{make([]byte, size)}
	})
}

var _ = ginkgo.Describe("memory store", func() {
	ginkgo.Context("lru policy", func() {
		ginkgo.It("evicts the least recently used block under pressure", func() {
			store := NewMemoryStore(100, 0, Options{Policy: LRU})
			blockA := common.NewRDDBlockID(1, 0)
			blockB := common.NewRDDBlockID(2, 0)
			blockC := common.NewRDDBlockID(3, 0)
			blockD := common.NewRDDBlockID(4, 0)

			Ω(putBlock(store, blockA, 40)).Should(BeTrue())
			Ω(putBlock(store, blockB, 40)).Should(BeTrue())
			Ω(putBlock(store, blockC, 40)).Should(BeTrue())

			// A was the oldest entry.
			Ω(store.Contains(blockA)).Should(BeFalse())
			Ω(store.Contains(blockB)).Should(BeTrue())
			Ω(store.Contains(blockC)).Should(BeTrue())

			// Touch B, then admit D: C is now the oldest.
			_, ok := store.GetBytes(blockB)
			Ω(ok).Should(BeTrue())
			Ω(putBlock(store, blockD, 40)).Should(BeTrue())

			Ω(store.Contains(blockC)).Should(BeFalse())
			Ω(store.entries.Keys()).Should(Equal([]common.BlockID{blockB, blockD}))
		})

		ginkgo.It("never evicts a sibling of the incoming block", func() {
			store := NewMemoryStore(100, 0, Options{Policy: LRU})
			sibling := common.NewRDDBlockID(1, 0)
			Ω(putBlock(store, sibling, 60)).Should(BeTrue())

			Ω(putBlock(store, common.NewRDDBlockID(1, 1), 60)).Should(BeFalse())
			Ω(store.Contains(sibling)).Should(BeTrue())
		})

		ginkgo.It("respects the memory bound across puts and removes", func() {
			store := NewMemoryStore(100, 0, Options{Policy: LRU})
			for i := 0; i < 10; i++ {
				putBlock(store, common.NewRDDBlockID(common.DatasetID(i), 0), 30)
				Ω(store.Account().TotalUsed(common.OnHeap)).Should(BeNumerically("<=", 100))
			}
			store.Remove(common.NewRDDBlockID(9, 0))
			Ω(store.Account().TotalUsed(common.OnHeap)).Should(BeNumerically("<=", 100))
		})
	})

	ginkgo.Context("lrc policy", func() {
		ginkgo.It("evicts the block with fewer remaining references first", func() {
			store := NewMemoryStore(100, 0, Options{Policy: LRC})
			store.SetProfiles(profileWith(map[common.DatasetID]int{1: 1, 2: 5}, nil))
			blockOne := common.NewRDDBlockID(1, 0)
			blockTwo := common.NewRDDBlockID(2, 0)

			Ω(putBlock(store, blockOne, 50)).Should(BeTrue())
			Ω(putBlock(store, blockTwo, 60)).Should(BeTrue())

			Ω(store.Contains(blockOne)).Should(BeFalse())
			Ω(store.Contains(blockTwo)).Should(BeTrue())
		})

		ginkgo.It("refuses to evict blocks referenced more than the incoming one", func() {
			store := NewMemoryStore(100, 0, Options{Policy: LRC})
			store.SetProfiles(profileWith(map[common.DatasetID]int{1: 5, 2: 1}, nil))
			blockOne := common.NewRDDBlockID(1, 0)

			Ω(putBlock(store, blockOne, 50)).Should(BeTrue())
			Ω(putBlock(store, common.NewRDDBlockID(2, 0), 60)).Should(BeFalse())
			Ω(store.Contains(blockOne)).Should(BeTrue())
		})

		ginkgo.It("always admits broadcast blocks", func() {
			store := NewMemoryStore(100, 0, Options{Policy: LRC})
			store.SetProfiles(profileWith(map[common.DatasetID]int{1: 100}, nil))
			blockOne := common.NewRDDBlockID(1, 0)

			Ω(putBlock(store, blockOne, 50)).Should(BeTrue())
			Ω(putBlock(store, common.NewBroadcastBlockID(9), 60)).Should(BeTrue())
			Ω(store.Contains(blockOne)).Should(BeFalse())
		})
	})

	ginkgo.Context("osl policy", func() {
		ginkgo.It("drops a dataset once its lease runs out", func() {
			store := NewMemoryStore(1000, 0, Options{Policy: OSL})
			store.OnDAGInfo(common.DAGInfo{1: {2: 1}, 2: {4: 1}}, 10)
			blockOne := common.NewRDDBlockID(1, 0)
			blockTwo := common.NewRDDBlockID(2, 0)

			Ω(putBlock(store, blockOne, 40)).Should(BeTrue())
			Ω(putBlock(store, blockTwo, 40)).Should(BeTrue())

			// Access dataset 1 once, then age it out with two accesses of
			// dataset 2.
			_, ok := store.GetBytes(blockOne)
			Ω(ok).Should(BeTrue())
			store.GetBytes(blockTwo)
			store.GetBytes(blockTwo)

			Ω(store.Contains(blockOne)).Should(BeFalse())
			Ω(store.Contains(blockTwo)).Should(BeTrue())
		})

		ginkgo.It("evicts unleased datasets before leased ones", func() {
			store := NewMemoryStore(100, 0, Options{Policy: OSL})
			store.OnDAGInfo(common.DAGInfo{2: {4: 1}}, 10)
			unleased := common.NewRDDBlockID(1, 0)
			leased := common.NewRDDBlockID(2, 0)

			Ω(putBlock(store, leased, 40)).Should(BeTrue())
			Ω(putBlock(store, unleased, 40)).Should(BeTrue())
			Ω(putBlock(store, common.NewRDDBlockID(3, 0), 40)).Should(BeTrue())

			Ω(store.Contains(unleased)).Should(BeFalse())
			Ω(store.Contains(leased)).Should(BeTrue())
		})
	})

	ginkgo.Context("value unrolling", func() {
		unrollOptions := func(policy EvictionPolicy) Options {
			opts := Options{Policy: policy}
			opts.Unroll.InitialUnrollBytes = 16
			opts.Unroll.CheckInterval = 2
			opts.Unroll.GrowthFactor = 1.5
			return opts
		}

		ginkgo.It("admits an iterator that fits and transfers unroll to storage", func() {
			store := NewMemoryStore(1000, 0, unrollOptions(LRU))
			b := common.NewRDDBlockID(1, 0)
			size, partial := store.PutIteratorAsValues(1, b,
				common.NewSliceIterator([]interface{}{"a", "b", "c"}), "string")

			Ω(partial).Should(BeNil())
			Ω(size).Should(BeNumerically(">", 0))
			Ω(store.Contains(b)).Should(BeTrue())
			Ω(store.Account().UnrollUsed(common.OnHeap)).Should(Equal(int64(0)))
			Ω(store.Account().StorageUsed(common.OnHeap)).Should(Equal(size))

			values, ok := store.GetValues(b)
			Ω(ok).Should(BeTrue())
			Ω(values).Should(Equal([]interface{}{"a", "b", "c"}))
		})

		ginkgo.It("returns a continuation over prefix plus rest when memory runs out", func() {
			store := NewMemoryStore(64, 0, unrollOptions(LRU))
			b := common.NewRDDBlockID(1, 0)
			input := []interface{}{"aaaaaaaa", "bbbbbbbb", "cccccccc", "dddddddd"}
			size, partial := store.PutIteratorAsValues(1, b,
				common.NewSliceIterator(input), "string")

			Ω(size).Should(Equal(int64(0)))
			Ω(partial).ShouldNot(BeNil())
			Ω(store.Contains(b)).Should(BeFalse())

			var drained []interface{}
			for partial.HasNext() {
				drained = append(drained, partial.Next())
			}
			Ω(drained).Should(Equal(input))
			// Exhausting the continuation frees the retained unroll memory.
			Ω(store.Account().UnrollUsed(common.OnHeap)).Should(Equal(int64(0)))
		})

		ginkgo.It("serializes an iterator into chunks", func() {
			store := NewMemoryStore(1000, 0, unrollOptions(LRU))
			b := common.NewRDDBlockID(1, 0)
			size, partial := store.PutIteratorAsBytes(1, b,
				common.NewSliceIterator([]interface{}{"a", "b"}), "string", common.OnHeap)

			Ω(partial).Should(BeNil())
			Ω(size).Should(BeNumerically(">", 0))

			chunks, ok := store.GetBytes(b)
			Ω(ok).Should(BeTrue())
			Ω(chunks).Should(HaveLen(2))
		})

		ginkgo.It("releases a discarded serialized partial", func() {
			store := NewMemoryStore(32, 0, unrollOptions(LRU))
			b := common.NewRDDBlockID(1, 0)
			iter := common.NewSliceIterator([]interface{}{
				"aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbb", "cccccccccccccccc",
			})
			size, partial := store.PutIteratorAsBytes(1, b, iter, "string", common.OnHeap)

			Ω(size).Should(Equal(int64(0)))
			Ω(partial).ShouldNot(BeNil())
			partial.Close()
			Ω(store.Account().UnrollUsed(common.OnHeap)).Should(Equal(int64(0)))
		})
	})

	ginkgo.Context("reads and removal", func() {
		ginkgo.It("panics on a mismatched entry form", func() {
			// The default 1 MiB initial unroll reservation cannot fit in 1000 bytes.
			opts := Options{Policy: LRU}
			opts.Unroll.InitialUnrollBytes = 16
			store := NewMemoryStore(1000, 0, opts)
			serialized := common.NewRDDBlockID(1, 0)
			Ω(putBlock(store, serialized, 10)).Should(BeTrue())
			Ω(func() { store.GetValues(serialized) }).Should(Panic())

			deserialized := common.NewRDDBlockID(2, 0)
			_, partial := store.PutIteratorAsValues(1, deserialized,
				common.NewSliceIterator([]interface{}{"a"}), "string")
			Ω(partial).Should(BeNil())
			Ω(func() { store.GetBytes(deserialized) }).Should(Panic())
		})

		ginkgo.It("panics on a duplicate put", func() {
			store := NewMemoryStore(1000, 0, Options{Policy: LRU})
			b := common.NewRDDBlockID(1, 0)
			Ω(putBlock(store, b, 10)).Should(BeTrue())
			Ω(func() { putBlock(store, b, 10) }).Should(Panic())
		})

		ginkgo.It("decrements references on hits and counts misses", func() {
			store := NewMemoryStore(1000, 0, Options{Policy: LRU})
			store.SetProfiles(profileWith(map[common.DatasetID]int{1: 3}, nil))
			b := common.NewRDDBlockID(1, 0)
			Ω(putBlock(store, b, 10)).Should(BeTrue())

			store.GetBytes(b)
			ref, _ := store.refs.Ref(b)
			current, _ := store.refs.CurrentRef(b)
			Ω(ref).Should(Equal(2))
			Ω(current).Should(Equal(2))

			// A miss on an absent block of another dataset has no reference
			// entry to age; it is only counted.
			_, ok := store.GetBytes(common.NewRDDBlockID(9, 0))
			Ω(ok).Should(BeFalse())
			Ω(store.stats.Misses.Load()).Should(Equal(int64(1)))
		})

		ginkgo.It("removes unconditionally and idempotently", func() {
			store := NewMemoryStore(1000, 0, Options{Policy: LRU})
			b := common.NewRDDBlockID(1, 0)
			Ω(putBlock(store, b, 10)).Should(BeTrue())

			Ω(store.Remove(b)).Should(BeTrue())
			Ω(store.Remove(b)).Should(BeFalse())
			Ω(store.Account().StorageUsed(common.OnHeap)).Should(Equal(int64(0)))
			_, tracked := store.refs.Ref(b)
			Ω(tracked).Should(BeFalse())
		})

		ginkgo.It("clears every entry and reservation", func() {
			store := NewMemoryStore(1000, 0, Options{Policy: LRU})
			putBlock(store, common.NewRDDBlockID(1, 0), 10)
			putBlock(store, common.NewRDDBlockID(2, 0), 10)

			store.Clear()
			Ω(store.Size()).Should(Equal(0))
			Ω(store.Account().TotalUsed(common.OnHeap)).Should(Equal(int64(0)))
		})

		ginkgo.It("removes whole datasets, shuffles and broadcasts", func() {
			store := NewMemoryStore(1000, 0, Options{Policy: LRU})
			putBlock(store, common.NewRDDBlockID(1, 0), 10)
			putBlock(store, common.NewRDDBlockID(1, 1), 10)
			putBlock(store, common.NewShuffleBlockID(5, 0, 0), 10)
			putBlock(store, common.NewBroadcastBlockID(7), 10)

			Ω(store.RemoveDataset(1)).Should(Equal(2))
			Ω(store.RemoveShuffle(5)).Should(Equal(1))
			Ω(store.RemoveBroadcast(7)).Should(Equal(int64(10)))
			Ω(store.Size()).Should(Equal(0))
		})
	})
})
