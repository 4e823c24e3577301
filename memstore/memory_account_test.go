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

var _ = ginkgo.Describe("memory account", func() {
	blockA := common.NewRDDBlockID(1, 0)

	ginkgo.It("grants storage within capacity and rejects beyond it", func() {
		account := NewMemoryAccount(100, 0)
		Ω(account.AcquireStorage(blockA, 60, common.OnHeap)).Should(BeTrue())
		Ω(account.AcquireStorage(blockA, 60, common.OnHeap)).Should(BeFalse())
		Ω(account.StorageUsed(common.OnHeap)).Should(Equal(int64(60)))

		account.ReleaseStorage(60, common.OnHeap)
		Ω(account.StorageUsed(common.OnHeap)).Should(Equal(int64(0)))
	})

	ginkgo.It("keeps storage plus unroll under the capacity", func() {
		account := NewMemoryAccount(100, 0)
		Ω(account.AcquireStorage(blockA, 50, common.OnHeap)).Should(BeTrue())
		Ω(account.AcquireUnroll(7, blockA, 40, common.OnHeap)).Should(BeTrue())
		Ω(account.AcquireUnroll(7, blockA, 20, common.OnHeap)).Should(BeFalse())
		Ω(account.TotalUsed(common.OnHeap)).Should(Equal(int64(90)))
	})

	ginkgo.It("tracks unroll bytes per task and transfers them to storage", func() {
		account := NewMemoryAccount(100, 0)
		Ω(account.AcquireUnroll(1, blockA, 30, common.OnHeap)).Should(BeTrue())
		Ω(account.AcquireUnroll(2, blockA, 20, common.OnHeap)).Should(BeTrue())

		Ω(account.TransferUnrollToStorage(1, 30, common.OnHeap)).Should(BeTrue())
		Ω(account.StorageUsed(common.OnHeap)).Should(Equal(int64(30)))
		Ω(account.UnrollUsed(common.OnHeap)).Should(Equal(int64(20)))

		// Task 1 has nothing left to transfer.
		Ω(account.TransferUnrollToStorage(1, 1, common.OnHeap)).Should(BeFalse())
	})

	ginkgo.It("frees everything a finished task still holds", func() {
		account := NewMemoryAccount(100, 0)
		Ω(account.AcquireUnroll(9, blockA, 25, common.OnHeap)).Should(BeTrue())
		Ω(account.ReleaseAllUnrollForTask(9)).Should(Equal(int64(25)))
		Ω(account.UnrollUsed(common.OnHeap)).Should(Equal(int64(0)))
		Ω(account.ReleaseAllUnrollForTask(9)).Should(Equal(int64(0)))
	})

	ginkgo.It("tracks modes independently", func() {
		account := NewMemoryAccount(50, 80)
		Ω(account.AcquireStorage(blockA, 50, common.OnHeap)).Should(BeTrue())
		Ω(account.AcquireStorage(blockA, 80, common.OffHeap)).Should(BeTrue())
		Ω(account.AcquireStorage(blockA, 1, common.OnHeap)).Should(BeFalse())
		Ω(account.MaxOnHeapStorageMemory()).Should(Equal(int64(50)))
	})
})
