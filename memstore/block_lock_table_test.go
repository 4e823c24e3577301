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

var _ = ginkgo.Describe("block lock table", func() {
	blockA := common.NewRDDBlockID(1, 0)
	blockB := common.NewRDDBlockID(1, 1)

	ginkgo.It("excludes writers from other holders", func() {
		locks := NewBlockLockTable()
		Ω(locks.LockForWriting(blockA, false)).Should(BeTrue())
		Ω(locks.LockForWriting(blockA, false)).Should(BeFalse())
		Ω(locks.LockForReading(blockA, false)).Should(BeFalse())

		// Other blocks are unaffected.
		Ω(locks.LockForWriting(blockB, false)).Should(BeTrue())

		locks.Unlock(blockA)
		Ω(locks.LockForWriting(blockA, false)).Should(BeTrue())
	})

	ginkgo.It("refuses a non-blocking write while readers exist", func() {
		locks := NewBlockLockTable()
		Ω(locks.LockForReading(blockA, false)).Should(BeTrue())
		Ω(locks.LockForReading(blockA, false)).Should(BeTrue())
		Ω(locks.LockForWriting(blockA, false)).Should(BeFalse())

		locks.Unlock(blockA)
		Ω(locks.LockForWriting(blockA, false)).Should(BeFalse())
		locks.Unlock(blockA)
		Ω(locks.LockForWriting(blockA, false)).Should(BeTrue())
	})

	ginkgo.It("blocks a writer until readers drain", func() {
		locks := NewBlockLockTable()
		Ω(locks.LockForReading(blockA, false)).Should(BeTrue())

		acquired := make(chan struct{})
		go func() {
			locks.LockForWriting(blockA, true)
			close(acquired)
		}()

		Consistently(acquired).ShouldNot(BeClosed())
		locks.Unlock(blockA)
		Eventually(acquired).Should(BeClosed())
	})

	ginkgo.It("drops metadata on remove", func() {
		locks := NewBlockLockTable()
		Ω(locks.LockForWriting(blockA, false)).Should(BeTrue())
		Ω(locks.IsLocked(blockA)).Should(BeTrue())
		locks.RemoveBlock(blockA)
		Ω(locks.IsLocked(blockA)).Should(BeFalse())
		Ω(locks.LockForWriting(blockA, false)).Should(BeTrue())
	})
})
