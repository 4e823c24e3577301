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

	"github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// Evictor frees storage bytes on demand. Implemented by the MemoryStore on
// top of the EvictionPlanner.
type Evictor interface {
	// EvictBlocksToFreeSpace tries to free at least space bytes in the given
	// mode so that block can be admitted. Returns the number of bytes freed,
	// zero on failure.
	EvictBlocksToFreeSpace(block *common.BlockID, space int64, mode common.MemoryMode) int64
}

// MemoryAccount tracks bytes reserved for block storage and for unrolling,
// per memory mode. Unroll bytes and storage bytes share the same pool but are
// tracked independently by task so the engine can atomically transfer unroll
// bytes to storage once a put succeeds.
type MemoryAccount struct {
	sync.Mutex
	maxMemory [2]int64
	storage   [2]int64
	unroll    [2]int64
	// task id -> mode -> unroll bytes held.
	unrollByTask map[int64]*[2]int64

	// evictor is set after the planner is constructed; nil means admission
	// failures are final.
	evictor Evictor
}

// NewMemoryAccount creates an account with the given per-mode capacities.
func NewMemoryAccount(maxOnHeap, maxOffHeap int64) *MemoryAccount {
	utils.GetRootReporter().GetGauge(utils.TotalMemorySize).Update(float64(maxOnHeap + maxOffHeap))
	return &MemoryAccount{
		maxMemory:    [2]int64{maxOnHeap, maxOffHeap},
		unrollByTask: make(map[int64]*[2]int64),
	}
}

// SetEvictor installs the evictor invoked when a reservation cannot be
// granted.
func (a *MemoryAccount) SetEvictor(e Evictor) {
	a.Lock()
	defer a.Unlock()
	a.evictor = e
}

// MaxOnHeapStorageMemory returns the on-heap capacity.
func (a *MemoryAccount) MaxOnHeapStorageMemory() int64 {
	return a.maxMemory[common.OnHeap]
}

// StorageUsed returns the storage bytes currently reserved in the mode.
func (a *MemoryAccount) StorageUsed(mode common.MemoryMode) int64 {
	a.Lock()
	defer a.Unlock()
	return a.storage[mode]
}

// UnrollUsed returns the unroll bytes currently reserved in the mode.
func (a *MemoryAccount) UnrollUsed(mode common.MemoryMode) int64 {
	a.Lock()
	defer a.Unlock()
	return a.unroll[mode]
}

// TotalUsed returns storage plus unroll bytes reserved in the mode.
func (a *MemoryAccount) TotalUsed(mode common.MemoryMode) int64 {
	a.Lock()
	defer a.Unlock()
	return a.storage[mode] + a.unroll[mode]
}

func (a *MemoryAccount) fitsLocked(n int64, mode common.MemoryMode) bool {
	return a.storage[mode]+a.unroll[mode]+n <= a.maxMemory[mode]
}

func (a *MemoryAccount) reportLocked() {
	utils.GetRootReporter().GetGauge(utils.UsedStorageMemory).
		Update(float64(a.storage[common.OnHeap] + a.storage[common.OffHeap]))
	utils.GetRootReporter().GetGauge(utils.UnrollMemorySize).
		Update(float64(a.unroll[common.OnHeap] + a.unroll[common.OffHeap]))
}

// AcquireStorage reserves n storage bytes for block in the given mode. When
// the pool is exhausted it asks the evictor to free space and retries the
// accounting update exactly once, so a successful eviction cannot be consumed
// by two concurrent acquisitions of the same bytes twice.
func (a *MemoryAccount) AcquireStorage(block common.BlockID, n int64, mode common.MemoryMode) bool {
	a.Lock()
	if a.fitsLocked(n, mode) {
		a.storage[mode] += n
		a.reportLocked()
		a.Unlock()
		return true
	}
	needed := a.storage[mode] + a.unroll[mode] + n - a.maxMemory[mode]
	evictor := a.evictor
	a.Unlock()

	if evictor == nil {
		return false
	}
	// The eviction handler may re-enter the account to release bytes, so the
	// mutex must not be held across this call.
	evictor.EvictBlocksToFreeSpace(&block, needed, mode)

	a.Lock()
	defer a.Unlock()
	if a.fitsLocked(n, mode) {
		a.storage[mode] += n
		a.reportLocked()
		return true
	}
	utils.GetRootReporter().GetCounter(utils.MemoryOverflow).Inc(1)
	return false
}

// ReleaseStorage returns n storage bytes to the pool.
func (a *MemoryAccount) ReleaseStorage(n int64, mode common.MemoryMode) {
	a.Lock()
	defer a.Unlock()
	a.storage[mode] -= n
	if a.storage[mode] < 0 {
		utils.GetLogger().Panicf("storage accounting underflow: released %d more bytes than reserved", -a.storage[mode])
	}
	a.reportLocked()
}

// AcquireUnroll reserves n unroll bytes for the task materializing block.
// Like AcquireStorage it falls back to eviction once.
func (a *MemoryAccount) AcquireUnroll(taskID int64, block common.BlockID, n int64, mode common.MemoryMode) bool {
	a.Lock()
	if a.fitsLocked(n, mode) {
		a.addUnrollLocked(taskID, n, mode)
		a.Unlock()
		return true
	}
	needed := a.storage[mode] + a.unroll[mode] + n - a.maxMemory[mode]
	evictor := a.evictor
	a.Unlock()

	if evictor == nil {
		return false
	}
	evictor.EvictBlocksToFreeSpace(&block, needed, mode)

	a.Lock()
	defer a.Unlock()
	if a.fitsLocked(n, mode) {
		a.addUnrollLocked(taskID, n, mode)
		return true
	}
	return false
}

func (a *MemoryAccount) addUnrollLocked(taskID, n int64, mode common.MemoryMode) {
	a.unroll[mode] += n
	held, ok := a.unrollByTask[taskID]
	if !ok {
		held = &[2]int64{}
		a.unrollByTask[taskID] = held
	}
	held[mode] += n
	a.reportLocked()
}

// ReleaseUnroll returns n unroll bytes held by the task to the pool.
func (a *MemoryAccount) ReleaseUnroll(taskID, n int64, mode common.MemoryMode) {
	a.Lock()
	defer a.Unlock()
	a.releaseUnrollLocked(taskID, n, mode)
}

func (a *MemoryAccount) releaseUnrollLocked(taskID, n int64, mode common.MemoryMode) {
	held, ok := a.unrollByTask[taskID]
	if !ok || held[mode] < n {
		utils.GetLogger().Panicf("unroll accounting underflow for task %d", taskID)
	}
	held[mode] -= n
	a.unroll[mode] -= n
	if held[common.OnHeap] == 0 && held[common.OffHeap] == 0 {
		delete(a.unrollByTask, taskID)
	}
	a.reportLocked()
}

// ReleaseAllUnrollForTask frees whatever unroll bytes the task still holds.
// Wired to the task-completion listener.
func (a *MemoryAccount) ReleaseAllUnrollForTask(taskID int64) int64 {
	a.Lock()
	defer a.Unlock()
	held, ok := a.unrollByTask[taskID]
	if !ok {
		return 0
	}
	freed := held[common.OnHeap] + held[common.OffHeap]
	a.unroll[common.OnHeap] -= held[common.OnHeap]
	a.unroll[common.OffHeap] -= held[common.OffHeap]
	delete(a.unrollByTask, taskID)
	a.reportLocked()
	return freed
}

// TransferUnrollToStorage atomically converts n unroll bytes held by the task
// into storage bytes. The pool totals do not change, so the transfer cannot
// overflow; it fails only when the task holds fewer than n unroll bytes.
func (a *MemoryAccount) TransferUnrollToStorage(taskID, n int64, mode common.MemoryMode) bool {
	a.Lock()
	defer a.Unlock()
	held, ok := a.unrollByTask[taskID]
	if !ok || held[mode] < n {
		return false
	}
	a.releaseUnrollLocked(taskID, n, mode)
	a.storage[mode] += n
	a.reportLocked()
	return true
}

// Reset clears all reservations. Used by MemoryStore.Clear.
func (a *MemoryAccount) Reset() {
	a.Lock()
	defer a.Unlock()
	a.storage = [2]int64{}
	a.unroll = [2]int64{}
	a.unrollByTask = make(map[int64]*[2]int64)
	a.reportLocked()
}
