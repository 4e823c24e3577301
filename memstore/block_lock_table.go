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
)

// blockLockState tracks the holders of one block's lock. Readers and writers
// are mutually exclusive; at most one writer at a time.
type blockLockState struct {
	writer  bool
	readers int
}

// BlockLockTable provides non-reentrant per-block read/write locks. Lock
// state survives storage transitions and is only dropped by RemoveBlock.
type BlockLockTable struct {
	mu    sync.Mutex
	cond  *sync.Cond
	locks map[common.BlockID]*blockLockState
}

// NewBlockLockTable creates an empty lock table.
func NewBlockLockTable() *BlockLockTable {
	t := &BlockLockTable{
		locks: make(map[common.BlockID]*blockLockState),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *BlockLockTable) stateLocked(b common.BlockID) *blockLockState {
	state, ok := t.locks[b]
	if !ok {
		state = &blockLockState{}
		t.locks[b] = state
	}
	return state
}

// LockForWriting acquires the write lock on b. With blocking=false it returns
// false immediately if any other holder exists, including readers.
func (t *BlockLockTable) LockForWriting(b common.BlockID, blocking bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		state := t.stateLocked(b)
		if !state.writer && state.readers == 0 {
			state.writer = true
			return true
		}
		if !blocking {
			return false
		}
		t.cond.Wait()
	}
}

// LockForReading acquires a read lock on b. With blocking=false it returns
// false immediately if a writer holds the lock.
func (t *BlockLockTable) LockForReading(b common.BlockID, blocking bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		state := t.stateLocked(b)
		if !state.writer {
			state.readers++
			return true
		}
		if !blocking {
			return false
		}
		t.cond.Wait()
	}
}

// Unlock releases the lock held on b: the write lock if one is held,
// otherwise one read lock.
func (t *BlockLockTable) Unlock(b common.BlockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.locks[b]
	if !ok {
		return
	}
	if state.writer {
		state.writer = false
	} else if state.readers > 0 {
		state.readers--
	}
	t.cond.Broadcast()
}

// RemoveBlock drops the lock metadata for b and wakes any waiters.
func (t *BlockLockTable) RemoveBlock(b common.BlockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, b)
	t.cond.Broadcast()
}

// IsLocked reports whether any holder exists for b.
func (t *BlockLockTable) IsLocked(b common.BlockID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.locks[b]
	return ok && (state.writer || state.readers > 0)
}

// Size returns the number of blocks with lock metadata.
func (t *BlockLockTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
