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
	"math"
	"sort"

	"github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// EvictionPolicy selects which victim ordering the planner uses.
type EvictionPolicy int

// Supported eviction policies.
const (
	// LRU walks the entry table in least-recently-accessed order.
	LRU EvictionPolicy = iota
	// LRC evicts the block with the fewest remaining in-memory references.
	LRC
	// OSL evicts by remaining lease, unleased datasets first.
	OSL
)

func (p EvictionPolicy) String() string {
	switch p {
	case LRC:
		return "lrc"
	case OSL:
		return "osl"
	default:
		return "lru"
	}
}

// BlockEvictionHandler settles a block that is being dropped from memory and
// returns its storage level afterwards. A still-valid level means the block
// was spilled to disk; an invalid one means the data is gone. The handler may
// re-enter the store, so no store mutex is held across the call.
type BlockEvictionHandler interface {
	DropFromMemory(b common.BlockID, entry common.Entry) common.StorageLevel
}

// discardingEvictionHandler drops block data outright.
type discardingEvictionHandler struct{}

func (discardingEvictionHandler) DropFromMemory(b common.BlockID, entry common.Entry) common.StorageLevel {
	return common.StorageLevelNone
}

// EvictionPlanner selects victim blocks under the configured policy, given a
// required free-byte target, and settles the post-eviction state.
type EvictionPlanner struct {
	policy  EvictionPolicy
	entries *EntryTable
	locks   *BlockLockTable
	refs    *ReferenceModel
	leases  *LeaseEngine
	account *MemoryAccount
	handler BlockEvictionHandler
}

// NewEvictionPlanner wires a planner over the store's component state.
func NewEvictionPlanner(policy EvictionPolicy, entries *EntryTable, locks *BlockLockTable,
	refs *ReferenceModel, leases *LeaseEngine, account *MemoryAccount,
	handler BlockEvictionHandler) *EvictionPlanner {
	if handler == nil {
		handler = discardingEvictionHandler{}
	}
	return &EvictionPlanner{
		policy:  policy,
		entries: entries,
		locks:   locks,
		refs:    refs,
		leases:  leases,
		account: account,
		handler: handler,
	}
}

// evictable applies the policy-independent candidate filter: matching memory
// mode, not a sibling of the requesting block, write-lockable without
// blocking. The write lock is held on return true.
func (p *EvictionPlanner) evictable(c common.BlockID, mode common.MemoryMode, requesting *common.BlockID) bool {
	entry, ok := p.entries.Peek(c)
	if !ok || entry.MemoryMode() != mode {
		return false
	}
	// Never evict a sibling of the incoming block, or one oversized dataset
	// would thrash itself forever.
	if requesting != nil && requesting.IsRDD() && c.IsRDD() && c.Dataset == requesting.Dataset {
		return false
	}
	return p.locks.LockForWriting(c, false)
}

// TryFree makes room for at most one block of the given size and mode.
// Returns the bytes freed (>= space on success, 0 on failure). Victims are
// only dropped once the byte target is met; otherwise every selection is
// unlocked and nothing changes.
func (p *EvictionPlanner) TryFree(requesting *common.BlockID, space int64, mode common.MemoryMode) int64 {
	if space <= 0 {
		return 0
	}

	var selected []common.BlockID
	var selectedBytes int64

	selectOne := func(c common.BlockID) {
		entry, ok := p.entries.Peek(c)
		if !ok {
			p.locks.Unlock(c)
			return
		}
		selected = append(selected, c)
		selectedBytes += entry.Size()
	}

	switch p.policy {
	case LRC:
		incoming := math.MaxInt64
		if requesting != nil && requesting.IsRDD() {
			incoming = p.refs.ProjectedRef(*requesting)
		}
		// Broadcast blocks behave as if their incoming ref count is infinite.
		for _, c := range p.lrcCandidates() {
			if selectedBytes >= space {
				break
			}
			ref, _ := p.refs.CurrentRef(c)
			if ref >= incoming {
				break
			}
			if p.evictable(c, mode, requesting) {
				selectOne(c)
			}
		}

	case OSL:
		reqLease := 0
		if requesting != nil && requesting.IsRDD() {
			if l, ok := p.leases.CurrentLease(requesting.Dataset); ok {
				reqLease = l
			} else if l, ok := p.leases.Lease(requesting.Dataset); ok {
				reqLease = l
			}
		}
		// Phase 1: cached RDD blocks whose dataset holds no lease.
		for _, c := range p.entries.Keys() {
			if selectedBytes >= space {
				break
			}
			if !c.IsRDD() || p.leases.HasCurrentLease(c.Dataset) {
				continue
			}
			if p.evictable(c, mode, requesting) {
				selectOne(c)
			}
		}
		// Phase 2: leased datasets in ascending remaining-lease order.
		if selectedBytes < space {
			for _, d := range p.datasetsByLease() {
				if selectedBytes >= space {
					break
				}
				lease, _ := p.leases.CurrentLease(d)
				if reqLease > lease {
					continue
				}
				for _, c := range p.entries.Keys() {
					if selectedBytes >= space {
						break
					}
					if !c.IsRDD() || c.Dataset != d {
						continue
					}
					if p.evictable(c, mode, requesting) {
						selectOne(c)
					}
				}
			}
		}

	default: // LRU
		for _, c := range p.entries.Keys() {
			if selectedBytes >= space {
				break
			}
			if p.evictable(c, mode, requesting) {
				selectOne(c)
			}
		}
	}

	if selectedBytes < space {
		for _, c := range selected {
			p.locks.Unlock(c)
		}
		utils.GetLogger().With(
			"space", space,
			"selected", selectedBytes,
			"policy", p.policy.String(),
		).Debug("eviction could not meet byte target")
		return 0
	}

	var freed int64
	for _, c := range selected {
		freed += p.dropBlock(c)
	}
	return freed
}

// lrcCandidates returns the cached RDD blocks ranked by in-memory remaining
// references, fewest first. Ranking is stable over the access order snapshot.
func (p *EvictionPlanner) lrcCandidates() []common.BlockID {
	var candidates []common.BlockID
	for _, c := range p.entries.Keys() {
		if !c.IsRDD() {
			continue
		}
		if _, ok := p.refs.CurrentRef(c); ok {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, _ := p.refs.CurrentRef(candidates[i])
		rj, _ := p.refs.CurrentRef(candidates[j])
		return ri < rj
	})
	return candidates
}

// datasetsByLease returns the presently leased datasets in ascending
// remaining-lease order.
func (p *EvictionPlanner) datasetsByLease() []common.DatasetID {
	snapshot := p.leases.CurrentLeaseSnapshot()
	datasets := make([]common.DatasetID, 0, len(snapshot))
	for d := range snapshot {
		datasets = append(datasets, d)
	}
	sort.Slice(datasets, func(i, j int) bool {
		if snapshot[datasets[i]] == snapshot[datasets[j]] {
			return datasets[i] < datasets[j]
		}
		return snapshot[datasets[i]] < snapshot[datasets[j]]
	})
	return datasets
}

// dropBlock settles one selected victim whose write lock is held. Returns the
// bytes released.
func (p *EvictionPlanner) dropBlock(c common.BlockID) int64 {
	entry, ok := p.entries.Peek(c)
	if !ok {
		p.locks.Unlock(c)
		return 0
	}
	size := entry.Size()
	mode := entry.MemoryMode()

	// The handler may re-enter the store; no table mutex is held here.
	newLevel := p.handler.DropFromMemory(c, entry)

	p.entries.Remove(c)
	p.account.ReleaseStorage(size, mode)
	if c.IsRDD() {
		p.refs.RemoveCurrent(c)
		if !p.datasetStillCached(c.Dataset) {
			p.leases.RemoveDatasetCurrent(c.Dataset)
		}
	}

	if newLevel.IsValid() {
		// Spilled to disk: block metadata survives, only the lock is given up.
		p.locks.Unlock(c)
	} else {
		p.refs.RemoveBlock(c)
		p.locks.RemoveBlock(c)
	}

	utils.GetRootReporter().GetCounter(utils.EvictedBlocks).Inc(1)
	utils.GetRootReporter().GetCounter(utils.EvictedBytes).Inc(size)
	utils.GetLogger().With("block", c.String(), "size", size, "spilled", newLevel.IsValid()).
		Debug("evicted block from memory")
	return size
}

func (p *EvictionPlanner) datasetStillCached(d common.DatasetID) bool {
	for _, c := range p.entries.Keys() {
		if c.IsRDD() && c.Dataset == d {
			return true
		}
	}
	return false
}

// CheckLease drops every cached RDD block whose dataset lease ran out. Unlike
// TryFree there is no byte target; everything expired and write-lockable
// goes.
func (p *EvictionPlanner) CheckLease() {
	expired := make(map[common.DatasetID]bool)
	for _, d := range p.leases.ExpiredDatasets() {
		expired[d] = true
	}
	if len(expired) == 0 {
		return
	}
	var dropped int64
	for _, c := range p.entries.Keys() {
		if !c.IsRDD() || !expired[c.Dataset] {
			continue
		}
		if !p.locks.LockForWriting(c, false) {
			continue
		}
		p.dropBlock(c)
		dropped++
	}
	if dropped > 0 {
		utils.GetRootReporter().GetCounter(utils.LeaseExpiredBlocks).Inc(dropped)
	}
}
