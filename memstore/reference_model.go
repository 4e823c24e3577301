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

	"github.com/getlantern/deepcopy"
	"github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// ReferenceModel tracks per-block remaining references, the dataset reference
// profiles received from the master and the symmetric dataset peering. Each
// map is guarded by its own mutex; callers never hold two of them at once.
type ReferenceModel struct {
	refMutex sync.Mutex
	// Remaining references for this partition across all storage tiers.
	refMap map[common.BlockID]int

	currentRefMutex sync.Mutex
	// Remaining references restricted to in-memory copies. Keys are a subset
	// of refMap for blocks currently in the entry table.
	currentRefMap map[common.BlockID]int

	profileMutex    sync.Mutex
	refProfile      map[common.DatasetID]int
	refProfileByJob map[common.JobID]map[common.DatasetID]int
	peerProfile     map[common.DatasetID]common.DatasetID

	peerLostMutex sync.Mutex
	// Pending peer decrements for blocks whose peer was evicted before they
	// themselves were cached; drained on arrival.
	peerLostBlocks map[common.BlockID]int

	seenMutex sync.Mutex
	// Peer-eviction event ids already applied, so replays decrement exactly
	// once per originating event.
	seenEvents map[string]struct{}
}

// NewReferenceModel creates an empty reference model.
func NewReferenceModel() *ReferenceModel {
	return &ReferenceModel{
		refMap:          make(map[common.BlockID]int),
		currentRefMap:   make(map[common.BlockID]int),
		refProfile:      make(map[common.DatasetID]int),
		refProfileByJob: make(map[common.JobID]map[common.DatasetID]int),
		peerProfile:     make(map[common.DatasetID]common.DatasetID),
		peerLostBlocks:  make(map[common.BlockID]int),
		seenEvents:      make(map[string]struct{}),
	}
}

// SetProfiles installs the profiles fetched from the master. The input is
// deep-copied so later broadcasts cannot alias the master's own maps.
func (m *ReferenceModel) SetProfiles(p *common.RefProfile) {
	if p == nil {
		return
	}
	copied := common.NewRefProfile()
	if err := deepcopy.Copy(copied, p); err != nil {
		utils.GetLogger().With("error", err).Error("failed to copy ref profile, using originals")
		copied = p
	}
	m.profileMutex.Lock()
	defer m.profileMutex.Unlock()
	m.refProfile = copied.RefProfile
	m.refProfileByJob = copied.RefProfileByJob
	m.peerProfile = copied.PeerProfile
}

// OnBlockAdded initializes refMap for a newly ingested RDD block. Returns
// true when the block already has a reference entry (duplicate ingestion,
// logged, no overwrite).
func (m *ReferenceModel) OnBlockAdded(b common.BlockID) bool {
	if !b.IsRDD() {
		return false
	}
	m.profileMutex.Lock()
	profileRef, hasProfile := m.refProfile[b.Dataset]
	m.profileMutex.Unlock()

	m.refMutex.Lock()
	if _, ok := m.refMap[b]; ok {
		m.refMutex.Unlock()
		utils.GetLogger().With("block", b.String()).Debug("duplicate reference entry for block")
		utils.GetRootReporter().GetCounter(utils.DuplicatePuts).Inc(1)
		return true
	}
	if hasProfile {
		m.refMap[b] = profileRef
	} else {
		// Degenerate: the block has no profile.
		m.refMap[b] = 1
	}
	m.refMutex.Unlock()

	m.applyPendingPeerLoss(b)
	return false
}

// applyPendingPeerLoss drains peer decrements recorded before b arrived.
func (m *ReferenceModel) applyPendingPeerLoss(b common.BlockID) {
	m.peerLostMutex.Lock()
	pending, ok := m.peerLostBlocks[b]
	if ok {
		delete(m.peerLostBlocks, b)
	}
	m.peerLostMutex.Unlock()
	if !ok {
		return
	}
	m.refMutex.Lock()
	m.refMap[b] -= pending
	if m.refMap[b] < 0 {
		m.refMap[b] = 0
	}
	m.refMutex.Unlock()
}

// InstallCurrentRef copies refMap[b] into currentRefMap after the entry is
// installed in the entry table.
func (m *ReferenceModel) InstallCurrentRef(b common.BlockID) {
	if !b.IsRDD() {
		return
	}
	m.refMutex.Lock()
	ref, ok := m.refMap[b]
	m.refMutex.Unlock()
	if !ok {
		utils.GetLogger().Panicf("installing current ref for untracked block %s", b)
	}
	m.currentRefMutex.Lock()
	m.currentRefMap[b] = ref
	m.currentRefMutex.Unlock()
}

// OnCacheHit decrements both remaining-reference views of b.
func (m *ReferenceModel) OnCacheHit(b common.BlockID) {
	if !b.IsRDD() {
		return
	}
	m.refMutex.Lock()
	if ref, ok := m.refMap[b]; ok && ref > 0 {
		m.refMap[b] = ref - 1
	}
	m.refMutex.Unlock()
	m.currentRefMutex.Lock()
	if ref, ok := m.currentRefMap[b]; ok && ref > 0 {
		m.currentRefMap[b] = ref - 1
	}
	m.currentRefMutex.Unlock()
}

// OnCacheMiss decrements only the tier-wide remaining references of b.
func (m *ReferenceModel) OnCacheMiss(b common.BlockID) {
	if !b.IsRDD() {
		return
	}
	m.refMutex.Lock()
	if ref, ok := m.refMap[b]; ok && ref > 0 {
		m.refMap[b] = ref - 1
	}
	m.refMutex.Unlock()
}

// Ref returns the tier-wide remaining references of b.
func (m *ReferenceModel) Ref(b common.BlockID) (int, bool) {
	m.refMutex.Lock()
	defer m.refMutex.Unlock()
	ref, ok := m.refMap[b]
	return ref, ok
}

// ProjectedRef returns the remaining references b would carry: the tracked
// value when known, otherwise the dataset profile, otherwise one. Used to
// rank an incoming block that has not been admitted yet.
func (m *ReferenceModel) ProjectedRef(b common.BlockID) int {
	if ref, ok := m.Ref(b); ok {
		return ref
	}
	m.profileMutex.Lock()
	defer m.profileMutex.Unlock()
	if ref, ok := m.refProfile[b.Dataset]; ok {
		return ref
	}
	return 1
}

// CurrentRef returns the in-memory remaining references of b.
func (m *ReferenceModel) CurrentRef(b common.BlockID) (int, bool) {
	m.currentRefMutex.Lock()
	defer m.currentRefMutex.Unlock()
	ref, ok := m.currentRefMap[b]
	return ref, ok
}

// PeerOf looks up the peer dataset of d.
func (m *ReferenceModel) PeerOf(d common.DatasetID) (common.DatasetID, bool) {
	m.profileMutex.Lock()
	defer m.profileMutex.Unlock()
	peer, ok := m.peerProfile[d]
	return peer, ok
}

// JobProfile returns the per-job reference map for the job, if known.
func (m *ReferenceModel) JobProfile(job common.JobID) (map[common.DatasetID]int, bool) {
	m.profileMutex.Lock()
	defer m.profileMutex.Unlock()
	refs, ok := m.refProfileByJob[job]
	return refs, ok
}

// ApplyJobProfile replaces the app-wide reference profile for every dataset
// in the job's map and rewrites the references of every tracked block of
// those datasets. Distinct jobs are assumed not to share datasets in
// parallel.
func (m *ReferenceModel) ApplyJobProfile(refs map[common.DatasetID]int) {
	if len(refs) == 0 {
		return
	}
	m.profileMutex.Lock()
	for d, n := range refs {
		m.refProfile[d] = n
	}
	m.profileMutex.Unlock()

	m.refMutex.Lock()
	for b := range m.refMap {
		if n, ok := refs[b.Dataset]; ok {
			m.refMap[b] = n
		}
	}
	m.refMutex.Unlock()

	m.currentRefMutex.Lock()
	for b := range m.currentRefMap {
		if n, ok := refs[b.Dataset]; ok {
			m.currentRefMap[b] = n
		}
	}
	m.currentRefMutex.Unlock()
}

// seen records the event id and reports whether it was already applied.
func (m *ReferenceModel) seen(eventID string) bool {
	if eventID == "" {
		return false
	}
	m.seenMutex.Lock()
	defer m.seenMutex.Unlock()
	if _, ok := m.seenEvents[eventID]; ok {
		return true
	}
	m.seenEvents[eventID] = struct{}{}
	return false
}

// decrementOrPend decrements the reference views of b by one, or records a
// pending decrement when b is not yet tracked locally.
func (m *ReferenceModel) decrementOrPend(b common.BlockID) {
	m.refMutex.Lock()
	_, known := m.refMap[b]
	if known && m.refMap[b] > 0 {
		m.refMap[b]--
	}
	m.refMutex.Unlock()

	if !known {
		m.peerLostMutex.Lock()
		m.peerLostBlocks[b]++
		m.peerLostMutex.Unlock()
		return
	}

	m.currentRefMutex.Lock()
	if ref, ok := m.currentRefMap[b]; ok && ref > 0 {
		m.currentRefMap[b] = ref - 1
	}
	m.currentRefMutex.Unlock()
}

// CheckPeersConservatively handles a peer-eviction broadcast in conservative
// mode: only the evicted block and its counterpart partition lose one
// reference.
func (m *ReferenceModel) CheckPeersConservatively(eventID string, b common.BlockID) {
	if !b.IsRDD() || m.seen("c:"+eventID) {
		return
	}
	peer, ok := m.PeerOf(b.Dataset)
	if !ok {
		utils.GetLogger().With("block", b.String()).Debug("peer eviction for block without peer profile")
		return
	}
	m.decrementOrPend(b)
	m.decrementOrPend(common.NewRDDBlockID(peer, b.Partition))
}

// CheckPeersStrictly handles a peer-eviction broadcast in strict mode: both
// datasets lose one reference in the profile and on every tracked block.
func (m *ReferenceModel) CheckPeersStrictly(eventID string, b common.BlockID) {
	if !b.IsRDD() || m.seen("s:"+eventID) {
		return
	}
	peer, ok := m.PeerOf(b.Dataset)
	if !ok {
		utils.GetLogger().With("block", b.String()).Debug("peer eviction for block without peer profile")
		return
	}
	affected := map[common.DatasetID]bool{b.Dataset: true, peer: true}

	m.profileMutex.Lock()
	for d := range affected {
		if ref, ok := m.refProfile[d]; ok && ref > 0 {
			m.refProfile[d] = ref - 1
		}
	}
	m.profileMutex.Unlock()

	m.refMutex.Lock()
	for blk, ref := range m.refMap {
		if affected[blk.Dataset] && ref > 0 {
			m.refMap[blk] = ref - 1
		}
	}
	m.refMutex.Unlock()

	m.currentRefMutex.Lock()
	for blk, ref := range m.currentRefMap {
		if affected[blk.Dataset] && ref > 0 {
			m.currentRefMap[blk] = ref - 1
		}
	}
	m.currentRefMutex.Unlock()
}

// RemoveCurrent drops the in-memory reference view of b. The tier-wide entry
// persists until the block is fully removed.
func (m *ReferenceModel) RemoveCurrent(b common.BlockID) {
	m.currentRefMutex.Lock()
	delete(m.currentRefMap, b)
	m.currentRefMutex.Unlock()
}

// RemoveBlock drops all reference state of b.
func (m *ReferenceModel) RemoveBlock(b common.BlockID) {
	m.refMutex.Lock()
	delete(m.refMap, b)
	m.refMutex.Unlock()
	m.currentRefMutex.Lock()
	delete(m.currentRefMap, b)
	m.currentRefMutex.Unlock()
}

// Clear drops all per-block state but keeps the profiles.
func (m *ReferenceModel) Clear() {
	m.refMutex.Lock()
	m.refMap = make(map[common.BlockID]int)
	m.refMutex.Unlock()
	m.currentRefMutex.Lock()
	m.currentRefMap = make(map[common.BlockID]int)
	m.currentRefMutex.Unlock()
	m.peerLostMutex.Lock()
	m.peerLostBlocks = make(map[common.BlockID]int)
	m.peerLostMutex.Unlock()
}

// CurrentRefSnapshot returns a copy of the in-memory reference view, for the
// debug API.
func (m *ReferenceModel) CurrentRefSnapshot() map[string]int {
	m.currentRefMutex.Lock()
	defer m.currentRefMutex.Unlock()
	snapshot := make(map[string]int, len(m.currentRefMap))
	for b, ref := range m.currentRefMap {
		snapshot[b.String()] = ref
	}
	return snapshot
}
