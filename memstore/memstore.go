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
	"go.uber.org/atomic"
	"github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// CacheStats is the per-store telemetry bundle flushed to the master.
type CacheStats struct {
	Hits       atomic.Int64
	Misses     atomic.Int64
	DiskReads  atomic.Int64
	DiskWrites atomic.Int64
}

// SwapSnapshot returns [hit, miss, diskRead, diskWrite] and resets the
// counters.
func (s *CacheStats) SwapSnapshot() [4]int64 {
	return [4]int64{
		s.Hits.Swap(0),
		s.Misses.Swap(0),
		s.DiskReads.Swap(0),
		s.DiskWrites.Swap(0),
	}
}

// MemoryStore caches blocks in a bounded memory region. It admits new blocks
// through the MemoryAccount, evicting through the EvictionPlanner when a
// reservation cannot be granted, and keeps the reference and lease models in
// step with every read.
type MemoryStore struct {
	account *MemoryAccount
	entries *EntryTable
	locks   *BlockLockTable
	refs    *ReferenceModel
	leases  *LeaseEngine
	planner *EvictionPlanner
	options Options
	stats   CacheStats
}

// NewMemoryStore creates a store over the given per-mode capacities.
func NewMemoryStore(maxOnHeap, maxOffHeap int64, options Options) *MemoryStore {
	options.applyDefaults()
	entries := NewEntryTable()
	store := &MemoryStore{
		account: NewMemoryAccount(maxOnHeap, maxOffHeap),
		entries: entries,
		locks:   NewBlockLockTable(),
		refs:    NewReferenceModel(),
		options: options,
	}
	store.leases = NewLeaseEngine(store.CachedRDDBlockCount)
	store.planner = NewEvictionPlanner(options.Policy, entries, store.locks,
		store.refs, store.leases, store.account, options.Handler)
	store.account.SetEvictor(store)
	return store
}

// Account exposes the memory account, e.g. for the task-completion listener.
func (s *MemoryStore) Account() *MemoryAccount {
	return s.account
}

// Stats exposes the telemetry counter bundle.
func (s *MemoryStore) Stats() *CacheStats {
	return &s.stats
}

// Policy returns the configured eviction policy.
func (s *MemoryStore) Policy() EvictionPolicy {
	return s.options.Policy
}

// CachedRDDBlockCount counts the RDD blocks presently in the entry table.
func (s *MemoryStore) CachedRDDBlockCount() int {
	count := 0
	for _, b := range s.entries.Keys() {
		if b.IsRDD() {
			count++
		}
	}
	return count
}

// EvictBlocksToFreeSpace is the public hook the memory account invokes under
// pressure.
func (s *MemoryStore) EvictBlocksToFreeSpace(block *common.BlockID, space int64, mode common.MemoryMode) int64 {
	return s.planner.TryFree(block, space, mode)
}

// install publishes a fully materialized entry and brings the reference and
// lease views up. currentRefMap is only written once the entry is in the
// table.
func (s *MemoryStore) install(b common.BlockID, entry common.Entry) {
	s.refs.OnBlockAdded(b)
	s.leases.OnBlockAdded(b)
	s.entries.Put(b, entry)
	s.refs.InstallCurrentRef(b)
}

func (s *MemoryStore) requireAbsent(b common.BlockID) {
	if s.entries.Contains(b) {
		utils.GetLogger().Panicf("block %s is already present in the memory store", b)
	}
}

// PutBytes reserves size bytes, then materializes the serialized block via
// bytesFn. Returns false when the reservation fails even after eviction.
func (s *MemoryStore) PutBytes(b common.BlockID, size int64, mode common.MemoryMode, bytesFn func() [][]byte) bool {
	s.requireAbsent(b)
	if !s.account.AcquireStorage(b, size, mode) {
		return false
	}
	entry := &common.SerializedEntry{
		Chunks: bytesFn(),
		Mode:   mode,
	}
	s.install(b, entry)
	return true
}

// PutIteratorAsValues incrementally materializes the iterator into a value
// array, growing the unroll reservation as the estimate grows. On success the
// unroll bytes are transferred to storage atomically and the final size is
// returned. On memory exhaustion a continuation iterator over the prefix plus
// the remaining input is returned instead; it retains the unroll memory until
// consumed or closed.
func (s *MemoryStore) PutIteratorAsValues(taskID int64, b common.BlockID, iter common.ValueIterator, tag string) (int64, *PartialUnrolledIterator) {
	s.requireAbsent(b)
	cfg := s.options.Unroll
	mode := common.OnHeap

	reserved := int64(0)
	keepUnrolling := s.account.AcquireUnroll(taskID, b, cfg.InitialUnrollBytes, mode)
	if keepUnrolling {
		reserved = cfg.InitialUnrollBytes
	}

	var values []interface{}
	estimate := int64(0)
	for keepUnrolling && iter.HasNext() {
		values = append(values, iter.Next())
		if len(values)%cfg.CheckInterval == 0 {
			estimate = common.EstimateSliceSize(values)
			if estimate >= reserved {
				request := int64(float64(estimate)*cfg.GrowthFactor) - reserved
				if s.account.AcquireUnroll(taskID, b, request, mode) {
					reserved += request
				} else {
					keepUnrolling = false
				}
			}
		}
	}

	if keepUnrolling {
		finalSize := common.EstimateSliceSize(values)
		if finalSize < reserved {
			// Give back the over-reservation before the transfer.
			s.account.ReleaseUnroll(taskID, reserved-finalSize, mode)
			reserved = finalSize
		} else if finalSize > reserved {
			if s.account.AcquireUnroll(taskID, b, finalSize-reserved, mode) {
				reserved = finalSize
			} else {
				keepUnrolling = false
			}
		}
		if keepUnrolling {
			if !s.account.TransferUnrollToStorage(taskID, finalSize, mode) {
				utils.GetLogger().Panicf("failed to transfer %d unroll bytes to storage for block %s", finalSize, b)
			}
			entry := &common.DeserializedEntry{Values: values, SizeBytes: finalSize, ClassTag: tag}
			s.install(b, entry)
			return finalSize, nil
		}
	}

	return 0, &PartialUnrolledIterator{
		account:     s.account,
		taskID:      taskID,
		mode:        mode,
		unrollBytes: reserved,
		unrolled:    values,
		rest:        iter,
	}
}

// PutIteratorAsBytes serializes the iterator into a chunked buffer with a
// threshold check after each element. Success and failure mirror
// PutIteratorAsValues.
func (s *MemoryStore) PutIteratorAsBytes(taskID int64, b common.BlockID, iter common.ValueIterator, tag string, mode common.MemoryMode) (int64, *PartialSerializedBlock) {
	s.requireAbsent(b)
	cfg := s.options.Unroll

	reserved := int64(0)
	keepUnrolling := s.account.AcquireUnroll(taskID, b, cfg.InitialUnrollBytes, mode)
	if keepUnrolling {
		reserved = cfg.InitialUnrollBytes
	}

	var chunks [][]byte
	written := int64(0)
	for keepUnrolling && iter.HasNext() {
		data, err := s.options.Serializer(iter.Next())
		if err != nil {
			utils.GetLogger().Panicf("failed to serialize value for block %s: %v", b, err)
		}
		chunks = append(chunks, data)
		written += int64(len(data))
		if written >= reserved {
			request := int64(float64(written)*cfg.GrowthFactor) - reserved
			if s.account.AcquireUnroll(taskID, b, request, mode) {
				reserved += request
			} else {
				keepUnrolling = false
			}
		}
	}

	if keepUnrolling {
		if written < reserved {
			s.account.ReleaseUnroll(taskID, reserved-written, mode)
			reserved = written
		}
		if !s.account.TransferUnrollToStorage(taskID, written, mode) {
			utils.GetLogger().Panicf("failed to transfer %d unroll bytes to storage for block %s", written, b)
		}
		entry := &common.SerializedEntry{Chunks: chunks, Mode: mode, ClassTag: tag}
		s.install(b, entry)
		return written, nil
	}

	return 0, &PartialSerializedBlock{
		account:     s.account,
		taskID:      taskID,
		mode:        mode,
		unrollBytes: reserved,
		Chunks:      chunks,
		Rest:        iter,
	}
}

// onRead settles a successful read: reference decrement, lease tick and an
// immediate lease sweep.
func (s *MemoryStore) onRead(b common.BlockID) {
	if !b.IsRDD() {
		return
	}
	s.stats.Hits.Inc()
	utils.GetRootReporter().GetCounter(utils.CacheHit).Inc(1)
	s.refs.OnCacheHit(b)
	s.leases.Tick(b.Dataset)
	s.planner.CheckLease()
}

func (s *MemoryStore) onMiss(b common.BlockID) {
	if !b.IsRDD() {
		return
	}
	s.stats.Misses.Inc()
	utils.GetRootReporter().GetCounter(utils.CacheMiss).Inc(1)
	s.refs.OnCacheMiss(b)
}

// GetBytes returns the chunks of a serialized entry, or false when absent.
// Calling it on a deserialized entry is a programmer error.
func (s *MemoryStore) GetBytes(b common.BlockID) ([][]byte, bool) {
	entry, ok := s.entries.Get(b)
	if !ok {
		s.onMiss(b)
		return nil, false
	}
	serialized, isSerialized := entry.(*common.SerializedEntry)
	if !isSerialized {
		utils.GetLogger().Panicf("GetBytes called on deserialized entry %s", b)
	}
	s.onRead(b)
	return serialized.Chunks, true
}

// GetValues returns the value array of a deserialized entry, or false when
// absent. Calling it on a serialized entry is a programmer error.
func (s *MemoryStore) GetValues(b common.BlockID) ([]interface{}, bool) {
	entry, ok := s.entries.Get(b)
	if !ok {
		s.onMiss(b)
		return nil, false
	}
	deserialized, isDeserialized := entry.(*common.DeserializedEntry)
	if !isDeserialized {
		utils.GetLogger().Panicf("GetValues called on serialized entry %s", b)
	}
	s.onRead(b)
	return deserialized.Values, true
}

// Contains tells whether the block has an in-memory entry.
func (s *MemoryStore) Contains(b common.BlockID) bool {
	return s.entries.Contains(b)
}

// Size returns the number of cached entries.
func (s *MemoryStore) Size() int {
	return s.entries.Size()
}

// BlockStatusOf reports the memory tier status of b.
func (s *MemoryStore) BlockStatusOf(b common.BlockID) common.BlockStatus {
	entry, ok := s.entries.Peek(b)
	if !ok {
		return common.BlockStatus{}
	}
	level := common.StorageLevelMemoryOnly
	if entry.IsSerialized() {
		level = common.StorageLevelMemorySer
		level.Mode = entry.MemoryMode()
	}
	return common.BlockStatus{StorageLevel: level, MemSize: entry.Size()}
}

// Remove evicts the block unconditionally, releasing its storage bytes and
// all per-block state. Returns false when the block is absent.
func (s *MemoryStore) Remove(b common.BlockID) bool {
	s.locks.LockForWriting(b, true)
	entry, ok := s.entries.Remove(b)
	if !ok {
		s.locks.RemoveBlock(b)
		return false
	}
	s.account.ReleaseStorage(entry.Size(), entry.MemoryMode())
	if b.IsRDD() {
		s.refs.RemoveBlock(b)
		if !s.planner.datasetStillCached(b.Dataset) {
			s.leases.RemoveDatasetCurrent(b.Dataset)
		}
	}
	s.locks.RemoveBlock(b)
	return true
}

// RemoveDataset removes every cached block of the dataset; returns how many
// blocks were dropped.
func (s *MemoryStore) RemoveDataset(d common.DatasetID) int {
	removed := 0
	for _, b := range s.entries.Keys() {
		if b.IsRDD() && b.Dataset == d {
			if s.Remove(b) {
				removed++
			}
		}
	}
	return removed
}

// RemoveBroadcast removes the broadcast block; returns the bytes freed.
func (s *MemoryStore) RemoveBroadcast(id common.DatasetID) int64 {
	b := common.NewBroadcastBlockID(id)
	entry, ok := s.entries.Peek(b)
	if !ok {
		return 0
	}
	size := entry.Size()
	if s.Remove(b) {
		return size
	}
	return 0
}

// RemoveShuffle removes every cached block of the shuffle; returns how many
// blocks were dropped.
func (s *MemoryStore) RemoveShuffle(id common.DatasetID) int {
	removed := 0
	for _, b := range s.entries.Keys() {
		if b.Type == common.ShuffleBlock && b.Dataset == id {
			if s.Remove(b) {
				removed++
			}
		}
	}
	return removed
}

// Clear removes all entries, resets the unroll tables and releases all
// storage bytes.
func (s *MemoryStore) Clear() {
	for _, b := range s.entries.Keys() {
		s.locks.RemoveBlock(b)
	}
	s.entries.Clear()
	s.account.Reset()
	s.refs.Clear()
	s.leases.Clear()
}

// SetProfiles installs the reference profiles fetched from the master.
func (s *MemoryStore) SetProfiles(p *common.RefProfile) {
	s.refs.SetProfiles(p)
}

// OnJobStart applies the per-job reference map, either the one carried by the
// broadcast or the one loaded from the job profile file.
func (s *MemoryStore) OnJobStart(job common.JobID, refs map[common.DatasetID]int) {
	if refs == nil {
		loaded, ok := s.refs.JobProfile(job)
		if !ok {
			utils.GetLogger().With("job", int(job)).Debug("no reference profile for job")
			return
		}
		refs = loaded
	}
	s.refs.ApplyJobProfile(refs)
}

// OnDAGInfo replaces the reuse-interval histograms and recomputes leases.
func (s *MemoryStore) OnDAGInfo(dag common.DAGInfo, accessNumberGlobal int) {
	s.leases.SetDAGInfo(dag, accessNumberGlobal)
}

// CheckPeersConservatively applies a conservative peer-eviction broadcast.
func (s *MemoryStore) CheckPeersConservatively(eventID string, b common.BlockID) {
	s.refs.CheckPeersConservatively(eventID, b)
}

// CheckPeersStrictly applies a strict peer-eviction broadcast.
func (s *MemoryStore) CheckPeersStrictly(eventID string, b common.BlockID) {
	s.refs.CheckPeersStrictly(eventID, b)
}

// MemoryUsage is a point-in-time account snapshot for the debug API.
type MemoryUsage struct {
	MaxOnHeap      int64 `json:"max_on_heap"`
	MaxOffHeap     int64 `json:"max_off_heap"`
	StorageOnHeap  int64 `json:"storage_on_heap"`
	StorageOffHeap int64 `json:"storage_off_heap"`
	UnrollOnHeap   int64 `json:"unroll_on_heap"`
	UnrollOffHeap  int64 `json:"unroll_off_heap"`
	NumEntries     int   `json:"num_entries"`
}

// Usage returns the current account snapshot.
func (s *MemoryStore) Usage() MemoryUsage {
	return MemoryUsage{
		MaxOnHeap:      s.account.maxMemory[common.OnHeap],
		MaxOffHeap:     s.account.maxMemory[common.OffHeap],
		StorageOnHeap:  s.account.StorageUsed(common.OnHeap),
		StorageOffHeap: s.account.StorageUsed(common.OffHeap),
		UnrollOnHeap:   s.account.UnrollUsed(common.OnHeap),
		UnrollOffHeap:  s.account.UnrollUsed(common.OffHeap),
		NumEntries:     s.entries.Size(),
	}
}

// BlockSummary describes one cached entry for the debug API.
type BlockSummary struct {
	Block        string `json:"block"`
	Size         int64  `json:"size"`
	Mode         string `json:"mode"`
	Serialized   bool   `json:"serialized"`
	CurrentRef   *int   `json:"current_ref,omitempty"`
	CurrentLease *int   `json:"current_lease,omitempty"`
}

// Blocks lists the cached entries from least- to most-recently-accessed.
func (s *MemoryStore) Blocks() []BlockSummary {
	keys := s.entries.Keys()
	summaries := make([]BlockSummary, 0, len(keys))
	for _, b := range keys {
		entry, ok := s.entries.Peek(b)
		if !ok {
			continue
		}
		summary := BlockSummary{
			Block:      b.String(),
			Size:       entry.Size(),
			Mode:       entry.MemoryMode().String(),
			Serialized: entry.IsSerialized(),
		}
		if ref, ok := s.refs.CurrentRef(b); ok {
			refCopy := ref
			summary.CurrentRef = &refCopy
		}
		if b.IsRDD() {
			if lease, ok := s.leases.CurrentLease(b.Dataset); ok {
				leaseCopy := lease
				summary.CurrentLease = &leaseCopy
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
