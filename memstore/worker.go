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
	"runtime"

	"github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// Worker is one cache-holding process: a MemoryStore plus the endpoint the
// master drives and the client half it uses to report back.
type Worker struct {
	id     common.BlockManagerID
	store  *MemoryStore
	master common.MasterClient
	// spill is the optional inner handler deciding what happens to dropped
	// bytes; nil discards.
	spill BlockEvictionHandler
	// strictPeers selects which peer-eviction broadcast this worker honors;
	// the master always sends both.
	strictPeers bool
}

// NewWorker builds a worker and its store. The worker installs itself as the
// store's eviction handler so drops are reported to the master; options may
// carry an inner handler that actually spills the bytes.
func NewWorker(id common.BlockManagerID, maxOnHeap, maxOffHeap int64,
	options Options, master common.MasterClient) *Worker {
	w := &Worker{
		id:          id,
		master:      master,
		spill:       options.Handler,
		strictPeers: options.PeerCheckStrict,
	}
	options.Handler = w
	w.store = NewMemoryStore(maxOnHeap, maxOffHeap, options)
	return w
}

// Store exposes the underlying memory store.
func (w *Worker) Store() *MemoryStore {
	return w.store
}

// ID returns the worker's block manager id.
func (w *Worker) ID() common.BlockManagerID {
	return w.id
}

// Start registers with the master and pulls the reference profiles.
func (w *Worker) Start() error {
	if err := w.master.RegisterWorker(w.id, w.store.Account().MaxOnHeapStorageMemory(), w); err != nil {
		return err
	}
	profile, err := w.master.GetRefProfile(w.id)
	if err != nil {
		return err
	}
	w.store.SetProfiles(profile)
	utils.GetLogger().With("worker", w.id.String()).Info("worker registered with master")
	return nil
}

// DropFromMemory implements BlockEvictionHandler. It lets the inner handler
// settle the bytes, reports the new status upstream and raises the peer
// eviction event for peered datasets.
func (w *Worker) DropFromMemory(b common.BlockID, entry common.Entry) common.StorageLevel {
	newLevel := common.StorageLevelNone
	if w.spill != nil {
		newLevel = w.spill.DropFromMemory(b, entry)
	}

	var diskSize int64
	if newLevel.IsValid() && newLevel.UseDisk {
		diskSize = entry.Size()
		w.store.Stats().DiskWrites.Inc()
		utils.GetRootReporter().GetCounter(utils.CacheDiskWrite).Inc(1)
	}
	if w.master != nil {
		update := &common.BlockUpdate{
			Worker:   w.id,
			Block:    b,
			Level:    newLevel,
			MemSize:  0,
			DiskSize: diskSize,
		}
		if _, err := w.master.UpdateBlockInfo(update); err != nil {
			utils.GetLogger().With("block", b.String(), "error", err).
				Error("failed to report eviction to master")
		}
		if b.IsRDD() {
			if _, ok := w.store.refs.PeerOf(b.Dataset); ok {
				if err := w.master.BlockWithPeerEvicted(b); err != nil {
					utils.GetLogger().With("block", b.String(), "error", err).
						Error("failed to raise peer eviction event")
				}
			}
		}
	}
	return newLevel
}

// FlushTelemetry ships the accumulated hit/miss counters to the master and
// resets them.
func (w *Worker) FlushTelemetry() {
	if w.master == nil {
		return
	}
	stats := w.store.Stats().SwapSnapshot()
	if stats == [4]int64{} {
		return
	}
	if err := w.master.ReportCacheHit(w.id, stats); err != nil {
		utils.GetLogger().With("worker", w.id.String(), "error", err).
			Error("failed to report cache telemetry")
	}
}

// RemoveBlock implements WorkerEndpoint.
func (w *Worker) RemoveBlock(b common.BlockID) bool {
	return w.store.Remove(b)
}

// RemoveRdd implements WorkerEndpoint.
func (w *Worker) RemoveRdd(id common.DatasetID) int {
	return w.store.RemoveDataset(id)
}

// RemoveShuffle implements WorkerEndpoint.
func (w *Worker) RemoveShuffle(id common.DatasetID) int {
	return w.store.RemoveShuffle(id)
}

// RemoveBroadcast implements WorkerEndpoint.
func (w *Worker) RemoveBroadcast(id common.DatasetID, fromDriver bool) int64 {
	return w.store.RemoveBroadcast(id)
}

// BroadcastJobDAG implements WorkerEndpoint.
func (w *Worker) BroadcastJobDAG(job common.JobID, refs map[common.DatasetID]int) {
	w.store.OnJobStart(job, refs)
}

// BroadcastDAGInfo implements WorkerEndpoint.
func (w *Worker) BroadcastDAGInfo(job common.JobID, dag common.DAGInfo, accessNumberGlobal int) {
	if dag == nil {
		utils.GetLogger().With("job", int(job)).Debug("DAG broadcast without histograms")
		return
	}
	w.store.OnDAGInfo(dag, accessNumberGlobal)
}

// CheckPeersStrictly implements WorkerEndpoint. Ignored unless this worker
// runs in strict peer-check mode.
func (w *Worker) CheckPeersStrictly(eventID string, b common.BlockID) {
	if !w.strictPeers {
		return
	}
	w.store.CheckPeersStrictly(eventID, b)
}

// CheckPeersConservatively implements WorkerEndpoint. Ignored when this
// worker runs in strict peer-check mode.
func (w *Worker) CheckPeersConservatively(eventID string, b common.BlockID) {
	if w.strictPeers {
		return
	}
	w.store.CheckPeersConservatively(eventID, b)
}

// TriggerThreadDump implements WorkerEndpoint.
func (w *Worker) TriggerThreadDump() {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	utils.GetLogger().With("worker", w.id.String()).Infof("thread dump:\n%s", buf[:n])
}
