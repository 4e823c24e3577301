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

package common

// WorkerEndpoint is the surface the master drives on every registered
// worker. Transport is external; these are the message payloads as calls.
type WorkerEndpoint interface {
	// RemoveBlock drops the block; false when it was absent.
	RemoveBlock(b BlockID) bool
	// RemoveRdd drops every cached block of the dataset; returns the count.
	RemoveRdd(id DatasetID) int
	// RemoveShuffle drops every cached block of the shuffle; returns the count.
	RemoveShuffle(id DatasetID) int
	// RemoveBroadcast drops the broadcast block; returns the bytes freed.
	RemoveBroadcast(id DatasetID, fromDriver bool) int64
	// BroadcastJobDAG applies the per-job reference map at job start; a nil
	// map means look the job up in the local profile.
	BroadcastJobDAG(job JobID, refs map[DatasetID]int)
	// BroadcastDAGInfo replaces the reuse-interval histograms; a nil dag only
	// updates the planning horizon.
	BroadcastDAGInfo(job JobID, dag DAGInfo, accessNumberGlobal int)
	// CheckPeersStrictly applies a strict peer-eviction event.
	CheckPeersStrictly(eventID string, b BlockID)
	// CheckPeersConservatively applies a conservative peer-eviction event.
	CheckPeersConservatively(eventID string, b BlockID)
	// TriggerThreadDump dumps goroutine stacks through the worker's logger.
	TriggerThreadDump()
}

// MasterClient is the surface a worker drives on the master.
type MasterClient interface {
	// RegisterWorker announces the worker and its capacity.
	RegisterWorker(id BlockManagerID, maxMem int64, endpoint WorkerEndpoint) error
	// UpdateBlockInfo reports a block's new storage status. A false answer
	// for a registered worker is a protocol error surfaced by the caller.
	UpdateBlockInfo(update *BlockUpdate) (bool, error)
	// ReportCacheHit accumulates [hit, miss, diskRead, diskWrite] telemetry.
	ReportCacheHit(worker BlockManagerID, stats [4]int64) error
	// GetRefProfile fetches the dataset reference profiles.
	GetRefProfile(worker BlockManagerID) (*RefProfile, error)
	// BlockWithPeerEvicted tells the master a block with a peered dataset
	// left memory.
	BlockWithPeerEvicted(b BlockID) error
}
