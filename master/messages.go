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

package master

import (
	memCom "github.com/YuaNFrank/spark/memstore/common"
)

// Messages processed by the master endpoint mailbox. Transport is external;
// these are the payloads only.

// Register announces a worker.
type Register struct {
	ID       memCom.BlockManagerID
	MaxMem   int64
	Endpoint memCom.WorkerEndpoint
}

// UpdateBlockInfo merges a block status report into the directory.
type UpdateBlockInfo struct {
	Update *memCom.BlockUpdate
}

// GetLocations asks which workers hold the block.
type GetLocations struct {
	Block memCom.BlockID
}

// GetLocationsMultiple asks locations for several blocks at once.
type GetLocationsMultiple struct {
	Blocks []memCom.BlockID
}

// GetPeers asks for the other registered workers.
type GetPeers struct {
	Worker memCom.BlockManagerID
}

// GetExecutorEndpoint asks for the endpoint of one executor.
type GetExecutorEndpoint struct {
	ExecutorID string
}

// GetMemoryStatus asks for per-worker max and remaining memory.
type GetMemoryStatus struct{}

// GetStorageStatus asks for per-worker block statuses.
type GetStorageStatus struct{}

// GetBlockStatus asks for the status of one block on every worker holding it.
type GetBlockStatus struct {
	Block     memCom.BlockID
	AskSlaves bool
}

// GetMatchingBlockIds asks for the tracked block ids satisfying the filter.
type GetMatchingBlockIds struct {
	Filter    func(memCom.BlockID) bool
	AskSlaves bool
}

// HasCachedBlocks asks whether the executor still caches anything.
type HasCachedBlocks struct {
	ExecutorID string
}

// Heartbeat refreshes a worker's liveness timestamp.
type Heartbeat struct {
	Worker memCom.BlockManagerID
}

// ReportCacheHit accumulates [hit, miss, diskRead, diskWrite] telemetry.
type ReportCacheHit struct {
	Worker memCom.BlockManagerID
	Stats  [4]int64
}

// GetRefProfile fetches the profile triple loaded at startup.
type GetRefProfile struct {
	Worker memCom.BlockManagerID
}

// BlockWithPeerEvicted reports the eviction of a block with a peered dataset.
type BlockWithPeerEvicted struct {
	Block memCom.BlockID
}

// RemoveBlockMsg drops one block everywhere.
type RemoveBlockMsg struct {
	Block memCom.BlockID
}

// RemoveRdd drops every block of a dataset on every worker.
type RemoveRdd struct {
	ID memCom.DatasetID
}

// RemoveShuffle drops every block of a shuffle on every worker.
type RemoveShuffle struct {
	ID memCom.DatasetID
}

// RemoveBroadcast drops a broadcast block on every worker.
type RemoveBroadcast struct {
	ID         memCom.DatasetID
	FromDriver bool
}

// StartBroadcastJobID tells every worker a job started.
type StartBroadcastJobID struct {
	Job memCom.JobID
}

// StartBroadcastRefCount ships a per-job reference map to every worker.
type StartBroadcastRefCount struct {
	Job        memCom.JobID
	Partitions int
	Refs       map[memCom.DatasetID]int
}

// StartBroadcastDAGInfo ships reuse-interval histograms to every worker.
type StartBroadcastDAGInfo struct {
	Job                memCom.JobID
	Partitions         int
	DAG                memCom.DAGInfo
	AccessNumberGlobal int
}

// GetWorkers asks for the registered worker summaries.
type GetWorkers struct{}

// RemoveExecutor drops a worker from the directory.
type RemoveExecutor struct {
	ExecutorID string
}

// TriggerThreadDump asks every worker to dump its goroutine stacks.
type TriggerThreadDump struct{}

// Stop flushes telemetry and shuts the endpoint down.
type Stop struct{}
