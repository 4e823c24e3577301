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
	"time"

	uuid "github.com/satori/go.uuid"
	memCom "github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// driverExecutorID is the executor id of the driver process, which may report
// block updates without registering.
const driverExecutorID = "driver"

// workerInfo is the directory's view of one registered worker.
type workerInfo struct {
	id           memCom.BlockManagerID
	maxMem       int64
	remainingMem int64
	lastSeen     time.Time
	blocks       map[memCom.BlockID]memCom.BlockStatus
	cachedBlocks map[memCom.BlockID]struct{}
	endpoint     memCom.WorkerEndpoint
}

// MemoryStatus is the per-worker memory report.
type MemoryStatus struct {
	MaxMem       int64 `json:"max_mem"`
	RemainingMem int64 `json:"remaining_mem"`
}

// Directory tracks which workers hold which blocks, distributes reference
// profiles and aggregates telemetry. All mutating access happens on the
// endpoint mailbox, one message at a time.
type Directory struct {
	workers        map[string]*workerInfo
	blockLocations map[memCom.BlockID]map[string]struct{}

	profile   *memCom.RefProfile
	telemetry *Telemetry
	// Σ refs × partitions over every StartBroadcastRefCount.
	totalReference int64

	// fs backs the result.txt flush on shutdown.
	fs utils.FileSystem
}

// NewDirectory creates a directory over the loaded profiles. A nil profile
// degrades to empty maps.
func NewDirectory(profile *memCom.RefProfile, telemetry *Telemetry) *Directory {
	if profile == nil {
		profile = memCom.NewRefProfile()
	}
	if telemetry == nil {
		telemetry = NewTelemetry()
	}
	return &Directory{
		workers:        make(map[string]*workerInfo),
		blockLocations: make(map[memCom.BlockID]map[string]struct{}),
		profile:        profile,
		telemetry:      telemetry,
		fs:             utils.OSFileSystem{},
	}
}

// writeResult flushes the telemetry summary on shutdown.
func (d *Directory) writeResult() {
	cfg := utils.GetConfig()
	dir := cfg.ProfileDir
	if dir == "" {
		dir = "."
	}
	if err := d.telemetry.WriteResult(d.fs, dir, cfg.AppName); err != nil {
		utils.GetLogger().With("error", err).Error("failed to write result.txt")
	}
}

// Telemetry exposes the counter bundle.
func (d *Directory) Telemetry() *Telemetry {
	return d.telemetry
}

// TotalReference returns the accumulated reference volume.
func (d *Directory) TotalReference() int64 {
	return d.totalReference
}

// register adds a worker, dropping any previous registration with the same
// executor id first.
func (d *Directory) register(id memCom.BlockManagerID, maxMem int64, endpoint memCom.WorkerEndpoint) {
	if _, ok := d.workers[id.ExecutorID]; ok {
		utils.GetLogger().With("executor", id.ExecutorID).
			Info("re-registration, dropping previous worker first")
		d.removeExecutor(id.ExecutorID)
	}
	d.workers[id.ExecutorID] = &workerInfo{
		id:           id,
		maxMem:       maxMem,
		remainingMem: maxMem,
		lastSeen:     utils.Now(),
		blocks:       make(map[memCom.BlockID]memCom.BlockStatus),
		cachedBlocks: make(map[memCom.BlockID]struct{}),
		endpoint:     endpoint,
	}
	utils.AddExecutorReporter(id.ExecutorID)
	utils.GetRootReporter().GetGauge(utils.WorkersRegistered).Update(float64(len(d.workers)))
	utils.GetLogger().With("worker", id.String(), "max_mem", maxMem).Info("worker added")
}

// updateBlockInfo merges a status report. Returns false for unregistered
// workers other than the driver.
func (d *Directory) updateBlockInfo(u *memCom.BlockUpdate) bool {
	info, ok := d.workers[u.Worker.ExecutorID]
	if !ok {
		// The driver may report before registering; acknowledge and drop.
		return u.Worker.ExecutorID == driverExecutorID
	}
	info.lastSeen = utils.Now()

	if !u.Level.IsValid() {
		d.forgetBlockOnWorker(info, u.Block)
		return true
	}

	status := memCom.BlockStatus{StorageLevel: u.Level, MemSize: u.MemSize, DiskSize: u.DiskSize}
	if old, had := info.blocks[u.Block]; had {
		info.remainingMem += old.MemSize
	}
	info.blocks[u.Block] = status
	info.remainingMem -= u.MemSize
	if status.IsCached() {
		info.cachedBlocks[u.Block] = struct{}{}
	} else {
		delete(info.cachedBlocks, u.Block)
	}

	holders, ok := d.blockLocations[u.Block]
	if !ok {
		holders = make(map[string]struct{})
		d.blockLocations[u.Block] = holders
	}
	if u.MemSize > 0 || u.DiskSize > 0 {
		holders[u.Worker.ExecutorID] = struct{}{}
	} else {
		delete(holders, u.Worker.ExecutorID)
		if len(holders) == 0 {
			delete(d.blockLocations, u.Block)
		}
	}
	utils.GetRootReporter().GetGauge(utils.BlocksTracked).Update(float64(len(d.blockLocations)))
	return true
}

func (d *Directory) forgetBlockOnWorker(info *workerInfo, b memCom.BlockID) {
	if old, had := info.blocks[b]; had {
		info.remainingMem += old.MemSize
		delete(info.blocks, b)
	}
	delete(info.cachedBlocks, b)
	if holders, ok := d.blockLocations[b]; ok {
		delete(holders, info.id.ExecutorID)
		if len(holders) == 0 {
			delete(d.blockLocations, b)
		}
	}
	utils.GetRootReporter().GetGauge(utils.BlocksTracked).Update(float64(len(d.blockLocations)))
}

// locations returns the block managers holding b.
func (d *Directory) locations(b memCom.BlockID) []memCom.BlockManagerID {
	var ids []memCom.BlockManagerID
	for executor := range d.blockLocations[b] {
		if info, ok := d.workers[executor]; ok {
			ids = append(ids, info.id)
		}
	}
	return ids
}

// peers returns every registered worker other than the asking one.
func (d *Directory) peers(worker memCom.BlockManagerID) []memCom.BlockManagerID {
	var ids []memCom.BlockManagerID
	for executor, info := range d.workers {
		if executor != worker.ExecutorID {
			ids = append(ids, info.id)
		}
	}
	return ids
}

// executorEndpoint returns the endpoint registered for the executor.
func (d *Directory) executorEndpoint(executorID string) (memCom.WorkerEndpoint, bool) {
	info, ok := d.workers[executorID]
	if !ok {
		return nil, false
	}
	return info.endpoint, true
}

// memoryStatus reports per-worker max and remaining memory.
func (d *Directory) memoryStatus() map[string]MemoryStatus {
	status := make(map[string]MemoryStatus, len(d.workers))
	for executor, info := range d.workers {
		status[executor] = MemoryStatus{MaxMem: info.maxMem, RemainingMem: info.remainingMem}
	}
	return status
}

// storageStatus reports per-worker block statuses.
func (d *Directory) storageStatus() map[string]map[string]memCom.BlockStatus {
	status := make(map[string]map[string]memCom.BlockStatus, len(d.workers))
	for executor, info := range d.workers {
		blocks := make(map[string]memCom.BlockStatus, len(info.blocks))
		for b, s := range info.blocks {
			blocks[b.String()] = s
		}
		status[executor] = blocks
	}
	return status
}

// blockStatus reports the status of b on every worker tracking it.
func (d *Directory) blockStatus(b memCom.BlockID) map[string]memCom.BlockStatus {
	status := make(map[string]memCom.BlockStatus)
	for executor, info := range d.workers {
		if s, ok := info.blocks[b]; ok {
			status[executor] = s
		}
	}
	return status
}

// matchingBlockIDs returns the tracked block ids satisfying the filter.
func (d *Directory) matchingBlockIDs(filter func(memCom.BlockID) bool) []memCom.BlockID {
	var ids []memCom.BlockID
	for b := range d.blockLocations {
		if filter == nil || filter(b) {
			ids = append(ids, b)
		}
	}
	return ids
}

// hasCachedBlocks tells whether the executor is registered with a non-empty
// cached set.
func (d *Directory) hasCachedBlocks(executorID string) bool {
	info, ok := d.workers[executorID]
	return ok && len(info.cachedBlocks) > 0
}

// heartbeat refreshes lastSeen; false for unregistered workers.
func (d *Directory) heartbeat(worker memCom.BlockManagerID) bool {
	info, ok := d.workers[worker.ExecutorID]
	if !ok {
		return false
	}
	info.lastSeen = utils.Now()
	return true
}

// removeExecutor drops a worker and every location pointing at it.
func (d *Directory) removeExecutor(executorID string) {
	info, ok := d.workers[executorID]
	if !ok {
		return
	}
	for b := range info.blocks {
		if holders, ok := d.blockLocations[b]; ok {
			delete(holders, executorID)
			if len(holders) == 0 {
				delete(d.blockLocations, b)
			}
		}
	}
	delete(d.workers, executorID)
	utils.DeleteExecutorReporter(executorID)
	utils.GetRootReporter().GetGauge(utils.WorkersRegistered).Update(float64(len(d.workers)))
	utils.GetLogger().With("executor", executorID, "blocks", len(info.blocks)).Info("worker removed")
}

// purgeDataset synchronously removes master metadata for every block of the
// dataset, before the removal fans out to the workers.
func (d *Directory) purgeDataset(id memCom.DatasetID) {
	for b := range d.blockLocations {
		if b.IsRDD() && b.Dataset == id {
			for executor := range d.blockLocations[b] {
				if info, ok := d.workers[executor]; ok {
					d.forgetBlockOnWorker(info, b)
				}
			}
			delete(d.blockLocations, b)
		}
	}
}

// endpointsSnapshot copies the registered endpoints for a fan-out outside the
// mailbox.
func (d *Directory) endpointsSnapshot() []memCom.WorkerEndpoint {
	endpoints := make([]memCom.WorkerEndpoint, 0, len(d.workers))
	for _, info := range d.workers {
		if info.endpoint != nil {
			endpoints = append(endpoints, info.endpoint)
		}
	}
	return endpoints
}

// peerEvictionEvent resolves the peer dataset of the evicted block and mints
// the event id workers dedupe replays on.
func (d *Directory) peerEvictionEvent(b memCom.BlockID) (string, bool) {
	if _, ok := d.profile.PeerProfile[b.Dataset]; !ok {
		utils.GetLogger().With("block", b.String()).
			Debug("peer eviction event for block without peer, swallowed")
		return "", false
	}
	eventID, err := uuid.NewV4()
	if err != nil {
		utils.GetLogger().With("error", err).Error("failed to mint peer eviction event id")
		return "", false
	}
	utils.GetRootReporter().GetCounter(utils.PeerEvictionEvents).Inc(1)
	return eventID.String(), true
}

// WorkerSummary describes one registered worker for the debug API.
type WorkerSummary struct {
	Executor     string `json:"executor"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	MaxMem       int64  `json:"max_mem"`
	RemainingMem int64  `json:"remaining_mem"`
	LastSeen     string `json:"last_seen"`
	Blocks       int    `json:"blocks"`
	CachedBlocks int    `json:"cached_blocks"`
}

// workerSummaries lists the registered workers for the debug API.
func (d *Directory) workerSummaries() []WorkerSummary {
	summaries := make([]WorkerSummary, 0, len(d.workers))
	for executor, info := range d.workers {
		summaries = append(summaries, WorkerSummary{
			Executor:     executor,
			Host:         info.id.Host,
			Port:         info.id.Port,
			MaxMem:       info.maxMem,
			RemainingMem: info.remainingMem,
			LastSeen:     info.lastSeen.UTC().Format(time.RFC3339),
			Blocks:       len(info.blocks),
			CachedBlocks: len(info.cachedBlocks),
		})
	}
	return summaries
}
