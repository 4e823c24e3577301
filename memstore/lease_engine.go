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

	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/YuaNFrank/spark/memstore/common"
	sparkUtils "github.com/YuaNFrank/spark/utils"
)

// reuseHistogram holds one dataset's reuse-interval histogram ordered by
// interval.
type reuseHistogram struct {
	intervals *rbt.Tree // reuse interval (int) -> frequency (int)
}

func newReuseHistogram(hist map[int]int) *reuseHistogram {
	tree := rbt.NewWith(utils.IntComparator)
	for ri, freq := range hist {
		tree.Put(ri, freq)
	}
	return &reuseHistogram{intervals: tree}
}

// hits is the number of accesses a lease of length l turns into cache hits.
func (h *reuseHistogram) hits(l int) int {
	total := 0
	it := h.intervals.Iterator()
	for it.Next() {
		if it.Key().(int) > l {
			break
		}
		total += it.Value().(int)
	}
	return total
}

// cost is the cache occupancy a lease of length l costs: each reuse within
// the lease occupies the cache for its interval, each reuse beyond it for the
// full lease length.
func (h *reuseHistogram) cost(l int) int {
	total := 0
	it := h.intervals.Iterator()
	for it.Next() {
		ri := it.Key().(int)
		freq := it.Value().(int)
		if ri <= l {
			total += ri * freq
		} else {
			total += l * freq
		}
	}
	return total
}

// LeaseEngine computes Optimal Steady-state Leases from the reuse-interval
// histograms broadcast by the master, and tracks the remaining lease ticks of
// presently cached datasets. dagInfo/lease state and the current views each
// have their own mutex.
type LeaseEngine struct {
	dagMutex sync.Mutex
	dagInfo  map[common.DatasetID]*reuseHistogram
	// first-seen order of datasets, to make PPUC tie-breaks deterministic.
	datasetOrder       []common.DatasetID
	accessNumberGlobal int

	leaseMutex sync.Mutex
	leaseMap   map[common.DatasetID]int

	currentMutex   sync.Mutex
	currentLease   map[common.DatasetID]int
	currentDagInfo map[common.DatasetID]*reuseHistogram

	// cachedRDDBlocks reports how many RDD blocks the entry table holds; used
	// to scale the lease budget.
	cachedRDDBlocks func() int
}

// NewLeaseEngine creates an empty lease engine. cachedRDDBlocks may be nil
// until the store is wired.
func NewLeaseEngine(cachedRDDBlocks func() int) *LeaseEngine {
	return &LeaseEngine{
		dagInfo:         make(map[common.DatasetID]*reuseHistogram),
		leaseMap:        make(map[common.DatasetID]int),
		currentLease:    make(map[common.DatasetID]int),
		currentDagInfo:  make(map[common.DatasetID]*reuseHistogram),
		cachedRDDBlocks: cachedRDDBlocks,
	}
}

// SetDAGInfo replaces the histograms with a new broadcast and recomputes the
// lease map. Replace, not merge.
func (e *LeaseEngine) SetDAGInfo(dag common.DAGInfo, accessNumberGlobal int) {
	stopWatch := sparkUtils.GetRootReporter().GetTimer(sparkUtils.LeaseRecomputeTiming).Start()
	defer stopWatch.Stop()

	e.dagMutex.Lock()
	e.dagInfo = make(map[common.DatasetID]*reuseHistogram, len(dag))
	e.datasetOrder = e.datasetOrder[:0]
	for d, hist := range dag {
		e.dagInfo[d] = newReuseHistogram(hist)
		e.datasetOrder = append(e.datasetOrder, d)
	}
	// Map iteration order is not stable; sort so first-seen means smallest id.
	for i := 1; i < len(e.datasetOrder); i++ {
		for j := i; j > 0 && e.datasetOrder[j] < e.datasetOrder[j-1]; j-- {
			e.datasetOrder[j], e.datasetOrder[j-1] = e.datasetOrder[j-1], e.datasetOrder[j]
		}
	}
	e.accessNumberGlobal = accessNumberGlobal
	leases := e.computeLeasesLocked()
	e.dagMutex.Unlock()

	e.leaseMutex.Lock()
	e.leaseMap = leases
	e.leaseMutex.Unlock()
}

// averageCacheSizeLocked scales the budget by the number of cached RDD
// blocks, falling back to the number of profiled datasets.
func (e *LeaseEngine) averageCacheSizeLocked() int {
	if e.cachedRDDBlocks != nil {
		if n := e.cachedRDDBlocks(); n > 0 {
			return n
		}
	}
	return len(e.dagInfo)
}

// computeLeasesLocked runs the greedy PPUC loop: repeatedly extend the lease
// with the best positive hits-per-unit-cost until the budget is spent.
// Called with dagMutex held.
func (e *LeaseEngine) computeLeasesLocked() map[common.DatasetID]int {
	leases := make(map[common.DatasetID]int, len(e.dagInfo))
	for d := range e.dagInfo {
		leases[d] = 0
	}
	budget := float64(e.averageCacheSizeLocked()) * float64(e.accessNumberGlobal)
	spent := 0.0

	for {
		bestPPUC := 0.0
		bestDelta := 0.0
		var bestDataset common.DatasetID
		bestLease := 0
		found := false

		for _, d := range e.datasetOrder {
			hist := e.dagInfo[d]
			oldLease := leases[d]
			oldHits := hist.hits(oldLease)
			oldCost := hist.cost(oldLease)
			it := hist.intervals.Iterator()
			for it.Next() {
				candidate := it.Key().(int)
				if candidate <= oldLease {
					continue
				}
				deltaHits := float64(hist.hits(candidate) - oldHits)
				deltaCost := float64(hist.cost(candidate) - oldCost)
				ppuc := 0.0
				if deltaCost != 0 {
					ppuc = deltaHits / deltaCost
				}
				// Strict comparison: ties go to the first candidate seen.
				if ppuc > bestPPUC {
					bestPPUC = ppuc
					bestDelta = deltaCost
					bestDataset = d
					bestLease = candidate
					found = true
				}
			}
		}

		if !found || bestPPUC <= 0 {
			break
		}
		if spent+bestDelta > budget {
			break
		}
		leases[bestDataset] = bestLease
		spent += bestDelta
	}
	return leases
}

// Lease returns the assigned lease length of d.
func (e *LeaseEngine) Lease(d common.DatasetID) (int, bool) {
	e.leaseMutex.Lock()
	defer e.leaseMutex.Unlock()
	l, ok := e.leaseMap[d]
	return l, ok
}

// CurrentLease returns the remaining lease ticks of a presently cached
// dataset.
func (e *LeaseEngine) CurrentLease(d common.DatasetID) (int, bool) {
	e.currentMutex.Lock()
	defer e.currentMutex.Unlock()
	l, ok := e.currentLease[d]
	return l, ok
}

// OnBlockAdded installs the current lease view for the dataset of a newly
// cached RDD block, when the dataset is profiled.
func (e *LeaseEngine) OnBlockAdded(b common.BlockID) {
	if !b.IsRDD() {
		return
	}
	e.dagMutex.Lock()
	hist, ok := e.dagInfo[b.Dataset]
	e.dagMutex.Unlock()
	if !ok {
		return
	}
	e.leaseMutex.Lock()
	lease := e.leaseMap[b.Dataset]
	e.leaseMutex.Unlock()

	e.currentMutex.Lock()
	e.currentDagInfo[b.Dataset] = hist
	e.currentLease[b.Dataset] = lease
	e.currentMutex.Unlock()
}

// Tick ages every current lease by one access and refreshes the lease of the
// dataset just accessed.
func (e *LeaseEngine) Tick(accessed common.DatasetID) {
	e.leaseMutex.Lock()
	refreshed, hasLease := e.leaseMap[accessed]
	e.leaseMutex.Unlock()

	e.currentMutex.Lock()
	defer e.currentMutex.Unlock()
	for d, l := range e.currentLease {
		if l > 0 {
			e.currentLease[d] = l - 1
		}
	}
	if _, tracked := e.currentLease[accessed]; tracked && hasLease {
		e.currentLease[accessed] = refreshed
	}
}

// ExpiredDatasets returns the presently cached datasets whose lease ran out.
func (e *LeaseEngine) ExpiredDatasets() []common.DatasetID {
	e.currentMutex.Lock()
	defer e.currentMutex.Unlock()
	var expired []common.DatasetID
	for d, l := range e.currentLease {
		if l <= 0 {
			expired = append(expired, d)
		}
	}
	return expired
}

// RemoveDatasetCurrent drops the current lease view of d, once its last
// cached block left memory.
func (e *LeaseEngine) RemoveDatasetCurrent(d common.DatasetID) {
	e.currentMutex.Lock()
	defer e.currentMutex.Unlock()
	delete(e.currentLease, d)
	delete(e.currentDagInfo, d)
}

// HasCurrentLease tells whether d has a current lease view.
func (e *LeaseEngine) HasCurrentLease(d common.DatasetID) bool {
	e.currentMutex.Lock()
	defer e.currentMutex.Unlock()
	_, ok := e.currentLease[d]
	return ok
}

// LeaseSnapshot returns a copy of the assigned lease map, for the debug API.
func (e *LeaseEngine) LeaseSnapshot() map[common.DatasetID]int {
	e.leaseMutex.Lock()
	defer e.leaseMutex.Unlock()
	snapshot := make(map[common.DatasetID]int, len(e.leaseMap))
	for d, l := range e.leaseMap {
		snapshot[d] = l
	}
	return snapshot
}

// CurrentLeaseSnapshot returns a copy of the remaining lease ticks, for the
// debug API.
func (e *LeaseEngine) CurrentLeaseSnapshot() map[common.DatasetID]int {
	e.currentMutex.Lock()
	defer e.currentMutex.Unlock()
	snapshot := make(map[common.DatasetID]int, len(e.currentLease))
	for d, l := range e.currentLease {
		snapshot[d] = l
	}
	return snapshot
}

// Clear drops current views; assigned leases survive until the next DAG
// broadcast.
func (e *LeaseEngine) Clear() {
	e.currentMutex.Lock()
	defer e.currentMutex.Unlock()
	e.currentLease = make(map[common.DatasetID]int)
	e.currentDagInfo = make(map[common.DatasetID]*reuseHistogram)
}
