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

package utils

import (
	"sync"

	"github.com/uber-go/tally"
)

// MetricName is the type of the metric.
type MetricName int

// List of supported metric names.
const (
	TotalMemorySize MetricName = iota
	UsedStorageMemory
	UnrollMemorySize
	EvictedBlocks
	EvictedBytes
	MemoryOverflow
	CacheHit
	CacheMiss
	CacheDiskRead
	CacheDiskWrite
	LeaseRecomputeTiming
	LeaseExpiredBlocks
	PeerEvictionEvents
	ProfileBroadcasts
	WorkersRegistered
	BlocksTracked
	DuplicatePuts
	HTTPHandlerCall
	HTTPHandlerLatency
	// Enum sentinel.
	NumMetricNames
)

// MetricType is the supported metric type.
type MetricType int

// MetricTypes which are supported.
const (
	Counter MetricType = iota
	Gauge
	Timer
)

// metricDefinition contains the definition for a metric.
type metricDefinition struct {
	// scope name for this definition
	name string
	// additional tags
	tags map[string]string
	// metric type
	metricType MetricType

	// cached tally counter
	counter tally.Counter

	// cached tally gauge
	gauge tally.Gauge

	// cached tally timer
	timer tally.Timer
}

// Scope names.
const (
	scopeNameTotalMemorySize      = "total_memory_size"
	scopeNameUsedStorageMemory    = "used_storage_memory"
	scopeNameUnrollMemorySize     = "unroll_memory_size"
	scopeNameEvictedBlocks        = "evicted_blocks"
	scopeNameEvictedBytes         = "evicted_bytes"
	scopeNameMemoryOverflow       = "memory_overflow"
	scopeNameCacheHit             = "cache_hit"
	scopeNameCacheMiss            = "cache_miss"
	scopeNameCacheDiskRead        = "cache_disk_read"
	scopeNameCacheDiskWrite       = "cache_disk_write"
	scopeNameLeaseRecomputeTiming = "lease_recompute_timing"
	scopeNameLeaseExpiredBlocks   = "lease_expired_blocks"
	scopeNamePeerEvictionEvents   = "peer_eviction_events"
	scopeNameProfileBroadcasts    = "profile_broadcasts"
	scopeNameWorkersRegistered    = "workers_registered"
	scopeNameBlocksTracked        = "blocks_tracked"
	scopeNameDuplicatePuts        = "duplicate_puts"
	scopeNameHTTPHandlerCall      = "http.call"
	scopeNameHTTPHandlerLatency   = "http.latency"
)

// Metric tag names
const (
	metricsTagComponent = "component"
	metricsTagOperation = "operation"
	metricsTagExecutor  = "executor"
)

// Metric component tag values
const (
	metricsComponentMemStore = "memstore"
	metricsComponentMaster   = "master"
	metricsComponentAPI      = "api"
)

// Metric operation tag values
const (
	metricsOperationEviction  = "eviction"
	metricsOperationAdmission = "admission"
	metricsOperationLeasing   = "leasing"
	metricsOperationBroadcast = "broadcast"
)

var metricsDefs = map[MetricName]metricDefinition{
	TotalMemorySize: {
		name:       scopeNameTotalMemorySize,
		metricType: Gauge,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
		},
	},
	UsedStorageMemory: {
		name:       scopeNameUsedStorageMemory,
		metricType: Gauge,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
		},
	},
	UnrollMemorySize: {
		name:       scopeNameUnrollMemorySize,
		metricType: Gauge,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
			metricsTagOperation: metricsOperationAdmission,
		},
	},
	EvictedBlocks: {
		name:       scopeNameEvictedBlocks,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
			metricsTagOperation: metricsOperationEviction,
		},
	},
	EvictedBytes: {
		name:       scopeNameEvictedBytes,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
			metricsTagOperation: metricsOperationEviction,
		},
	},
	MemoryOverflow: {
		name:       scopeNameMemoryOverflow,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
		},
	},
	CacheHit: {
		name:       scopeNameCacheHit,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
		},
	},
	CacheMiss: {
		name:       scopeNameCacheMiss,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
		},
	},
	CacheDiskRead: {
		name:       scopeNameCacheDiskRead,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
		},
	},
	CacheDiskWrite: {
		name:       scopeNameCacheDiskWrite,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
		},
	},
	LeaseRecomputeTiming: {
		name:       scopeNameLeaseRecomputeTiming,
		metricType: Timer,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
			metricsTagOperation: metricsOperationLeasing,
		},
	},
	LeaseExpiredBlocks: {
		name:       scopeNameLeaseExpiredBlocks,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
			metricsTagOperation: metricsOperationLeasing,
		},
	},
	PeerEvictionEvents: {
		name:       scopeNamePeerEvictionEvents,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMaster,
			metricsTagOperation: metricsOperationBroadcast,
		},
	},
	ProfileBroadcasts: {
		name:       scopeNameProfileBroadcasts,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMaster,
			metricsTagOperation: metricsOperationBroadcast,
		},
	},
	WorkersRegistered: {
		name:       scopeNameWorkersRegistered,
		metricType: Gauge,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMaster,
		},
	},
	BlocksTracked: {
		name:       scopeNameBlocksTracked,
		metricType: Gauge,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMaster,
		},
	},
	DuplicatePuts: {
		name:       scopeNameDuplicatePuts,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentMemStore,
			metricsTagOperation: metricsOperationAdmission,
		},
	},
	HTTPHandlerCall: {
		name:       scopeNameHTTPHandlerCall,
		metricType: Counter,
		tags: map[string]string{
			metricsTagComponent: metricsComponentAPI,
		},
	},
	HTTPHandlerLatency: {
		name:       scopeNameHTTPHandlerLatency,
		metricType: Timer,
		tags: map[string]string{
			metricsTagComponent: metricsComponentAPI,
		},
	},
}

func (def *metricDefinition) init(rootScope tally.Scope) {
	switch def.metricType {
	case Counter:
		def.counter = rootScope.Tagged(def.tags).Counter(def.name)
	case Gauge:
		def.gauge = rootScope.Tagged(def.tags).Gauge(def.name)
	case Timer:
		def.timer = rootScope.Tagged(def.tags).Timer(def.name)
	}
}

// ReporterFactory manages reporters for different executors. If the
// corresponding metrics are not associated with any executor it can use the
// root reporter.
type ReporterFactory struct {
	sync.RWMutex
	rootReporter *Reporter
	reporters    map[string]*Reporter
}

// NewReporterFactory returns a new report factory.
func NewReporterFactory(rootScope tally.Scope) *ReporterFactory {
	return &ReporterFactory{
		rootReporter: NewReporter(rootScope),
		reporters:    make(map[string]*Reporter),
	}
}

// AddExecutor adds a reporter for the given executor. It should be called when
// the executor registers with the master.
func (f *ReporterFactory) AddExecutor(executorID string) {
	f.Lock()
	defer f.Unlock()
	_, ok := f.reporters[executorID]
	if !ok {
		f.reporters[executorID] = NewReporter(f.rootReporter.GetRootScope().Tagged(map[string]string{
			metricsTagExecutor: executorID,
		}))
	}
}

// DeleteExecutor deletes the reporter for the given executor. It should be
// called when the executor is removed from the cluster.
func (f *ReporterFactory) DeleteExecutor(executorID string) {
	f.Lock()
	defer f.Unlock()
	delete(f.reporters, executorID)
}

// GetReporter returns reporter given the executorID. If the corresponding
// reporter cannot be found, it will return the root reporter.
func (f *ReporterFactory) GetReporter(executorID string) *Reporter {
	f.RLock()
	defer f.RUnlock()
	reporter, ok := f.reporters[executorID]
	if ok {
		return reporter
	}
	return f.rootReporter
}

// GetRootReporter returns the root reporter.
func (f *ReporterFactory) GetRootReporter() *Reporter {
	return f.rootReporter
}

// Reporter is the interface used to report stats.
type Reporter struct {
	rootScope         tally.Scope
	cachedDefinitions []metricDefinition
}

// NewReporter returns a new reporter with supplied root scope.
func NewReporter(rootScope tally.Scope) *Reporter {
	defs := make([]metricDefinition, NumMetricNames)
	for key, metricDefinition := range metricsDefs {
		metricDefinition.init(rootScope)
		defs[key] = metricDefinition
	}
	return &Reporter{rootScope: rootScope, cachedDefinitions: defs}
}

// GetCounter returns the tally counter with corresponding tags.
func (r *Reporter) GetCounter(n MetricName) tally.Counter {
	def := r.cachedDefinitions[n]
	if def.metricType == Counter {
		return def.counter
	}
	GetLogger().Panicf("Cannot get counter given %d", n)
	return nil
}

// GetGauge returns the tally gauge with corresponding tags.
func (r *Reporter) GetGauge(n MetricName) tally.Gauge {
	def := r.cachedDefinitions[n]
	if def.metricType == Gauge {
		return def.gauge
	}
	GetLogger().Panicf("Cannot get gauge given %d", n)
	return nil
}

// GetTimer returns the tally timer with corresponding tags.
func (r *Reporter) GetTimer(n MetricName) tally.Timer {
	def := r.cachedDefinitions[n]
	if def.metricType == Timer {
		return def.timer
	}
	GetLogger().Panicf("Cannot get timer given %d", n)
	return nil
}

// GetChildCounter create tagged child counter from reporter
func (r *Reporter) GetChildCounter(tags map[string]string, n MetricName) tally.Counter {
	childScope := r.rootScope.Tagged(tags)
	def := r.cachedDefinitions[n]
	if def.metricType == Counter {
		return childScope.Tagged(def.tags).Counter(def.name)
	}
	GetLogger().Panicf("Cannot get child counter given %d", n)
	return nil
}

// GetRootScope returns the root scope wrapped by this reporter.
func (r *Reporter) GetRootScope() tally.Scope {
	return r.rootScope
}
