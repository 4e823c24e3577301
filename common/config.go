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

// Supported eviction policy names.
const (
	EvictionPolicyLRU = "lru"
	EvictionPolicyLRC = "lrc"
	EvictionPolicyOSL = "osl"
)

// Supported peer check modes.
const (
	PeerCheckConservative = "conservative"
	PeerCheckStrict       = "strict"
)

// UnrollConfig is the static configuration for incremental block unrolling.
type UnrollConfig struct {
	// Initial unroll reservation per put in bytes.
	InitialUnrollBytes int64 `yaml:"initial_unroll_bytes"`
	// Number of elements appended between size re-estimations.
	CheckInterval int `yaml:"check_interval"`
	// Factor applied to the current estimate when requesting more unroll memory.
	GrowthFactor float64 `yaml:"growth_factor"`
}

// RPCConfig is the static configuration for master/worker asks.
type RPCConfig struct {
	AskTimeoutInSeconds int `yaml:"ask_timeout_in_seconds"`
	AskRetries          int `yaml:"ask_retries"`
	// Number of goroutines used for broadcast fan-out.
	FanoutWorkers int `yaml:"fanout_workers"`
}

// HTTPConfig is the static configuration for the debug http server.
type HTTPConfig struct {
	MaxConnections        int `yaml:"max_connections"`
	ReadTimeOutInSeconds  int `yaml:"read_time_out_in_seconds"`
	WriteTimeOutInSeconds int `yaml:"write_time_out_in_seconds"`
}

// BlockCacheConfig is config specific for the block cache server.
type BlockCacheConfig struct {
	// HTTP port for serving.
	Port int `yaml:"port" validate:"nonzero"`

	// HTTP port for debugging.
	DebugPort int `yaml:"debug_port"`

	// Application name; also the stem of the profile file names.
	AppName string `yaml:"app_name" validate:"nonzero"`

	// Total on-heap memory the store can use.
	TotalMemorySize int64 `yaml:"total_memory_size" validate:"min=1"`

	// Total off-heap memory the store can use; zero disables off-heap storage.
	OffHeapMemorySize int64 `yaml:"off_heap_memory_size"`

	// Eviction policy: lru, lrc or osl.
	EvictionPolicy string `yaml:"eviction_policy"`

	// Peer check mode: conservative or strict.
	PeerCheckMode string `yaml:"peer_check_mode"`

	// Directory holding the profile files and result.txt; defaults to cwd.
	ProfileDir string `yaml:"profile_dir"`

	// Build version of the server currently running.
	Version string `yaml:"version"`

	Unroll UnrollConfig `yaml:"unroll"`
	RPC    RPCConfig    `yaml:"rpc"`
	HTTP   HTTPConfig   `yaml:"http"`
}
