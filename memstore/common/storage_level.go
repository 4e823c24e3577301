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

import "fmt"

// MemoryMode tells which memory region backs an entry.
type MemoryMode int

// Supported memory modes.
const (
	OnHeap MemoryMode = iota
	OffHeap
)

func (m MemoryMode) String() string {
	if m == OffHeap {
		return "offheap"
	}
	return "onheap"
}

// StorageLevel describes where a block may live and in which form.
type StorageLevel struct {
	UseMemory    bool       `json:"use_memory"`
	UseDisk      bool       `json:"use_disk"`
	Deserialized bool       `json:"deserialized"`
	Mode         MemoryMode `json:"mode"`
	Replication  int        `json:"replication"`
}

// Common levels.
var (
	StorageLevelNone       = StorageLevel{}
	StorageLevelMemoryOnly = StorageLevel{UseMemory: true, Deserialized: true, Replication: 1}
	StorageLevelMemorySer  = StorageLevel{UseMemory: true, Replication: 1}
	StorageLevelDiskOnly   = StorageLevel{UseDisk: true, Replication: 1}
	StorageLevelMemAndDisk = StorageLevel{UseMemory: true, UseDisk: true, Deserialized: true, Replication: 1}
)

// IsValid tells whether the level still stores the block anywhere.
func (l StorageLevel) IsValid() bool {
	return (l.UseMemory || l.UseDisk) && l.Replication > 0
}

func (l StorageLevel) String() string {
	return fmt.Sprintf("StorageLevel(mem=%t, disk=%t, deser=%t, mode=%s, %dx)",
		l.UseMemory, l.UseDisk, l.Deserialized, l.Mode, l.Replication)
}

// BlockStatus reports where a block is stored and how many bytes it occupies
// in each tier.
type BlockStatus struct {
	StorageLevel StorageLevel `json:"storage_level"`
	MemSize      int64        `json:"mem_size"`
	DiskSize     int64        `json:"disk_size"`
}

// IsCached tells whether any tier holds bytes for the block.
func (s BlockStatus) IsCached() bool {
	return s.MemSize+s.DiskSize > 0
}

// BlockManagerID identifies one worker process.
type BlockManagerID struct {
	ExecutorID string `json:"executor_id"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
}

func (id BlockManagerID) String() string {
	return fmt.Sprintf("BlockManagerId(%s, %s, %d)", id.ExecutorID, id.Host, id.Port)
}
