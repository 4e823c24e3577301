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

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DatasetID identifies a logical dataset whose partitions share profile
// statistics.
type DatasetID int

// JobID identifies a job submitted to the compute engine.
type JobID int

// BlockType discriminates the kinds of cached blocks.
type BlockType int

// Block kinds. Only RDD blocks participate in ref-count and lease logic.
const (
	RDDBlock BlockType = iota
	ShuffleBlock
	BroadcastBlock
	TempBlock
)

// BlockID identifies one cached block. For RDD blocks Dataset and Partition
// are the dataset id and partition index; for shuffle blocks Dataset is the
// shuffle id, Partition the map id and Reduce the reduce id; for broadcast
// blocks Dataset is the broadcast id.
type BlockID struct {
	Type      BlockType `json:"type"`
	Dataset   DatasetID `json:"dataset"`
	Partition int       `json:"partition"`
	Reduce    int       `json:"reduce"`
	// Name is only set for temp blocks.
	Name string `json:"name,omitempty"`
}

// NewRDDBlockID returns the id of partition p of dataset d.
func NewRDDBlockID(d DatasetID, p int) BlockID {
	return BlockID{Type: RDDBlock, Dataset: d, Partition: p}
}

// NewShuffleBlockID returns the id of a shuffle output block.
func NewShuffleBlockID(shuffleID DatasetID, mapID, reduceID int) BlockID {
	return BlockID{Type: ShuffleBlock, Dataset: shuffleID, Partition: mapID, Reduce: reduceID}
}

// NewBroadcastBlockID returns the id of a broadcast block.
func NewBroadcastBlockID(broadcastID DatasetID) BlockID {
	return BlockID{Type: BroadcastBlock, Dataset: broadcastID}
}

// NewTempBlockID returns the id of a temp block with the given name.
func NewTempBlockID(name string) BlockID {
	return BlockID{Type: TempBlock, Name: name}
}

// IsRDD tells whether this id names an RDD block.
func (b BlockID) IsRDD() bool {
	return b.Type == RDDBlock
}

// IsBroadcast tells whether this id names a broadcast block.
func (b BlockID) IsBroadcast() bool {
	return b.Type == BroadcastBlock
}

// String renders the textual name of the block. The name round-trips through
// ParseBlockID.
func (b BlockID) String() string {
	switch b.Type {
	case RDDBlock:
		return fmt.Sprintf("rdd_%d_%d", b.Dataset, b.Partition)
	case ShuffleBlock:
		return fmt.Sprintf("shuffle_%d_%d_%d", b.Dataset, b.Partition, b.Reduce)
	case BroadcastBlock:
		return fmt.Sprintf("broadcast_%d", b.Dataset)
	default:
		return fmt.Sprintf("temp_%s", b.Name)
	}
}

// ParseBlockID parses the textual name produced by String.
func ParseBlockID(name string) (BlockID, error) {
	parts := strings.Split(name, "_")
	switch {
	case parts[0] == "rdd" && len(parts) == 3:
		d, err1 := strconv.Atoi(parts[1])
		p, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			return BlockID{}, errors.Errorf("malformed rdd block name %s", name)
		}
		return NewRDDBlockID(DatasetID(d), p), nil
	case parts[0] == "shuffle" && len(parts) == 4:
		s, err1 := strconv.Atoi(parts[1])
		m, err2 := strconv.Atoi(parts[2])
		r, err3 := strconv.Atoi(parts[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return BlockID{}, errors.Errorf("malformed shuffle block name %s", name)
		}
		return NewShuffleBlockID(DatasetID(s), m, r), nil
	case parts[0] == "broadcast" && len(parts) == 2:
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return BlockID{}, errors.Errorf("malformed broadcast block name %s", name)
		}
		return NewBroadcastBlockID(DatasetID(id)), nil
	case parts[0] == "temp" && len(parts) >= 2:
		return NewTempBlockID(strings.Join(parts[1:], "_")), nil
	}
	return BlockID{}, errors.Errorf("unrecognized block name %s", name)
}
