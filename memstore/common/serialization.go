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
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// BlockUpdate is the binary payload of an UpdateBlockInfo message: the
// reporting worker, the block name, the storage level and the per-tier sizes.
type BlockUpdate struct {
	Worker   BlockManagerID
	Block    BlockID
	Level    StorageLevel
	MemSize  int64
	DiskSize int64
}

func writeUTF(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readUTF(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func packStorageLevel(l StorageLevel) uint8 {
	var flags uint8
	if l.UseMemory {
		flags |= 1
	}
	if l.UseDisk {
		flags |= 2
	}
	if l.Deserialized {
		flags |= 4
	}
	if l.Mode == OffHeap {
		flags |= 8
	}
	return flags
}

func unpackStorageLevel(flags uint8, replication uint8) StorageLevel {
	l := StorageLevel{
		UseMemory:    flags&1 != 0,
		UseDisk:      flags&2 != 0,
		Deserialized: flags&4 != 0,
		Replication:  int(replication),
	}
	if flags&8 != 0 {
		l.Mode = OffHeap
	}
	return l
}

// Write emits the update in wire order: block manager id, UTF name of the
// block id, storage level, mem size and disk size.
func (u *BlockUpdate) Write(w io.Writer) error {
	if err := writeUTF(w, u.Worker.ExecutorID); err != nil {
		return errors.Wrap(err, "failed to write executor id")
	}
	if err := writeUTF(w, u.Worker.Host); err != nil {
		return errors.Wrap(err, "failed to write host")
	}
	if err := binary.Write(w, binary.BigEndian, int32(u.Worker.Port)); err != nil {
		return errors.Wrap(err, "failed to write port")
	}
	if err := writeUTF(w, u.Block.String()); err != nil {
		return errors.Wrap(err, "failed to write block name")
	}
	if err := binary.Write(w, binary.BigEndian, packStorageLevel(u.Level)); err != nil {
		return errors.Wrap(err, "failed to write storage level")
	}
	if err := binary.Write(w, binary.BigEndian, uint8(u.Level.Replication)); err != nil {
		return errors.Wrap(err, "failed to write replication")
	}
	if err := binary.Write(w, binary.BigEndian, u.MemSize); err != nil {
		return errors.Wrap(err, "failed to write mem size")
	}
	return errors.Wrap(binary.Write(w, binary.BigEndian, u.DiskSize), "failed to write disk size")
}

// ReadBlockUpdate parses the wire form produced by Write.
func ReadBlockUpdate(r io.Reader) (*BlockUpdate, error) {
	var u BlockUpdate
	var err error
	if u.Worker.ExecutorID, err = readUTF(r); err != nil {
		return nil, errors.Wrap(err, "failed to read executor id")
	}
	if u.Worker.Host, err = readUTF(r); err != nil {
		return nil, errors.Wrap(err, "failed to read host")
	}
	var port int32
	if err = binary.Read(r, binary.BigEndian, &port); err != nil {
		return nil, errors.Wrap(err, "failed to read port")
	}
	u.Worker.Port = int(port)

	name, err := readUTF(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read block name")
	}
	if u.Block, err = ParseBlockID(name); err != nil {
		return nil, err
	}

	var flags, replication uint8
	if err = binary.Read(r, binary.BigEndian, &flags); err != nil {
		return nil, errors.Wrap(err, "failed to read storage level")
	}
	if err = binary.Read(r, binary.BigEndian, &replication); err != nil {
		return nil, errors.Wrap(err, "failed to read replication")
	}
	u.Level = unpackStorageLevel(flags, replication)

	if err = binary.Read(r, binary.BigEndian, &u.MemSize); err != nil {
		return nil, errors.Wrap(err, "failed to read mem size")
	}
	if err = binary.Read(r, binary.BigEndian, &u.DiskSize); err != nil {
		return nil, errors.Wrap(err, "failed to read disk size")
	}
	return &u, nil
}
