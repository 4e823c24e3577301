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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"github.com/YuaNFrank/spark/utils"
)

// Telemetry is the global counter bundle owned by the master directory and
// passed explicitly to its event handlers.
type Telemetry struct {
	RDDHit    atomic.Int64
	RDDMiss   atomic.Int64
	DiskRead  atomic.Int64
	DiskWrite atomic.Int64
	startedAt time.Time
}

// NewTelemetry creates a bundle stamped with the current time.
func NewTelemetry() *Telemetry {
	return &Telemetry{startedAt: utils.Now()}
}

// Accumulate folds one worker report [hit, miss, diskRead, diskWrite] in.
func (t *Telemetry) Accumulate(stats [4]int64) {
	t.RDDHit.Add(stats[0])
	t.RDDMiss.Add(stats[1])
	t.DiskRead.Add(stats[2])
	t.DiskWrite.Add(stats[3])
	utils.GetRootReporter().GetCounter(utils.CacheHit).Inc(stats[0])
	utils.GetRootReporter().GetCounter(utils.CacheMiss).Inc(stats[1])
	utils.GetRootReporter().GetCounter(utils.CacheDiskRead).Inc(stats[2])
	utils.GetRootReporter().GetCounter(utils.CacheDiskWrite).Inc(stats[3])
}

// WriteResult appends the shutdown summary lines to result.txt in dir.
func (t *Telemetry) WriteResult(fs utils.FileSystem, dir, appName string) error {
	runtimeMs := utils.Now().Sub(t.startedAt).Nanoseconds() / int64(time.Millisecond)
	path := filepath.Join(dir, "result.txt")
	file, err := fs.OpenFileForWrite(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	if _, err = fmt.Fprintf(file, "AppName: %s, Runtime: %d\n", appName, runtimeMs); err != nil {
		return errors.Wrap(err, "failed to write runtime line")
	}
	_, err = fmt.Fprintf(file, "RDD Hit\t%d\tRDD Miss\t%d\n", t.RDDHit.Load(), t.RDDMiss.Load())
	return errors.Wrap(err, "failed to write hit/miss line")
}
