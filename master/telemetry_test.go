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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/YuaNFrank/spark/utils"
)

func TestTelemetryWriteResult(t *testing.T) {
	utils.SetCurrentTime(time.Unix(100, 0))
	defer utils.ResetClockImplementation()

	telemetry := NewTelemetry()
	telemetry.Accumulate([4]int64{10, 3, 1, 2})
	telemetry.Accumulate([4]int64{5, 1, 0, 0})

	utils.SetCurrentTime(time.Unix(101, 500000000))
	fs := newTestFS()
	assert.NoError(t, telemetry.WriteResult(fs, ".", "MyApp"))

	assert.Equal(t,
		"AppName: MyApp, Runtime: 1500\nRDD Hit\t15\tRDD Miss\t4\n",
		fs.written["result.txt"].String())
}
