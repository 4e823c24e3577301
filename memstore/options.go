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
	"bytes"
	"encoding/gob"

	"github.com/YuaNFrank/spark/common"
)

// Serializer turns one block value into bytes for a serialized entry. The
// block serialization layer proper lives outside the store; this is only the
// seam it plugs into.
type Serializer func(v interface{}) ([]byte, error)

// gobSerializer is the default stand-in serializer.
func gobSerializer(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Default unroll settings, used when the config leaves them zero.
const (
	defaultInitialUnrollBytes = 1 << 20
	defaultCheckInterval      = 16
	defaultGrowthFactor       = 1.5
)

// Options carries the injected capabilities and tunables of a MemoryStore.
type Options struct {
	Policy  EvictionPolicy
	Handler BlockEvictionHandler
	// PeerCheckStrict selects which of the two peer-eviction broadcasts the
	// worker honors; the master always sends both.
	PeerCheckStrict bool
	Serializer      Serializer
	Unroll          common.UnrollConfig
}

// NewOptions builds Options with the given policy, handler and defaults for
// everything else.
func NewOptions(policy EvictionPolicy, handler BlockEvictionHandler) Options {
	return Options{
		Policy:  policy,
		Handler: handler,
	}
}

func (o *Options) applyDefaults() {
	if o.Serializer == nil {
		o.Serializer = gobSerializer
	}
	if o.Unroll.InitialUnrollBytes <= 0 {
		o.Unroll.InitialUnrollBytes = defaultInitialUnrollBytes
	}
	if o.Unroll.CheckInterval <= 0 {
		o.Unroll.CheckInterval = defaultCheckInterval
	}
	if o.Unroll.GrowthFactor <= 1.0 {
		o.Unroll.GrowthFactor = defaultGrowthFactor
	}
}

// EvictionPolicyFromName maps a config name to the policy, defaulting to LRU.
func EvictionPolicyFromName(name string) EvictionPolicy {
	switch name {
	case common.EvictionPolicyLRC:
		return LRC
	case common.EvictionPolicyOSL:
		return OSL
	default:
		return LRU
	}
}
