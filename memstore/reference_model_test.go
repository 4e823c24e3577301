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
	"github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/YuaNFrank/spark/memstore/common"
)

func profileWith(refs map[common.DatasetID]int, peers map[common.DatasetID]common.DatasetID) *common.RefProfile {
	p := common.NewRefProfile()
	for d, n := range refs {
		p.RefProfile[d] = n
	}
	for a, b := range peers {
		p.PeerProfile[a] = b
	}
	return p
}

var _ = ginkgo.Describe("reference model", func() {
	blockA := common.NewRDDBlockID(1, 0)
	blockB := common.NewRDDBlockID(2, 0)

	ginkgo.It("seeds references from the profile, defaulting to one", func() {
		model := NewReferenceModel()
		model.SetProfiles(profileWith(map[common.DatasetID]int{1: 3}, nil))

		Ω(model.OnBlockAdded(blockA)).Should(BeFalse())
		ref, ok := model.Ref(blockA)
		Ω(ok).Should(BeTrue())
		Ω(ref).Should(Equal(3))

		Ω(model.OnBlockAdded(blockB)).Should(BeFalse())
		ref, _ = model.Ref(blockB)
		Ω(ref).Should(Equal(1))

		// Re-ingestion signals a duplicate and keeps the counts.
		Ω(model.OnBlockAdded(blockA)).Should(BeTrue())
		ref, _ = model.Ref(blockA)
		Ω(ref).Should(Equal(3))
	})

	ginkgo.It("keeps the current view behind the tier-wide view", func() {
		model := NewReferenceModel()
		model.SetProfiles(profileWith(map[common.DatasetID]int{1: 3}, nil))
		model.OnBlockAdded(blockA)
		model.InstallCurrentRef(blockA)

		model.OnCacheHit(blockA)
		ref, _ := model.Ref(blockA)
		current, _ := model.CurrentRef(blockA)
		Ω(ref).Should(Equal(2))
		Ω(current).Should(Equal(2))

		// A miss only ages the tier-wide view.
		model.OnCacheMiss(blockA)
		ref, _ = model.Ref(blockA)
		current, _ = model.CurrentRef(blockA)
		Ω(ref).Should(Equal(1))
		Ω(current).Should(Equal(2))
	})

	ginkgo.It("replaces references at job start", func() {
		model := NewReferenceModel()
		model.SetProfiles(profileWith(map[common.DatasetID]int{1: 3}, nil))
		model.OnBlockAdded(blockA)
		model.InstallCurrentRef(blockA)

		model.ApplyJobProfile(map[common.DatasetID]int{1: 7})
		ref, _ := model.Ref(blockA)
		current, _ := model.CurrentRef(blockA)
		Ω(ref).Should(Equal(7))
		Ω(current).Should(Equal(7))
	})

	ginkgo.Context("conservative peer eviction", func() {
		peers := map[common.DatasetID]common.DatasetID{1: 2, 2: 1}

		ginkgo.It("decrements the block and its counterpart", func() {
			model := NewReferenceModel()
			model.SetProfiles(profileWith(map[common.DatasetID]int{1: 3, 2: 3}, peers))
			model.OnBlockAdded(blockA)
			model.InstallCurrentRef(blockA)
			model.OnBlockAdded(blockB)
			model.InstallCurrentRef(blockB)

			model.CheckPeersConservatively("evt-1", blockA)
			ref, _ := model.Ref(blockA)
			Ω(ref).Should(Equal(2))
			ref, _ = model.Ref(blockB)
			Ω(ref).Should(Equal(2))
		})

		ginkgo.It("applies a replayed event exactly once", func() {
			model := NewReferenceModel()
			model.SetProfiles(profileWith(map[common.DatasetID]int{1: 3, 2: 3}, peers))
			model.OnBlockAdded(blockA)
			model.InstallCurrentRef(blockA)
			model.OnBlockAdded(blockB)
			model.InstallCurrentRef(blockB)

			model.CheckPeersConservatively("evt-2", blockA)
			model.CheckPeersConservatively("evt-2", blockA)
			ref, _ := model.Ref(blockA)
			Ω(ref).Should(Equal(2))
			ref, _ = model.Ref(blockB)
			Ω(ref).Should(Equal(2))
		})

		ginkgo.It("defers the decrement until the counterpart arrives", func() {
			model := NewReferenceModel()
			model.SetProfiles(profileWith(map[common.DatasetID]int{1: 3, 2: 3}, peers))
			model.OnBlockAdded(blockA)
			model.InstallCurrentRef(blockA)

			// blockB is not known yet; the decrement is pended.
			model.CheckPeersConservatively("evt-3", blockA)
			_, known := model.Ref(blockB)
			Ω(known).Should(BeFalse())

			model.OnBlockAdded(blockB)
			ref, _ := model.Ref(blockB)
			Ω(ref).Should(Equal(2))

			// The pending decrement is applied exactly once.
			model.OnBlockAdded(common.NewRDDBlockID(2, 0))
			ref, _ = model.Ref(blockB)
			Ω(ref).Should(Equal(2))
		})
	})

	ginkgo.It("strict peer eviction ages both datasets everywhere", func() {
		model := NewReferenceModel()
		model.SetProfiles(profileWith(
			map[common.DatasetID]int{1: 3, 2: 3, 5: 3},
			map[common.DatasetID]common.DatasetID{1: 2, 2: 1},
		))
		other := common.NewRDDBlockID(5, 0)
		for _, b := range []common.BlockID{blockA, blockB, common.NewRDDBlockID(1, 1), other} {
			model.OnBlockAdded(b)
			model.InstallCurrentRef(b)
		}

		model.CheckPeersStrictly("evt-4", blockA)

		for _, b := range []common.BlockID{blockA, blockB, common.NewRDDBlockID(1, 1)} {
			ref, _ := model.Ref(b)
			current, _ := model.CurrentRef(b)
			Ω(ref).Should(Equal(2))
			Ω(current).Should(Equal(2))
		}
		// Unrelated datasets are untouched.
		ref, _ := model.Ref(other)
		Ω(ref).Should(Equal(3))
	})
})
