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

var _ = ginkgo.Describe("lease engine", func() {
	ginkgo.It("assigns full leases when the budget allows", func() {
		engine := NewLeaseEngine(nil)
		engine.SetDAGInfo(common.DAGInfo{
			1: {2: 1},
			2: {4: 1},
		}, 10)

		lease, ok := engine.Lease(1)
		Ω(ok).Should(BeTrue())
		Ω(lease).Should(Equal(2))
		lease, _ = engine.Lease(2)
		Ω(lease).Should(Equal(4))
	})

	ginkgo.It("prefers the higher hits-per-unit-cost extension under a tight budget", func() {
		engine := NewLeaseEngine(func() int { return 1 })
		// Budget = 1 x 3 = 3: only dataset 1's extension (cost 2) fits.
		engine.SetDAGInfo(common.DAGInfo{
			1: {2: 1},
			2: {4: 1},
		}, 3)

		lease, _ := engine.Lease(1)
		Ω(lease).Should(Equal(2))
		lease, _ = engine.Lease(2)
		Ω(lease).Should(Equal(0))
	})

	ginkgo.It("never leases past the largest reuse interval and hits grow with the budget", func() {
		dag := common.DAGInfo{
			1: {2: 3, 5: 2, 9: 1},
			2: {3: 4, 7: 1},
		}
		prevHits := -1
		for _, accessNumber := range []int{0, 2, 5, 10, 50, 1000} {
			engine := NewLeaseEngine(func() int { return 2 })
			engine.SetDAGInfo(dag, accessNumber)

			hits := 0
			for d, hist := range dag {
				lease, _ := engine.Lease(d)
				maxInterval := 0
				for ri, freq := range hist {
					if ri > maxInterval {
						maxInterval = ri
					}
					if ri <= lease {
						hits += freq
					}
				}
				Ω(lease).Should(BeNumerically("<=", maxInterval))
			}
			Ω(hits).Should(BeNumerically(">=", prevHits))
			prevHits = hits
		}
	})

	ginkgo.It("ages current leases on every access and refreshes the accessed dataset", func() {
		engine := NewLeaseEngine(nil)
		engine.SetDAGInfo(common.DAGInfo{
			1: {2: 1},
			2: {4: 1},
		}, 10)
		engine.OnBlockAdded(common.NewRDDBlockID(1, 0))
		engine.OnBlockAdded(common.NewRDDBlockID(2, 0))

		engine.Tick(1)
		lease, _ := engine.CurrentLease(1)
		Ω(lease).Should(Equal(2))
		lease, _ = engine.CurrentLease(2)
		Ω(lease).Should(Equal(3))

		// Two accesses elsewhere drain dataset 1's lease to zero.
		engine.Tick(2)
		engine.Tick(2)
		lease, _ = engine.CurrentLease(1)
		Ω(lease).Should(Equal(0))
		Ω(engine.ExpiredDatasets()).Should(Equal([]common.DatasetID{1}))

		// Leases never go negative.
		engine.Tick(2)
		lease, _ = engine.CurrentLease(1)
		Ω(lease).Should(Equal(0))
	})

	ginkgo.It("drops the current view when a dataset leaves memory", func() {
		engine := NewLeaseEngine(nil)
		engine.SetDAGInfo(common.DAGInfo{1: {2: 1}}, 10)
		engine.OnBlockAdded(common.NewRDDBlockID(1, 0))
		Ω(engine.HasCurrentLease(1)).Should(BeTrue())

		engine.RemoveDatasetCurrent(1)
		Ω(engine.HasCurrentLease(1)).Should(BeFalse())

		// The assigned lease survives for re-admission.
		lease, ok := engine.Lease(1)
		Ω(ok).Should(BeTrue())
		Ω(lease).Should(Equal(2))
	})

	ginkgo.It("replaces histograms on a new broadcast", func() {
		engine := NewLeaseEngine(nil)
		engine.SetDAGInfo(common.DAGInfo{1: {2: 1}}, 10)
		engine.SetDAGInfo(common.DAGInfo{3: {5: 1}}, 10)

		_, ok := engine.Lease(1)
		Ω(ok).Should(BeFalse())
		lease, _ := engine.Lease(3)
		Ω(lease).Should(Equal(5))
	})
})
