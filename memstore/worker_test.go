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
	"github.com/stretchr/testify/mock"
	"github.com/YuaNFrank/spark/memstore/common"
)

type mockMasterClient struct {
	mock.Mock
}

func (m *mockMasterClient) RegisterWorker(id common.BlockManagerID, maxMem int64, endpoint common.WorkerEndpoint) error {
	args := m.Called(id, maxMem, endpoint)
	return args.Error(0)
}

func (m *mockMasterClient) UpdateBlockInfo(update *common.BlockUpdate) (bool, error) {
	args := m.Called(update)
	return args.Bool(0), args.Error(1)
}

func (m *mockMasterClient) ReportCacheHit(worker common.BlockManagerID, stats [4]int64) error {
	args := m.Called(worker, stats)
	return args.Error(0)
}

func (m *mockMasterClient) GetRefProfile(worker common.BlockManagerID) (*common.RefProfile, error) {
	args := m.Called(worker)
	return args.Get(0).(*common.RefProfile), args.Error(1)
}

func (m *mockMasterClient) BlockWithPeerEvicted(b common.BlockID) error {
	args := m.Called(b)
	return args.Error(0)
}

func newMockMasterClient(profile *common.RefProfile) *mockMasterClient {
	client := &mockMasterClient{}
	client.On("RegisterWorker", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	client.On("GetRefProfile", mock.Anything).Return(profile, nil)
	client.On("UpdateBlockInfo", mock.Anything).Return(true, nil)
	client.On("ReportCacheHit", mock.Anything, mock.Anything).Return(nil)
	client.On("BlockWithPeerEvicted", mock.Anything).Return(nil)
	return client
}

var _ = ginkgo.Describe("worker", func() {
	workerID := common.BlockManagerID{ExecutorID: "0", Host: "localhost", Port: 7090}

	ginkgo.It("registers and pulls profiles on start", func() {
		profile := profileWith(map[common.DatasetID]int{1: 4}, nil)
		client := newMockMasterClient(profile)
		worker := NewWorker(workerID, 100, 0, Options{Policy: LRU}, client)

		Ω(worker.Start()).Should(Succeed())
		client.AssertCalled(ginkgo.GinkgoT(), "RegisterWorker", workerID, int64(100), worker)

		b := common.NewRDDBlockID(1, 0)
		Ω(putBlock(worker.Store(), b, 10)).Should(BeTrue())
		ref, _ := worker.Store().refs.Ref(b)
		Ω(ref).Should(Equal(4))
	})

	ginkgo.It("reports evictions and raises peer events for peered datasets", func() {
		profile := profileWith(
			map[common.DatasetID]int{1: 3, 2: 3},
			map[common.DatasetID]common.DatasetID{1: 2, 2: 1},
		)
		client := newMockMasterClient(profile)
		worker := NewWorker(workerID, 100, 0, Options{Policy: LRU}, client)
		Ω(worker.Start()).Should(Succeed())

		peered := common.NewRDDBlockID(1, 0)
		Ω(putBlock(worker.Store(), peered, 60)).Should(BeTrue())
		// Admitting this block forces the peered one out.
		Ω(putBlock(worker.Store(), common.NewRDDBlockID(3, 0), 60)).Should(BeTrue())

		client.AssertCalled(ginkgo.GinkgoT(), "BlockWithPeerEvicted", peered)
		client.AssertCalled(ginkgo.GinkgoT(), "UpdateBlockInfo",
			mock.MatchedBy(func(u *common.BlockUpdate) bool {
				return u.Block == peered && !u.Level.IsValid()
			}))
	})

	ginkgo.It("does not raise peer events for unpeered datasets", func() {
		profile := profileWith(map[common.DatasetID]int{1: 3}, nil)
		client := newMockMasterClient(profile)
		worker := NewWorker(workerID, 100, 0, Options{Policy: LRU}, client)
		Ω(worker.Start()).Should(Succeed())

		Ω(putBlock(worker.Store(), common.NewRDDBlockID(1, 0), 60)).Should(BeTrue())
		Ω(putBlock(worker.Store(), common.NewRDDBlockID(3, 0), 60)).Should(BeTrue())

		client.AssertNotCalled(ginkgo.GinkgoT(), "BlockWithPeerEvicted", mock.Anything)
	})

	ginkgo.It("flushes telemetry once and resets the counters", func() {
		profile := common.NewRefProfile()
		client := newMockMasterClient(profile)
		worker := NewWorker(workerID, 100, 0, Options{Policy: LRU}, client)
		Ω(worker.Start()).Should(Succeed())

		b := common.NewRDDBlockID(1, 0)
		putBlock(worker.Store(), b, 10)
		worker.Store().GetBytes(b)
		worker.Store().GetBytes(common.NewRDDBlockID(2, 0))

		worker.FlushTelemetry()
		client.AssertCalled(ginkgo.GinkgoT(), "ReportCacheHit", workerID, [4]int64{1, 1, 0, 0})

		// Nothing left to flush.
		client.Calls = nil
		worker.FlushTelemetry()
		client.AssertNotCalled(ginkgo.GinkgoT(), "ReportCacheHit", mock.Anything, mock.Anything)
	})

	ginkgo.It("honors only its configured peer check mode", func() {
		profile := profileWith(
			map[common.DatasetID]int{1: 3, 2: 3},
			map[common.DatasetID]common.DatasetID{1: 2, 2: 1},
		)
		client := newMockMasterClient(profile)
		worker := NewWorker(workerID, 1000, 0, Options{Policy: LRU}, client)
		Ω(worker.Start()).Should(Succeed())

		b := common.NewRDDBlockID(1, 0)
		putBlock(worker.Store(), b, 10)

		// The master sends both messages for one event; a conservative
		// worker must apply only the conservative one.
		worker.CheckPeersConservatively("evt-9", b)
		worker.CheckPeersStrictly("evt-9", b)
		ref, _ := worker.Store().refs.Ref(b)
		Ω(ref).Should(Equal(2))

		strictClient := newMockMasterClient(profile)
		strictWorker := NewWorker(workerID, 1000, 0,
			Options{Policy: LRU, PeerCheckStrict: true}, strictClient)
		Ω(strictWorker.Start()).Should(Succeed())
		putBlock(strictWorker.Store(), b, 10)

		strictWorker.CheckPeersConservatively("evt-9", b)
		strictWorker.CheckPeersStrictly("evt-9", b)
		ref, _ = strictWorker.Store().refs.Ref(b)
		Ω(ref).Should(Equal(2))
	})

	ginkgo.It("serves master removal and broadcast messages", func() {
		profile := common.NewRefProfile()
		client := newMockMasterClient(profile)
		worker := NewWorker(workerID, 1000, 0, Options{Policy: LRU}, client)
		Ω(worker.Start()).Should(Succeed())

		putBlock(worker.Store(), common.NewRDDBlockID(1, 0), 10)
		putBlock(worker.Store(), common.NewRDDBlockID(1, 1), 10)
		putBlock(worker.Store(), common.NewBroadcastBlockID(7), 10)

		Ω(worker.RemoveRdd(1)).Should(Equal(2))
		Ω(worker.RemoveBroadcast(7, false)).Should(Equal(int64(10)))
		Ω(worker.RemoveBlock(common.NewRDDBlockID(1, 0))).Should(BeFalse())

		worker.BroadcastDAGInfo(1, common.DAGInfo{4: {3: 1}}, 5)
		lease, ok := worker.Store().leases.Lease(4)
		Ω(ok).Should(BeTrue())
		Ω(lease).Should(Equal(3))
	})
})
