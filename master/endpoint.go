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
	"time"

	"github.com/pkg/errors"
	"github.com/YuaNFrank/spark/common"
	memCom "github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

const (
	defaultAskTimeout    = 10 * time.Second
	defaultAskRetries    = 3
	defaultMailboxDepth  = 256
	defaultFanoutWorkers = 4
)

type envelope struct {
	msg   interface{}
	reply chan interface{}
}

// Endpoint is the master's cooperative single-threaded mailbox: one message
// is processed to completion before the next begins. Fan-out calls return
// futures scheduled on a dedicated pool so the mailbox never blocks on
// workers.
type Endpoint struct {
	directory *Directory
	mailbox   chan envelope
	stopped   chan struct{}
	pool      *fanoutPool

	askTimeout time.Duration
	askRetries int
}

// NewEndpoint starts the mailbox loop over the directory.
func NewEndpoint(directory *Directory, rpcCfg common.RPCConfig) *Endpoint {
	askTimeout := defaultAskTimeout
	if rpcCfg.AskTimeoutInSeconds > 0 {
		askTimeout = time.Duration(rpcCfg.AskTimeoutInSeconds) * time.Second
	}
	askRetries := defaultAskRetries
	if rpcCfg.AskRetries > 0 {
		askRetries = rpcCfg.AskRetries
	}
	fanoutWorkers := defaultFanoutWorkers
	if rpcCfg.FanoutWorkers > 0 {
		fanoutWorkers = rpcCfg.FanoutWorkers
	}
	e := &Endpoint{
		directory:  directory,
		mailbox:    make(chan envelope, defaultMailboxDepth),
		stopped:    make(chan struct{}),
		pool:       newFanoutPool(fanoutWorkers),
		askTimeout: askTimeout,
		askRetries: askRetries,
	}
	go e.loop()
	return e
}

// Directory exposes the directory for the debug API. Reads taken off the
// mailbox are point-in-time only.
func (e *Endpoint) Directory() *Directory {
	return e.directory
}

func (e *Endpoint) loop() {
	for {
		select {
		case env := <-e.mailbox:
			result := e.handle(env.msg)
			if env.reply != nil {
				env.reply <- result
			}
			if _, isStop := env.msg.(Stop); isStop {
				e.pool.shutdown()
				close(e.stopped)
				return
			}
		}
	}
}

// Ask enqueues the message and waits for the answer, retrying on timeout up
// to the configured limit. A timed-out ask mutates nothing the caller can
// observe.
func (e *Endpoint) Ask(msg interface{}) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= e.askRetries; attempt++ {
		reply := make(chan interface{}, 1)
		select {
		case e.mailbox <- envelope{msg: msg, reply: reply}:
		case <-e.stopped:
			return nil, errors.New("master endpoint stopped")
		case <-time.After(e.askTimeout):
			lastErr = errors.Errorf("ask timed out enqueueing %T", msg)
			continue
		}
		select {
		case result := <-reply:
			return result, nil
		case <-time.After(e.askTimeout):
			lastErr = errors.Errorf("ask timed out awaiting reply to %T", msg)
		}
	}
	return nil, lastErr
}

// Tell sends a message whose answer must be boolean true; a false answer is a
// protocol error.
func (e *Endpoint) Tell(msg interface{}) error {
	result, err := e.Ask(msg)
	if err != nil {
		return err
	}
	ok, isBool := result.(bool)
	if !isBool {
		return errors.Errorf("tell answer to %T is not boolean", msg)
	}
	if !ok {
		return errors.Errorf("master answered false to %T", msg)
	}
	return nil
}

// Stop drains the endpoint: flushes telemetry to result.txt and shuts the
// mailbox down.
func (e *Endpoint) Stop() error {
	_, err := e.Ask(Stop{})
	return err
}

// handle runs on the mailbox goroutine; it owns all directory state.
func (e *Endpoint) handle(msg interface{}) interface{} {
	d := e.directory
	switch m := msg.(type) {
	case Register:
		d.register(m.ID, m.MaxMem, m.Endpoint)
		return true

	case UpdateBlockInfo:
		return d.updateBlockInfo(m.Update)

	case GetLocations:
		return d.locations(m.Block)

	case GetLocationsMultiple:
		locations := make([][]memCom.BlockManagerID, len(m.Blocks))
		for i, b := range m.Blocks {
			locations[i] = d.locations(b)
		}
		return locations

	case GetPeers:
		return d.peers(m.Worker)

	case GetExecutorEndpoint:
		endpoint, _ := d.executorEndpoint(m.ExecutorID)
		return endpoint

	case GetMemoryStatus:
		return d.memoryStatus()

	case GetStorageStatus:
		return d.storageStatus()

	case GetBlockStatus:
		return d.blockStatus(m.Block)

	case GetMatchingBlockIds:
		return d.matchingBlockIDs(m.Filter)

	case HasCachedBlocks:
		return d.hasCachedBlocks(m.ExecutorID)

	case Heartbeat:
		return d.heartbeat(m.Worker)

	case ReportCacheHit:
		if _, ok := d.workers[m.Worker.ExecutorID]; !ok {
			return false
		}
		d.telemetry.Accumulate(m.Stats)
		return true

	case GetRefProfile:
		return d.profile

	case BlockWithPeerEvicted:
		eventID, ok := d.peerEvictionEvent(m.Block)
		if !ok {
			return false
		}
		block := m.Block
		endpoints := d.endpointsSnapshot()
		e.pool.submit(func() {
			for _, endpoint := range endpoints {
				endpoint.CheckPeersConservatively(eventID, block)
				endpoint.CheckPeersStrictly(eventID, block)
			}
		})
		return true

	case RemoveBlockMsg:
		return e.fanout(d.endpointsSnapshot(), func(w memCom.WorkerEndpoint) interface{} {
			return w.RemoveBlock(m.Block)
		})

	case RemoveRdd:
		// Master metadata is purged synchronously before the fan-out.
		d.purgeDataset(m.ID)
		return e.fanout(d.endpointsSnapshot(), func(w memCom.WorkerEndpoint) interface{} {
			return w.RemoveRdd(m.ID)
		})

	case RemoveShuffle:
		return e.fanout(d.endpointsSnapshot(), func(w memCom.WorkerEndpoint) interface{} {
			return w.RemoveShuffle(m.ID)
		})

	case RemoveBroadcast:
		return e.fanout(d.endpointsSnapshot(), func(w memCom.WorkerEndpoint) interface{} {
			return w.RemoveBroadcast(m.ID, m.FromDriver)
		})

	case StartBroadcastJobID:
		utils.GetRootReporter().GetCounter(utils.ProfileBroadcasts).Inc(1)
		return e.fanout(d.endpointsSnapshot(), func(w memCom.WorkerEndpoint) interface{} {
			w.BroadcastJobDAG(m.Job, nil)
			return true
		})

	case StartBroadcastRefCount:
		for _, refs := range m.Refs {
			d.totalReference += int64(refs) * int64(m.Partitions)
		}
		utils.GetRootReporter().GetCounter(utils.ProfileBroadcasts).Inc(1)
		return e.fanout(d.endpointsSnapshot(), func(w memCom.WorkerEndpoint) interface{} {
			w.BroadcastJobDAG(m.Job, m.Refs)
			return true
		})

	case StartBroadcastDAGInfo:
		utils.GetRootReporter().GetCounter(utils.ProfileBroadcasts).Inc(1)
		return e.fanout(d.endpointsSnapshot(), func(w memCom.WorkerEndpoint) interface{} {
			w.BroadcastDAGInfo(m.Job, m.DAG, m.AccessNumberGlobal)
			return true
		})

	case GetWorkers:
		return d.workerSummaries()

	case RemoveExecutor:
		d.removeExecutor(m.ExecutorID)
		return true

	case TriggerThreadDump:
		return e.fanout(d.endpointsSnapshot(), func(w memCom.WorkerEndpoint) interface{} {
			w.TriggerThreadDump()
			return true
		})

	case Stop:
		d.writeResult()
		return true

	default:
		utils.GetLogger().Errorf("unhandled master message %T", msg)
		return nil
	}
}

// fanout dispatches the call to every endpoint on the pool and returns a
// future collecting each worker's result.
func (e *Endpoint) fanout(endpoints []memCom.WorkerEndpoint,
	call func(memCom.WorkerEndpoint) interface{}) *Future {
	future := newFuture()
	e.pool.submit(func() {
		results := make([]interface{}, 0, len(endpoints))
		for _, endpoint := range endpoints {
			results = append(results, call(endpoint))
		}
		future.resolve(results, nil)
	})
	return future
}

// Client adapts the endpoint to the worker-facing MasterClient surface.
type Client struct {
	endpoint *Endpoint
}

// NewClient wraps the endpoint for worker use.
func NewClient(endpoint *Endpoint) *Client {
	return &Client{endpoint: endpoint}
}

// RegisterWorker implements memstore/common.MasterClient.
func (c *Client) RegisterWorker(id memCom.BlockManagerID, maxMem int64, endpoint memCom.WorkerEndpoint) error {
	return c.endpoint.Tell(Register{ID: id, MaxMem: maxMem, Endpoint: endpoint})
}

// UpdateBlockInfo implements memstore/common.MasterClient. A false answer for
// a registered worker is surfaced as an error; the caller treats it as a
// protocol violation.
func (c *Client) UpdateBlockInfo(update *memCom.BlockUpdate) (bool, error) {
	result, err := c.endpoint.Ask(UpdateBlockInfo{Update: update})
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	if !ok {
		return false, errors.Errorf("master rejected block update from %s", update.Worker.ExecutorID)
	}
	return true, nil
}

// ReportCacheHit implements memstore/common.MasterClient.
func (c *Client) ReportCacheHit(worker memCom.BlockManagerID, stats [4]int64) error {
	return c.endpoint.Tell(ReportCacheHit{Worker: worker, Stats: stats})
}

// GetRefProfile implements memstore/common.MasterClient.
func (c *Client) GetRefProfile(worker memCom.BlockManagerID) (*memCom.RefProfile, error) {
	result, err := c.endpoint.Ask(GetRefProfile{Worker: worker})
	if err != nil {
		return nil, err
	}
	profile, ok := result.(*memCom.RefProfile)
	if !ok {
		return nil, errors.New("unexpected ref profile answer")
	}
	return profile, nil
}

// BlockWithPeerEvicted implements memstore/common.MasterClient. A false
// answer means no peer was known; that outcome is logged by the master and
// swallowed here.
func (c *Client) BlockWithPeerEvicted(b memCom.BlockID) error {
	_, err := c.endpoint.Ask(BlockWithPeerEvicted{Block: b})
	return err
}
