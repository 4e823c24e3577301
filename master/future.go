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
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Future collects the per-worker results of a fan-out call. It is resolved on
// the fan-out pool, never on the endpoint mailbox.
type Future struct {
	done    chan struct{}
	once    sync.Once
	results []interface{}
	err     error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(results []interface{}, err error) {
	f.once.Do(func() {
		f.results = results
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the future resolves or the timeout elapses.
func (f *Future) Wait(timeout time.Duration) ([]interface{}, error) {
	select {
	case <-f.done:
		return f.results, f.err
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for fan-out results")
	}
}

// IntSum waits and sums integer results, for removal fan-outs.
func (f *Future) IntSum(timeout time.Duration) (int, error) {
	results, err := f.Wait(timeout)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range results {
		switch v := r.(type) {
		case int:
			total += v
		case int64:
			total += int(v)
		case bool:
			if v {
				total++
			}
		}
	}
	return total, nil
}

// fanoutPool runs fan-out closures on a bounded set of goroutines so the
// endpoint mailbox never blocks on worker calls.
type fanoutPool struct {
	tasks chan func()
	wg    sync.WaitGroup
	stop  chan struct{}
}

func newFanoutPool(workers int) *fanoutPool {
	if workers <= 0 {
		workers = 4
	}
	p := &fanoutPool{
		tasks: make(chan func(), 64),
		stop:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case task := <-p.tasks:
					task()
				case <-p.stop:
					return
				}
			}
		}()
	}
	return p
}

func (p *fanoutPool) submit(task func()) {
	select {
	case p.tasks <- task:
	case <-p.stop:
	}
}

func (p *fanoutPool) shutdown() {
	close(p.stop)
	p.wg.Wait()
}
