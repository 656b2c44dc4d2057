/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package lattice

import (
	"context"
	"sync"

	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-oraculum/pkg/utils/logging"
)

const defaultWorkers = 4

// PoolConfig holds the configuration for the warm-up Pool.
type PoolConfig struct {
	WorkersCount int `json:"workersCount"`
}

// DefaultPoolConfig returns a default configuration for the Pool.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		WorkersCount: defaultWorkers,
	}
}

// Pool builds lattices in the background so that a later Build of the same
// input is served from the Builder's cache.
type Pool struct {
	workers int
	queue   workqueue.TypedRateLimitingInterface[string]
	wg      sync.WaitGroup

	builder *Builder
}

// NewPool initializes a Pool feeding the given Builder.
func NewPool(config *PoolConfig, builder *Builder) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}

	return &Pool{
		workers: config.WorkersCount,
		queue:   workqueue.NewTypedRateLimitingQueue(workqueue.DefaultTypedControllerRateLimiter[string]()),
		builder: builder,
	}
}

// AddTask enqueues an input to pre-build.
// This method only enqueues the task and does not start processing it.
func (pool *Pool) AddTask(input string) {
	pool.queue.Add(input)
}

// Run launches worker goroutines that process tasks until the context is
// cancelled.
func (pool *Pool) Run(ctx context.Context) {
	for i := 0; i < pool.workers; i++ {
		pool.wg.Add(1)
		go pool.workerLoop(ctx)
	}

	<-ctx.Done()

	pool.queue.ShutDown()
	pool.wg.Wait()
}

func (pool *Pool) workerLoop(ctx context.Context) {
	defer pool.wg.Done()
	debugLogger := klog.FromContext(ctx).V(logging.DEBUG).WithName("lattice.Pool")

	for {
		input, shutdown := pool.queue.Get()
		if shutdown {
			return
		}

		if !pool.builder.Cached([]byte(input)) {
			l := pool.builder.Build(ctx, []byte(input))
			debugLogger.Info("prebuilt lattice", "inputLen", l.Len(), "edges", l.NumEdges())
		}
		pool.queue.Forget(input)
		pool.queue.Done(input)
	}
}
