package usecases

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/infrastructure/metrics"
)

// computed is one activity's execution outcome from the parallel compute
// stage, before any state is touched.
type computed struct {
	act     *activity.Activity
	payload map[string]any
	err     error
}

// computeAll executes the activities' outcome computation. With workers
// <= 1 it runs inline; otherwise a bounded pool computes in parallel.
// Execution is pure (no store access, read-only view), so parallelism
// cannot interleave savepoints: the caller applies results serially in
// priority order afterwards, which keeps day simulation deterministic.
func computeAll(ctx context.Context, reg *ExecutorRegistry, acts []*activity.Activity, view activity.View, workers int) []computed {
	out := make([]computed, len(acts))
	if workers <= 1 || len(acts) < 2 {
		for i, act := range acts {
			payload, err := reg.Execute(ctx, act, view)
			out[i] = computed{act: act, payload: payload, err: err}
		}
		return out
	}

	if workers > len(acts) {
		workers = len(acts)
	}
	metrics.SetComputeWorkers(workers)

	var next int64 = -1
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(acts) {
					return
				}
				payload, err := reg.Execute(ctx, acts[i], view)
				out[i] = computed{act: acts[i], payload: payload, err: err}
			}
		}()
	}
	wg.Wait()
	return out
}
