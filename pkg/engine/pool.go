package engine

import (
	"context"
	"sync"

	"github.com/rosflow-network/rosflow/pkg/util"
)

// BatchItem is one command bound for one device in a batch run.
type BatchItem struct {
	Device  string `yaml:"device"`
	Command string `yaml:"command"`
}

// BatchResult pairs a batch item with its workflow result. Results come back
// in submission order regardless of which worker ran them.
type BatchResult struct {
	Item   BatchItem
	Result *WorkflowResult
}

// OK reports whether every result in the batch succeeded.
func BatchOK(results []BatchResult) bool {
	for _, r := range results {
		if !r.Result.OK() {
			return false
		}
	}
	return true
}

// RunBatch executes a batch across devices with bounded parallelism
// (Engine.Workers). Items for the same device run sequentially in submission
// order on its single pooled session; distinct devices run in parallel.
func (o *Orchestrator) RunBatch(ctx context.Context, items []BatchItem, approved bool) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		results[i] = BatchResult{Item: item}
	}

	// One task per device preserves per-device ordering; the worker count
	// only bounds cross-device parallelism.
	byDevice := make(map[string][]int)
	var order []string
	for i, item := range items {
		if _, ok := byDevice[item.Device]; !ok {
			order = append(order, item.Device)
		}
		byDevice[item.Device] = append(byDevice[item.Device], i)
	}

	workers := o.inv.Engine.Workers
	if workers < 1 {
		workers = 1
	}

	tasks := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for device := range tasks {
				for _, i := range byDevice[device] {
					results[i].Result = o.Execute(ctx, device, items[i].Command, approved)
				}
			}
		}()
	}

	for _, device := range order {
		tasks <- device
	}
	close(tasks)
	wg.Wait()

	util.WithOperation("batch").Infof("Ran %d commands on %d devices", len(items), len(order))
	return results
}
