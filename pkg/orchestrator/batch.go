package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/helmcode/kubediag/pkg/model"
)

// BatchResult pairs one problem of a batch with its report.
type BatchResult struct {
	Problem string
	Report  model.Report
	Err     error
}

// RunBatch diagnoses every problem with at most Options.Concurrency sessions
// in flight. Results keep the input order. Problems not yet started when ctx
// is done carry the context error.
func (o *Orchestrator) RunBatch(ctx context.Context, problems []string) []BatchResult {
	results := make([]BatchResult, len(problems))
	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))

	var g errgroup.Group
	for i, problem := range problems {
		results[i].Problem = problem
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = err
			continue
		}
		i, problem := i, problem
		g.Go(func() error {
			defer sem.Release(1)
			report, err := o.Diagnose(ctx, problem)
			results[i].Report = report
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results
}
