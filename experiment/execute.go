package experiment

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"expgrid/domain"
)

// Options control one execution run.
type Options struct {
	// MaxExperiments bounds how many rows this run claims across all
	// workers. Negative means run until the table has no created rows left.
	MaxExperiments int
	// RandomOrder claims rows in random order instead of ascending id.
	RandomOrder bool
	// Workers is the number of concurrent executor goroutines. Zero and one
	// both run a single worker.
	Workers int
}

// Execute claims up to maxExperiments rows and runs fn on each, using the
// execution options from the configuration file. Negative maxExperiments
// runs until no created row remains.
func (e *Experimenter) Execute(ctx context.Context, fn domain.Callback, maxExperiments int) error {
	return e.ExecuteWith(ctx, fn, Options{
		MaxExperiments: maxExperiments,
		RandomOrder:    e.cfg.Experiment.RandomOrder,
		Workers:        e.cfg.Experiment.Workers,
	})
}

// ExecuteWith runs the claim/execute/report loop with explicit options.
// Every worker repeats the same cycle: claim one created row in a short
// exclusive transaction, run fn outside any transaction, then report the
// outcome as done or error. Callback failures and panics are captured into
// the row; failures to report propagate and stop the run, leaving the row
// running.
func (e *Experimenter) ExecuteWith(ctx context.Context, fn domain.Callback, opts Options) error {
	b := newBudget(opts.MaxExperiments)
	if opts.Workers <= 1 {
		return e.runLoop(ctx, fn, e.worker, opts.RandomOrder, b)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		worker := fmt.Sprintf("%s-w%d", e.worker, i+1)
		g.Go(func() error {
			return e.runLoop(ctx, fn, worker, opts.RandomOrder, b)
		})
	}
	return g.Wait()
}

// runLoop is one worker's claim/execute/report cycle. It exits when the
// budget is spent, no created row remains, or reporting fails.
func (e *Experimenter) runLoop(ctx context.Context, fn domain.Callback, worker string, random bool, b *budget) error {
	for b.take() {
		exp, err := e.table.Claim(ctx, worker, random)
		if err != nil {
			return err
		}
		if exp == nil {
			e.logger.Info("no open experiments left", "table", e.table.Name(), "worker", worker)
			return nil
		}
		e.logger.Info("experiment claimed",
			"table", e.table.Name(), "worker", worker, "id", exp.ID)

		if execErr := runCallback(ctx, fn, exp, e.resultWriter(exp.ID), e.cfg.Custom); execErr != nil {
			if err := e.table.MarkError(ctx, exp.ID, execErr.Error()); err != nil {
				return err
			}
			e.logger.Warn("experiment failed",
				"table", e.table.Name(), "worker", worker, "id", exp.ID, "error", execErr.Error())
			continue
		}
		if err := e.table.MarkDone(ctx, exp.ID); err != nil {
			return err
		}
		e.logger.Info("experiment done",
			"table", e.table.Name(), "worker", worker, "id", exp.ID)
	}
	return nil
}

// runCallback executes fn outside any transaction and captures returned
// errors and panics as the row's execution error instead of letting them
// escape the loop. A panic carries its stack so the row records where the
// experiment code blew up.
func runCallback(ctx context.Context, fn domain.Callback, exp *domain.Experiment, results domain.ResultWriter, custom map[string]string) (execErr *domain.ExecutionError) {
	defer func() {
		if r := recover(); r != nil {
			execErr = domain.ErrExecution("panic: %v\n\n%s", r, debug.Stack())
		}
	}()
	if err := fn(ctx, exp.Params, results, custom); err != nil {
		return domain.ErrExecution("%v", err)
	}
	return nil
}

// resultWriter binds WriteResults to one claimed row.
func (e *Experimenter) resultWriter(id int64) domain.ResultWriter {
	return writerFunc(func(ctx context.Context, values map[string]interface{}) error {
		return e.table.WriteResults(ctx, id, values)
	})
}

type writerFunc func(ctx context.Context, values map[string]interface{}) error

func (f writerFunc) Write(ctx context.Context, values map[string]interface{}) error {
	return f(ctx, values)
}

// budget is the shared claim allowance of one execution run. Workers reserve
// one unit before each claim; a negative starting value means unbounded.
type budget struct {
	unbounded bool
	remaining atomic.Int64
}

func newBudget(max int) *budget {
	b := &budget{unbounded: max < 0}
	if !b.unbounded {
		b.remaining.Store(int64(max))
	}
	return b
}

func (b *budget) take() bool {
	if b.unbounded {
		return true
	}
	return b.remaining.Add(-1) >= 0
}
