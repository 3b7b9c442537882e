package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers      = 5
	DefaultUnitTimeout  = 30 * time.Second
	DefaultTrickleDelay = 300 * time.Millisecond
)

// Job is one unit of enrichment. It receives a context carrying the unit
// deadline and reports its own outcome.
type Job func(ctx context.Context)

// Dispatcher runs every job and returns once all of them have finished.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []Job)
}

// FanOut runs jobs concurrently, at most Workers at a time, each under its
// own Timeout. Completion order is unspecified.
type FanOut struct {
	Workers int
	Timeout time.Duration
}

func NewFanOut(workers int, timeout time.Duration) *FanOut {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultUnitTimeout
	}
	return &FanOut{Workers: workers, Timeout: timeout}
}

func (f *FanOut) Dispatch(ctx context.Context, jobs []Job) {
	var g errgroup.Group
	g.SetLimit(f.Workers)

	for _, job := range jobs {
		g.Go(func() error {
			runUnit(ctx, f.Timeout, job)
			return nil
		})
	}

	g.Wait()
}

// Trickle starts jobs one at a time in input order, Delay apart. A job does
// not wait for the previous one to finish, so results land as they come.
type Trickle struct {
	Delay   time.Duration
	Timeout time.Duration
}

func NewTrickle(delay, timeout time.Duration) *Trickle {
	if delay <= 0 {
		delay = DefaultTrickleDelay
	}
	if timeout <= 0 {
		timeout = DefaultUnitTimeout
	}
	return &Trickle{Delay: delay, Timeout: timeout}
}

func (t *Trickle) Dispatch(ctx context.Context, jobs []Job) {
	limiter := rate.NewLimiter(rate.Every(t.Delay), 1)

	var g errgroup.Group
	spacing := true
	for i, job := range jobs {
		// Once Wait fails the remaining jobs start at once. Each one sees
		// the same ctx and still reports its outcome.
		if spacing {
			if err := limiter.Wait(ctx); err != nil {
				slog.Warn("trickle spacing stopped", "remaining", len(jobs)-i, "error", err)
				spacing = false
			}
		}

		g.Go(func() error {
			runUnit(ctx, t.Timeout, job)
			return nil
		})
	}

	g.Wait()
}

func runUnit(ctx context.Context, timeout time.Duration, job Job) {
	unitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	job(unitCtx)
}
