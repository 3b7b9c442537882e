package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestFanOut_RespectsWorkerCap(t *testing.T) {
	var running, peak int32
	jobs := make([]Job, 12)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		}
	}

	NewFanOut(5, time.Second).Dispatch(context.Background(), jobs)

	assert.Equal(t, true, peak <= 5)
	assert.Equal(t, true, peak > 1)
	assert.Equal(t, int32(0), running)
}

func TestFanOut_UnitTimeoutDoesNotBlockSiblings(t *testing.T) {
	var mu sync.Mutex
	var finished []string

	jobs := []Job{
		func(ctx context.Context) {
			<-ctx.Done()
			mu.Lock()
			finished = append(finished, "slow")
			mu.Unlock()
		},
		func(ctx context.Context) {
			mu.Lock()
			finished = append(finished, "fast")
			mu.Unlock()
		},
	}

	NewFanOut(5, 50*time.Millisecond).Dispatch(context.Background(), jobs)

	assert.Equal(t, []string{"fast", "slow"}, finished)
}

func TestTrickle_StartsInInputOrderWithDelay(t *testing.T) {
	var mu sync.Mutex
	var order []int
	starts := make([]time.Time, 4)
	ends := make([]time.Time, 4)

	jobs := make([]Job, 4)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			starts[i] = time.Now()
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			ends[i] = time.Now()
			mu.Unlock()
		}
	}

	NewTrickle(30*time.Millisecond, time.Second).Dispatch(context.Background(), jobs)

	assert.Equal(t, []int{0, 1, 2, 3}, order)
	for i := 1; i < len(starts); i++ {
		assert.Equal(t, true, starts[i].Sub(starts[i-1]) >= 25*time.Millisecond)
	}
	// the first result lands long before the last dispatch
	assert.Equal(t, true, ends[0].Before(starts[3]))
}

func TestTrickle_DoesNotWaitForPreviousJob(t *testing.T) {
	release := make(chan struct{})
	var second atomic.Bool

	jobs := []Job{
		func(ctx context.Context) { <-release },
		func(ctx context.Context) {
			second.Store(true)
			close(release)
		},
	}

	done := make(chan struct{})
	go func() {
		NewTrickle(10*time.Millisecond, time.Second).Dispatch(context.Background(), jobs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("trickle blocked on a running job")
	}
	assert.Equal(t, true, second.Load())
}

func TestTrickle_CancelledContextStillRunsEveryJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	var sawCancel atomic.Int32
	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) {
			ran.Add(1)
			if ctx.Err() != nil {
				sawCancel.Add(1)
			}
		}
	}

	done := make(chan struct{})
	go func() {
		NewTrickle(time.Hour, time.Second).Dispatch(ctx, jobs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("trickle kept spacing jobs after cancellation")
	}
	assert.Equal(t, int32(5), ran.Load())
	assert.Equal(t, int32(5), sawCancel.Load())
}

func TestDefaults(t *testing.T) {
	f := NewFanOut(0, 0)
	assert.Equal(t, DefaultWorkers, f.Workers)
	assert.Equal(t, DefaultUnitTimeout, f.Timeout)

	tr := NewTrickle(0, 0)
	assert.Equal(t, DefaultTrickleDelay, tr.Delay)
	assert.Equal(t, DefaultUnitTimeout, tr.Timeout)
}
