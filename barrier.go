package gather

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/getlantern/gather/core"
)

// completionBarrier tracks how many node workers have finished. Each worker
// signals exactly once on exit, regardless of outcome; failures additionally
// report an error before signalling. The orchestrator blocks on await until
// every worker signalled, the first failure arrived, or the deadline
// elapsed.
type completionBarrier struct {
	pending  int64
	done     chan struct{}
	failures chan error
	cancel   context.CancelFunc
}

func newCompletionBarrier(expected int, cancel context.CancelFunc) *completionBarrier {
	return &completionBarrier{
		pending:  int64(expected),
		done:     make(chan struct{}),
		failures: make(chan error, expected),
		cancel:   cancel,
	}
}

// signalDone counts down one worker. The last worker releases await.
func (b *completionBarrier) signalDone() {
	if atomic.AddInt64(&b.pending, -1) == 0 {
		close(b.done)
	}
}

// fail records a worker failure. Only the first failure is reported to the
// orchestrator; later ones park in the buffered channel, which is sized so
// that a failing worker never blocks.
func (b *completionBarrier) fail(err error) {
	select {
	case b.failures <- err:
	default:
	}
}

// cancelAll requests cooperative cancellation of every worker that hasn't
// yet signalled done. Best-effort and asynchronous: it does not wait for
// workers to actually stop.
func (b *completionBarrier) cancelAll() {
	b.cancel()
}

// await blocks until all workers signalled done, a worker failed, or the
// deadline elapsed. Returns nil only when every worker finished cleanly.
func (b *completionBarrier) await(deadline time.Time) error {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-b.done:
	case err := <-b.failures:
		return err
	case <-timer.C:
		return core.ErrDeadlineExceeded
	}

	// All workers signalled, but the last ones may have failed right before
	// signalling.
	select {
	case err := <-b.failures:
		return err
	default:
		return nil
	}
}
