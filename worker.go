package gather

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/getlantern/errors"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/core"
	"github.com/getlantern/gather/encoding"
	"github.com/getlantern/gather/stats"
	"github.com/getlantern/mtime"
)

// nodeWorker pulls blocks from one node's stream strictly in order, decodes
// them and routes data blocks to the reducer and metadata blocks to the
// stats aggregator. It checks its cancellation token between pulls, closes
// its source on every exit path and signals the completion barrier exactly
// once.
type nodeWorker struct {
	node     common.NodeID
	source   BlockSource
	reducer  core.StreamingReducer
	stats    *stats.Aggregator
	barrier  *completionBarrier
	slots    chan struct{}
	blocks   int64
	finished int64
}

func (w *nodeWorker) run(ctx context.Context) {
	elapsed := mtime.Stopwatch()
	defer func() {
		if closeErr := w.source.Close(); closeErr != nil {
			log.Debugf("Unable to close stream from node %v: %v", w.node, closeErr)
		}
		w.barrier.signalDone()
	}()

	for {
		select {
		case <-ctx.Done():
			w.cancelled(ctx, elapsed())
			return
		default:
		}

		payload, err := w.source.Next()
		if err == io.EOF {
			atomic.StoreInt64(&w.finished, 1)
			w.stats.MarkResponded(w.node)
			log.Debugf("Node %v finished, %d blocks in %v", w.node, atomic.LoadInt64(&w.blocks), elapsed())
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				// The read failed because the call was cancelled or timed
				// out, not because the node misbehaved.
				w.cancelled(ctx, elapsed())
				return
			}
			w.barrier.fail(errors.New("unable to read block from node %v: %v", w.node, err))
			return
		}

		// Decoding and merging hold a reduce slot so that one query can't
		// saturate the shared pool with CPU work.
		w.slots <- struct{}{}
		err = w.process(payload)
		<-w.slots
		if err != nil {
			w.barrier.fail(err)
			return
		}
		atomic.AddInt64(&w.blocks, 1)
	}
}

func (w *nodeWorker) process(payload []byte) error {
	block, err := encoding.Decode(payload)
	if err != nil {
		return errors.New("unable to decode block from node %v: %v", w.node, err)
	}
	if block.IsData() {
		if err := w.reducer.Reduce(w.node, block); err != nil {
			return errors.New("unable to merge data block from node %v: %v", w.node, err)
		}
		return nil
	}
	if block.Stats != nil {
		if err := w.stats.Aggregate(w.node, block.Stats); err != nil {
			return errors.New("unable to merge metadata block from node %v: %v", w.node, err)
		}
	}
	return nil
}

// cancelled reports the cancellation to the barrier so that the orchestrator
// never seals over a partially read stream. A deadline-driven cancellation
// surfaces as ErrDeadlineExceeded so the whole call classifies as a timeout.
func (w *nodeWorker) cancelled(ctx context.Context, elapsed time.Duration) {
	log.Debugf("Worker for node %v cancelled after %d blocks in %v", w.node, atomic.LoadInt64(&w.blocks), elapsed)
	if ctx.Err() == context.DeadlineExceeded {
		w.barrier.fail(core.ErrDeadlineExceeded)
		return
	}
	w.barrier.fail(errors.New("worker for node %v cancelled: %v", w.node, ctx.Err()))
}
