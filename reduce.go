package gather

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/errors"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/core"
	"github.com/getlantern/gather/stats"
	"github.com/getlantern/mtime"
)

// Reduce merges the given per-node block streams into a single response for
// the query. It launches one worker per node on the shared pool, blocks
// until all of them finish or the deadline elapses, then seals the reducer
// and folds in the merged stats.
//
// Any node failure or a timeout fails the whole call: remaining workers are
// cancelled best-effort and everything already merged is discarded. There is
// no partial-success mode and no retry.
func (s *ReduceService) Reduce(ctx context.Context, query *common.Query, streams map[common.NodeID]BlockSource) (*common.Response, error) {
	if len(streams) == 0 {
		return common.EmptyResponse(), nil
	}

	elapsed := mtime.Stopwatch()
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(s.opts.Timeout)
	}

	reducer, err := core.ReducerFor(query.Shape)
	if err != nil {
		closeAll(streams)
		return nil, err
	}
	trim := query.Shape.TrimThreshold
	if trim <= 0 {
		trim = s.opts.TrimThreshold
	}
	reducer.Init(core.ReduceContext{
		MaxParallelism: s.opts.MaxReduceParallelism,
		Deadline:       deadline,
		TrimThreshold:  trim,
	})
	aggregator := stats.NewAggregator(query.Shape.Trace)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Service shutdown aborts in-flight calls.
		select {
		case <-s.closed:
			cancel()
		case <-workerCtx.Done():
		}
	}()

	barrier := newCompletionBarrier(len(streams), cancel)
	slots := make(chan struct{}, s.opts.MaxReduceParallelism)
	workers := make([]*nodeWorker, 0, len(streams))
	for node, source := range streams {
		worker := &nodeWorker{
			node:    node,
			source:  source,
			reducer: reducer,
			stats:   aggregator,
			barrier: barrier,
			slots:   slots,
		}
		workers = append(workers, worker)
		if submitErr := s.pool.Submit(func() { worker.run(workerCtx) }); submitErr != nil {
			// The worker never ran, so close and count down on its behalf.
			if closeErr := worker.source.Close(); closeErr != nil {
				log.Debugf("Unable to close stream from node %v: %v", worker.node, closeErr)
			}
			barrier.fail(errors.New("unable to launch worker for node %v: %v", worker.node, submitErr))
			barrier.signalDone()
		}
	}
	log.Debugf("Reducing %v streams for table %v, deadline %v (T - %v)", len(streams), query.Table, deadline, time.Until(deadline))

	if awaitErr := barrier.await(deadline); awaitErr != nil {
		barrier.cancelAll()
		if awaitErr == core.ErrDeadlineExceeded {
			s.logMissingNodes(query.Table, workers)
		} else {
			log.Errorf("Reduce for table %v failed: %v", query.Table, awaitErr)
		}
		return nil, awaitErr
	}

	response, sealErr := reducer.Seal()
	if sealErr != nil {
		return nil, errors.New("unable to seal reduced result for table %v: %v", query.Table, sealErr)
	}
	response.Stats = aggregator.Finalize(common.ExtractRawTableName(query.Table), s.opts.Sink)
	response.Exceptions = response.Stats.Exceptions
	common.ApplyAliases(query.Aliases, response)
	log.Debugf("Reduced %v rows from %v nodes for table %v in %v", humanize.Comma(int64(len(response.Rows))), len(streams), query.Table, elapsed())
	return response, nil
}

func (s *ReduceService) logMissingNodes(table string, workers []*nodeWorker) {
	finished := 0
	msg := bytes.NewBuffer([]byte("Missing nodes: "))
	first := true
	for _, worker := range workers {
		if atomic.LoadInt64(&worker.finished) == 1 {
			finished++
			continue
		}
		if !first {
			msg.WriteString(" | ")
		}
		first = false
		fmt.Fprintf(msg, "%v (%d blocks)", worker.node, atomic.LoadInt64(&worker.blocks))
	}
	log.Errorf("Failed to reduce table %v by deadline, %d of %d nodes reporting", table, finished, len(workers))
	log.Debug(msg.String())
}

func closeAll(streams map[common.NodeID]BlockSource) {
	for node, source := range streams {
		if err := source.Close(); err != nil {
			log.Debugf("Unable to close stream from node %v: %v", node, err)
		}
	}
}
