// Package gather implements the streaming scatter-gather reduce phase of a
// distributed query broker: it merges partial result streams arriving
// concurrently from many backend nodes into a single response, under a hard
// wall-clock deadline, failing fast on any node error or timeout.
package gather

import (
	"time"

	"github.com/getlantern/errors"
	"github.com/getlantern/gather/stats"
	"github.com/getlantern/golog"
	"github.com/panjf2000/ants/v2"
)

const (
	// DefaultTimeout is the reduce deadline applied when the caller's context
	// carries none.
	DefaultTimeout = 10 * time.Second

	// DefaultPoolSize bounds the shared worker pool.
	DefaultPoolSize = 1024

	// DefaultTrimThreshold caps group-by cardinality during merge.
	DefaultTrimThreshold = 1000000

	// DefaultMaxReduceParallelism bounds how many node streams fold into the
	// accumulator concurrently within one call.
	DefaultMaxReduceParallelism = 8
)

var (
	log = golog.LoggerFor("gather")
)

// BlockSource is a lazy, finite, non-restartable sequence of wire-encoded
// blocks from one backend node. Pulling the next block may involve I/O owned
// by the transport.
type BlockSource interface {
	// Next returns the next encoded block payload, or io.EOF once the stream
	// is exhausted.
	Next() ([]byte, error)

	// Close releases the underlying stream. It is called exactly once on
	// every exit path of the worker that owns this source.
	Close() error
}

// Opts configures a ReduceService.
type Opts struct {
	// PoolSize bounds the shared worker pool. The pool is shared across all
	// concurrent reduce calls on this service.
	PoolSize int

	// Timeout is the default per-call deadline, used when the caller's
	// context has none.
	Timeout time.Duration

	// TrimThreshold caps group-by cardinality during merge, unless the query
	// shape specifies its own.
	TrimThreshold int

	// MaxReduceParallelism bounds how many node workers decode and merge
	// blocks concurrently within a single call. Workers beyond the bound
	// still pull from their streams; they just queue for a merge slot.
	MaxReduceParallelism int

	// Sink, if set, receives finalized per-table stats. Sink failures are
	// logged and never fail a query.
	Sink stats.Sink
}

func (o *Opts) withDefaults() *Opts {
	result := &Opts{}
	if o != nil {
		*result = *o
	}
	if result.PoolSize <= 0 {
		result.PoolSize = DefaultPoolSize
	}
	if result.Timeout <= 0 {
		result.Timeout = DefaultTimeout
	}
	if result.TrimThreshold <= 0 {
		result.TrimThreshold = DefaultTrimThreshold
	}
	if result.MaxReduceParallelism <= 0 {
		result.MaxReduceParallelism = DefaultMaxReduceParallelism
	}
	return result
}

// ReduceService merges streaming node responses into query results. One
// service is shared process-wide; each Reduce call gets its own reducer,
// stats aggregator and completion barrier, but all calls share the worker
// pool.
type ReduceService struct {
	opts   *Opts
	pool   *ants.Pool
	closed chan struct{}
}

// NewReduceService creates a ReduceService with its shared worker pool.
func NewReduceService(opts *Opts) (*ReduceService, error) {
	opts = opts.withDefaults()
	pool, err := ants.NewPool(opts.PoolSize, ants.WithPanicHandler(func(p interface{}) {
		log.Errorf("Panic in node stream worker: %v", p)
	}))
	if err != nil {
		return nil, errors.New("unable to create worker pool: %v", err)
	}
	return &ReduceService{
		opts:   opts,
		pool:   pool,
		closed: make(chan struct{}),
	}, nil
}

// Shutdown immediately cancels all in-flight work and releases the shared
// worker pool. It is meant for process teardown, not per-call use. Calls
// racing with Shutdown fail with a cancellation error.
func (s *ReduceService) Shutdown() {
	close(s.closed)
	s.pool.Release()
}
