// Package core implements the streaming reducers that fold per-node data
// blocks into a single query result. There is one reducer variant per query
// shape; all variants share the same capability set: Init once, Reduce
// concurrently from node workers, Seal exactly once at the end.
package core

import (
	"errors"
	"sync"
	"time"

	serrors "github.com/getlantern/errors"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
)

var (
	// ErrDeadlineExceeded indicates that the deadline for reducing has been
	// exceeded before all nodes reported.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrSealed indicates an attempt to reduce into an already sealed reducer.
	ErrSealed = errors.New("reducer already sealed")
)

// ReduceContext carries the merge configuration for one reduce call.
type ReduceContext struct {
	// MaxParallelism bounds how many node workers feed this reducer at once.
	MaxParallelism int
	// Deadline is the wall-clock deadline for the whole call.
	Deadline time.Time
	// TrimThreshold caps the cardinality of an in-progress group-by
	// accumulator. Rows beyond the threshold are dropped from the merge.
	TrimThreshold int
}

// StreamingReducer incrementally folds one node's ordered data blocks into a
// shared partial result and produces a final immutable response when sealed.
//
// Reduce is safe to invoke concurrently from different node workers. Blocks
// from a single node arrive in stream order because each node has exactly one
// worker. Seal must not be called before all Reduce invocations have
// completed, and Reduce must never be invoked after Seal.
type StreamingReducer interface {
	Init(rctx ReduceContext)

	Reduce(node common.NodeID, block *encoding.Block) error

	Seal() (*common.Response, error)
}

// ReducerFor selects the reducer variant for the given query shape. Selection
// is a pure function of the shape, resolved once per call.
func ReducerFor(shape common.QueryShape) (StreamingReducer, error) {
	switch shape.Kind {
	case common.Selection:
		return &selectionReducer{orderBy: shape.OrderBy, limit: shape.Limit}, nil
	case common.Aggregation:
		return &aggregationReducer{aggs: shape.Aggs}, nil
	case common.GroupBy:
		return &groupByReducer{
			groupKeys: shape.GroupKeys,
			aggs:      shape.Aggs,
			orderBy:   shape.OrderBy,
			limit:     shape.Limit,
		}, nil
	case common.Distinct:
		return &distinctReducer{limit: shape.Limit}, nil
	}
	return nil, serrors.New("no streaming reducer for query shape %v", shape.Kind)
}

// accumulatorState is the synchronization shared by all reducer variants: a
// single mutex guarding the partial result plus the sealed flag. Callers
// never lock the partial result themselves.
type accumulatorState struct {
	mx     sync.Mutex
	sealed bool
	schema *encoding.Schema
}

// adoptSchema records the first schema seen and rejects later blocks whose
// schema doesn't match it. Must be called with mx held.
func (a *accumulatorState) adoptSchema(node common.NodeID, schema *encoding.Schema) error {
	if a.schema == nil {
		a.schema = schema
		return nil
	}
	if !a.schema.Equals(schema) {
		return serrors.New("schema from node %v does not match schema of earlier blocks", node)
	}
	return nil
}
