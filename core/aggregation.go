package core

import (
	"github.com/getlantern/errors"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
)

// aggregationReducer combines plain (ungrouped) aggregation results. Each
// node contributes rows of partial aggregate values, one column per
// aggregation function; the merge is an element-wise combine into a single
// output row.
type aggregationReducer struct {
	accumulatorState
	aggs   []common.Agg
	result encoding.Row
}

func (r *aggregationReducer) Init(rctx ReduceContext) {
}

func (r *aggregationReducer) Reduce(node common.NodeID, block *encoding.Block) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if err := r.adoptSchema(node, block.Schema); err != nil {
		return err
	}
	if len(block.Schema.Columns) != len(r.aggs) {
		return errors.New("block from node %v has %d columns, want %d aggregates", node, len(block.Schema.Columns), len(r.aggs))
	}

	for _, row := range block.Rows {
		if len(row) != len(r.aggs) {
			return errors.New("row from node %v has %d values, want %d", node, len(row), len(r.aggs))
		}
		if r.result == nil {
			r.result = make(encoding.Row, len(r.aggs))
		}
		for i, agg := range r.aggs {
			r.result[i] = combineValue(agg.Kind, r.result[i], row[i])
		}
	}
	return nil
}

func (r *aggregationReducer) Seal() (*common.Response, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sealed {
		return nil, ErrSealed
	}
	r.sealed = true
	var rows []encoding.Row
	if r.result != nil {
		rows = []encoding.Row{r.result}
	}
	return &common.Response{
		Schema: r.schema,
		Rows:   rows,
	}, nil
}
