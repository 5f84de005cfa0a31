package core

import (
	"sort"

	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
)

// selectionReducer merges ordered selection results. Rows within one node's
// stream are already in order; the reducer merge-inserts whole blocks and
// keeps at most limit rows, so the partial result is a bounded top-K.
type selectionReducer struct {
	accumulatorState
	orderBy []common.OrderBy
	limit   int
	rows    []encoding.Row
}

func (r *selectionReducer) Init(rctx ReduceContext) {
}

func (r *selectionReducer) Reduce(node common.NodeID, block *encoding.Block) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if err := r.adoptSchema(node, block.Schema); err != nil {
		return err
	}

	r.rows = append(r.rows, block.Rows...)
	if len(r.orderBy) > 0 {
		sort.Stable(orderedRows{r.rows, r.orderBy, r.schema})
	}
	if r.limit > 0 && len(r.rows) > r.limit {
		r.rows = r.rows[:r.limit]
	}
	return nil
}

func (r *selectionReducer) Seal() (*common.Response, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sealed {
		return nil, ErrSealed
	}
	r.sealed = true
	return &common.Response{
		Schema: r.schema,
		Rows:   r.rows,
	}, nil
}

// orderedRows sorts rows by the given order-by columns, resolved by name
// against the schema.
type orderedRows struct {
	rows    []encoding.Row
	orderBy []common.OrderBy
	schema  *encoding.Schema
}

func (o orderedRows) Len() int { return len(o.rows) }

func (o orderedRows) Swap(i, j int) { o.rows[i], o.rows[j] = o.rows[j], o.rows[i] }

func (o orderedRows) Less(i, j int) bool {
	a, b := o.rows[i], o.rows[j]
	for _, ob := range o.orderBy {
		idx := o.schema.ColumnIndex(ob.Field)
		if idx < 0 || idx >= len(a) || idx >= len(b) {
			continue
		}
		result := compareValues(a[idx], b[idx])
		if ob.Descending {
			result = -result
		}
		if result < 0 {
			return true
		}
		if result > 0 {
			return false
		}
	}
	return false
}
