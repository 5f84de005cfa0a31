package core

import (
	"sort"

	"github.com/getlantern/bytemap"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
)

// distinctReducer unions rows across nodes, dropping duplicates. The set is
// capped at the query limit; once full, later distinct rows are dropped.
type distinctReducer struct {
	accumulatorState
	limit int
	seen  map[string]encoding.Row
}

func (r *distinctReducer) Init(rctx ReduceContext) {
	r.seen = make(map[string]encoding.Row)
}

func (r *distinctReducer) Reduce(node common.NodeID, block *encoding.Block) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if err := r.adoptSchema(node, block.Schema); err != nil {
		return err
	}

	names := make([]string, len(block.Schema.Columns))
	for i, col := range block.Schema.Columns {
		names[i] = col.Name
	}
	for _, row := range block.Rows {
		if r.limit > 0 && len(r.seen) >= r.limit {
			return nil
		}
		key := string(bytemap.FromSortedKeysAndValues(names, row))
		if _, found := r.seen[key]; !found {
			copied := make(encoding.Row, len(row))
			copy(copied, row)
			r.seen[key] = copied
		}
	}
	return nil
}

func (r *distinctReducer) Seal() (*common.Response, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sealed {
		return nil, ErrSealed
	}
	r.sealed = true

	keys := make([]string, 0, len(r.seen))
	for key := range r.seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([]encoding.Row, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, r.seen[key])
	}
	return &common.Response{
		Schema: r.schema,
		Rows:   rows,
	}, nil
}
