package core

import (
	"sort"

	"github.com/getlantern/bytemap"
	"github.com/getlantern/errors"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
)

// groupByReducer combines rows by group key. The first len(groupKeys) columns
// of each row are the key, the remaining columns are partial aggregates that
// combine per the shape's aggregation functions.
//
// The accumulator's cardinality is capped at the trim threshold to bound
// memory. Once at capacity, a new key only enters by displacing the group
// with the lowest leading aggregate; ties displace the lexicographically
// greatest key. Existing groups always keep combining.
type groupByReducer struct {
	accumulatorState
	groupKeys []string
	aggs      []common.Agg
	orderBy   []common.OrderBy
	limit     int
	trim      int
	groups    map[string]encoding.Row
}

func (r *groupByReducer) Init(rctx ReduceContext) {
	r.trim = rctx.TrimThreshold
	r.groups = make(map[string]encoding.Row)
}

func (r *groupByReducer) Reduce(node common.NodeID, block *encoding.Block) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if err := r.adoptSchema(node, block.Schema); err != nil {
		return err
	}
	if len(block.Schema.Columns) != len(r.groupKeys)+len(r.aggs) {
		return errors.New("block from node %v has %d columns, want %d group keys + %d aggregates",
			node, len(block.Schema.Columns), len(r.groupKeys), len(r.aggs))
	}

	for _, row := range block.Rows {
		if len(row) != len(r.groupKeys)+len(r.aggs) {
			return errors.New("row from node %v has %d values, want %d", node, len(row), len(r.groupKeys)+len(r.aggs))
		}
		r.fold(r.groupKey(row), row)
	}
	return nil
}

// groupKey builds the canonical key for a row from its leading columns.
func (r *groupByReducer) groupKey(row encoding.Row) string {
	values := make([]interface{}, len(r.groupKeys))
	copy(values, row[:len(r.groupKeys)])
	return string(bytemap.FromSortedKeysAndValues(r.groupKeys, values))
}

func (r *groupByReducer) fold(key string, row encoding.Row) {
	existing, found := r.groups[key]
	if found {
		for i, agg := range r.aggs {
			idx := len(r.groupKeys) + i
			existing[idx] = combineValue(agg.Kind, existing[idx], row[idx])
		}
		return
	}

	if r.trim > 0 && len(r.groups) >= r.trim {
		evictKey, evictRow := r.weakestGroup()
		if !r.outranks(row, evictRow, key, evictKey) {
			// Trimmed: key never enters the merge.
			return
		}
		delete(r.groups, evictKey)
	}

	copied := make(encoding.Row, len(row))
	copy(copied, row)
	r.groups[key] = copied
}

// weakestGroup finds the group that would be displaced first: lowest leading
// aggregate, ties broken towards the greatest key.
func (r *groupByReducer) weakestGroup() (string, encoding.Row) {
	var weakestKey string
	var weakest encoding.Row
	for key, row := range r.groups {
		if weakest == nil || r.outranks(weakest, row, weakestKey, key) {
			weakestKey, weakest = key, row
		}
	}
	return weakestKey, weakest
}

// outranks reports whether group a beats group b under the retention rule:
// higher leading aggregate wins, equal aggregates keep the smaller key.
func (r *groupByReducer) outranks(a encoding.Row, b encoding.Row, aKey string, bKey string) bool {
	idx := len(r.groupKeys)
	result := compareValues(a[idx], b[idx])
	if result != 0 {
		return result > 0
	}
	return aKey < bKey
}

func (r *groupByReducer) Seal() (*common.Response, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sealed {
		return nil, ErrSealed
	}
	r.sealed = true

	keys := make([]string, 0, len(r.groups))
	for key := range r.groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([]encoding.Row, 0, len(r.groups))
	for _, key := range keys {
		rows = append(rows, r.groups[key])
	}
	if len(r.orderBy) > 0 {
		sort.Stable(orderedRows{rows, r.orderBy, r.schema})
	}
	if r.limit > 0 && len(rows) > r.limit {
		rows = rows[:r.limit]
	}
	return &common.Response{
		Schema: r.schema,
		Rows:   rows,
	}, nil
}
