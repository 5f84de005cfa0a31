// Package common holds the types shared between the reduce orchestrator, the
// streaming reducers and the stats aggregator: node identities, query shape
// descriptors and the final response.
package common

import (
	"strings"
	"time"

	"github.com/getlantern/gather/encoding"
)

// NodeID identifies one backend node within a single reduce call. It is used
// as a map key and as the attribution tag on stats and errors.
type NodeID string

func (n NodeID) String() string {
	return string(n)
}

// ShapeKind selects which streaming reducer handles a query.
type ShapeKind int

const (
	Selection ShapeKind = iota
	Aggregation
	GroupBy
	Distinct
)

func (k ShapeKind) String() string {
	switch k {
	case Selection:
		return "selection"
	case Aggregation:
		return "aggregation"
	case GroupBy:
		return "groupby"
	case Distinct:
		return "distinct"
	}
	return "unknown"
}

// OrderBy specifies a column by which to order results.
type OrderBy struct {
	Field      string
	Descending bool
}

func NewOrderBy(field string, descending bool) OrderBy {
	return OrderBy{
		Field:      field,
		Descending: descending,
	}
}

func (o OrderBy) String() string {
	ascending := "asc"
	if o.Descending {
		ascending = "desc"
	}
	return o.Field + "(" + ascending + ")"
}

// AggKind identifies an aggregation function.
type AggKind int

const (
	Sum AggKind = iota
	Count
	Min
	Max
)

func (k AggKind) String() string {
	switch k {
	case Sum:
		return "sum"
	case Count:
		return "count"
	case Min:
		return "min"
	case Max:
		return "max"
	}
	return "unknown"
}

// Agg is a named aggregation over one column.
type Agg struct {
	Kind   AggKind
	Column string
}

// QueryShape describes how a query's partial results merge: which reducer
// variant to use and the parameters that variant needs. It is derived
// externally from the original query request.
type QueryShape struct {
	Kind          ShapeKind
	OrderBy       []OrderBy
	Limit         int
	GroupKeys     []string
	Aggs          []Agg
	TrimThreshold int
	Trace         bool
}

// Query is the broker-side descriptor for one reduce call.
type Query struct {
	Table   string
	Shape   QueryShape
	Aliases map[string]string
}

// GlobalStats is the merged execution metadata across all nodes that
// participated in a query.
type GlobalStats struct {
	NodesResponded           int
	DocsScanned              int64
	EntriesScannedInFilter   int64
	EntriesScannedPostFilter int64
	SegmentsQueried          int64
	SegmentsProcessed        int64
	SegmentsMatched          int64
	TotalDocs                int64
	MaxNodeTime              time.Duration
	Exceptions               []encoding.Exception
	TraceInfo                map[string]string
}

// Response is the immutable output of a reduce call.
type Response struct {
	Schema     *encoding.Schema
	Rows       []encoding.Row
	Stats      *GlobalStats
	Exceptions []encoding.Exception
}

// EmptyResponse is the canonical response for a query that touched no nodes.
func EmptyResponse() *Response {
	return &Response{
		Stats: &GlobalStats{},
	}
}

// rawTableNameSuffixes are the table type suffixes appended by the routing
// layer. Stats are always attributed to the raw table name.
var rawTableNameSuffixes = []string{"_OFFLINE", "_REALTIME"}

// ExtractRawTableName strips the table type suffix, if any.
func ExtractRawTableName(table string) string {
	for _, suffix := range rawTableNameSuffixes {
		if strings.HasSuffix(table, suffix) {
			return strings.TrimSuffix(table, suffix)
		}
	}
	return table
}

// ApplyAliases rewrites response column names according to the query's alias
// map. It is stateless and leaves unaliased columns untouched.
func ApplyAliases(aliases map[string]string, resp *Response) {
	if len(aliases) == 0 || resp.Schema == nil {
		return
	}
	for i, col := range resp.Schema.Columns {
		if alias, found := aliases[col.Name]; found {
			resp.Schema.Columns[i].Name = alias
		}
	}
}
