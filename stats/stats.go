// Package stats accumulates per-node execution metadata into one global
// statistics record for a query. The merge is commutative and associative,
// so the final record is independent of which node's worker reported first.
package stats

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/errors"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
	"github.com/getlantern/golog"
)

var (
	log = golog.LoggerFor("gather.stats")
)

// Sink receives finalized per-table stats, typically to feed a metrics
// system. Implementations must tolerate concurrent calls from unrelated
// queries.
type Sink interface {
	ReportQueryStats(table string, stats *common.GlobalStats) error
}

// Aggregator merges metadata blocks from node workers. Safe for concurrent
// use by multiple workers. Create one per reduce call.
type Aggregator struct {
	mx        sync.Mutex
	trace     bool
	finalized bool
	responded map[common.NodeID]bool
	merged    common.GlobalStats
}

// NewAggregator creates an empty Aggregator. When trace is set, per-node
// trace info is collected into the final stats.
func NewAggregator(trace bool) *Aggregator {
	return &Aggregator{
		trace:     trace,
		responded: make(map[common.NodeID]bool),
	}
}

// Aggregate folds one node's metadata block into the global stats.
func (a *Aggregator) Aggregate(node common.NodeID, st *encoding.Stats) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.finalized {
		return errors.New("unable to aggregate stats from node %v: already finalized", node)
	}

	a.markResponded(node)
	a.merged.DocsScanned += st.DocsScanned
	a.merged.EntriesScannedInFilter += st.EntriesScannedInFilter
	a.merged.EntriesScannedPostFilter += st.EntriesScannedPostFilter
	a.merged.SegmentsQueried += st.SegmentsQueried
	a.merged.SegmentsProcessed += st.SegmentsProcessed
	a.merged.SegmentsMatched += st.SegmentsMatched
	a.merged.TotalDocs += st.TotalDocs
	if st.TimeUsed > a.merged.MaxNodeTime {
		a.merged.MaxNodeTime = st.TimeUsed
	}
	a.merged.Exceptions = append(a.merged.Exceptions, st.Exceptions...)
	if a.trace && len(st.TraceInfo) > 0 {
		if a.merged.TraceInfo == nil {
			a.merged.TraceInfo = make(map[string]string)
		}
		for key, info := range st.TraceInfo {
			a.merged.TraceInfo[fmt.Sprintf("%v.%v", node, key)] = info
		}
	}
	return nil
}

// MarkResponded records that a node's stream completed, whether or not it
// shipped a metadata block. Counting nodes this way keeps NodesResponded
// accurate for queries whose nodes send data blocks only.
func (a *Aggregator) MarkResponded(node common.NodeID) {
	a.mx.Lock()
	a.markResponded(node)
	a.mx.Unlock()
}

func (a *Aggregator) markResponded(node common.NodeID) {
	if !a.responded[node] {
		a.responded[node] = true
		a.merged.NodesResponded++
	}
}

// Finalize seals the aggregator and returns the merged stats attributed to
// the given table. If sink is non-nil the stats are reported to it; a sink
// failure is logged and never fails the query.
func (a *Aggregator) Finalize(table string, sink Sink) *common.GlobalStats {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.finalized = true

	merged := a.merged
	log.Debugf("table %v: %v nodes responded, %v docs scanned, %v entries in filter, %v entries post filter, slowest node took %v",
		table,
		merged.NodesResponded,
		humanize.Comma(merged.DocsScanned),
		humanize.Comma(merged.EntriesScannedInFilter),
		humanize.Comma(merged.EntriesScannedPostFilter),
		merged.MaxNodeTime)
	if sink != nil {
		if err := sink.ReportQueryStats(table, &merged); err != nil {
			log.Errorf("Unable to report stats for table %v: %v", table, err)
		}
	}
	return &merged
}
