package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/getlantern/errors"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
	"github.com/stretchr/testify/assert"
)

func nodeStats(docs int64, timeUsed time.Duration) *encoding.Stats {
	return &encoding.Stats{
		DocsScanned:              docs,
		EntriesScannedInFilter:   docs * 2,
		EntriesScannedPostFilter: docs / 2,
		SegmentsQueried:          4,
		TotalDocs:                docs * 10,
		TimeUsed:                 timeUsed,
	}
}

func TestAggregateCommutative(t *testing.T) {
	inputs := map[common.NodeID]*encoding.Stats{
		"node-a": nodeStats(100, 10*time.Millisecond),
		"node-b": nodeStats(250, 30*time.Millisecond),
		"node-c": nodeStats(75, 20*time.Millisecond),
	}

	forwards := NewAggregator(false)
	for _, node := range []common.NodeID{"node-a", "node-b", "node-c"} {
		assert.NoError(t, forwards.Aggregate(node, inputs[node]))
	}
	backwards := NewAggregator(false)
	for _, node := range []common.NodeID{"node-c", "node-b", "node-a"} {
		assert.NoError(t, backwards.Aggregate(node, inputs[node]))
	}

	a := forwards.Finalize("mytable", nil)
	b := backwards.Finalize("mytable", nil)
	assert.Equal(t, a, b)
	assert.Equal(t, 3, a.NodesResponded)
	assert.EqualValues(t, 425, a.DocsScanned)
	assert.EqualValues(t, 850, a.EntriesScannedInFilter)
	assert.EqualValues(t, 12, a.SegmentsQueried)
	assert.Equal(t, 30*time.Millisecond, a.MaxNodeTime)
}

func TestAggregateConcurrent(t *testing.T) {
	aggregator := NewAggregator(false)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		node := common.NodeID(string(rune('a' + i)))
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				aggregator.Aggregate(node, &encoding.Stats{DocsScanned: 1})
			}
		}()
	}
	wg.Wait()
	merged := aggregator.Finalize("mytable", nil)
	assert.EqualValues(t, 1000, merged.DocsScanned)
	assert.Equal(t, 10, merged.NodesResponded)
}

func TestMarkResponded(t *testing.T) {
	aggregator := NewAggregator(false)
	aggregator.MarkResponded("node-a")
	aggregator.MarkResponded("node-a")
	assert.NoError(t, aggregator.Aggregate("node-b", &encoding.Stats{}))
	merged := aggregator.Finalize("mytable", nil)
	assert.Equal(t, 2, merged.NodesResponded)
}

func TestAggregateAfterFinalize(t *testing.T) {
	aggregator := NewAggregator(false)
	aggregator.Finalize("mytable", nil)
	assert.Error(t, aggregator.Aggregate("node-a", &encoding.Stats{DocsScanned: 1}))
}

func TestExceptions(t *testing.T) {
	aggregator := NewAggregator(false)
	assert.NoError(t, aggregator.Aggregate("node-a", &encoding.Stats{
		Exceptions: []encoding.Exception{{Code: 250, Message: "segment unavailable"}},
	}))
	merged := aggregator.Finalize("mytable", nil)
	if assert.Len(t, merged.Exceptions, 1) {
		assert.Equal(t, 250, merged.Exceptions[0].Code)
	}
}

func TestTrace(t *testing.T) {
	traced := NewAggregator(true)
	assert.NoError(t, traced.Aggregate("node-a", &encoding.Stats{
		TraceInfo: map[string]string{"filter": "12ms"},
	}))
	merged := traced.Finalize("mytable", nil)
	assert.Equal(t, map[string]string{"node-a.filter": "12ms"}, merged.TraceInfo)

	untraced := NewAggregator(false)
	assert.NoError(t, untraced.Aggregate("node-a", &encoding.Stats{
		TraceInfo: map[string]string{"filter": "12ms"},
	}))
	assert.Nil(t, untraced.Finalize("mytable", nil).TraceInfo)
}

type capturingSink struct {
	mx     sync.Mutex
	tables []string
	err    error
}

func (s *capturingSink) ReportQueryStats(table string, stats *common.GlobalStats) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.tables = append(s.tables, table)
	return s.err
}

func TestSinkReporting(t *testing.T) {
	sink := &capturingSink{}
	aggregator := NewAggregator(false)
	aggregator.Finalize("mytable", sink)
	assert.Equal(t, []string{"mytable"}, sink.tables)
}

func TestSinkFailureIgnored(t *testing.T) {
	sink := &capturingSink{err: errors.New("sink down")}
	aggregator := NewAggregator(false)
	assert.NoError(t, aggregator.Aggregate("node-a", &encoding.Stats{DocsScanned: 9}))
	merged := aggregator.Finalize("mytable", sink)
	assert.EqualValues(t, 9, merged.DocsScanned)
}
