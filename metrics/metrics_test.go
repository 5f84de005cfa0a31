package metrics

import (
	"testing"
	"time"

	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReportQueryStats(t *testing.T) {
	sink := NewPrometheusSink()

	before := testutil.ToFloat64(queriesTotal.WithLabelValues("metricstest"))
	err := sink.ReportQueryStats("metricstest", &common.GlobalStats{
		NodesResponded: 3,
		DocsScanned:    42,
		MaxNodeTime:    250 * time.Millisecond,
		Exceptions:     []encoding.Exception{{Code: 1, Message: "boom"}},
	})
	assert.NoError(t, err)
	err = sink.ReportQueryStats("metricstest", &common.GlobalStats{
		NodesResponded: 1,
		DocsScanned:    8,
	})
	assert.NoError(t, err)

	assert.Equal(t, before+2, testutil.ToFloat64(queriesTotal.WithLabelValues("metricstest")))
	assert.Equal(t, float64(50), testutil.ToFloat64(docsScannedTotal.WithLabelValues("metricstest")))
	assert.Equal(t, float64(1), testutil.ToFloat64(exceptionsTotal.WithLabelValues("metricstest")))
}
