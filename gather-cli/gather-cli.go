package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/gather"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/metrics"
	"github.com/getlantern/gather/rpc"
	"github.com/getlantern/golog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vharitonsky/iniflags"
	"golang.org/x/net/context"
)

var (
	log = golog.LoggerFor("gather-cli")

	nodes        = flag.String("nodes", "", "Comma-delimited addresses of the backend nodes to query")
	sql          = flag.String("sql", "", "The query to ship to each node")
	table        = flag.String("table", "", "The table being queried, used for stats attribution")
	kind         = flag.String("kind", "selection", "Query shape: selection, aggregation, groupby or distinct")
	orderBy      = flag.String("orderby", "", "Comma-delimited order-by columns, each optionally suffixed with :desc")
	limit        = flag.Int("limit", 0, "Maximum number of result rows, 0 for unlimited")
	groupKeys    = flag.String("groupkeys", "", "Comma-delimited group-by key columns (groupby shape only)")
	aggs         = flag.String("aggs", "", "Comma-delimited aggregations in kind:column form, e.g. sum:clicks,max:latency")
	trim         = flag.Int("trim", 0, "Group-by trim threshold, 0 for the service default")
	trace        = flag.Bool("trace", false, "Collect per-node trace info into the response stats")
	timeout      = flag.Duration("timeout", 10*time.Second, "Reduce deadline")
	poolSize     = flag.Int("poolsize", gather.DefaultPoolSize, "Size of the shared worker pool")
	maxParallel  = flag.Int("maxparallel", gather.DefaultMaxReduceParallelism, "Bound on per-query reduce parallelism")
	metricsAddr  = flag.String("metricsaddr", "", "If specified, serve prometheus metrics at this address")
	showStats    = flag.Bool("querystats", false, "Set this to show query stats after the result")
)

func main() {
	iniflags.Parse()

	if *nodes == "" || *sql == "" {
		log.Fatal("Both -nodes and -sql are required")
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Errorf("Unable to serve metrics at %v: %v", *metricsAddr, err)
			}
		}()
	}

	svc, err := gather.NewReduceService(&gather.Opts{
		PoolSize:             *poolSize,
		Timeout:              *timeout,
		TrimThreshold:        *trim,
		MaxReduceParallelism: *maxParallel,
		Sink:                 metrics.NewPrometheusSink(),
	})
	if err != nil {
		log.Fatalf("Unable to create reduce service: %v", err)
	}
	defer svc.Shutdown()

	query := &common.Query{
		Table: *table,
		Shape: shapeFromFlags(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	streams := make(map[common.NodeID]gather.BlockSource)
	for _, addr := range strings.Split(*nodes, ",") {
		addr = strings.TrimSpace(addr)
		client, dialErr := rpc.Dial(addr, nil)
		if dialErr != nil {
			log.Fatalf("Unable to dial node at %v: %v", addr, dialErr)
		}
		defer client.Close()
		source, execErr := client.Execute(ctx, &rpc.Query{SQL: *sql, Table: *table, Trace: *trace})
		if execErr != nil {
			log.Fatalf("Unable to execute on node at %v: %v", addr, execErr)
		}
		streams[common.NodeID(addr)] = source
	}

	elapsed := time.Now()
	response, err := svc.Reduce(ctx, query, streams)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	printResponse(response, time.Since(elapsed))
}

func shapeFromFlags() common.QueryShape {
	shape := common.QueryShape{
		Limit:         *limit,
		TrimThreshold: *trim,
		Trace:         *trace,
	}
	switch strings.ToLower(*kind) {
	case "selection":
		shape.Kind = common.Selection
	case "aggregation":
		shape.Kind = common.Aggregation
	case "groupby":
		shape.Kind = common.GroupBy
	case "distinct":
		shape.Kind = common.Distinct
	default:
		log.Fatalf("Unknown query kind %v", *kind)
	}
	for _, col := range splitNonEmpty(*orderBy) {
		descending := strings.HasSuffix(col, ":desc")
		shape.OrderBy = append(shape.OrderBy, common.NewOrderBy(strings.TrimSuffix(col, ":desc"), descending))
	}
	shape.GroupKeys = splitNonEmpty(*groupKeys)
	for _, spec := range splitNonEmpty(*aggs) {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			log.Fatalf("Malformed aggregation %v, want kind:column", spec)
		}
		var aggKind common.AggKind
		switch parts[0] {
		case "sum":
			aggKind = common.Sum
		case "count":
			aggKind = common.Count
		case "min":
			aggKind = common.Min
		case "max":
			aggKind = common.Max
		default:
			log.Fatalf("Unknown aggregation kind %v", parts[0])
		}
		shape.Aggs = append(shape.Aggs, common.Agg{Kind: aggKind, Column: parts[1]})
	}
	return shape
}

func splitNonEmpty(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func printResponse(response *common.Response, took time.Duration) {
	w := csv.NewWriter(os.Stdout)
	if response.Schema != nil {
		header := make([]string, 0, len(response.Schema.Columns))
		for _, col := range response.Schema.Columns {
			header = append(header, col.Name)
		}
		w.Write(header)
	}
	for _, row := range response.Rows {
		record := make([]string, 0, len(row))
		for _, val := range row {
			record = append(record, valueString(val))
		}
		w.Write(record)
	}
	w.Flush()

	for _, exception := range response.Exceptions {
		fmt.Fprintf(os.Stderr, "node exception %d: %v\n", exception.Code, exception.Message)
	}
	if *showStats {
		fmt.Fprintf(os.Stderr, "%v rows in %v, %v nodes responded, %v docs scanned, slowest node took %v\n",
			humanize.Comma(int64(len(response.Rows))),
			took,
			response.Stats.NodesResponded,
			humanize.Comma(response.Stats.DocsScanned),
			response.Stats.MaxNodeTime)
		for key, info := range response.Stats.TraceInfo {
			fmt.Fprintf(os.Stderr, "trace %v: %v\n", key, info)
		}
	}
}

func valueString(val interface{}) string {
	switch v := val.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
