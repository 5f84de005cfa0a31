package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/getlantern/gather"
	"github.com/getlantern/gather/common"
	"github.com/getlantern/gather/encoding"
	"github.com/stretchr/testify/assert"
)

func TestExecuteAndReduce(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	if !assert.NoError(t, err) {
		return
	}
	defer l.Close()

	go func() {
		serveErr := Serve(l, &mockNode{}, nil)
		if serveErr != nil {
			log.Debugf("Server stopped: %v", serveErr)
		}
	}()
	time.Sleep(1 * time.Second)

	client, err := Dial(l.Addr().String(), nil)
	if !assert.NoError(t, err) {
		return
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	source, err := client.Execute(ctx, &Query{SQL: "select dim, val from mytable", Table: "mytable"})
	if !assert.NoError(t, err) {
		return
	}

	svc, err := gather.NewReduceService(nil)
	if !assert.NoError(t, err) {
		return
	}
	defer svc.Shutdown()

	response, err := svc.Reduce(ctx, &common.Query{
		Table: "mytable",
		Shape: common.QueryShape{Kind: common.Selection},
	}, map[common.NodeID]gather.BlockSource{"node-a": source})
	if !assert.NoError(t, err) {
		return
	}
	assert.Len(t, response.Rows, 4)
	assert.Equal(t, 1, response.Stats.NodesResponded)
	assert.EqualValues(t, 42, response.Stats.DocsScanned)
}

type mockNode struct {
}

func (n *mockNode) Execute(ctx context.Context, query *Query, send func(payload []byte) error) error {
	schema := &encoding.Schema{Columns: []encoding.Column{
		{Name: "dim", Type: "string"},
		{Name: "val", Type: "double"},
	}}
	blocks := []*encoding.Block{
		{Schema: schema, Rows: []encoding.Row{{"a", float64(1)}, {"b", float64(2)}}},
		{Schema: schema, Rows: []encoding.Row{{"c", float64(3)}, {"d", float64(4)}}},
		{Stats: &encoding.Stats{DocsScanned: 42}},
	}
	for _, block := range blocks {
		payload, err := encoding.Encode(block)
		if err != nil {
			return err
		}
		if err := send(payload); err != nil {
			return err
		}
	}
	return nil
}
