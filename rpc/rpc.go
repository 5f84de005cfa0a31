// Package rpc carries block streams between backend nodes and the broker
// over grpc, with msgpack-encoded messages on snappy-compressed conns. The
// client side exposes each node's response stream as a gather.BlockSource.
package rpc

import (
	"context"

	"github.com/getlantern/golog"
	"google.golang.org/grpc"
)

var (
	log = golog.LoggerFor("gather.rpc")

	msgpackCodec = &MsgPackCodec{}
)

// Query is the request shipped to each node.
type Query struct {
	SQL   string
	Table string
	Trace bool
}

// BlockMessage wraps one wire-encoded block.
type BlockMessage struct {
	Payload []byte
}

// Node is the server-side handler: execute the query and stream encoded
// blocks back through send, finishing with a metadata-only block.
type Node interface {
	Execute(ctx context.Context, query *Query, send func(payload []byte) error) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "gather",
	HandlerType: (*Node)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "execute",
			Handler:       executeHandler,
			ServerStreams: true,
		},
	},
}

func executeHandler(srv interface{}, stream grpc.ServerStream) error {
	query := new(Query)
	if err := stream.RecvMsg(query); err != nil {
		return err
	}
	return srv.(Node).Execute(stream.Context(), query, func(payload []byte) error {
		return stream.SendMsg(&BlockMessage{Payload: payload})
	})
}
