package rpc

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/getlantern/errors"
	"github.com/getlantern/gather"
	"google.golang.org/grpc"
)

// ClientOpts configures a node client.
type ClientOpts struct {
	// DialTimeout bounds connection establishment. Defaults to 15 seconds.
	DialTimeout time.Duration
}

// Client talks to one backend node.
type Client interface {
	// Execute sends the query to the node and returns its response stream as
	// a lazy BlockSource. Closing the source aborts the underlying rpc,
	// which is how a cancelled worker releases the stream.
	Execute(ctx context.Context, query *Query, opts ...grpc.CallOption) (gather.BlockSource, error)

	Close() error
}

// Dial connects to the node at the given address.
func Dial(addr string, opts *ClientOpts) (Client, error) {
	if opts == nil {
		opts = &ClientOpts{}
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 15 * time.Second
	}
	conn, err := grpc.Dial(addr,
		grpc.WithInsecure(),
		grpc.WithCodec(msgpackCodec),
		grpc.WithDialer(snappyDialer(func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		})),
		grpc.WithBlock(),
		grpc.WithTimeout(opts.DialTimeout),
		grpc.WithBackoffMaxDelay(1*time.Minute))
	if err != nil {
		return nil, errors.New("unable to dial node at %v: %v", addr, err)
	}
	return &client{cc: conn}, nil
}

type client struct {
	cc *grpc.ClientConn
}

func (c *client) Execute(ctx context.Context, query *Query, opts ...grpc.CallOption) (gather.BlockSource, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := grpc.NewClientStream(streamCtx, &serviceDesc.Streams[0], c.cc, "/gather/execute", opts...)
	if err != nil {
		cancel()
		return nil, errors.New("unable to open execute stream: %v", err)
	}
	if err := stream.SendMsg(query); err != nil {
		cancel()
		return nil, errors.New("unable to send query: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, errors.New("unable to close send side: %v", err)
	}
	return &blockStream{stream: stream, cancel: cancel}, nil
}

func (c *client) Close() error {
	return c.cc.Close()
}

// blockStream adapts a grpc client stream to gather.BlockSource.
type blockStream struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

func (bs *blockStream) Next() ([]byte, error) {
	msg := &BlockMessage{}
	if err := bs.stream.RecvMsg(msg); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return msg.Payload, nil
}

func (bs *blockStream) Close() error {
	// Aborting the rpc unblocks any pending Recv and releases the stream.
	bs.cancel()
	return nil
}
