package rpc

import (
	"net"

	"google.golang.org/grpc"
)

// ServerOpts configures a node-side rpc server.
type ServerOpts struct {
	// MaxConcurrentStreams bounds in-flight execute streams per conn.
	// 0 uses the grpc default.
	MaxConcurrentStreams uint32
}

// Serve answers execute streams on the given listener until the listener
// closes. Conns are snappy-compressed to match what Dial sets up.
func Serve(l net.Listener, node Node, opts *ServerOpts) error {
	if opts == nil {
		opts = &ServerOpts{}
	}
	serverOpts := []grpc.ServerOption{grpc.CustomCodec(msgpackCodec)}
	if opts.MaxConcurrentStreams > 0 {
		serverOpts = append(serverOpts, grpc.MaxConcurrentStreams(opts.MaxConcurrentStreams))
	}
	gs := grpc.NewServer(serverOpts...)
	gs.RegisterService(&serviceDesc, node)
	log.Debugf("Serving node streams at %v", l.Addr())
	return gs.Serve(&snappyListener{l})
}
