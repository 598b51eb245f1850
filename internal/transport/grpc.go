package transport

import (
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens a client connection to a peer's command socket, forcing the
// same msgpack Codec the server side uses.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec)),
	)
}

// GRPC owns the listening socket and grpc.Server for one node's command
// + peer-sync surface, registering KvStoreServer and forcing every call
// through the msgpack Codec instead of protobuf.
type GRPC struct {
	addr   string
	srv    *grpc.Server
	lis    net.Listener
	nodeID string
}

func (g *GRPC) setupTCP() (net.Listener, error) {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return lis, nil
}

// Start binds the listener synchronously (surfacing bind errors like
// "address already in use" immediately) and then serves in a background
// goroutine.
func (g *GRPC) Start() error {
	lis, err := g.setupTCP()
	if err != nil {
		return fmt.Errorf("failed to setup TCP: %w", err)
	}
	g.lis = lis

	go func() {
		_ = g.srv.Serve(g.lis)
	}()
	return nil
}

// Stop gracefully stops the server.
func (g *GRPC) Stop() error {
	if g.srv != nil {
		g.srv.GracefulStop()
	}
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (g *GRPC) Addr() string {
	if g.lis != nil {
		return g.lis.Addr().String()
	}
	return g.addr
}

// NewGRPC builds a server hosting srv's KvStoreService implementation.
func NewGRPC(addr string, nodeID string, srv KvStoreServer) (*GRPC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}
	if nodeID == "" {
		return nil, fmt.Errorf("nodeID must be provided")
	}

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(Codec))
	RegisterKvStoreServer(grpcServer, srv)

	return &GRPC{
		addr:   addr,
		srv:    grpcServer,
		nodeID: nodeID,
	}, nil
}
