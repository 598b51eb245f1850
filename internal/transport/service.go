package transport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/KIKOU2016/openr/internal/wire"
)

// serviceName is the fully qualified gRPC service name, kept in the same
// "<pkg>.<Service>" shape protoc-gen-go-grpc would have produced.
const serviceName = "kvstore.v1.KvStoreService"

// KvStoreServer is implemented by whatever hosts the command dispatcher
// and peer-sync logic — internal/kvstore's Node (lifecycle.go), which
// routes Dispatch to its Dispatcher and serves FullSync/Monitor itself —
// covering the whole command table plus the two peer-facing RPCs.
type KvStoreServer interface {
	Dispatch(ctx context.Context, req *wire.Request) (*wire.Reply, error)
	FullSync(ctx context.Context, req *wire.FullSyncRequest) (*wire.FullSyncReply, error)
	Monitor(req *wire.Request, stream KvStoreService_MonitorServer) error
}

// KvStoreService_MonitorServer is the server side of the Monitor
// server-streaming RPC: one wire.Publication per Send call.
type KvStoreService_MonitorServer interface {
	Send(*wire.Publication) error
	grpc.ServerStream
}

type monitorServer struct {
	grpc.ServerStream
}

func (m *monitorServer) Send(pub *wire.Publication) error {
	return m.ServerStream.SendMsg(pub)
}

func dispatchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(wire.Request)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KvStoreServer).Dispatch(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Dispatch"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(KvStoreServer).Dispatch(ctx, req.(*wire.Request))
	}
	return interceptor(ctx, req, info, handler)
}

func fullSyncHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(wire.FullSyncRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KvStoreServer).FullSync(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/FullSync"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(KvStoreServer).FullSync(ctx, req.(*wire.FullSyncRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func monitorHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(wire.Request)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(KvStoreServer).Monitor(req, &monitorServer{ServerStream: stream})
}

// ServiceDesc is the hand-written equivalent of what
// protoc-gen-go-grpc would emit for KvStoreService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*KvStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
		{MethodName: "FullSync", Handler: fullSyncHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Monitor", Handler: monitorHandler, ServerStreams: true},
	},
	Metadata: "kvstore.proto",
}

// RegisterKvStoreServer registers srv on s using ServiceDesc.
func RegisterKvStoreServer(s *grpc.Server, srv KvStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is a hand-written stub for KvStoreService, the same role
// protoc-gen-go-grpc's generated client would play.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an established connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

// Dispatch issues a command-dispatcher RPC.
func (c *Client) Dispatch(ctx context.Context, req *wire.Request) (*wire.Reply, error) {
	reply := new(wire.Reply)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Dispatch", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// FullSync issues a three-way anti-entropy RPC.
func (c *Client) FullSync(ctx context.Context, req *wire.FullSyncRequest) (*wire.FullSyncReply, error) {
	reply := new(wire.FullSyncReply)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/FullSync", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// MonitorStream is the client side of the Monitor server-streaming RPC.
type MonitorStream struct {
	grpc.ClientStream
}

// Recv blocks for the next published batch.
func (m *MonitorStream) Recv() (*wire.Publication, error) {
	pub := new(wire.Publication)
	if err := m.ClientStream.RecvMsg(pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// Monitor opens a Monitor stream against the peer.
func (c *Client) Monitor(ctx context.Context, req *wire.Request) (*MonitorStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/Monitor")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &MonitorStream{ClientStream: stream}, nil
}
