package transport

import "github.com/KIKOU2016/openr/internal/wire"

// wireCodec implements google.golang.org/grpc/encoding.Codec on top of
// internal/wire's msgpack handle. It is not registered with grpc's codec
// registry; instead every call on this connection is forced through it
// with grpc.ForceServerCodec / grpc.ForceCodec — the
// documented escape hatch grpc-go itself ships for non-protobuf payloads.
type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	return wire.Marshal(v)
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	return wire.Unmarshal(data, v)
}

func (wireCodec) Name() string {
	return "kvwire"
}

// Codec is the shared codec instance used by both the server and client
// sides of the KvStoreService connection.
var Codec = wireCodec{}
