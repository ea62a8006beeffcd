// Package rpc is the RPC Transmitter: it owns the gRPC connection to one
// server replica and turns protocol.Message frames into unary calls and
// bidirectional streams. The wire schema itself lives entirely in
// internal/protocol; this package only needs to move opaque byte frames
// across a gRPC channel, so it registers a pass-through codec instead of
// depending on any protoc-generated stubs.
package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// rawCodecName is registered as a gRPC content-subtype. Frames are already
// length-delimited by protocol.Message's own header, so the codec only
// needs to hand raw bytes through.
const rawCodecName = "typedb-raw"

// rawFrame is the Marshal/Unmarshal payload type the transport passes to
// grpc.ClientConn: pre-serialized protocol bytes (header + body).
type rawFrame struct {
	Bytes []byte
}

type rawCodec struct{}

func (rawCodec) Name() string { return rawCodecName }

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("rpc: rawCodec cannot marshal %T", v)
	}
	return f.Bytes, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("rpc: rawCodec cannot unmarshal into %T", v)
	}
	f.Bytes = append([]byte(nil), data...)
	return nil
}

func init() {
	encoding.RegisterCodec(rawCodec{})
}
