package rpc

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
	"github.com/typedb/typedb-driver-sub001/logging"
)

const (
	unaryMethod  = "/typedb.driver.v1.Core/Call"
	streamMethod = "/typedb.driver.v1.Core/Stream"
)

var streamDesc = grpc.StreamDesc{
	StreamName:    "Stream",
	ServerStreams: true,
	ClientStreams: true,
}

// Transmitter (C2) owns one gRPC channel to a single server replica. It
// knows nothing about request correlation or transaction semantics -- that
// is internal/txn's job -- it only moves protocol.Message bytes across the
// wire as unary calls or as one bidirectional stream per transaction.
type Transmitter struct {
	conn *grpc.ClientConn
	log  logging.Func
}

// Dial opens a gRPC channel to addr. A nil tlsConfig dials with insecure
// transport credentials (plaintext) -- callers requiring TLS must supply a
// *tls.Config, matching DriverOptions' explicit opt-in to encryption.
func Dial(ctx context.Context, addr protocol.Address, tlsConfig *tls.Config, log logging.Func) (*Transmitter, error) {
	if log == nil {
		log = logging.Discard
	}

	var creds credentials.TransportCredentials
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.DialContext(ctx, addr.String(),
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rawCodecName)),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}

	log(logging.Debug, "rpc: connected to %s", addr)
	return &Transmitter{conn: conn, log: log}, nil
}

// Unary sends one request frame and waits for exactly one response frame.
func (t *Transmitter) Unary(ctx context.Context, reqBytes []byte) ([]byte, error) {
	req := &rawFrame{Bytes: reqBytes}
	resp := &rawFrame{}
	if err := t.conn.Invoke(ctx, unaryMethod, req, resp, grpc.CallContentSubtype(rawCodecName)); err != nil {
		return nil, fmt.Errorf("rpc: unary call: %w", err)
	}
	return resp.Bytes, nil
}

// Stream is a single bidirectional gRPC stream carrying one transaction's
// multiplexed request/response traffic.
type Stream struct {
	cs grpc.ClientStream
}

// OpenStream opens the bidirectional stream used for the lifetime of one
// transaction.
func (t *Transmitter) OpenStream(ctx context.Context) (*Stream, error) {
	cs, err := t.conn.NewStream(ctx, &streamDesc, streamMethod, grpc.CallContentSubtype(rawCodecName))
	if err != nil {
		return nil, fmt.Errorf("rpc: open stream: %w", err)
	}
	return &Stream{cs: cs}, nil
}

func (s *Stream) Send(b []byte) error {
	return s.cs.SendMsg(&rawFrame{Bytes: b})
}

func (s *Stream) Recv() ([]byte, error) {
	f := &rawFrame{}
	if err := s.cs.RecvMsg(f); err != nil {
		return nil, err
	}
	return f.Bytes, nil
}

func (s *Stream) CloseSend() error {
	return s.cs.CloseSend()
}

// Close tears down the underlying gRPC channel. Safe to call more than
// once.
func (t *Transmitter) Close() error {
	return t.conn.Close()
}
