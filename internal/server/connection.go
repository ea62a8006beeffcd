// Package server implements the Server Connection (C5) and Server Manager
// (C6) components: C5 owns one replica's RPC channel and exposes the full
// request surface a driver needs; C6 owns the topology of all known
// replicas and routes each operation to the right one under the caller's
// chosen consistency level, with primary failover when required.
package server

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/typedb/typedb-driver-sub001/internal/latency"
	"github.com/typedb/typedb-driver-sub001/internal/protocol"
	"github.com/typedb/typedb-driver-sub001/internal/rpc"
	"github.com/typedb/typedb-driver-sub001/internal/txn"
	"github.com/typedb/typedb-driver-sub001/logging"
)

// Connection (C5) is the driver's handle to one server replica: one RPC
// Transmitter, one latency estimate, and the set of shutdown funcs for
// every transaction stream opened through it (so ForceClose never leaks a
// transaction transmitter).
type Connection struct {
	address protocol.Address
	rpc     *rpc.Transmitter
	latency *latency.Tracker
	log     logging.Func

	connectionID [16]byte
	username     string

	mu            chan struct{} // binary semaphore guarding openStreams/streamCancels
	openStreams   map[*txn.Transmitter]struct{}
	streamCancels map[context.CancelFunc]struct{} // cancels for import/export streams, which have no txn.Transmitter
}

// Open dials addr and performs the connection handshake.
func Open(ctx context.Context, addr protocol.Address, username, password string, tlsConfig *tls.Config, log logging.Func) (*Connection, error) {
	if log == nil {
		log = logging.Discard
	}

	started := nowMillis()
	transmitter, err := rpc.Dial(ctx, addr, tlsConfig, log)
	if err != nil {
		return nil, fmt.Errorf("server: connect to %s: %w", addr, err)
	}

	reqMsg := &protocol.Message{}
	reqMsg.Init(256)
	protocol.EncodeConnectionOpen(reqMsg, username, password)

	respBytes, err := transmitter.Unary(ctx, reqMsg.FrameBytes())
	if err != nil {
		_ = transmitter.Close()
		return nil, fmt.Errorf("server: handshake with %s: %w", addr, ErrServerConnectionFailed)
	}

	respMsg, err := protocol.DecodeFrame(respBytes)
	if err != nil {
		_ = transmitter.Close()
		return nil, err
	}

	opened, err := protocol.DecodeConnectionOpen(respMsg)
	if err != nil {
		_ = transmitter.Close()
		return nil, err
	}

	elapsed := uint64(nowMillis() - started)

	c := &Connection{
		address:      addr,
		rpc:          transmitter,
		latency:      latency.NewTracker(elapsed),
		log:          log,
		connectionID: opened.ConnectionID,
		username:     username,
		mu:            make(chan struct{}, 1),
		openStreams:   make(map[*txn.Transmitter]struct{}),
		streamCancels: make(map[context.CancelFunc]struct{}),
	}
	c.mu <- struct{}{}
	return c, nil
}

// Latency returns the connection's current round-trip estimate, used by
// the server manager to rank replicas for eventual-consistency reads.
func (c *Connection) Latency() uint64 { return c.latency.Get() }

func (c *Connection) Address() protocol.Address { return c.address }

// recordLatency folds a fresh round-trip sample into the tracker.
func (c *Connection) recordLatency(sampleMillis uint64) {
	c.latency.Update(sampleMillis)
}

// request performs one unary request/response exchange outside of any
// transaction, timing it for the latency tracker.
func (c *Connection) request(ctx context.Context, body []byte) ([]byte, error) {
	started := nowMillis()
	resp, err := c.rpc.Unary(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerConnectionFailed, err)
	}
	c.recordLatency(uint64(nowMillis() - started))
	return resp, nil
}

// ServersAll returns every replica the contacted server currently knows
// about, used by the server manager to refresh its topology.
func (c *Connection) ServersAll(ctx context.Context) (protocol.ServersAllResponse, error) {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeServersAll(req)

	respBytes, err := c.request(ctx, req.FrameBytes())
	if err != nil {
		return protocol.ServersAllResponse{}, err
	}
	respMsg, err := protocol.DecodeFrame(respBytes)
	if err != nil {
		return protocol.ServersAllResponse{}, err
	}
	return protocol.DecodeServersAll(respMsg)
}

// ServersRegister asks the contacted server to add address to the cluster
// topology, returning the refreshed replica list.
func (c *Connection) ServersRegister(ctx context.Context, address protocol.Address) (protocol.ServersAllResponse, error) {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeServersRegister(req, address)

	respBytes, err := c.request(ctx, req.FrameBytes())
	if err != nil {
		return protocol.ServersAllResponse{}, err
	}
	respMsg, err := protocol.DecodeFrame(respBytes)
	if err != nil {
		return protocol.ServersAllResponse{}, err
	}
	if _, mtype, _ := respMsg.Header(); mtype == protocol.ResponseFailure {
		f := protocol.DecodeFailure(respMsg)
		return protocol.ServersAllResponse{}, fmt.Errorf("server: %s", f.Message)
	}
	return protocol.DecodeServersAll(respMsg)
}

// ServersDeregister asks the contacted server to remove address from the
// cluster topology, returning the refreshed replica list.
func (c *Connection) ServersDeregister(ctx context.Context, address protocol.Address) (protocol.ServersAllResponse, error) {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeServersDeregister(req, address)

	respBytes, err := c.request(ctx, req.FrameBytes())
	if err != nil {
		return protocol.ServersAllResponse{}, err
	}
	respMsg, err := protocol.DecodeFrame(respBytes)
	if err != nil {
		return protocol.ServersAllResponse{}, err
	}
	if _, mtype, _ := respMsg.Header(); mtype == protocol.ResponseFailure {
		f := protocol.DecodeFailure(respMsg)
		return protocol.ServersAllResponse{}, fmt.Errorf("server: %s", f.Message)
	}
	return protocol.DecodeServersAll(respMsg)
}

// DatabasesAll, DatabaseCreate, DatabaseDelete, DatabaseSchema and
// DatabaseTypeSchema are the non-transactional database-management
// requests: each is one unary exchange timed for the latency tracker like
// any other request on this connection.
func (c *Connection) DatabasesAll(ctx context.Context) (protocol.DatabasesAllResponse, error) {
	req := &protocol.Message{}
	req.Init(32)
	protocol.EncodeDatabasesAll(req)
	resp, err := c.unaryOk(ctx, req)
	if err != nil {
		return protocol.DatabasesAllResponse{}, err
	}
	return protocol.DecodeDatabasesAll(resp), nil
}

func (c *Connection) DatabaseGet(ctx context.Context, name string) (protocol.DatabaseResponse, error) {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeDatabaseGet(req, name)
	resp, err := c.unaryOk(ctx, req)
	if err != nil {
		return protocol.DatabaseResponse{}, err
	}
	return protocol.DecodeDatabase(resp), nil
}

func (c *Connection) DatabaseCreate(ctx context.Context, name string) error {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeDatabaseCreate(req, name)
	_, err := c.unaryOk(ctx, req)
	return err
}

func (c *Connection) DatabaseDelete(ctx context.Context, name string) error {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeDatabaseDelete(req, name)
	_, err := c.unaryOk(ctx, req)
	return err
}

func (c *Connection) DatabaseSchema(ctx context.Context, name string) (protocol.SchemaResponse, error) {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeDatabaseSchema(req, name)
	resp, err := c.unaryOk(ctx, req)
	if err != nil {
		return protocol.SchemaResponse{}, err
	}
	return protocol.DecodeSchema(resp), nil
}

func (c *Connection) DatabaseTypeSchema(ctx context.Context, name string) (protocol.SchemaResponse, error) {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeDatabaseTypeSchema(req, name)
	resp, err := c.unaryOk(ctx, req)
	if err != nil {
		return protocol.SchemaResponse{}, err
	}
	return protocol.DecodeSchema(resp), nil
}

// DatabaseExport streams a full schema-and-data export of database name on
// its own dedicated bidirectional stream (no txn.Transmitter multiplexing
// is needed -- the stream carries exactly one request and its reply
// parts), invoking onChunk for every data chunk in order until the server
// signals completion.
func (c *Connection) DatabaseExport(ctx context.Context, name string, onChunk func([]byte) error) error {
	streamCtx, cancel := context.WithCancel(ctx)
	c.trackCancel(cancel)
	defer func() {
		c.untrackCancel(cancel)
		cancel()
	}()

	stream, err := c.rpc.OpenStream(streamCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerConnectionFailed, err)
	}

	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeDatabaseExport(req, name)
	if err := stream.Send(req.FrameBytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrServerConnectionFailed, err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("%w: %v", ErrServerConnectionFailed, err)
	}

	for {
		payload, err := stream.Recv()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrServerConnectionFailed, err)
		}
		respMsg, err := protocol.DecodeFrame(payload)
		if err != nil {
			return err
		}
		if _, mtype, _ := respMsg.Header(); mtype == protocol.ResponseFailure {
			f := protocol.DecodeFailure(respMsg)
			return fmt.Errorf("server: %s", f.Message)
		}
		part := protocol.DecodeExportStreamPart(respMsg)
		if part.Done {
			return nil
		}
		if err := onChunk(part.Chunk); err != nil {
			return err
		}
	}
}

// DatabaseImport recreates a database named name from a previously
// exported schema definition. It is a single unary exchange: the export
// format this pairs with carries schema and data together in one string,
// unlike the chunked DatabaseExport reply.
func (c *Connection) DatabaseImport(ctx context.Context, name, schema string) error {
	req := &protocol.Message{}
	req.Init(len(schema) + 64)
	protocol.EncodeDatabaseImport(req, name, schema)
	_, err := c.unaryOk(ctx, req)
	return err
}

// UsersAll, UserGet, UserCreate, UserUpdatePassword and UserDelete are the
// non-transactional user-management requests.
func (c *Connection) UsersAll(ctx context.Context) (protocol.UsersAllResponse, error) {
	req := &protocol.Message{}
	req.Init(32)
	protocol.EncodeUsersAll(req)
	resp, err := c.unaryOk(ctx, req)
	if err != nil {
		return protocol.UsersAllResponse{}, err
	}
	return protocol.DecodeUsersAll(resp), nil
}

func (c *Connection) UserGet(ctx context.Context, username string) (protocol.UserResponse, error) {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeUserGet(req, username)
	resp, err := c.unaryOk(ctx, req)
	if err != nil {
		return protocol.UserResponse{}, err
	}
	return protocol.DecodeUser(resp), nil
}

func (c *Connection) UserCreate(ctx context.Context, username, password string) error {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeUserCreate(req, username, password)
	_, err := c.unaryOk(ctx, req)
	return err
}

func (c *Connection) UserUpdatePassword(ctx context.Context, username, password string) error {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeUserUpdatePassword(req, username, password)
	_, err := c.unaryOk(ctx, req)
	return err
}

func (c *Connection) UserDelete(ctx context.Context, username string) error {
	req := &protocol.Message{}
	req.Init(64)
	protocol.EncodeUserDelete(req, username)
	_, err := c.unaryOk(ctx, req)
	return err
}

// ServerVersion returns the contacted server's version string.
func (c *Connection) ServerVersion(ctx context.Context) (protocol.ServerVersionResponse, error) {
	req := &protocol.Message{}
	req.Init(32)
	protocol.EncodeServerVersion(req)
	resp, err := c.unaryOk(ctx, req)
	if err != nil {
		return protocol.ServerVersionResponse{}, err
	}
	return protocol.DecodeServerVersion(resp), nil
}

// unaryOk performs one request/response exchange and decodes the frame,
// translating a ResponseFailure into a Go error so every caller above
// this doesn't have to re-check the discriminant itself.
func (c *Connection) unaryOk(ctx context.Context, req *protocol.Message) (*protocol.Message, error) {
	respBytes, err := c.request(ctx, req.FrameBytes())
	if err != nil {
		return nil, err
	}
	respMsg, err := protocol.DecodeFrame(respBytes)
	if err != nil {
		return nil, err
	}
	if _, mtype, _ := respMsg.Header(); mtype == protocol.ResponseFailure {
		f := protocol.DecodeFailure(respMsg)
		return nil, fmt.Errorf("server: %s", f.Message)
	}
	return respMsg, nil
}

// OpenTransaction opens a new transaction's multiplexed stream and returns
// its transmitter plus the decoded open-acknowledgement. The open request
// itself travels through the transmitter like any other request, correlated
// by RequestID the same way every later query response is, but the server
// may emit any number of ResponseTransactionNotice setup notifications on
// that same id before its one final ResponseTransactionOpen -- those are
// logged and otherwise ignored rather than mistaken for the reply itself.
func (c *Connection) OpenTransaction(ctx context.Context, database string, txType uint8, opts TransactionOptions) (*txn.Transmitter, protocol.TransactionOpenResponse, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := c.rpc.OpenStream(streamCtx)
	if err != nil {
		cancel()
		return nil, protocol.TransactionOpenResponse{}, fmt.Errorf("%w: %v", ErrServerConnectionFailed, err)
	}

	transmitter := txn.New(stream, cancel, c.log)
	c.trackStream(transmitter)
	transmitter.OnClose(func(error) { c.untrackStream(transmitter) })

	req := &protocol.Message{}
	req.Init(256)
	protocol.EncodeTransactionOpen(req, database, txType, c.Latency(),
		opts.TransactionTimeoutMillis, opts.SchemaLockAcquireTimeoutMillis)

	finalPayload, err := transmitter.NotifiedSingle(ctx, req.FrameBytes(),
		func(payload []byte) bool {
			msg, derr := protocol.DecodeFrame(payload)
			if derr != nil {
				return true
			}
			_, mtype, _ := msg.Header()
			return mtype != protocol.ResponseTransactionNotice
		},
		func(payload []byte) {
			msg, derr := protocol.DecodeFrame(payload)
			if derr != nil {
				return
			}
			notice := protocol.DecodeTransactionNotice(msg)
			c.log(logging.Info, "server: %s: %s", c.address, notice.Message)
		},
	)
	if err != nil {
		transmitter.ForceClose()
		return nil, protocol.TransactionOpenResponse{}, err
	}

	respMsg, err := protocol.DecodeFrame(finalPayload)
	if err != nil {
		transmitter.ForceClose()
		return nil, protocol.TransactionOpenResponse{}, err
	}
	if _, mtype, _ := respMsg.Header(); mtype == protocol.ResponseFailure {
		f := protocol.DecodeFailure(respMsg)
		transmitter.ForceClose()
		return nil, protocol.TransactionOpenResponse{}, fmt.Errorf("server: %s", f.Message)
	}

	return transmitter, protocol.DecodeTransactionOpen(respMsg), nil
}

func (c *Connection) trackStream(t *txn.Transmitter) {
	<-c.mu
	c.openStreams[t] = struct{}{}
	c.mu <- struct{}{}
}

func (c *Connection) untrackStream(t *txn.Transmitter) {
	<-c.mu
	delete(c.openStreams, t)
	c.mu <- struct{}{}
}

func (c *Connection) trackCancel(cancel context.CancelFunc) {
	<-c.mu
	c.streamCancels[cancel] = struct{}{}
	c.mu <- struct{}{}
}

func (c *Connection) untrackCancel(cancel context.CancelFunc) {
	<-c.mu
	delete(c.streamCancels, cancel)
	c.mu <- struct{}{}
}

// ForceClose force-closes every transaction stream and import/export
// stream still open on this connection, then tears down the RPC channel
// itself. Idempotent.
func (c *Connection) ForceClose() error {
	<-c.mu
	streams := make([]*txn.Transmitter, 0, len(c.openStreams))
	for t := range c.openStreams {
		streams = append(streams, t)
	}
	c.openStreams = make(map[*txn.Transmitter]struct{})
	cancels := make([]context.CancelFunc, 0, len(c.streamCancels))
	for cancel := range c.streamCancels {
		cancels = append(cancels, cancel)
	}
	c.streamCancels = make(map[context.CancelFunc]struct{})
	c.mu <- struct{}{}

	for _, t := range streams {
		t.ForceClose()
	}
	for _, cancel := range cancels {
		cancel()
	}
	return c.rpc.Close()
}
