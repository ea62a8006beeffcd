package typedb

import (
	"context"
	"sync/atomic"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
	"github.com/typedb/typedb-driver-sub001/internal/txn"
)

// Transaction (the driver's handle onto one open server-side transaction)
// wraps the Transaction Transmitter (C3): every request issued through it
// travels over that transaction's one multiplexed stream, correlated by
// request ID, regardless of how many are in flight at once.
type Transaction struct {
	transmitter *txn.Transmitter
	txType      TransactionType
	database    string
	closed      atomic.Bool
}

// Type reports which kind of transaction this is.
func (t *Transaction) Type() TransactionType { return t.txType }

// Database reports the name of the database this transaction was opened
// against.
func (t *Transaction) Database() string { return t.database }

// IsOpen reports whether the transaction has not yet been committed,
// rolled back, or closed.
func (t *Transaction) IsOpen() bool { return !t.closed.Load() }

// OnClose registers fn to run once the transaction's underlying stream
// shuts down for any reason, including a server-initiated close. Safe to
// call after the transaction has already closed -- fn then runs
// immediately.
func (t *Transaction) OnClose(fn func(error)) { t.transmitter.OnClose(fn) }

// Query sends a query string and an opaque parameter map and returns a
// lazily-pulled stream of answer rows. The driver never parses or
// interprets the query language itself -- query is forwarded to the server
// byte for byte.
func (t *Transaction) Query(ctx context.Context, query string, params map[string]*Value) (*QueryAnswer, error) {
	if t.closed.Load() {
		return nil, newError(KindConnection, "transaction is closed", nil)
	}

	req := &protocol.Message{}
	req.Init(256)
	protocol.EncodeTransactionQuery(req, query, params)

	rs, err := t.transmitter.Stream(ctx, req.FrameBytes())
	if err != nil {
		return nil, asError(err)
	}
	return &QueryAnswer{rs: rs}, nil
}

// Commit commits the transaction. The transaction is closed whether commit
// succeeds or fails -- there is no partial-commit state to recover from.
func (t *Transaction) Commit(ctx context.Context) error {
	return t.finish(ctx, protocol.EncodeTransactionCommit)
}

// Rollback rolls the transaction's writes back and then closes the
// transaction and its stream, matching commit's one-shot lifecycle.
func (t *Transaction) Rollback(ctx context.Context) error {
	return t.finish(ctx, protocol.EncodeTransactionRollback)
}

// Close closes the transaction without committing or rolling back
// explicitly (e.g. after a read-only transaction). Idempotent.
func (t *Transaction) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.transmitter.ForceClose()
	return nil
}

func (t *Transaction) finish(ctx context.Context, encode func(*protocol.Message)) error {
	if !t.closed.CompareAndSwap(false, true) {
		return newError(KindConnection, "transaction is closed", nil)
	}
	defer t.transmitter.ForceClose()

	req := &protocol.Message{}
	req.Init(64)
	encode(req)

	respBytes, err := t.transmitter.Single(ctx, req.FrameBytes())
	if err != nil {
		return asError(err)
	}

	respMsg, err := protocol.DecodeFrame(respBytes)
	if err != nil {
		return asError(err)
	}
	if _, mtype, _ := respMsg.Header(); mtype == protocol.ResponseFailure {
		return newServerFailureError(protocol.DecodeFailure(respMsg))
	}
	return nil
}

// QueryAnswer is a lazily-pulled stream of query answer rows. Each call to
// Next may issue one client-pull continuation request if the buffered
// batch has been exhausted and the server has more to send.
type QueryAnswer struct {
	rs       *txn.ResponseStream
	columns  []string
	rows     []protocol.Row
	pos      int
	state    uint8
	failure  *protocol.FailureResponse
	started  bool
	needPull bool
}

// Columns returns the answer's column names, which the first stream part
// carries. It blocks until a row batch, or the end of the answer, has
// arrived.
func (qa *QueryAnswer) Columns(ctx context.Context) ([]string, error) {
	if err := qa.ensureStarted(ctx); err != nil {
		return nil, err
	}
	return qa.columns, nil
}

// Next returns the next row, or ok=false once the answer is exhausted
// (err is nil on a clean end, non-nil if the server reported an error mid
// stream).
func (qa *QueryAnswer) Next(ctx context.Context) (protocol.Row, bool, error) {
	if err := qa.ensureStarted(ctx); err != nil {
		return nil, false, err
	}
	if err := qa.ensureBuffer(ctx); err != nil {
		return nil, false, err
	}
	if qa.pos < len(qa.rows) {
		row := qa.rows[qa.pos]
		qa.pos++
		return row, true, nil
	}
	if qa.state == protocol.StreamStateError {
		return nil, false, newServerFailureError(*qa.failure)
	}
	return nil, false, nil
}

func (qa *QueryAnswer) ensureStarted(ctx context.Context) error {
	if qa.started {
		return nil
	}
	qa.started = true
	return qa.ensureBuffer(ctx)
}

// ensureBuffer pulls stream parts until either a row batch is available to
// read from, or a terminal (Done/Error) state is reached.
func (qa *QueryAnswer) ensureBuffer(ctx context.Context) error {
	for qa.pos >= len(qa.rows) && qa.state != protocol.StreamStateDone && qa.state != protocol.StreamStateError {
		if qa.needPull {
			if err := qa.pullContinuation(ctx); err != nil {
				return err
			}
		}

		payload, err := qa.rs.Next(ctx)
		if err != nil {
			return asError(err)
		}

		respMsg, err := protocol.DecodeFrame(payload)
		if err != nil {
			return asError(err)
		}
		part, err := protocol.DecodeQueryStreamPart(respMsg)
		if err != nil {
			return asError(err)
		}

		switch part.State {
		case protocol.StreamStateInitial:
			qa.columns = part.Columns
			qa.needPull = true
		case protocol.StreamStateRows:
			qa.rows = part.Rows
			qa.pos = 0
			qa.needPull = true
		case protocol.StreamStateDone:
			qa.state = part.State
		case protocol.StreamStateError:
			qa.state = part.State
			qa.failure = part.Failure
		}
	}
	return nil
}

func (qa *QueryAnswer) pullContinuation(ctx context.Context) error {
	req := &protocol.Message{}
	req.Init(32)
	protocol.EncodeTransactionStreamContinue(req)
	if err := qa.rs.Continue(ctx, req.FrameBytes()); err != nil {
		return asError(err)
	}
	return nil
}

func newServerFailureError(f protocol.FailureResponse) error {
	return newError(KindServer, f.Message, nil)
}
