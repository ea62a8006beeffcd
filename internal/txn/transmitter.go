// Package txn implements the Transaction Transmitter (C3): it multiplexes
// many logical request/response exchanges onto the single bidirectional
// gRPC stream backing one transaction. A dispatch loop goroutine owns the
// send side of the stream and batches outbound frames on a short timer or
// a size ceiling; a listen loop goroutine owns the receive side and
// demultiplexes inbound frames by RequestID into whichever responseSink is
// waiting for them. Both loops stop, and every still-pending sink is woken
// with an error, the moment ForceClose wins its single-winner shutdown
// race -- no sink is ever left hanging.
//
// This package deliberately never looks inside a payload: decoding request
// and response bodies is internal/protocol's job, and deciding what a
// decoded body means is internal/server's. txn only correlates and
// transports opaque bytes.
package txn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/typedb/typedb-driver-sub001/logging"
)

var (
	ErrTransactionIsClosed  = errors.New("txn: transaction is closed")
	ErrConnectionClosed     = errors.New("txn: server connection closed")
)

const dispatchInterval = 3 * time.Millisecond

// wireStream is the minimal surface Transmitter needs from an underlying
// transport stream; internal/rpc.Stream satisfies it.
type wireStream interface {
	Send([]byte) error
	Recv() ([]byte, error)
	CloseSend() error
}

type outboundFrame struct {
	id      RequestID
	payload []byte
}

// Transmitter is the per-transaction multiplexer described above.
type Transmitter struct {
	stream wireStream
	cancel context.CancelFunc
	log    logging.Func

	out chan outboundFrame

	mu      sync.Mutex
	pending map[RequestID]responseSink
	onClose []func(error)

	isOpen  atomic.Bool
	closeCh chan struct{}
	doneWG  sync.WaitGroup
}

// New starts the dispatch and listen loops for stream and returns the
// handle callers use to issue requests. cancel, if non-nil, is called on
// shutdown to unblock a listen loop parked in a blocking Recv -- callers
// should pass the cancel function of the context the stream was opened
// with.
func New(stream wireStream, cancel context.CancelFunc, log logging.Func) *Transmitter {
	if log == nil {
		log = logging.Discard
	}
	t := &Transmitter{
		stream:  stream,
		cancel:  cancel,
		log:     log,
		out:     make(chan outboundFrame, 256),
		pending: make(map[RequestID]responseSink),
		closeCh: make(chan struct{}),
	}
	t.isOpen.Store(true)

	t.doneWG.Add(2)
	go t.dispatchLoop()
	go t.listenLoop()

	return t
}

// OnClose registers fn to run once, when the transmitter shuts down
// (whether by ForceClose or by the stream failing). Safe to call after the
// transmitter has already closed -- fn then runs immediately.
func (t *Transmitter) OnClose(fn func(err error)) {
	t.mu.Lock()
	if !t.isOpen.Load() {
		t.mu.Unlock()
		fn(ErrTransactionIsClosed)
		return
	}
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

// Single sends payload and waits for exactly one response payload.
func (t *Transmitter) Single(ctx context.Context, payload []byte) ([]byte, error) {
	if !t.isOpen.Load() {
		return nil, ErrTransactionIsClosed
	}

	id := NewRequestID()
	sink := newSingleShotSink()

	t.mu.Lock()
	t.pending[id] = sink
	t.mu.Unlock()

	if !t.enqueue(ctx, id, payload) {
		t.dropSink(id)
		return nil, ErrTransactionIsClosed
	}

	select {
	case res := <-sink.ch:
		return res.payload, res.err
	case <-ctx.Done():
		t.dropSink(id)
		return nil, ctx.Err()
	}
}

// ResponseStream lets a caller pull successive parts of a streamed
// response, sending exactly one continuation request per part that isn't
// terminal.
type ResponseStream struct {
	id RequestID
	t  *Transmitter
	s  *streamSink
}

// Stream sends payload and returns a handle for pulling the (potentially
// many) response parts it produces.
func (t *Transmitter) Stream(ctx context.Context, payload []byte) (*ResponseStream, error) {
	if !t.isOpen.Load() {
		return nil, ErrTransactionIsClosed
	}

	id := NewRequestID()
	sink := newStreamSink()

	t.mu.Lock()
	t.pending[id] = sink
	t.mu.Unlock()

	if !t.enqueue(ctx, id, payload) {
		t.dropSink(id)
		return nil, ErrTransactionIsClosed
	}

	return &ResponseStream{id: id, t: t, s: sink}, nil
}

// Next blocks for the next response part.
func (r *ResponseStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case part := <-r.s.parts:
		if part.done {
			return nil, part.err
		}
		return part.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Continue sends exactly one client-pull continuation request, carrying
// the same RequestID as the original streamed request, so the server
// resumes producing parts into the same sink.
func (r *ResponseStream) Continue(ctx context.Context, continuationPayload []byte) error {
	if !r.t.enqueue(ctx, r.id, continuationPayload) {
		return ErrTransactionIsClosed
	}
	return nil
}

// NotifiedSingle sends payload and waits for a final response, the way
// Single does, except every delivered part is first handed to isFinal:
// a part isFinal reports false for is treated as a server-initiated
// notification and handed to onNotify instead of completing the call.
// Used by the transaction-open handshake, which may emit any number of
// setup notifications before its one final acknowledgement -- delivery
// happens straight on the listen loop's goroutine via an immediateSink
// rather than buffering through a streamSink's channel, since there is no
// fixed part count to pull against.
func (t *Transmitter) NotifiedSingle(ctx context.Context, payload []byte, isFinal func(payload []byte) bool, onNotify func(payload []byte)) ([]byte, error) {
	if !t.isOpen.Load() {
		return nil, ErrTransactionIsClosed
	}

	id := NewRequestID()
	result := make(chan singleShotResult, 1)
	sink := &immediateSink{
		onDeliver: func(payload []byte) {
			if isFinal(payload) {
				select {
				case result <- singleShotResult{payload: payload}:
				default:
				}
				return
			}
			onNotify(payload)
		},
		onClose: func(err error) {
			select {
			case result <- singleShotResult{err: err}:
			default:
			}
		},
	}

	t.mu.Lock()
	t.pending[id] = sink
	t.mu.Unlock()

	if !t.enqueue(ctx, id, payload) {
		t.dropSink(id)
		return nil, ErrTransactionIsClosed
	}

	select {
	case res := <-result:
		t.dropSink(id)
		return res.payload, res.err
	case <-ctx.Done():
		t.dropSink(id)
		return nil, ctx.Err()
	}
}

func (t *Transmitter) enqueue(ctx context.Context, id RequestID, payload []byte) bool {
	select {
	case t.out <- outboundFrame{id: id, payload: payload}:
		return true
	case <-ctx.Done():
		return false
	case <-t.closeCh:
		return false
	}
}

func (t *Transmitter) dropSink(id RequestID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *Transmitter) dispatchLoop() {
	defer t.doneWG.Done()

	var buf requestBuffer
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	flush := func() {
		if buf.len() == 0 {
			return
		}
		if err := t.stream.Send(buf.drain()); err != nil {
			t.log(logging.Warn, "txn: dispatch send failed: %v", err)
			t.shutdown(err)
		}
	}

	for {
		select {
		case frame := <-t.out:
			buf.add(encodeSubFrame(frame.id, frame.payload))
			if buf.full() {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-t.closeCh:
			// Drain whatever is already queued, non-blocking, then flush
			// and stop -- nothing will be enqueued after closeCh fires.
			for {
				select {
				case frame := <-t.out:
					buf.add(encodeSubFrame(frame.id, frame.payload))
				default:
					flush()
					return
				}
			}
		}
	}
}

func (t *Transmitter) listenLoop() {
	defer t.doneWG.Done()

	for {
		msg, err := t.stream.Recv()
		if err != nil {
			t.shutdown(err)
			return
		}

		frames, err := decodeSubFrames(msg)
		if err != nil {
			t.log(logging.Warn, "txn: malformed stream message: %v", err)
			continue
		}

		for _, f := range frames {
			t.mu.Lock()
			sink, ok := t.pending[f.ID]
			t.mu.Unlock()

			if !ok {
				// A reply for an ID we no longer (or never) recognise.
				// Logged and dropped rather than failing the whole
				// transmitter -- see the design note on late replies.
				t.log(logging.Warn, "txn: response for unknown request id %s dropped", f.ID)
				continue
			}

			if !sink.deliver(f.Payload) {
				t.mu.Lock()
				delete(t.pending, f.ID)
				t.mu.Unlock()
			}
		}

		if !t.isOpen.Load() {
			return
		}
	}
}

// ForceClose shuts the transmitter down: the CAS below guarantees this
// runs its effects exactly once even if called concurrently from several
// goroutines (e.g. a user call racing a stream failure).
func (t *Transmitter) ForceClose() {
	t.shutdown(ErrTransactionIsClosed)
	t.doneWG.Wait()
}

func (t *Transmitter) shutdown(cause error) {
	if !t.isOpen.CompareAndSwap(true, false) {
		return
	}

	close(t.closeCh)
	_ = t.stream.CloseSend()
	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[RequestID]responseSink)
	callbacks := t.onClose
	t.onClose = nil
	t.mu.Unlock()

	for _, sink := range pending {
		sink.close(cause)
	}
	for _, fn := range callbacks {
		fn(cause)
	}
}
