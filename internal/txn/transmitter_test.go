package txn

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeStream is an in-memory wireStream: Send appends to a sent log a test
// can inspect, and a fake "server" goroutine can push bytes for Recv to
// return by writing to inbound. Once CloseSend is called, Recv returns an
// error, as a server ending its side after the client half-closes would.
type fakeStream struct {
	mu     sync.Mutex
	sent   [][]byte
	inbound chan []byte
	done   chan struct{}
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{inbound: make(chan []byte, 64), done: make(chan struct{})}
}

func (f *fakeStream) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("fakeStream: send after close")
	}
	cp := append([]byte(nil), b...)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeStream) Recv() ([]byte, error) {
	select {
	case b, ok := <-f.inbound:
		if !ok {
			return nil, fmt.Errorf("fakeStream: closed")
		}
		return b, nil
	case <-f.done:
		return nil, fmt.Errorf("fakeStream: closed")
	}
}

func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.done)
	}
	f.closed = true
	return nil
}

func (f *fakeStream) pushRaw(b []byte) {
	f.inbound <- b
}

func (f *fakeStream) close() {
	close(f.inbound)
}

func encodeTestFrame(id RequestID, payload []byte) []byte {
	return encodeSubFrame(id, payload)
}

// echoServer answers every request it sees on stream.sent with a single
// reply carrying the same bytes, reversed, so tests can tell requests and
// responses apart while still proving correlation held.
func echoServer(t *testing.T, fs *fakeStream, seen chan<- RequestID) {
	go func() {
		for {
			fs.mu.Lock()
			if len(fs.sent) == 0 {
				fs.mu.Unlock()
				time.Sleep(time.Millisecond)
				continue
			}
			batch := fs.sent[0]
			fs.sent = fs.sent[1:]
			fs.mu.Unlock()

			frames, err := decodeSubFrames(batch)
			if err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			for _, fr := range frames {
				if seen != nil {
					seen <- fr.ID
				}
				reply := append([]byte(nil), fr.Payload...)
				for i, j := 0, len(reply)-1; i < j; i, j = i+1, j-1 {
					reply[i], reply[j] = reply[j], reply[i]
				}
				fs.pushRaw(encodeTestFrame(fr.ID, reply))
			}
		}
	}()
}

func TestTransmitter_SingleCorrelatesByRequestID(t *testing.T) {
	fs := newFakeStream()
	echoServer(t, fs, nil)
	tr := New(fs, nil, nil)
	defer tr.ForceClose()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 20
	results := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("req-%02d", i))
			resp, err := tr.Single(ctx, payload)
			if err != nil {
				t.Errorf("Single(%d): %v", i, err)
				return
			}
			results[i] = resp
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		want := []byte(fmt.Sprintf("req-%02d", i))
		reverse(want)
		if string(results[i]) != string(want) {
			t.Fatalf("result %d: got %q, want %q", i, results[i], want)
		}
	}
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func TestTransmitter_StreamPreservesOrder(t *testing.T) {
	fs := newFakeStream()
	tr := New(fs, nil, nil)
	defer tr.ForceClose()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rs, err := tr.Stream(ctx, []byte("start"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	// Wait for the request to reach the fake server, then push an
	// ordered sequence of parts, all tagged with the same request id.
	var id RequestID
	deadline := time.After(time.Second)
	for {
		fs.mu.Lock()
		if len(fs.sent) > 0 {
			frames, _ := decodeSubFrames(fs.sent[0])
			id = frames[0].ID
			fs.mu.Unlock()
			break
		}
		fs.mu.Unlock()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for request to be sent")
		case <-time.After(time.Millisecond):
		}
	}

	for i := 0; i < 5; i++ {
		fs.pushRaw(encodeTestFrame(id, []byte{byte(i)}))
	}

	for i := 0; i < 5; i++ {
		part, err := rs.Next(ctx)
		if err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
		if len(part) != 1 || part[0] != byte(i) {
			t.Fatalf("part %d: got %v, want [%d]", i, part, i)
		}
	}
}

func TestTransmitter_ContinueEmitsExactlyOneContinuation(t *testing.T) {
	fs := newFakeStream()
	tr := New(fs, nil, nil)
	defer tr.ForceClose()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rs, err := tr.Stream(ctx, []byte("start"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if err := rs.Continue(ctx, []byte("continue")); err != nil {
		t.Fatalf("Continue: %v", err)
	}

	// Wait for both sub-frames (the original request and the single
	// continuation) to reach the transport, then assert there are
	// exactly two, both carrying the same request id.
	deadline := time.After(time.Second)
	var ids []RequestID
	for len(ids) < 2 {
		fs.mu.Lock()
		for len(fs.sent) > 0 {
			frames, _ := decodeSubFrames(fs.sent[0])
			fs.sent = fs.sent[1:]
			for _, f := range frames {
				ids = append(ids, f.ID)
			}
		}
		fs.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("timed out, got %d sub-frames", len(ids))
		case <-time.After(time.Millisecond):
		}
	}

	if len(ids) != 2 {
		t.Fatalf("got %d sub-frames, want exactly 2 (request + one continuation)", len(ids))
	}
	if ids[0] != ids[1] {
		t.Fatalf("continuation id %x != request id %x", ids[1], ids[0])
	}
}

func TestTransmitter_ForceCloseDrainsAllSinks(t *testing.T) {
	fs := newFakeStream()
	tr := New(fs, nil, nil)

	ctx := context.Background()

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := tr.Single(ctx, []byte("pending"))
			errs <- err
		}()
	}

	// Give the goroutines a chance to register their sinks before we
	// pull the rug out.
	time.Sleep(20 * time.Millisecond)
	tr.ForceClose()

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			if err == nil {
				t.Fatal("expected an error after ForceClose, got nil")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("sink never woke up after ForceClose")
		}
	}
}

func TestTransmitter_OnCloseFiresAfterForceClose(t *testing.T) {
	fs := newFakeStream()
	tr := New(fs, nil, nil)

	fired := make(chan error, 1)
	tr.OnClose(func(err error) { fired <- err })

	tr.ForceClose()

	select {
	case err := <-fired:
		if err == nil {
			t.Fatal("expected non-nil close cause")
		}
	case <-time.After(time.Second):
		t.Fatal("OnClose callback never fired")
	}
}

// TestTransmitter_NotifiedSingleHandlesNotificationsBeforeFinal drives the
// open-transaction handshake's shape directly: several notification parts
// arrive on the request's id before the one final reply, and all of them
// must reach onNotify rather than being mistaken for completion.
func TestTransmitter_NotifiedSingleHandlesNotificationsBeforeFinal(t *testing.T) {
	fs := newFakeStream()
	tr := New(fs, nil, nil)
	defer tr.ForceClose()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var notified []string
	var mu sync.Mutex
	isFinal := func(payload []byte) bool { return len(payload) > 0 && payload[0] == 'F' }
	onNotify := func(payload []byte) {
		mu.Lock()
		notified = append(notified, string(payload[1:]))
		mu.Unlock()
	}

	resultCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := tr.NotifiedSingle(ctx, []byte("open"), isFinal, onNotify)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()

	var id RequestID
	deadline := time.After(time.Second)
	for {
		fs.mu.Lock()
		if len(fs.sent) > 0 {
			frames, _ := decodeSubFrames(fs.sent[0])
			id = frames[0].ID
			fs.mu.Unlock()
			break
		}
		fs.mu.Unlock()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the open request to be sent")
		case <-time.After(time.Millisecond):
		}
	}

	fs.pushRaw(encodeTestFrame(id, []byte("Nwaiting-for-schema-lock")))
	fs.pushRaw(encodeTestFrame(id, []byte("Nstill-waiting")))
	fs.pushRaw(encodeTestFrame(id, []byte("Fdone")))

	select {
	case err := <-errCh:
		t.Fatalf("NotifiedSingle: %v", err)
	case res := <-resultCh:
		if string(res) != "Fdone" {
			t.Fatalf("got final payload %q, want %q", res, "Fdone")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("NotifiedSingle never returned")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"waiting-for-schema-lock", "still-waiting"}
	if len(notified) != len(want) {
		t.Fatalf("got %d notifications, want %d: %v", len(notified), len(want), notified)
	}
	for i, w := range want {
		if notified[i] != w {
			t.Fatalf("notification %d: got %q, want %q", i, notified[i], w)
		}
	}
}

func TestTransmitter_OnCloseAfterAlreadyClosedFiresImmediately(t *testing.T) {
	fs := newFakeStream()
	tr := New(fs, nil, nil)
	tr.ForceClose()

	fired := make(chan error, 1)
	tr.OnClose(func(err error) { fired <- err })

	select {
	case err := <-fired:
		if err == nil {
			t.Fatal("expected non-nil close cause")
		}
	case <-time.After(time.Second):
		t.Fatal("OnClose callback never fired for an already-closed transmitter")
	}
}
