package txn

import (
	"encoding/binary"
	"fmt"
)

// A transaction stream multiplexes many logical request/response messages
// onto one gRPC bidirectional stream. Each logical message is wrapped in a
// tiny sub-frame: [16-byte RequestID][4-byte little-endian length][payload].
// The dispatch loop may coalesce several sub-frames into one SendMsg call;
// the listen loop always demultiplexes one gRPC message into as many
// sub-frames as it contains.
const subFrameHeaderSize = 16 + 4

func encodeSubFrame(id RequestID, payload []byte) []byte {
	out := make([]byte, subFrameHeaderSize+len(payload))
	copy(out[0:16], id[:])
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(payload)))
	copy(out[20:], payload)
	return out
}

// decodeSubFrames splits one gRPC message into its constituent sub-frames.
func decodeSubFrames(b []byte) ([]struct {
	ID      RequestID
	Payload []byte
}, error) {
	var out []struct {
		ID      RequestID
		Payload []byte
	}
	for len(b) > 0 {
		if len(b) < subFrameHeaderSize {
			return nil, fmt.Errorf("txn: truncated sub-frame header (%d bytes left)", len(b))
		}
		var id RequestID
		copy(id[:], b[0:16])
		n := binary.LittleEndian.Uint32(b[16:20])
		b = b[20:]
		if uint32(len(b)) < n {
			return nil, fmt.Errorf("txn: truncated sub-frame payload: want %d, have %d", n, len(b))
		}
		out = append(out, struct {
			ID      RequestID
			Payload []byte
		}{ID: id, Payload: b[:n]})
		b = b[n:]
	}
	return out, nil
}
