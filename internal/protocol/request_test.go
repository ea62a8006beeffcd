package protocol

import "testing"

// roundTrip encodes with encode, frames and re-parses the bytes the way a
// transport would, and hands the re-parsed Message to decode for assertions.
func roundTrip(t *testing.T, wantType uint8, encode func(*Message), decode func(*Message)) {
	t.Helper()
	req := &Message{}
	req.Init(256)
	encode(req)

	gotWords, gotType, gotSchema := req.Header()
	if gotType != wantType {
		t.Fatalf("got message type %d, want %d", gotType, wantType)
	}
	if gotSchema != SchemaVersionOne {
		t.Fatalf("got schema version %d, want %d", gotSchema, SchemaVersionOne)
	}
	_ = gotWords

	framed, err := DecodeFrame(req.FrameBytes())
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	decode(framed)
}

func TestEncodeServersRegister_RoundTrip(t *testing.T) {
	addr := Address{Host: "127.0.0.1", Port: 1729}
	roundTrip(t, RequestServersRegister,
		func(m *Message) { EncodeServersRegister(m, addr) },
		func(m *Message) {
			m.Rewind()
			host := m.getString()
			port := m.getUint16()
			if host != addr.Host || port != addr.Port {
				t.Fatalf("got %s:%d, want %s:%d", host, port, addr.Host, addr.Port)
			}
		},
	)
}

func TestEncodeServersDeregister_RoundTrip(t *testing.T) {
	addr := Address{Host: "127.0.0.1", Port: 1730}
	roundTrip(t, RequestServersDeregister,
		func(m *Message) { EncodeServersDeregister(m, addr) },
		func(m *Message) {
			m.Rewind()
			host := m.getString()
			port := m.getUint16()
			if host != addr.Host || port != addr.Port {
				t.Fatalf("got %s:%d, want %s:%d", host, port, addr.Host, addr.Port)
			}
		},
	)
}

func TestEncodeDatabaseExport_RoundTrip(t *testing.T) {
	roundTrip(t, RequestDatabaseExport,
		func(m *Message) { EncodeDatabaseExport(m, "chess") },
		func(m *Message) {
			m.Rewind()
			if got := m.getString(); got != "chess" {
				t.Fatalf("got database name %q, want %q", got, "chess")
			}
		},
	)
}

func TestEncodeDatabaseImport_RoundTrip(t *testing.T) {
	roundTrip(t, RequestDatabaseImport,
		func(m *Message) { EncodeDatabaseImport(m, "chess", "define person sub entity;") },
		func(m *Message) {
			m.Rewind()
			name := m.getString()
			schema := m.getString()
			if name != "chess" {
				t.Fatalf("got database name %q, want %q", name, "chess")
			}
			if schema != "define person sub entity;" {
				t.Fatalf("got schema %q, want the encoded definition", schema)
			}
		},
	)
}

func TestDecodeExportStreamPart_Chunk(t *testing.T) {
	resp := &Message{}
	resp.Init(64)
	resp.putUint8(0)
	resp.putBlob([]byte("part one"))
	resp.putHeader(ResponseExportStreamPart, SchemaVersionOne)
	resp.Rewind()

	part := DecodeExportStreamPart(resp)
	if part.Done {
		t.Fatalf("expected Done=false for a data chunk")
	}
	if string(part.Chunk) != "part one" {
		t.Fatalf("got chunk %q, want %q", part.Chunk, "part one")
	}
}

func TestEncodeServerVersion_RoundTrip(t *testing.T) {
	roundTrip(t, RequestServerVersion,
		func(m *Message) { EncodeServerVersion(m) },
		func(m *Message) { m.Rewind() },
	)
}

func TestDecodeServerVersion(t *testing.T) {
	resp := &Message{}
	resp.Init(64)
	resp.putString("2.28.0")
	resp.putHeader(ResponseServerVersion, SchemaVersionOne)
	resp.Rewind()

	got := DecodeServerVersion(resp)
	if got.Version != "2.28.0" {
		t.Fatalf("got version %q, want %q", got.Version, "2.28.0")
	}
}

func TestDecodeExportStreamPart_Done(t *testing.T) {
	resp := &Message{}
	resp.Init(64)
	resp.putUint8(1)
	resp.putHeader(ResponseExportStreamPart, SchemaVersionOne)
	resp.Rewind()

	part := DecodeExportStreamPart(resp)
	if !part.Done {
		t.Fatalf("expected Done=true")
	}
	if part.Chunk != nil {
		t.Fatalf("expected no chunk alongside Done, got %q", part.Chunk)
	}
}
