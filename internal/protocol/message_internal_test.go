package protocol

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"unsafe"
)

func assertEqual(t *testing.T, expected, actual any) {
	t.Helper()
	if expected == nil || actual == nil {
		if expected != actual {
			t.Fatal(expected, actual)
		}
	}

	if !reflect.DeepEqual(expected, actual) {
		t.Fatal(expected, actual)
	}
}

func TestMessage_StaticBytesAlignment(t *testing.T) {
	message := Message{}
	message.Init(4096)
	pointer := uintptr(unsafe.Pointer(&message.body.Bytes[0]))
	assertEqual(t, uintptr(0), pointer%messageWordSize)
}

func TestMessage_putBlob(t *testing.T) {
	cases := []struct {
		Blob   []byte
		Offset int
	}{
		{[]byte{1, 2, 3, 4, 5}, 16},
		{[]byte{1, 2, 3, 4, 5, 6, 7, 8}, 16},
		{[]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 24},
	}

	message := Message{}
	message.Init(64)

	for _, c := range cases {
		t.Run(fmt.Sprintf("%d", c.Offset), func(t *testing.T) {
			message.putBlob(c.Blob)

			bytes, offset := message.Body()

			assertEqual(t, bytes[8:len(c.Blob)+8], c.Blob)
			assertEqual(t, offset, c.Offset)

			message.reset()
		})
	}
}

func TestMessage_putString(t *testing.T) {
	cases := []struct {
		String string
		Offset int
	}{
		{"hello", 8},
		{"hello!!", 8},
		{"hello world", 16},
	}

	message := Message{}
	message.Init(16)

	for _, c := range cases {
		t.Run(c.String, func(t *testing.T) {
			message.putString(c.String)

			bytes, offset := message.Body()

			assertEqual(t, string(bytes[:len(c.String)]), c.String)
			assertEqual(t, offset, c.Offset)

			message.reset()
		})
	}
}

func TestMessage_putUint8(t *testing.T) {
	message := Message{}
	message.Init(8)

	v := uint8(12)

	message.putUint8(v)

	bytes, offset := message.Body()

	assertEqual(t, bytes[0], byte(v))

	assertEqual(t, offset, 1)
}

func TestMessage_putUint16(t *testing.T) {
	message := Message{}
	message.Init(8)

	v := uint16(666)

	message.putUint16(v)

	bytes, offset := message.Body()

	assertEqual(t, bytes[0], byte((v & 0x00ff)))
	assertEqual(t, bytes[1], byte((v&0xff00)>>8))

	assertEqual(t, offset, 2)
}

func TestMessage_putUint32(t *testing.T) {
	message := Message{}
	message.Init(8)

	v := uint32(130000)

	message.putUint32(v)

	bytes, offset := message.Body()

	assertEqual(t, bytes[0], byte((v & 0x000000ff)))
	assertEqual(t, bytes[1], byte((v&0x0000ff00)>>8))
	assertEqual(t, bytes[2], byte((v&0x00ff0000)>>16))
	assertEqual(t, bytes[3], byte((v&0xff000000)>>24))

	assertEqual(t, offset, 4)
}

func TestMessage_putUint64(t *testing.T) {
	message := Message{}
	message.Init(8)

	v := uint64(5000000000)

	message.putUint64(v)

	bytes, offset := message.Body()

	assertEqual(t, bytes[0], byte((v & 0x00000000000000ff)))
	assertEqual(t, bytes[1], byte((v&0x000000000000ff00)>>8))
	assertEqual(t, bytes[2], byte((v&0x0000000000ff0000)>>16))
	assertEqual(t, bytes[3], byte((v&0x00000000ff000000)>>24))
	assertEqual(t, bytes[4], byte((v&0x000000ff00000000)>>32))
	assertEqual(t, bytes[5], byte((v&0x0000ff0000000000)>>40))
	assertEqual(t, bytes[6], byte((v&0x00ff000000000000)>>48))
	assertEqual(t, bytes[7], byte((v&0xff00000000000000)>>56))

	assertEqual(t, offset, 8)
}

func TestMessage_putHeader(t *testing.T) {
	message := Message{}
	message.Init(64)

	message.putString("hello")
	message.putHeader(RequestTransactionQuery, SchemaVersionOne)

	words, mtype, schema := message.Header()
	assertEqual(t, mtype, uint8(RequestTransactionQuery))
	assertEqual(t, schema, uint8(SchemaVersionOne))
	if words == 0 {
		t.Fatal("expected a non-zero word count after putString")
	}
}

func BenchmarkMessage_putString(b *testing.B) {
	message := Message{}
	message.Init(4096)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		message.reset()
		message.putString("hello")
	}
}

func BenchmarkMessage_putUint64(b *testing.B) {
	message := Message{}
	message.Init(4096)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		message.reset()
		message.putUint64(270)
	}
}

func TestMessage_getString(t *testing.T) {
	cases := []struct {
		String string
		Offset int
	}{
		{"hello", 8},
		{"hello!!", 8},
		{"hello!!!", 16},
		{"hello world", 16},
	}

	for _, c := range cases {
		t.Run(c.String, func(t *testing.T) {
			message := Message{}
			message.Init(16)

			message.putString(c.String)
			message.putHeader(0, 0)

			message.Rewind()

			s := message.getString()

			_, offset := message.Body()

			assertEqual(t, s, c.String)
			assertEqual(t, offset, c.Offset)
		})
	}
}

func TestMessage_getBlob(t *testing.T) {
	cases := []struct {
		Blob   []byte
		Offset int
	}{
		{[]byte{1, 2, 3, 4, 5}, 16},
		{[]byte{1, 2, 3, 4, 5, 6, 7, 8}, 16},
		{[]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 24},
	}

	for _, c := range cases {
		t.Run(fmt.Sprintf("%d", c.Offset), func(t *testing.T) {
			message := Message{}
			message.Init(64)

			message.putBlob(c.Blob)
			message.putHeader(0, 0)

			message.Rewind()

			bytes := message.getBlob()

			_, offset := message.Body()

			assertEqual(t, bytes, c.Blob)
			assertEqual(t, offset, c.Offset)
		})
	}
}

// The overflowing string ends exactly at word boundary.
func TestMessage_getString_Overflow_WordBoundary(t *testing.T) {
	message := Message{}
	message.Init(8)

	message.putBlob([]byte{
		'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h',
		'i', 'l', 'm', 'n', 'o', 'p', 'q', 'r',
		0, 0, 0, 0, 0, 0, 0,
	})
	message.putHeader(0, 0)

	message.Rewind()
	message.getUint64()

	s := message.getString()
	assertEqual(t, "abcdefghilmnopqr", s)

	assertEqual(t, 32, message.body.Offset)
}

func TestMessage_getTimeZone_RecognizedIANAName(t *testing.T) {
	message := Message{}
	message.Init(64)
	message.putTimeZone(IANAZone("Europe/London"))
	message.putHeader(0, 0)

	message.Rewind()

	zone, err := message.getTimeZone()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zone.IANAName != "Europe/London" {
		t.Fatalf("expected Europe/London, got %q", zone.IANAName)
	}
}

func TestMessage_getTimeZone_UnrecognizedIANAName(t *testing.T) {
	message := Message{}
	message.Init(64)
	message.putTimeZone(IANAZone("Not/AZone"))
	message.putHeader(0, 0)

	message.Rewind()

	_, err := message.getTimeZone()
	if !errors.Is(err, ErrTimeZoneNameUnrecognised) {
		t.Fatalf("expected ErrTimeZoneNameUnrecognised, got %v", err)
	}
}
