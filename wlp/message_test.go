package wlp

import (
	"bytes"
	"errors"
	"testing"

	"rtps/guid"
	"rtps/liveliness"
)

func TestMessageRoundTrip(t *testing.T) {
	prefix := guid.Prefix{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c}
	msg := Message{Prefix: prefix, Kind: liveliness.ManualByParticipant, Count: 0x1122334455667788}

	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) != MessageSize {
		t.Fatalf("encoded size = %d, want %d", len(data), MessageSize)
	}
	if !bytes.Equal(data[:12], prefix[:]) {
		t.Fatalf("prefix bytes = %x", data[:12])
	}
	if data[12] != 0x02 {
		t.Fatalf("scope byte = 0x%02x, want 0x02", data[12])
	}
	// Counter is little-endian.
	wantCounter := []byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}
	if !bytes.Equal(data[13:21], wantCounter) {
		t.Fatalf("counter bytes = %x", data[13:21])
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != msg {
		t.Fatalf("round trip = %+v, want %+v", decoded, msg)
	}
}

func TestAutomaticScopeByte(t *testing.T) {
	msg := Message{Prefix: guid.Prefix{1}, Kind: liveliness.Automatic}
	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if data[12] != 0x01 {
		t.Fatalf("scope byte = 0x%02x, want 0x01", data[12])
	}
}

func TestUnmarshalIgnoresTrailingBytes(t *testing.T) {
	msg := Message{Prefix: guid.Prefix{7}, Kind: liveliness.ManualByParticipant, Count: 42}
	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	data = append(data, 0xde, 0xad, 0xbe, 0xef)

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal with trailer: %v", err)
	}
	if decoded != msg {
		t.Fatalf("decoded = %+v, want %+v", decoded, msg)
	}
}

func TestUnmarshalRejectsShortAndUnknown(t *testing.T) {
	if _, err := Unmarshal(make([]byte, MessageSize-1)); !errors.Is(err, ErrShortMessage) {
		t.Fatalf("short message: got %v", err)
	}

	data := make([]byte, MessageSize)
	data[12] = 0x7f
	if _, err := Unmarshal(data); err == nil {
		t.Fatalf("unknown scope accepted")
	}
}

func TestMarshalRejectsManualByTopic(t *testing.T) {
	msg := Message{Kind: liveliness.ManualByTopic}
	if _, err := msg.Marshal(); err == nil {
		t.Fatalf("manual-by-topic must not travel on the channel")
	}
}
