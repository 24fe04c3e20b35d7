// Package wlp implements the writer liveliness protocol: the built-in
// per-participant channel over which automatic and manual-by-participant
// assertions travel, and its wire format.
package wlp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"rtps/guid"
	"rtps/liveliness"
)

// Scope bytes on the wire.
const (
	scopeAutomatic           = 0x01
	scopeManualByParticipant = 0x02
)

// MessageSize is the fixed encoded size. Receivers must ignore trailing
// bytes beyond it.
const MessageSize = guid.PrefixSize + 1 + 8

var ErrShortMessage = errors.New("liveliness message too short")

// Message is one participant-scoped liveliness assertion.
type Message struct {
	Prefix guid.Prefix
	// Kind is the assertion scope: Automatic or ManualByParticipant.
	Kind liveliness.Kind
	// Count is the manual assertion counter, monotonically increasing per
	// (participant, kind). Zero when Kind is Automatic.
	Count uint64
}

// Marshal encodes the message into its fixed little-endian layout.
func (m Message) Marshal() ([]byte, error) {
	buf := make([]byte, MessageSize)
	copy(buf[:guid.PrefixSize], m.Prefix[:])
	switch m.Kind {
	case liveliness.Automatic:
		buf[guid.PrefixSize] = scopeAutomatic
	case liveliness.ManualByParticipant:
		buf[guid.PrefixSize] = scopeManualByParticipant
	default:
		return nil, fmt.Errorf("liveliness message cannot carry kind %s", m.Kind)
	}
	binary.LittleEndian.PutUint64(buf[guid.PrefixSize+1:], m.Count)
	return buf, nil
}

// Unmarshal decodes a message, ignoring any trailing bytes.
func Unmarshal(data []byte) (Message, error) {
	if len(data) < MessageSize {
		return Message{}, ErrShortMessage
	}
	var m Message
	copy(m.Prefix[:], data[:guid.PrefixSize])
	switch data[guid.PrefixSize] {
	case scopeAutomatic:
		m.Kind = liveliness.Automatic
	case scopeManualByParticipant:
		m.Kind = liveliness.ManualByParticipant
	default:
		return Message{}, fmt.Errorf("unknown liveliness scope 0x%02x", data[guid.PrefixSize])
	}
	m.Count = binary.LittleEndian.Uint64(data[guid.PrefixSize+1:])
	return m, nil
}
