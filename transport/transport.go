// Package transport defines the narrow surface the liveliness core consumes
// from the transport and reliability layer, plus an in-process loopback
// implementation used by the demo programs and the end-to-end tests.
package transport

import (
	"fmt"

	"rtps/guid"
	"rtps/liveliness"
)

// Reliability selects the delivery contract of an endpoint.
type Reliability int

const (
	// BestEffort delivers without retries or heartbeats.
	BestEffort Reliability = iota
	// Reliable retries until acknowledged and carries heartbeats.
	Reliable
)

func (r Reliability) String() string {
	switch r {
	case BestEffort:
		return "BEST_EFFORT"
	case Reliable:
		return "RELIABLE"
	default:
		return fmt.Sprintf("RELIABILITY(%d)", int(r))
	}
}

// ParseReliability maps the CLI and profile spellings to a Reliability.
func ParseReliability(s string) (Reliability, error) {
	switch s {
	case "BEST_EFFORT":
		return BestEffort, nil
	case "RELIABLE":
		return Reliable, nil
	}
	return 0, fmt.Errorf("unknown reliability %q", s)
}

// Link is the outbound surface of the reliability layer.
type Link interface {
	// SendReliable carries a liveliness channel assertion to the given
	// peer participants, retrying until acknowledged.
	SendReliable(payload []byte, peers []guid.Prefix) error
	// SendSample carries a user data sample from the writer to its
	// matched readers.
	SendSample(writer guid.GUID, payload []byte) error
	// SendHeartbeat issues a heartbeat on the writer's own data channel.
	// Only readers on a reliable session process heartbeats.
	SendHeartbeat(writer guid.GUID) error
}

// Node is the participant surface the transport delivers into and the
// discovery collaborator matches through.
type Node interface {
	Prefix() guid.Prefix
	// OnLivelinessPayload receives an encoded liveliness channel message.
	OnLivelinessPayload(data []byte)
	// OnSample receives a user data sample for a local reader.
	OnSample(reader, writer guid.GUID, payload []byte)
	// OnHeartbeat receives a heartbeat for a local reader.
	OnHeartbeat(reader, writer guid.GUID)
	// MatchLocalWriter reports a discovered remote reader. It returns
	// false when the QoS gate rejects the pair.
	MatchLocalWriter(local, remote guid.GUID, requested liveliness.Requested) bool
	// MatchLocalReader reports a discovered remote writer. It returns
	// false when the QoS gate rejects the pair.
	MatchLocalReader(local, remote guid.GUID, offered liveliness.Offered) bool
	UnmatchLocalWriter(local, remote guid.GUID)
	UnmatchLocalReader(local, remote guid.GUID)
}
