package wlp

import (
	"log"
	"sync"

	"rtps/guid"
	"rtps/liveliness"
)

// SendReliable hands an encoded assertion to the reliability layer, which
// retries until the peers acknowledge or are declared unreachable.
type SendReliable func(payload []byte, peers []guid.Prefix) error

// Channel is the built-in liveliness writer/reader pair of one participant.
// The writer side stamps and sends participant-scoped assertions; the reader
// side decodes inbound assertions and hands them to the participant for
// multiplexing across its reader lease monitors.
//
// The channel has its own mutex and never calls into the liveliness core
// synchronously while holding it.
type Channel struct {
	prefix guid.Prefix
	send   SendReliable

	mu          sync.Mutex
	manualCount uint64
	peers       map[guid.Prefix]int
	deliver     func(Message)
}

// NewChannel constructs the channel for a participant. deliver receives
// decoded inbound assertions.
func NewChannel(prefix guid.Prefix, send SendReliable, deliver func(Message)) *Channel {
	return &Channel{
		prefix:  prefix,
		send:    send,
		deliver: deliver,
		peers:   make(map[guid.Prefix]int),
	}
}

// AddPeer records a remote participant hosting at least one matched reader.
// Peers are reference counted per matched endpoint pair.
func (c *Channel) AddPeer(prefix guid.Prefix) {
	c.mu.Lock()
	c.peers[prefix]++
	c.mu.Unlock()
}

// RemovePeer drops one reference to a remote participant.
func (c *Channel) RemovePeer(prefix guid.Prefix) {
	c.mu.Lock()
	if n := c.peers[prefix]; n <= 1 {
		delete(c.peers, prefix)
	} else {
		c.peers[prefix] = n - 1
	}
	c.mu.Unlock()
}

// Assert sends one participant-scoped assertion of the given scope to every
// peer participant. Send failures are logged and left to the reliability
// layer; they are never fatal.
func (c *Channel) Assert(kind liveliness.Kind) {
	c.mu.Lock()
	msg := Message{Prefix: c.prefix, Kind: kind}
	if kind == liveliness.ManualByParticipant {
		c.manualCount++
		msg.Count = c.manualCount
	}
	peers := make([]guid.Prefix, 0, len(c.peers))
	for peer := range c.peers {
		peers = append(peers, peer)
	}
	c.mu.Unlock()

	if len(peers) == 0 {
		return
	}
	payload, err := msg.Marshal()
	if err != nil {
		log.Fatalf("liveliness_channel_marshal_failed prefix=%s kind=%s err=%v", c.prefix, kind, err)
		return
	}
	if err := c.send(payload, peers); err != nil {
		log.Printf("liveliness_assertion_send_failed prefix=%s kind=%s err=%v", c.prefix, kind, err)
	}
}

// OnPayload decodes an inbound assertion. Undecodable payloads are dropped
// with a log line.
func (c *Channel) OnPayload(data []byte) {
	msg, err := Unmarshal(data)
	if err != nil {
		log.Printf("liveliness_assertion_decode_failed err=%v", err)
		return
	}
	c.mu.Lock()
	deliver := c.deliver
	c.mu.Unlock()
	if deliver != nil {
		deliver(msg)
	}
}
