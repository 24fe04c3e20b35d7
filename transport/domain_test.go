package transport

import (
	"sync"
	"testing"
	"time"

	"rtps/guid"
	"rtps/liveliness"
)

type fakeNode struct {
	prefix guid.Prefix
	accept bool

	mu              sync.Mutex
	payloads        [][]byte
	samples         []guid.GUID
	heartbeats      []guid.GUID
	readerMatches   int
	writerMatches   int
	readerUnmatches int
	writerUnmatches int
}

func newFakeNode(prefix byte) *fakeNode {
	return &fakeNode{prefix: guid.Prefix{prefix}, accept: true}
}

func (n *fakeNode) Prefix() guid.Prefix { return n.prefix }

func (n *fakeNode) OnLivelinessPayload(data []byte) {
	n.mu.Lock()
	n.payloads = append(n.payloads, append([]byte(nil), data...))
	n.mu.Unlock()
}

func (n *fakeNode) OnSample(reader, writer guid.GUID, payload []byte) {
	n.mu.Lock()
	n.samples = append(n.samples, writer)
	n.mu.Unlock()
}

func (n *fakeNode) OnHeartbeat(reader, writer guid.GUID) {
	n.mu.Lock()
	n.heartbeats = append(n.heartbeats, writer)
	n.mu.Unlock()
}

func (n *fakeNode) MatchLocalWriter(local, remote guid.GUID, requested liveliness.Requested) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.accept {
		n.writerMatches++
	}
	return n.accept
}

func (n *fakeNode) MatchLocalReader(local, remote guid.GUID, offered liveliness.Offered) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.accept {
		n.readerMatches++
	}
	return n.accept
}

func (n *fakeNode) UnmatchLocalWriter(local, remote guid.GUID) {
	n.mu.Lock()
	n.writerUnmatches++
	n.mu.Unlock()
}

func (n *fakeNode) UnmatchLocalReader(local, remote guid.GUID) {
	n.mu.Lock()
	n.readerUnmatches++
	n.mu.Unlock()
}

func (n *fakeNode) endpoint(entity uint32) guid.GUID {
	return guid.GUID{Prefix: n.prefix, Entity: guid.EntityFromIndex(entity)}
}

var testOffered = liveliness.Offered{
	Kind:               liveliness.Automatic,
	LeaseDuration:      20 * time.Millisecond,
	AnnouncementPeriod: 10 * time.Millisecond,
}

var testRequested = liveliness.Requested{
	Kind:          liveliness.Automatic,
	LeaseDuration: 20 * time.Millisecond,
}

func TestDomainMatchesByTopic(t *testing.T) {
	domain := NewDomain()
	pub := newFakeNode(1)
	sub := newFakeNode(2)
	domain.AttachParticipant(pub)
	domain.AttachParticipant(sub)

	writer := pub.endpoint(1)
	reader := sub.endpoint(1)
	other := sub.endpoint(2)
	domain.AdvertiseWriter(pub, writer, "topic-a", Reliable, testOffered)
	domain.AdvertiseReader(sub, reader, "topic-a", Reliable, testRequested)
	domain.AdvertiseReader(sub, other, "topic-b", Reliable, testRequested)

	if pub.writerMatches != 1 || sub.readerMatches != 1 {
		t.Fatalf("matches = %d writer, %d reader; want 1, 1", pub.writerMatches, sub.readerMatches)
	}

	if err := domain.SendSample(writer, []byte("x")); err != nil {
		t.Fatalf("send sample: %v", err)
	}
	if len(sub.samples) != 1 {
		t.Fatalf("samples delivered = %d, want 1", len(sub.samples))
	}
}

func TestReliableReaderIgnoresBestEffortWriter(t *testing.T) {
	domain := NewDomain()
	pub := newFakeNode(1)
	sub := newFakeNode(2)
	domain.AttachParticipant(pub)
	domain.AttachParticipant(sub)

	domain.AdvertiseWriter(pub, pub.endpoint(1), "topic", BestEffort, testOffered)
	domain.AdvertiseReader(sub, sub.endpoint(1), "topic", Reliable, testRequested)

	if pub.writerMatches != 0 || sub.readerMatches != 0 {
		t.Fatalf("best-effort writer matched a reliable reader")
	}
}

func TestHeartbeatOnlyReachesReliableSessions(t *testing.T) {
	domain := NewDomain()
	pub := newFakeNode(1)
	reliable := newFakeNode(2)
	bestEffort := newFakeNode(3)
	domain.AttachParticipant(pub)
	domain.AttachParticipant(reliable)
	domain.AttachParticipant(bestEffort)

	writer := pub.endpoint(1)
	domain.AdvertiseWriter(pub, writer, "topic", Reliable, testOffered)
	domain.AdvertiseReader(reliable, reliable.endpoint(1), "topic", Reliable, testRequested)
	domain.AdvertiseReader(bestEffort, bestEffort.endpoint(1), "topic", BestEffort, testRequested)

	if err := domain.SendHeartbeat(writer); err != nil {
		t.Fatalf("send heartbeat: %v", err)
	}
	if len(reliable.heartbeats) != 1 {
		t.Fatalf("reliable reader heartbeats = %d, want 1", len(reliable.heartbeats))
	}
	if len(bestEffort.heartbeats) != 0 {
		t.Fatalf("best-effort reader observed a heartbeat")
	}

	// Samples reach both.
	if err := domain.SendSample(writer, []byte("x")); err != nil {
		t.Fatalf("send sample: %v", err)
	}
	if len(reliable.samples) != 1 || len(bestEffort.samples) != 1 {
		t.Fatalf("samples = %d, %d; want 1, 1", len(reliable.samples), len(bestEffort.samples))
	}
}

func TestRejectedMatchLeavesNoSession(t *testing.T) {
	domain := NewDomain()
	pub := newFakeNode(1)
	sub := newFakeNode(2)
	sub.accept = false
	domain.AttachParticipant(pub)
	domain.AttachParticipant(sub)

	writer := pub.endpoint(1)
	domain.AdvertiseWriter(pub, writer, "topic", Reliable, testOffered)
	domain.AdvertiseReader(sub, sub.endpoint(1), "topic", Reliable, testRequested)

	// The accepting side is rolled back when the peer rejects.
	if pub.writerUnmatches != 1 {
		t.Fatalf("writer unmatches = %d, want rollback", pub.writerUnmatches)
	}
	if err := domain.SendSample(writer, []byte("x")); err != nil {
		t.Fatalf("send sample: %v", err)
	}
	if len(sub.samples) != 0 {
		t.Fatalf("rejected pair received data")
	}
}

func TestRetireWriterUnmatchesBothSides(t *testing.T) {
	domain := NewDomain()
	pub := newFakeNode(1)
	sub := newFakeNode(2)
	domain.AttachParticipant(pub)
	domain.AttachParticipant(sub)

	writer := pub.endpoint(1)
	domain.AdvertiseWriter(pub, writer, "topic", Reliable, testOffered)
	domain.AdvertiseReader(sub, sub.endpoint(1), "topic", Reliable, testRequested)

	domain.RetireWriter(writer)
	if pub.writerUnmatches != 1 || sub.readerUnmatches != 1 {
		t.Fatalf("unmatches = %d writer, %d reader; want 1, 1", pub.writerUnmatches, sub.readerUnmatches)
	}
	if err := domain.SendSample(writer, []byte("x")); err == nil {
		t.Fatalf("retired writer still sends")
	}
}

func TestSendReliableReachesNamedPeers(t *testing.T) {
	domain := NewDomain()
	a := newFakeNode(1)
	b := newFakeNode(2)
	c := newFakeNode(3)
	domain.AttachParticipant(a)
	domain.AttachParticipant(b)
	domain.AttachParticipant(c)

	payload := []byte{0xab}
	if err := domain.SendReliable(payload, []guid.Prefix{b.Prefix()}); err != nil {
		t.Fatalf("send reliable: %v", err)
	}
	if len(b.payloads) != 1 || len(a.payloads) != 0 || len(c.payloads) != 0 {
		t.Fatalf("payloads = %d/%d/%d", len(a.payloads), len(b.payloads), len(c.payloads))
	}
}
