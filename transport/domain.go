package transport

import (
	"errors"
	"sync"

	"rtps/guid"
	"rtps/liveliness"
)

var errUnknownWriter = errors.New("writer is not advertised")

// Domain is an in-process loopback standing in for the external discovery
// and transport collaborators: it matches endpoints by topic name, delivers
// samples and liveliness payloads synchronously, and honors the reliability
// contract for heartbeats.
type Domain struct {
	mu           sync.Mutex
	participants map[guid.Prefix]Node
	writers      map[guid.GUID]*advertised
	readers      map[guid.GUID]*advertised
	// sessions maps a matched (writer, reader) pair to its reliability.
	sessions map[pair]Reliability
}

type advertised struct {
	node        Node
	topic       string
	reliability Reliability
	offered     liveliness.Offered
	requested   liveliness.Requested
}

type pair struct {
	writer guid.GUID
	reader guid.GUID
}

// NewDomain constructs an empty loopback domain.
func NewDomain() *Domain {
	return &Domain{
		participants: make(map[guid.Prefix]Node),
		writers:      make(map[guid.GUID]*advertised),
		readers:      make(map[guid.GUID]*advertised),
		sessions:     make(map[pair]Reliability),
	}
}

// AttachParticipant makes a participant reachable in the domain.
func (d *Domain) AttachParticipant(n Node) {
	d.mu.Lock()
	d.participants[n.Prefix()] = n
	d.mu.Unlock()
}

// DetachParticipant removes the participant and retires its endpoints.
func (d *Domain) DetachParticipant(n Node) {
	prefix := n.Prefix()
	d.mu.Lock()
	delete(d.participants, prefix)
	var retireWriters, retireReaders []guid.GUID
	for id := range d.writers {
		if id.Prefix == prefix {
			retireWriters = append(retireWriters, id)
		}
	}
	for id := range d.readers {
		if id.Prefix == prefix {
			retireReaders = append(retireReaders, id)
		}
	}
	d.mu.Unlock()
	for _, id := range retireWriters {
		d.RetireWriter(id)
	}
	for _, id := range retireReaders {
		d.RetireReader(id)
	}
}

// AdvertiseWriter announces a local writer and matches it against every
// advertised reader on the same topic. A reliable reader never matches a
// best-effort writer.
func (d *Domain) AdvertiseWriter(n Node, id guid.GUID, topic string, rel Reliability, offered liveliness.Offered) {
	d.mu.Lock()
	d.writers[id] = &advertised{node: n, topic: topic, reliability: rel, offered: offered}
	candidates := make(map[guid.GUID]*advertised)
	for readerID, reader := range d.readers {
		if reader.topic == topic && !(reader.reliability == Reliable && rel == BestEffort) {
			candidates[readerID] = reader
		}
	}
	d.mu.Unlock()
	for readerID, reader := range candidates {
		d.match(id, readerID, reader)
	}
}

// AdvertiseReader announces a local reader and matches it against every
// advertised writer on the same topic.
func (d *Domain) AdvertiseReader(n Node, id guid.GUID, topic string, rel Reliability, requested liveliness.Requested) {
	d.mu.Lock()
	reader := &advertised{node: n, topic: topic, reliability: rel, requested: requested}
	d.readers[id] = reader
	candidates := make([]guid.GUID, 0)
	for writerID, writer := range d.writers {
		if writer.topic == topic && !(rel == Reliable && writer.reliability == BestEffort) {
			candidates = append(candidates, writerID)
		}
	}
	d.mu.Unlock()
	for _, writerID := range candidates {
		d.match(writerID, id, reader)
	}
}

func (d *Domain) match(writerID, readerID guid.GUID, reader *advertised) {
	d.mu.Lock()
	writer, ok := d.writers[writerID]
	if !ok {
		d.mu.Unlock()
		return
	}
	if _, exists := d.sessions[pair{writerID, readerID}]; exists {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	// Both endpoint registries must accept the pair; the liveliness QoS
	// gate runs inside each participant.
	writerOK := writer.node.MatchLocalWriter(writerID, readerID, reader.requested)
	readerOK := reader.node.MatchLocalReader(readerID, writerID, writer.offered)
	if !writerOK || !readerOK {
		if writerOK {
			writer.node.UnmatchLocalWriter(writerID, readerID)
		}
		if readerOK {
			reader.node.UnmatchLocalReader(readerID, writerID)
		}
		return
	}

	session := BestEffort
	if writer.reliability == Reliable && reader.reliability == Reliable {
		session = Reliable
	}
	d.mu.Lock()
	d.sessions[pair{writerID, readerID}] = session
	d.mu.Unlock()
}

// RetireWriter withdraws the writer and unmatches its sessions.
func (d *Domain) RetireWriter(id guid.GUID) {
	d.mu.Lock()
	writer, ok := d.writers[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.writers, id)
	var readers []guid.GUID
	for p := range d.sessions {
		if p.writer == id {
			readers = append(readers, p.reader)
			delete(d.sessions, p)
		}
	}
	targets := make([]*advertised, 0, len(readers))
	for _, readerID := range readers {
		if reader, ok := d.readers[readerID]; ok {
			targets = append(targets, reader)
		} else {
			targets = append(targets, nil)
		}
	}
	d.mu.Unlock()
	for i, readerID := range readers {
		writer.node.UnmatchLocalWriter(id, readerID)
		if targets[i] != nil {
			targets[i].node.UnmatchLocalReader(readerID, id)
		}
	}
}

// RetireReader withdraws the reader and unmatches its sessions.
func (d *Domain) RetireReader(id guid.GUID) {
	d.mu.Lock()
	reader, ok := d.readers[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.readers, id)
	var writers []guid.GUID
	for p := range d.sessions {
		if p.reader == id {
			writers = append(writers, p.writer)
			delete(d.sessions, p)
		}
	}
	targets := make([]*advertised, 0, len(writers))
	for _, writerID := range writers {
		if writer, ok := d.writers[writerID]; ok {
			targets = append(targets, writer)
		} else {
			targets = append(targets, nil)
		}
	}
	d.mu.Unlock()
	for i, writerID := range writers {
		reader.node.UnmatchLocalReader(id, writerID)
		if targets[i] != nil {
			targets[i].node.UnmatchLocalWriter(writerID, id)
		}
	}
}

// SendReliable delivers a liveliness channel payload to each peer
// participant. The loopback acknowledges synchronously, so no retry state is
// kept.
func (d *Domain) SendReliable(payload []byte, peers []guid.Prefix) error {
	d.mu.Lock()
	nodes := make([]Node, 0, len(peers))
	for _, peer := range peers {
		if n, ok := d.participants[peer]; ok {
			nodes = append(nodes, n)
		}
	}
	d.mu.Unlock()
	for _, n := range nodes {
		n.OnLivelinessPayload(payload)
	}
	return nil
}

// SendSample delivers a user data sample to every matched reader.
func (d *Domain) SendSample(writer guid.GUID, payload []byte) error {
	d.mu.Lock()
	if _, ok := d.writers[writer]; !ok {
		d.mu.Unlock()
		return errUnknownWriter
	}
	type target struct {
		node   Node
		reader guid.GUID
	}
	targets := make([]target, 0)
	for p := range d.sessions {
		if p.writer != writer {
			continue
		}
		if reader, ok := d.readers[p.reader]; ok {
			targets = append(targets, target{node: reader.node, reader: p.reader})
		}
	}
	d.mu.Unlock()
	for _, t := range targets {
		t.node.OnSample(t.reader, writer, payload)
	}
	return nil
}

// SendHeartbeat delivers a heartbeat to matched readers on reliable
// sessions only. Best-effort readers never observe it.
func (d *Domain) SendHeartbeat(writer guid.GUID) error {
	d.mu.Lock()
	if _, ok := d.writers[writer]; !ok {
		d.mu.Unlock()
		return errUnknownWriter
	}
	type target struct {
		node   Node
		reader guid.GUID
	}
	targets := make([]target, 0)
	for p, session := range d.sessions {
		if p.writer != writer || session != Reliable {
			continue
		}
		if reader, ok := d.readers[p.reader]; ok {
			targets = append(targets, target{node: reader.node, reader: p.reader})
		}
	}
	d.mu.Unlock()
	for _, t := range targets {
		t.node.OnHeartbeat(t.reader, writer)
	}
	return nil
}
