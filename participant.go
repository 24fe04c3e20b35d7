// Package rtps is the application surface of the middleware: participants
// own the liveliness machinery and hand out data writers and readers with
// chainable QoS builders.
package rtps

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"rtps/guid"
	"rtps/liveliness"
	"rtps/metrics"
	"rtps/registry"
	"rtps/transport"
	"rtps/wlp"
)

var errMissingDomain = errors.New("domain is required")
var errParticipantClosed = errors.New("participant is closed")

// Config defines Participant configuration.
type Config struct {
	// Name labels the participant in logs and metrics.
	Name string
	// Domain is the transport and discovery collaborator.
	Domain *transport.Domain
	// Clock defaults to the system clock.
	Clock liveliness.Clock
	// Metrics is optional.
	Metrics *metrics.Registry
}

// Participant is a self-contained middleware participant with explicit
// lifetime. It owns the built-in liveliness channel, the writer assertion
// engine, the endpoint registry, and the notification dispatcher.
type Participant struct {
	name    string
	prefix  guid.Prefix
	domain  *transport.Domain
	clock   liveliness.Clock
	metrics *metrics.Registry

	events    *liveliness.Events
	bus       *liveliness.Bus
	announcer *liveliness.Announcer
	registry  *registry.Registry
	channel   *wlp.Channel

	cancel context.CancelFunc

	mu         sync.Mutex
	nextEntity uint32
	writers    map[guid.GUID]*DataWriter
	readers    map[guid.GUID]*DataReader
	closed     bool
}

// NewParticipant constructs a participant and attaches it to the domain.
func NewParticipant(cfg Config) (*Participant, error) {
	if cfg.Domain == nil {
		return nil, errMissingDomain
	}
	clock := cfg.Clock
	if clock.Now == nil {
		clock = liveliness.SystemClock()
	}
	name := cfg.Name
	if name == "" {
		name = "participant"
	}

	p := &Participant{
		name:    name,
		prefix:  guid.NewPrefix(),
		domain:  cfg.Domain,
		clock:   clock,
		metrics: cfg.Metrics,
		writers: make(map[guid.GUID]*DataWriter),
		readers: make(map[guid.GUID]*DataReader),
	}
	p.events = liveliness.NewEvents(clock)
	p.bus = liveliness.NewBus()
	p.channel = wlp.NewChannel(p.prefix, p.domain.SendReliable, p.onChannelMessage)
	p.announcer = liveliness.NewAnnouncer(clock, p.events, p.bus, liveliness.Emitter{
		AssertAutomatic: func() {
			p.metrics.ObserveAssertionSent(true)
			p.channel.Assert(liveliness.Automatic)
		},
		AssertManualByParticipant: func() {
			p.metrics.ObserveAssertionSent(false)
			p.channel.Assert(liveliness.ManualByParticipant)
		},
		SendHeartbeat: func(writer guid.GUID) {
			p.metrics.ObserveHeartbeatSent()
			if err := p.domain.SendHeartbeat(writer); err != nil {
				log.Printf("heartbeat_send_failed writer=%s err=%v", writer, err)
			}
		},
	})
	p.registry = registry.New(registry.Hooks{
		ReaderMatched:   p.onReaderMatched,
		ReaderUnmatched: p.onReaderUnmatched,
		WriterMatched:   p.onWriterMatched,
		WriterUnmatched: p.onWriterUnmatched,
		Incompatible: func(local, remote guid.GUID, reason string) {
			p.metrics.ObserveMatch(false)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.events.Run(ctx)
	go p.bus.Run(ctx)

	p.domain.AttachParticipant(p)
	return p, nil
}

// Prefix returns the participant identifier.
func (p *Participant) Prefix() guid.Prefix { return p.prefix }

// Name returns the participant label.
func (p *Participant) Name() string { return p.name }

// Metrics returns the participant metrics registry, which may be nil.
func (p *Participant) Metrics() *metrics.Registry { return p.metrics }

// AssertLiveliness asserts every manual-by-participant writer of this
// participant.
func (p *Participant) AssertLiveliness() {
	p.announcer.AssertParticipant()
}

// Close destroys all endpoints, cancels timers and drops pending
// notifications. It is safe to call more than once.
func (p *Participant) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	writers := make([]*DataWriter, 0, len(p.writers))
	for _, w := range p.writers {
		writers = append(writers, w)
	}
	readers := make([]*DataReader, 0, len(p.readers))
	for _, r := range p.readers {
		readers = append(readers, r)
	}
	p.mu.Unlock()

	for _, w := range writers {
		w.Close()
	}
	for _, r := range readers {
		r.Close()
	}
	p.domain.DetachParticipant(p)
	p.announcer.Close()
	p.bus.Close()
	p.events.Close()
	p.cancel()
}

func (p *Participant) allocateGUID() guid.GUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextEntity++
	return guid.GUID{Prefix: p.prefix, Entity: guid.EntityFromIndex(p.nextEntity)}
}

// onChannelMessage multiplexes an inbound participant-scoped assertion
// across every local reader lease monitor.
func (p *Participant) onChannelMessage(msg wlp.Message) {
	p.metrics.ObserveAssertionReceived()
	for _, monitor := range p.monitors() {
		monitor.AssertParticipant(msg.Prefix, msg.Kind)
	}
}

func (p *Participant) monitors() []*liveliness.Monitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*liveliness.Monitor, 0, len(p.readers))
	for _, r := range p.readers {
		out = append(out, r.monitor)
	}
	return out
}

func (p *Participant) monitorOf(reader guid.GUID) *liveliness.Monitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.readers[reader]; ok {
		return r.monitor
	}
	return nil
}

func (p *Participant) onReaderMatched(reader, writer guid.GUID, kind liveliness.Kind, lease time.Duration) {
	p.metrics.ObserveMatch(true)
	if monitor := p.monitorOf(reader); monitor != nil {
		monitor.AddWriter(writer, kind, lease)
	}
}

func (p *Participant) onReaderUnmatched(reader, writer guid.GUID) {
	if monitor := p.monitorOf(reader); monitor != nil {
		monitor.RemoveWriter(writer)
	}
}

func (p *Participant) onWriterMatched(writer guid.GUID, readerPrefix guid.Prefix) {
	p.metrics.ObserveMatch(true)
	p.channel.AddPeer(readerPrefix)
}

func (p *Participant) onWriterUnmatched(writer guid.GUID, readerPrefix guid.Prefix) {
	p.channel.RemovePeer(readerPrefix)
}

// OnLivelinessPayload implements transport.Node.
func (p *Participant) OnLivelinessPayload(data []byte) {
	p.channel.OnPayload(data)
}

// OnSample implements transport.Node: sample receipt counts as an assertion
// for the sending writer before the data reaches the application.
func (p *Participant) OnSample(reader, writer guid.GUID, payload []byte) {
	p.metrics.ObserveAssertionReceived()
	p.mu.Lock()
	r, ok := p.readers[reader]
	p.mu.Unlock()
	if !ok {
		return
	}
	r.monitor.Assert(writer)
	r.deliverData(writer, payload)
}

// OnHeartbeat implements transport.Node.
func (p *Participant) OnHeartbeat(reader, writer guid.GUID) {
	p.metrics.ObserveAssertionReceived()
	if monitor := p.monitorOf(reader); monitor != nil {
		monitor.Assert(writer)
	}
}

// MatchLocalWriter implements transport.Node.
func (p *Participant) MatchLocalWriter(local, remote guid.GUID, requested liveliness.Requested) bool {
	ok, err := p.registry.MatchWriter(local, remote, requested)
	if err != nil {
		return false
	}
	return ok
}

// MatchLocalReader implements transport.Node.
func (p *Participant) MatchLocalReader(local, remote guid.GUID, offered liveliness.Offered) bool {
	ok, err := p.registry.MatchReader(local, remote, offered)
	if err != nil {
		return false
	}
	return ok
}

// UnmatchLocalWriter implements transport.Node.
func (p *Participant) UnmatchLocalWriter(local, remote guid.GUID) {
	p.registry.UnmatchWriter(local, remote)
}

// UnmatchLocalReader implements transport.Node.
func (p *Participant) UnmatchLocalReader(local, remote guid.GUID) {
	p.registry.UnmatchReader(local, remote)
}
