package rtps

import (
	"errors"
	"fmt"
	"time"

	"rtps/guid"
	"rtps/liveliness"
	"rtps/transport"
)

// ReaderListener is the capability set a reader exposes to the application.
// Callbacks run on the participant dispatcher with no core locks held.
type ReaderListener struct {
	OnLivelinessChanged func(liveliness.ChangedStatus)
	OnData              func(writer guid.GUID, payload []byte)
}

// ReaderBuilder configures a DataReader before Init.
type ReaderBuilder struct {
	p           *Participant
	topic       string
	reliability transport.Reliability
	qos         liveliness.Requested
	listener    ReaderListener
}

// NewReader starts a reader builder on the topic. Defaults: best-effort,
// automatic liveliness with an infinite lease.
func (p *Participant) NewReader(topic string) *ReaderBuilder {
	return &ReaderBuilder{
		p:     p,
		topic: topic,
		qos: liveliness.Requested{
			Kind:          liveliness.Automatic,
			LeaseDuration: liveliness.Infinite,
		},
	}
}

// Reliability sets the delivery contract.
func (b *ReaderBuilder) Reliability(r transport.Reliability) *ReaderBuilder {
	b.reliability = r
	return b
}

// LivelinessKind sets the requested liveliness kind.
func (b *ReaderBuilder) LivelinessKind(k liveliness.Kind) *ReaderBuilder {
	b.qos.Kind = k
	return b
}

// LivelinessLeaseDuration sets the requested lease duration.
func (b *ReaderBuilder) LivelinessLeaseDuration(d time.Duration) *ReaderBuilder {
	b.qos.LeaseDuration = d
	return b
}

// Listener sets the reader listener.
func (b *ReaderBuilder) Listener(l ReaderListener) *ReaderBuilder {
	b.listener = l
	return b
}

// Init validates the configuration and creates the reader. Configuration
// errors are returned synchronously and leave no endpoint behind.
func (b *ReaderBuilder) Init() (*DataReader, error) {
	if b.topic == "" {
		return nil, errors.New("topic is required")
	}
	if err := b.qos.Validate(); err != nil {
		return nil, fmt.Errorf("reader on %q: %w", b.topic, err)
	}
	p := b.p

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errParticipantClosed
	}
	p.mu.Unlock()

	r := &DataReader{
		p:           p,
		id:          p.allocateGUID(),
		topic:       b.topic,
		reliability: b.reliability,
		qos:         b.qos,
		listener:    b.listener,
	}
	notify := func(status liveliness.ChangedStatus) {
		for i := 0; i < status.AliveCountChange; i++ {
			p.metrics.ObserveLeaseTransition(true)
		}
		for i := 0; i < status.NotAliveCountChange; i++ {
			p.metrics.ObserveLeaseTransition(false)
		}
		if r.listener.OnLivelinessChanged != nil {
			r.listener.OnLivelinessChanged(status)
		}
	}
	r.monitor = liveliness.NewMonitor(r.id, p.clock, p.events, p.bus, notify)
	if err := p.registry.AddReader(r.id, b.qos); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.readers[r.id] = r
	p.mu.Unlock()

	p.domain.AdvertiseReader(p, r.id, b.topic, b.reliability, b.qos)
	return r, nil
}

// DataReader consumes samples on one topic and monitors the liveliness of
// its matched writers.
type DataReader struct {
	p           *Participant
	id          guid.GUID
	topic       string
	reliability transport.Reliability
	qos         liveliness.Requested
	listener    ReaderListener
	monitor     *liveliness.Monitor

	closed bool
}

// GUID returns the reader identity.
func (r *DataReader) GUID() guid.GUID { return r.id }

// Topic returns the topic name.
func (r *DataReader) Topic() string { return r.topic }

// LivelinessCounts reports the current alive and not-alive matched writer
// counts.
func (r *DataReader) LivelinessCounts() (alive, notAlive int) {
	return r.monitor.Counts()
}

// deliverData hands a sample to the application listener on the dispatcher.
func (r *DataReader) deliverData(writer guid.GUID, payload []byte) {
	if r.listener.OnData == nil {
		return
	}
	r.p.bus.Post(func() {
		r.p.mu.Lock()
		closed := r.closed
		r.p.mu.Unlock()
		if !closed {
			r.listener.OnData(writer, payload)
		}
	})
}

// Close destroys the reader: its lease entries are removed, its timer
// cancelled, and pending notifications for it dropped.
func (r *DataReader) Close() {
	r.p.mu.Lock()
	if r.closed {
		r.p.mu.Unlock()
		return
	}
	r.closed = true
	delete(r.p.readers, r.id)
	r.p.mu.Unlock()

	r.p.domain.RetireReader(r.id)
	r.p.registry.RemoveReader(r.id)
	r.monitor.Close()
}
