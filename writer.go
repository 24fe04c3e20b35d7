package rtps

import (
	"errors"
	"fmt"
	"time"

	"rtps/guid"
	"rtps/liveliness"
	"rtps/transport"
)

var errWriterClosed = errors.New("writer is closed")

// WriterListener is the capability set a writer exposes to the application.
// Callbacks run on the participant dispatcher with no core locks held.
type WriterListener struct {
	OnLivelinessLost func(liveliness.LostStatus)
}

// WriterBuilder configures a DataWriter before Init.
type WriterBuilder struct {
	p           *Participant
	topic       string
	reliability transport.Reliability
	qos         liveliness.Offered
	listener    WriterListener
}

// NewWriter starts a writer builder on the topic. Defaults: best-effort,
// automatic liveliness with an infinite lease.
func (p *Participant) NewWriter(topic string) *WriterBuilder {
	return &WriterBuilder{
		p:     p,
		topic: topic,
		qos: liveliness.Offered{
			Kind:               liveliness.Automatic,
			LeaseDuration:      liveliness.Infinite,
			AnnouncementPeriod: liveliness.Infinite,
		},
	}
}

// Reliability sets the delivery contract.
func (b *WriterBuilder) Reliability(r transport.Reliability) *WriterBuilder {
	b.reliability = r
	return b
}

// LivelinessKind sets the liveliness kind.
func (b *WriterBuilder) LivelinessKind(k liveliness.Kind) *WriterBuilder {
	b.qos.Kind = k
	return b
}

// LivelinessLeaseDuration sets the offered lease duration.
func (b *WriterBuilder) LivelinessLeaseDuration(d time.Duration) *WriterBuilder {
	b.qos.LeaseDuration = d
	return b
}

// LivelinessAnnouncementPeriod sets the announcement period.
func (b *WriterBuilder) LivelinessAnnouncementPeriod(d time.Duration) *WriterBuilder {
	b.qos.AnnouncementPeriod = d
	return b
}

// Listener sets the writer listener.
func (b *WriterBuilder) Listener(l WriterListener) *WriterBuilder {
	b.listener = l
	return b
}

// Init validates the configuration and creates the writer. Configuration
// errors are returned synchronously and leave no endpoint behind.
func (b *WriterBuilder) Init() (*DataWriter, error) {
	if b.topic == "" {
		return nil, errors.New("topic is required")
	}
	if err := b.qos.Validate(); err != nil {
		return nil, fmt.Errorf("writer on %q: %w", b.topic, err)
	}
	p := b.p

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errParticipantClosed
	}
	p.mu.Unlock()

	w := &DataWriter{
		p:           p,
		id:          p.allocateGUID(),
		topic:       b.topic,
		reliability: b.reliability,
		qos:         b.qos,
	}
	if err := p.registry.AddWriter(w.id, b.qos); err != nil {
		return nil, err
	}
	listener := b.listener
	onLost := func(status liveliness.LostStatus) {
		p.metrics.ObserveWriterLost()
		if listener.OnLivelinessLost != nil {
			listener.OnLivelinessLost(status)
		}
	}
	if err := p.announcer.RegisterWriter(w.id, b.qos, onLost); err != nil {
		p.registry.RemoveWriter(w.id)
		return nil, err
	}

	p.mu.Lock()
	p.writers[w.id] = w
	p.mu.Unlock()

	p.domain.AdvertiseWriter(p, w.id, b.topic, b.reliability, b.qos)
	return w, nil
}

// DataWriter publishes samples on one topic and advertises its liveliness
// to matched readers.
type DataWriter struct {
	p           *Participant
	id          guid.GUID
	topic       string
	reliability transport.Reliability
	qos         liveliness.Offered

	closed bool
}

// GUID returns the writer identity.
func (w *DataWriter) GUID() guid.GUID { return w.id }

// Topic returns the topic name.
func (w *DataWriter) Topic() string { return w.topic }

// Write publishes a sample. A successful write counts as a liveliness
// assertion for the writer's kind.
func (w *DataWriter) Write(payload []byte) error {
	w.p.mu.Lock()
	closed := w.closed
	w.p.mu.Unlock()
	if closed {
		return errWriterClosed
	}
	if err := w.p.domain.SendSample(w.id, payload); err != nil {
		return err
	}
	w.p.metrics.ObserveSampleWritten()
	w.p.announcer.OnSampleWritten(w.id)
	return nil
}

// AssertLiveliness forces an assertion without publishing data. It never
// blocks on the network.
func (w *DataWriter) AssertLiveliness() error {
	w.p.mu.Lock()
	closed := w.closed
	w.p.mu.Unlock()
	if closed {
		return errWriterClosed
	}
	w.p.announcer.AssertLiveliness(w.id)
	return nil
}

// LivelinessLostTotal reports the writer's cumulative lost-transition count.
func (w *DataWriter) LivelinessLostTotal() int {
	return w.p.announcer.LostTotal(w.id)
}

// Close destroys the writer: its timers are cancelled, its matches removed,
// and pending notifications for it dropped.
func (w *DataWriter) Close() {
	w.p.mu.Lock()
	if w.closed {
		w.p.mu.Unlock()
		return
	}
	w.closed = true
	delete(w.p.writers, w.id)
	w.p.mu.Unlock()

	w.p.domain.RetireWriter(w.id)
	w.p.announcer.UnregisterWriter(w.id)
	w.p.registry.RemoveWriter(w.id)
}
