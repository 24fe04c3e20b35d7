package liveliness

import (
	"fmt"
	"log"
	"sync"
	"time"

	"rtps/guid"
)

// Emitter sends assertions out of the participant. Automatic and
// manual-by-participant assertions travel on the built-in liveliness channel;
// manual-by-topic assertions are heartbeats on the writer's own data channel.
type Emitter struct {
	AssertAutomatic           func()
	AssertManualByParticipant func()
	SendHeartbeat             func(writer guid.GUID)
}

// Announcer is the writer-side assertion engine of one participant. It owns
// the announcement schedule for every local writer and detects writer-side
// liveliness loss.
type Announcer struct {
	clock  Clock
	events *Events
	bus    *Bus
	emit   Emitter

	mu      sync.Mutex
	writers map[guid.GUID]*writerState

	autoEvent  *Event
	autoPeriod time.Duration

	mbpEvent    *Event
	mbpPeriod   time.Duration
	mbpLastEmit time.Time
	mbpPending  bool
}

type writerState struct {
	id       guid.GUID
	qos      Offered
	onLost   func(LostStatus)
	removed  bool
	alive    bool

	lastAssert time.Time
	lostTotal  int
	lostChange int

	leaseEvent *Event

	// manual-by-topic emission cadence
	lastEmit    time.Time
	emitPending bool
	emitEvent   *Event
}

// NewAnnouncer constructs the assertion engine for one participant.
func NewAnnouncer(clock Clock, events *Events, bus *Bus, emit Emitter) *Announcer {
	return &Announcer{
		clock:      clock,
		events:     events,
		bus:        bus,
		emit:       emit,
		writers:    make(map[guid.GUID]*writerState),
		autoPeriod: Infinite,
		mbpPeriod:  Infinite,
	}
}

// RegisterWriter adds a local writer to the engine. Invalid offered QoS or a
// duplicate writer id is rejected with an error and nothing is registered.
func (a *Announcer) RegisterWriter(id guid.GUID, qos Offered, onLost func(LostStatus)) error {
	if err := qos.Validate(); err != nil {
		return fmt.Errorf("writer %s: %w", id, err)
	}
	a.mu.Lock()
	if _, ok := a.writers[id]; ok {
		a.mu.Unlock()
		return fmt.Errorf("writer %s already registered", id)
	}
	w := &writerState{id: id, qos: qos, onLost: onLost}
	a.writers[id] = w
	switch qos.Kind {
	case Automatic:
		w.alive = true
		w.lastAssert = a.clock.Now()
		a.rearmAutomaticLocked()
	case ManualByParticipant:
		a.recomputeMBPPeriodLocked()
	}
	a.mu.Unlock()
	return nil
}

// UnregisterWriter removes the writer, cancels its timers and drops its
// pending notifications.
func (a *Announcer) UnregisterWriter(id guid.GUID) {
	a.mu.Lock()
	w, ok := a.writers[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.writers, id)
	w.removed = true
	w.leaseEvent.Cancel()
	w.emitEvent.Cancel()
	if w.qos.Kind == Automatic {
		a.rearmAutomaticLocked()
	}
	if w.qos.Kind == ManualByParticipant {
		a.recomputeMBPPeriodLocked()
	}
	a.mu.Unlock()
}

// OnSampleWritten records a successful sample write on the writer, which
// counts as a liveliness assertion for its kind.
func (a *Announcer) OnSampleWritten(id guid.GUID) {
	a.assert(id)
}

// AssertLiveliness forces an assertion for the writer without a data payload.
func (a *Announcer) AssertLiveliness(id guid.GUID) {
	a.assert(id)
}

// AssertParticipant asserts every manual-by-participant writer of the
// participant, as a participant-level assert call does.
func (a *Announcer) AssertParticipant() {
	now := a.clock.Now()
	a.mu.Lock()
	any := false
	for _, w := range a.writers {
		if w.qos.Kind == ManualByParticipant {
			a.refreshWriterLocked(w, now)
			any = true
		}
	}
	var emit func()
	if any {
		emit = a.requestMBPEmitLocked(now)
	}
	a.mu.Unlock()
	if emit != nil {
		emit()
	}
}

// LostTotal reports the writer's cumulative lost-transition count.
func (a *Announcer) LostTotal(id guid.GUID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.writers[id]; ok {
		return w.lostTotal
	}
	return 0
}

func (a *Announcer) assert(id guid.GUID) {
	now := a.clock.Now()
	a.mu.Lock()
	w, ok := a.writers[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	var emits []func()
	// An assertion on any writer also covers every manual-by-participant
	// writer at this participant.
	mbpTouched := false
	for _, other := range a.writers {
		if other.qos.Kind == ManualByParticipant {
			a.refreshWriterLocked(other, now)
			mbpTouched = true
		}
	}
	if mbpTouched {
		if emit := a.requestMBPEmitLocked(now); emit != nil {
			emits = append(emits, emit)
		}
	}
	switch w.qos.Kind {
	case Automatic:
		// The engine keeps automatic writers alive on its own timer.
		w.lastAssert = now
	case ManualByTopic:
		a.refreshWriterLocked(w, now)
		if emit := a.requestHeartbeatLocked(w, now); emit != nil {
			emits = append(emits, emit)
		}
	}
	a.mu.Unlock()
	for _, emit := range emits {
		emit()
	}
}

// refreshWriterLocked records an assertion on the writer and re-arms its
// lease timer. Recovery from a lost state is silent.
func (a *Announcer) refreshWriterLocked(w *writerState, now time.Time) {
	w.lastAssert = now
	w.alive = true
	if w.qos.LeaseDuration == Infinite {
		return
	}
	deadline := now.Add(w.qos.LeaseDuration)
	if w.leaseEvent == nil {
		w.leaseEvent = a.events.Schedule(deadline, func() { a.onLeaseExpired(w) })
	} else {
		w.leaseEvent.Reset(deadline)
	}
}

func (a *Announcer) onLeaseExpired(w *writerState) {
	now := a.clock.Now()
	a.mu.Lock()
	if w.removed || !w.alive {
		a.mu.Unlock()
		return
	}
	deadline := w.lastAssert.Add(w.qos.LeaseDuration)
	if now.Before(deadline) {
		w.leaseEvent.Reset(deadline)
		a.mu.Unlock()
		return
	}
	w.alive = false
	w.lostTotal++
	w.lostChange++
	log.Printf("liveliness_lost writer=%s kind=%s total=%d", w.id, w.qos.Kind, w.lostTotal)
	a.mu.Unlock()

	a.bus.Post(func() {
		a.mu.Lock()
		status := LostStatus{TotalCount: w.lostTotal, TotalCountChange: w.lostChange}
		w.lostChange = 0
		removed := w.removed
		onLost := w.onLost
		a.mu.Unlock()
		if !removed && onLost != nil {
			onLost(status)
		}
	})
}

// requestMBPEmitLocked decides whether a participant-scoped assertion goes
// out now or at the next announcement boundary. At most one deferred
// emission is in flight.
func (a *Announcer) requestMBPEmitLocked(now time.Time) func() {
	if a.mbpPeriod == Infinite {
		return nil
	}
	if now.Sub(a.mbpLastEmit) >= a.mbpPeriod || a.mbpLastEmit.IsZero() {
		a.mbpLastEmit = now
		a.mbpPending = false
		return a.emit.AssertManualByParticipant
	}
	if !a.mbpPending {
		a.mbpPending = true
		at := a.mbpLastEmit.Add(a.mbpPeriod)
		if a.mbpEvent == nil {
			a.mbpEvent = a.events.Schedule(at, a.onMBPAnnounce)
		} else {
			a.mbpEvent.Reset(at)
		}
	}
	return nil
}

func (a *Announcer) onMBPAnnounce() {
	a.mu.Lock()
	if !a.mbpPending {
		a.mu.Unlock()
		return
	}
	a.mbpPending = false
	a.mbpLastEmit = a.clock.Now()
	a.mu.Unlock()
	a.emit.AssertManualByParticipant()
}

func (a *Announcer) requestHeartbeatLocked(w *writerState, now time.Time) func() {
	if w.qos.AnnouncementPeriod == Infinite {
		return nil
	}
	if now.Sub(w.lastEmit) >= w.qos.AnnouncementPeriod || w.lastEmit.IsZero() {
		w.lastEmit = now
		w.emitPending = false
		id := w.id
		return func() { a.emit.SendHeartbeat(id) }
	}
	if !w.emitPending {
		w.emitPending = true
		at := w.lastEmit.Add(w.qos.AnnouncementPeriod)
		if w.emitEvent == nil {
			w.emitEvent = a.events.Schedule(at, func() { a.onTopicAnnounce(w) })
		} else {
			w.emitEvent.Reset(at)
		}
	}
	return nil
}

func (a *Announcer) onTopicAnnounce(w *writerState) {
	a.mu.Lock()
	if w.removed || !w.emitPending {
		a.mu.Unlock()
		return
	}
	w.emitPending = false
	w.lastEmit = a.clock.Now()
	id := w.id
	a.mu.Unlock()
	a.emit.SendHeartbeat(id)
}

// rearmAutomaticLocked recomputes the participant automatic tick as the
// minimum announcement period over automatic writers.
func (a *Announcer) rearmAutomaticLocked() {
	period := Infinite
	for _, w := range a.writers {
		if w.qos.Kind == Automatic && w.qos.AnnouncementPeriod < period {
			period = w.qos.AnnouncementPeriod
		}
	}
	a.autoPeriod = period
	if period == Infinite {
		a.autoEvent.Cancel()
		a.autoEvent = nil
		return
	}
	// First fire immediately so matched readers see the writer without
	// waiting a full period.
	at := a.clock.Now()
	if a.autoEvent == nil {
		a.autoEvent = a.events.Schedule(at, a.onAutomaticTick)
	} else {
		a.autoEvent.Reset(at)
	}
}

func (a *Announcer) onAutomaticTick() {
	now := a.clock.Now()
	a.mu.Lock()
	if a.autoPeriod == Infinite {
		a.mu.Unlock()
		return
	}
	for _, w := range a.writers {
		if w.qos.Kind == Automatic {
			w.lastAssert = now
		}
	}
	a.autoEvent.Reset(now.Add(a.autoPeriod))
	a.mu.Unlock()
	a.emit.AssertAutomatic()
}

// Close cancels every writer timer. Pending notifications are dropped by the
// bus when the participant shuts down.
func (a *Announcer) Close() {
	a.mu.Lock()
	for _, w := range a.writers {
		w.removed = true
		w.leaseEvent.Cancel()
		w.emitEvent.Cancel()
	}
	a.writers = make(map[guid.GUID]*writerState)
	a.autoEvent.Cancel()
	a.autoEvent = nil
	a.autoPeriod = Infinite
	a.mbpEvent.Cancel()
	a.mbpPending = false
	a.mu.Unlock()
}

func (a *Announcer) recomputeMBPPeriodLocked() {
	period := Infinite
	for _, w := range a.writers {
		if w.qos.Kind == ManualByParticipant && w.qos.AnnouncementPeriod < period {
			period = w.qos.AnnouncementPeriod
		}
	}
	a.mbpPeriod = period
}
