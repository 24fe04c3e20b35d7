package liveliness

import (
	"context"
	"sync"
	"testing"
	"time"

	"rtps/guid"
)

type emitRecorder struct {
	mu         sync.Mutex
	automatic  int
	manual     int
	heartbeats []guid.GUID
}

func (r *emitRecorder) emitter() Emitter {
	return Emitter{
		AssertAutomatic: func() {
			r.mu.Lock()
			r.automatic++
			r.mu.Unlock()
		},
		AssertManualByParticipant: func() {
			r.mu.Lock()
			r.manual++
			r.mu.Unlock()
		},
		SendHeartbeat: func(writer guid.GUID) {
			r.mu.Lock()
			r.heartbeats = append(r.heartbeats, writer)
			r.mu.Unlock()
		},
	}
}

func (r *emitRecorder) manualCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manual
}

func (r *emitRecorder) automaticCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.automatic
}

func (r *emitRecorder) heartbeatCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.heartbeats)
}

type lostRecorder struct {
	mu       sync.Mutex
	statuses []LostStatus
}

func (r *lostRecorder) onLost(status LostStatus) {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
}

func (r *lostRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func newTestAnnouncer(t *testing.T, clock *fakeClock, recorder *emitRecorder) *Announcer {
	t.Helper()
	events := startEvents(t, clock)
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		bus.Close()
		cancel()
		<-done
	})
	return NewAnnouncer(clock.clock(), events, bus, recorder.emitter())
}

func writerGUID(entity uint32) guid.GUID {
	return guid.GUID{Prefix: guid.Prefix{1, 2, 3}, Entity: guid.EntityFromIndex(entity)}
}

func TestAutomaticWriterAnnouncesOnTimer(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	recorder := &emitRecorder{}
	announcer := newTestAnnouncer(t, clock, recorder)

	id := writerGUID(1)
	qos := Offered{Kind: Automatic, LeaseDuration: 20 * time.Millisecond, AnnouncementPeriod: 18 * time.Millisecond}
	if err := announcer.RegisterWriter(id, qos, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	// First announcement goes out immediately.
	waitFor(t, func() bool { return recorder.automaticCount() >= 1 }, "first automatic announcement")

	clock.AdvanceSteps(200*time.Millisecond, 2*time.Millisecond)
	waitFor(t, func() bool { return recorder.automaticCount() >= 5 }, "recurring automatic announcements")

	if got := announcer.LostTotal(id); got != 0 {
		t.Fatalf("automatic writer lost liveliness %d times", got)
	}
}

func TestManualWriterLosesOncePerTransition(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	recorder := &emitRecorder{}
	announcer := newTestAnnouncer(t, clock, recorder)
	lost := &lostRecorder{}

	id := writerGUID(1)
	qos := Offered{Kind: ManualByParticipant, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 9 * time.Millisecond}
	if err := announcer.RegisterWriter(id, qos, lost.onLost); err != nil {
		t.Fatalf("register: %v", err)
	}

	announcer.AssertLiveliness(id)
	waitFor(t, func() bool { return recorder.manualCount() == 1 }, "assertion emitted")

	clock.AdvanceSteps(15*time.Millisecond, time.Millisecond)
	waitFor(t, func() bool { return lost.count() == 1 }, "first lost transition")

	// No further lost events without a new assertion.
	clock.AdvanceSteps(30*time.Millisecond, time.Millisecond)
	assertStill(t, func() bool { return lost.count() == 1 }, "lost fired again without a transition")

	announcer.AssertLiveliness(id)
	clock.AdvanceSteps(15*time.Millisecond, time.Millisecond)
	waitFor(t, func() bool { return lost.count() == 2 }, "second lost transition")

	if got := announcer.LostTotal(id); got != 2 {
		t.Fatalf("LostTotal = %d, want 2", got)
	}
	lost.mu.Lock()
	defer lost.mu.Unlock()
	for i, status := range lost.statuses {
		if status.TotalCount != i+1 || status.TotalCountChange != 1 {
			t.Fatalf("status %d = %+v", i, status)
		}
	}
}

func TestRepeatedAssertsEmitOneAssertion(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	recorder := &emitRecorder{}
	announcer := newTestAnnouncer(t, clock, recorder)

	id := writerGUID(1)
	qos := Offered{Kind: ManualByParticipant, LeaseDuration: 100 * time.Millisecond, AnnouncementPeriod: 90 * time.Millisecond}
	if err := announcer.RegisterWriter(id, qos, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 5; i++ {
		announcer.AssertLiveliness(id)
	}
	waitFor(t, func() bool { return recorder.manualCount() >= 1 }, "assertion emitted")
	assertStill(t, func() bool { return recorder.manualCount() == 1 }, "more than one assertion within announcement period")

	// The deferred emission drains at the announcement boundary.
	clock.AdvanceSteps(95*time.Millisecond, 5*time.Millisecond)
	waitFor(t, func() bool { return recorder.manualCount() == 2 }, "deferred assertion at boundary")
}

func TestAssertionCoversParticipantManualWriters(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	recorder := &emitRecorder{}
	announcer := newTestAnnouncer(t, clock, recorder)
	lostA := &lostRecorder{}
	lostB := &lostRecorder{}

	qos := Offered{Kind: ManualByParticipant, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 9 * time.Millisecond}
	idA := writerGUID(1)
	idB := writerGUID(2)
	if err := announcer.RegisterWriter(idA, qos, lostA.onLost); err != nil {
		t.Fatalf("register A: %v", err)
	}
	if err := announcer.RegisterWriter(idB, qos, lostB.onLost); err != nil {
		t.Fatalf("register B: %v", err)
	}

	announcer.AssertLiveliness(idA)
	clock.AdvanceSteps(15*time.Millisecond, time.Millisecond)
	waitFor(t, func() bool { return lostA.count() == 1 && lostB.count() == 1 }, "both manual writers armed and lost")
}

func TestManualByTopicAssertAlsoCoversManualByParticipant(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	recorder := &emitRecorder{}
	announcer := newTestAnnouncer(t, clock, recorder)

	topicQoS := Offered{Kind: ManualByTopic, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 5 * time.Millisecond}
	participantQoS := Offered{Kind: ManualByParticipant, LeaseDuration: 10 * time.Millisecond, AnnouncementPeriod: 9 * time.Millisecond}
	topicWriter := writerGUID(1)
	participantWriter := writerGUID(2)
	if err := announcer.RegisterWriter(topicWriter, topicQoS, nil); err != nil {
		t.Fatalf("register topic writer: %v", err)
	}
	if err := announcer.RegisterWriter(participantWriter, participantQoS, nil); err != nil {
		t.Fatalf("register participant writer: %v", err)
	}

	announcer.AssertLiveliness(topicWriter)
	waitFor(t, func() bool { return recorder.heartbeatCount() == 1 }, "heartbeat emitted")
	waitFor(t, func() bool { return recorder.manualCount() == 1 }, "participant assertion emitted")
}

func TestManualByTopicHeartbeatCadence(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	recorder := &emitRecorder{}
	announcer := newTestAnnouncer(t, clock, recorder)

	id := writerGUID(1)
	qos := Offered{Kind: ManualByTopic, LeaseDuration: 100 * time.Millisecond, AnnouncementPeriod: 50 * time.Millisecond}
	if err := announcer.RegisterWriter(id, qos, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	announcer.AssertLiveliness(id)
	announcer.AssertLiveliness(id)
	waitFor(t, func() bool { return recorder.heartbeatCount() >= 1 }, "heartbeat emitted")
	assertStill(t, func() bool { return recorder.heartbeatCount() == 1 }, "second heartbeat within announcement period")

	clock.AdvanceSteps(55*time.Millisecond, 5*time.Millisecond)
	waitFor(t, func() bool { return recorder.heartbeatCount() == 2 }, "deferred heartbeat at boundary")
}
