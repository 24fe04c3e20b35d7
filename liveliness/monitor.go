package liveliness

import (
	"container/heap"
	"log"
	"sync"
	"time"

	"rtps/guid"
)

type entryState int

const (
	// entryUnknown means the writer is matched but has never asserted.
	// Unknown writers count toward NotAliveCount so that AliveCount +
	// NotAliveCount always equals the number of matched writers.
	entryUnknown entryState = iota
	entryAlive
	entryNotAlive
)

// Monitor is the lease monitor for one local reader. It tracks a deadline
// per matched writer, detects expiry crossings, and surfaces aggregated
// ChangedStatus notifications through the participant bus.
type Monitor struct {
	reader guid.GUID
	clock  Clock
	events *Events
	bus    *Bus
	notify func(ChangedStatus)

	mu      sync.Mutex
	entries map[guid.GUID]*leaseEntry
	queue   leaseHeap
	timer   *Event
	closed  bool

	aliveCount     int
	notAliveCount  int
	aliveChange    int
	notAliveChange int
	lastWriter     guid.GUID
	notifyQueued   bool
}

type leaseEntry struct {
	writer   guid.GUID
	kind     Kind
	lease    time.Duration
	deadline time.Time
	state    entryState
	index    int
	seq      int
}

// NewMonitor constructs the lease monitor for one reader. notify runs on the
// bus dispatcher with no monitor locks held.
func NewMonitor(reader guid.GUID, clock Clock, events *Events, bus *Bus, notify func(ChangedStatus)) *Monitor {
	return &Monitor{
		reader:  reader,
		clock:   clock,
		events:  events,
		bus:     bus,
		notify:  notify,
		entries: make(map[guid.GUID]*leaseEntry),
	}
}

// AddWriter creates the lease entry for a newly matched writer. The writer
// starts never-asserted; the first assertion produces the first alive
// transition.
func (m *Monitor) AddWriter(writer guid.GUID, kind Kind, lease time.Duration) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, ok := m.entries[writer]; ok {
		m.mu.Unlock()
		log.Fatalf("lease_entry_duplicate reader=%s writer=%s", m.reader, writer)
		return
	}
	entry := &leaseEntry{
		writer:   writer,
		kind:     kind,
		lease:    lease,
		deadline: m.clock.Now().Add(lease),
		state:    entryUnknown,
		index:    -1,
	}
	m.entries[writer] = entry
	m.notAliveCount++
	m.mu.Unlock()
}

// RemoveWriter destroys the lease entry on unmatch. The count adjustment is
// atomic with the timer removal.
func (m *Monitor) RemoveWriter(writer guid.GUID) {
	m.mu.Lock()
	entry, ok := m.entries[writer]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.entries, writer)
	if entry.index >= 0 {
		heap.Remove(&m.queue, entry.index)
	}
	notify := false
	switch entry.state {
	case entryAlive:
		m.aliveCount--
		m.aliveChange--
		m.lastWriter = writer
		notify = true
	default:
		m.notAliveCount--
	}
	m.rearmLocked()
	if notify {
		m.queueNotifyLocked()
	}
	m.mu.Unlock()
}

// Assert records an assertion received for the writer, advancing its
// deadline and recovering it if it was not alive.
func (m *Monitor) Assert(writer guid.GUID) {
	now := m.clock.Now()
	m.mu.Lock()
	if entry, ok := m.entries[writer]; ok {
		m.assertEntryLocked(entry, now)
		m.rearmLocked()
	}
	m.mu.Unlock()
}

// AssertParticipant records a participant-scoped assertion: every matched
// writer with the given prefix and kind is asserted at once.
func (m *Monitor) AssertParticipant(prefix guid.Prefix, kind Kind) {
	now := m.clock.Now()
	m.mu.Lock()
	touched := false
	for _, entry := range m.entries {
		if entry.writer.Prefix == prefix && entry.kind == kind {
			m.assertEntryLocked(entry, now)
			touched = true
		}
	}
	if touched {
		m.rearmLocked()
	}
	m.mu.Unlock()
}

// Counts reports the current alive and not-alive matched writer counts.
func (m *Monitor) Counts() (alive, notAlive int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aliveCount, m.notAliveCount
}

// Close cancels the expiry timer and drops pending notifications.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.entries = make(map[guid.GUID]*leaseEntry)
	m.queue.items = nil
	m.timer.Cancel()
	m.mu.Unlock()
}

func (m *Monitor) assertEntryLocked(entry *leaseEntry, now time.Time) {
	entry.deadline = now.Add(entry.lease)
	if entry.state != entryAlive {
		entry.state = entryAlive
		m.aliveCount++
		m.aliveChange++
		m.notAliveCount--
		m.notAliveChange--
		m.lastWriter = entry.writer
		m.queueNotifyLocked()
	}
	if entry.lease != Infinite {
		if entry.index >= 0 {
			heap.Fix(&m.queue, entry.index)
		} else {
			m.queue.push(entry)
		}
	}
}

// onExpiry processes every entry whose deadline has passed and emits one
// aggregated notification.
func (m *Monitor) onExpiry() {
	now := m.clock.Now()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	expired := false
	for len(m.queue.items) > 0 {
		head := m.queue.items[0]
		if head.deadline.After(now) {
			break
		}
		heap.Pop(&m.queue)
		if head.state != entryAlive {
			continue
		}
		head.state = entryNotAlive
		m.aliveCount--
		m.aliveChange--
		m.notAliveCount++
		m.notAliveChange++
		m.lastWriter = head.writer
		expired = true
		log.Printf("lease_expired reader=%s writer=%s", m.reader, head.writer)
	}
	m.rearmLocked()
	if expired {
		m.queueNotifyLocked()
	}
	m.mu.Unlock()
}

// rearmLocked points the single expiry timer at the new heap head.
func (m *Monitor) rearmLocked() {
	if len(m.queue.items) == 0 {
		m.timer.Cancel()
		return
	}
	head := m.queue.items[0].deadline
	if m.timer == nil {
		m.timer = m.events.Schedule(head, m.onExpiry)
	} else {
		m.timer.Reset(head)
	}
}

func (m *Monitor) queueNotifyLocked() {
	if m.notifyQueued {
		return
	}
	m.notifyQueued = true
	m.bus.Post(m.deliver)
}

func (m *Monitor) deliver() {
	m.mu.Lock()
	status := ChangedStatus{
		AliveCount:          m.aliveCount,
		NotAliveCount:       m.notAliveCount,
		AliveCountChange:    m.aliveChange,
		NotAliveCountChange: m.notAliveChange,
		LastWriter:          m.lastWriter,
	}
	m.aliveChange = 0
	m.notAliveChange = 0
	m.notifyQueued = false
	closed := m.closed
	notify := m.notify
	m.mu.Unlock()
	if closed || notify == nil {
		return
	}
	if status.AliveCountChange == 0 && status.NotAliveCountChange == 0 {
		return
	}
	notify(status)
}

type leaseHeap struct {
	items   []*leaseEntry
	nextSeq int
}

func (q *leaseHeap) push(entry *leaseEntry) {
	q.nextSeq++
	entry.seq = q.nextSeq
	heap.Push(q, entry)
}

// leaseHeap is a min-heap ordered by deadline. seq preserves FIFO ordering
// for entries with the same deadline.
func (q leaseHeap) Len() int { return len(q.items) }

func (q leaseHeap) Less(i, j int) bool {
	if q.items[i].deadline.Equal(q.items[j].deadline) {
		return q.items[i].seq < q.items[j].seq
	}
	return q.items[i].deadline.Before(q.items[j].deadline)
}

func (q leaseHeap) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *leaseHeap) Push(x any) {
	entry := x.(*leaseEntry)
	entry.index = len(q.items)
	q.items = append(q.items, entry)
}

func (q *leaseHeap) Pop() any {
	entry := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	entry.index = -1
	return entry
}
