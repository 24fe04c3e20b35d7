// Package metrics tracks liveliness counters for a single participant.
package metrics

import (
	"fmt"
	"io"
	"sync"
)

// Registry tracks liveliness metrics for a single participant.
type Registry struct {
	participant string

	mu sync.Mutex

	assertionsSentAutomatic uint64
	assertionsSentManual    uint64
	heartbeatsSent          uint64
	assertionsReceived      uint64
	samplesWritten          uint64

	leasesRecovered uint64
	leasesLost      uint64
	writerLost      uint64

	matchesTotal      uint64
	incompatibleTotal uint64
}

// New constructs a Registry for a participant.
func New(participant string) *Registry {
	return &Registry{participant: participant}
}

// ObserveAssertionSent records an outbound channel assertion by scope.
func (r *Registry) ObserveAssertionSent(automatic bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if automatic {
		r.assertionsSentAutomatic++
	} else {
		r.assertionsSentManual++
	}
}

// ObserveHeartbeatSent records an outbound manual-by-topic heartbeat.
func (r *Registry) ObserveHeartbeatSent() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeatsSent++
}

// ObserveAssertionReceived records an inbound assertion of any form.
func (r *Registry) ObserveAssertionReceived() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertionsReceived++
}

// ObserveSampleWritten records a successful user sample write.
func (r *Registry) ObserveSampleWritten() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samplesWritten++
}

// ObserveLeaseTransition records a reader-side aliveness transition.
func (r *Registry) ObserveLeaseTransition(recovered bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if recovered {
		r.leasesRecovered++
	} else {
		r.leasesLost++
	}
}

// ObserveWriterLost records a writer-side lost transition.
func (r *Registry) ObserveWriterLost() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writerLost++
}

// ObserveMatch records the outcome of a discovery match attempt.
func (r *Registry) ObserveMatch(compatible bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if compatible {
		r.matchesTotal++
	} else {
		r.incompatibleTotal++
	}
}

// WritePrometheus writes current metrics in Prometheus exposition format.
func (r *Registry) WritePrometheus(w io.Writer) {
	if r == nil {
		return
	}

	// Snapshot under lock so we do not hold the mutex while writing to the output writer.
	r.mu.Lock()
	participant := r.participant
	assertionsSentAutomatic := r.assertionsSentAutomatic
	assertionsSentManual := r.assertionsSentManual
	heartbeatsSent := r.heartbeatsSent
	assertionsReceived := r.assertionsReceived
	samplesWritten := r.samplesWritten
	leasesRecovered := r.leasesRecovered
	leasesLost := r.leasesLost
	writerLost := r.writerLost
	matchesTotal := r.matchesTotal
	incompatibleTotal := r.incompatibleTotal
	r.mu.Unlock()

	label := fmt.Sprintf("participant=%q", participant)

	fmt.Fprintf(w, "# HELP rtps_liveliness_assertions_sent_total Outbound channel assertions by scope.\n")
	fmt.Fprintf(w, "# TYPE rtps_liveliness_assertions_sent_total counter\n")
	fmt.Fprintf(w, "rtps_liveliness_assertions_sent_total{%s,scope=%q} %d\n", label, "automatic", assertionsSentAutomatic)
	fmt.Fprintf(w, "rtps_liveliness_assertions_sent_total{%s,scope=%q} %d\n", label, "manual_by_participant", assertionsSentManual)

	fmt.Fprintf(w, "# HELP rtps_liveliness_heartbeats_sent_total Outbound manual-by-topic heartbeats.\n")
	fmt.Fprintf(w, "# TYPE rtps_liveliness_heartbeats_sent_total counter\n")
	fmt.Fprintf(w, "rtps_liveliness_heartbeats_sent_total{%s} %d\n", label, heartbeatsSent)

	fmt.Fprintf(w, "# HELP rtps_liveliness_assertions_received_total Inbound assertions of any form.\n")
	fmt.Fprintf(w, "# TYPE rtps_liveliness_assertions_received_total counter\n")
	fmt.Fprintf(w, "rtps_liveliness_assertions_received_total{%s} %d\n", label, assertionsReceived)

	fmt.Fprintf(w, "# HELP rtps_samples_written_total User samples written.\n")
	fmt.Fprintf(w, "# TYPE rtps_samples_written_total counter\n")
	fmt.Fprintf(w, "rtps_samples_written_total{%s} %d\n", label, samplesWritten)

	fmt.Fprintf(w, "# HELP rtps_liveliness_lease_transitions_total Reader-side aliveness transitions.\n")
	fmt.Fprintf(w, "# TYPE rtps_liveliness_lease_transitions_total counter\n")
	fmt.Fprintf(w, "rtps_liveliness_lease_transitions_total{%s,transition=%q} %d\n", label, "recovered", leasesRecovered)
	fmt.Fprintf(w, "rtps_liveliness_lease_transitions_total{%s,transition=%q} %d\n", label, "lost", leasesLost)

	fmt.Fprintf(w, "# HELP rtps_liveliness_writer_lost_total Writer-side lost transitions.\n")
	fmt.Fprintf(w, "# TYPE rtps_liveliness_writer_lost_total counter\n")
	fmt.Fprintf(w, "rtps_liveliness_writer_lost_total{%s} %d\n", label, writerLost)

	fmt.Fprintf(w, "# HELP rtps_matches_total Discovery match outcomes.\n")
	fmt.Fprintf(w, "# TYPE rtps_matches_total counter\n")
	fmt.Fprintf(w, "rtps_matches_total{%s,outcome=%q} %d\n", label, "matched", matchesTotal)
	fmt.Fprintf(w, "rtps_matches_total{%s,outcome=%q} %d\n", label, "incompatible_qos", incompatibleTotal)
}
