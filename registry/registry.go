// Package registry maps local endpoints to their QoS and to the remote
// peers they match. It is fed by the discovery collaborator and applies the
// liveliness compatibility gate at match time.
package registry

import (
	"errors"
	"log"
	"sync"
	"time"

	"rtps/guid"
	"rtps/liveliness"
)

// ReasonIncompatibleQoS is the unmatch reason reported when an offered and
// requested QoS cannot be matched.
const ReasonIncompatibleQoS = "INCOMPATIBLE_QOS"

var ErrUnknownEndpoint = errors.New("endpoint is not registered")

// Hooks are the notifications the registry raises toward the rest of the
// participant. All hooks are invoked without the registry lock held.
type Hooks struct {
	// ReaderMatched fires when a remote writer matches a local reader; the
	// reader's lease monitor creates its entry from the offered kind and
	// lease.
	ReaderMatched   func(reader, writer guid.GUID, kind liveliness.Kind, lease time.Duration)
	ReaderUnmatched func(reader, writer guid.GUID)
	// WriterMatched fires when a remote reader matches a local writer.
	// The remote participant becomes a liveliness channel peer.
	WriterMatched   func(writer guid.GUID, readerPrefix guid.Prefix)
	WriterUnmatched func(writer guid.GUID, readerPrefix guid.Prefix)
	// Incompatible fires instead of a match when the QoS gate rejects the
	// pair. No lease state exists for the pair.
	Incompatible func(local, remote guid.GUID, reason string)
}

type localWriter struct {
	qos     liveliness.Offered
	matched map[guid.GUID]liveliness.Requested
}

type localReader struct {
	qos     liveliness.Requested
	matched map[guid.GUID]matchRecord
}

type matchRecord struct {
	offered liveliness.Offered
	// effectiveLease is the lease the reader monitors the writer with: the
	// writer's offered lease, never longer than the reader requested.
	effectiveLease time.Duration
}

// Registry owns the match records of one participant.
type Registry struct {
	hooks Hooks

	mu      sync.Mutex
	writers map[guid.GUID]*localWriter
	readers map[guid.GUID]*localReader
}

// New constructs an empty registry.
func New(hooks Hooks) *Registry {
	return &Registry{
		hooks:   hooks,
		writers: make(map[guid.GUID]*localWriter),
		readers: make(map[guid.GUID]*localReader),
	}
}

// AddWriter registers a local writer with its validated offered QoS.
func (r *Registry) AddWriter(id guid.GUID, qos liveliness.Offered) error {
	if err := qos.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.writers[id]; ok {
		return errors.New("writer already registered")
	}
	r.writers[id] = &localWriter{qos: qos, matched: make(map[guid.GUID]liveliness.Requested)}
	return nil
}

// AddReader registers a local reader with its validated requested QoS.
func (r *Registry) AddReader(id guid.GUID, qos liveliness.Requested) error {
	if err := qos.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.readers[id]; ok {
		return errors.New("reader already registered")
	}
	r.readers[id] = &localReader{qos: qos, matched: make(map[guid.GUID]matchRecord)}
	return nil
}

// RemoveWriter unmatches every remote reader and forgets the writer.
func (r *Registry) RemoveWriter(id guid.GUID) {
	r.mu.Lock()
	w, ok := r.writers[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.writers, id)
	remotes := make([]guid.GUID, 0, len(w.matched))
	for remote := range w.matched {
		remotes = append(remotes, remote)
	}
	r.mu.Unlock()
	for _, remote := range remotes {
		if r.hooks.WriterUnmatched != nil {
			r.hooks.WriterUnmatched(id, remote.Prefix)
		}
	}
}

// RemoveReader unmatches every remote writer and forgets the reader.
func (r *Registry) RemoveReader(id guid.GUID) {
	r.mu.Lock()
	rd, ok := r.readers[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.readers, id)
	remotes := make([]guid.GUID, 0, len(rd.matched))
	for remote := range rd.matched {
		remotes = append(remotes, remote)
	}
	r.mu.Unlock()
	for _, remote := range remotes {
		if r.hooks.ReaderUnmatched != nil {
			r.hooks.ReaderUnmatched(id, remote)
		}
	}
}

// MatchWriter is the discovery entry point for a remote reader discovering a
// local writer. The compatibility gate runs here; it reports whether the
// pair matched.
func (r *Registry) MatchWriter(local guid.GUID, remote guid.GUID, requested liveliness.Requested) (bool, error) {
	r.mu.Lock()
	w, ok := r.writers[local]
	if !ok {
		r.mu.Unlock()
		return false, ErrUnknownEndpoint
	}
	if !liveliness.Compatible(w.qos, requested) {
		r.mu.Unlock()
		log.Printf("match_rejected writer=%s reader=%s reason=%s", local, remote, ReasonIncompatibleQoS)
		if r.hooks.Incompatible != nil {
			r.hooks.Incompatible(local, remote, ReasonIncompatibleQoS)
		}
		return false, nil
	}
	if _, dup := w.matched[remote]; dup {
		r.mu.Unlock()
		return true, nil
	}
	w.matched[remote] = requested
	r.mu.Unlock()
	if r.hooks.WriterMatched != nil {
		r.hooks.WriterMatched(local, remote.Prefix)
	}
	return true, nil
}

// MatchReader is the discovery entry point for a remote writer discovering a
// local reader. The compatibility gate runs here; it reports whether the
// pair matched.
func (r *Registry) MatchReader(local guid.GUID, remote guid.GUID, offered liveliness.Offered) (bool, error) {
	r.mu.Lock()
	rd, ok := r.readers[local]
	if !ok {
		r.mu.Unlock()
		return false, ErrUnknownEndpoint
	}
	if !liveliness.Compatible(offered, rd.qos) {
		r.mu.Unlock()
		log.Printf("match_rejected reader=%s writer=%s reason=%s", local, remote, ReasonIncompatibleQoS)
		if r.hooks.Incompatible != nil {
			r.hooks.Incompatible(local, remote, ReasonIncompatibleQoS)
		}
		return false, nil
	}
	if _, dup := rd.matched[remote]; dup {
		r.mu.Unlock()
		return true, nil
	}
	record := matchRecord{offered: offered, effectiveLease: offered.LeaseDuration}
	rd.matched[remote] = record
	r.mu.Unlock()
	if r.hooks.ReaderMatched != nil {
		r.hooks.ReaderMatched(local, remote, offered.Kind, record.effectiveLease)
	}
	return true, nil
}

// UnmatchWriter removes the (local writer, remote reader) match record.
func (r *Registry) UnmatchWriter(local guid.GUID, remote guid.GUID) {
	r.mu.Lock()
	w, ok := r.writers[local]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, matched := w.matched[remote]; !matched {
		r.mu.Unlock()
		return
	}
	delete(w.matched, remote)
	r.mu.Unlock()
	if r.hooks.WriterUnmatched != nil {
		r.hooks.WriterUnmatched(local, remote.Prefix)
	}
}

// UnmatchReader removes the (local reader, remote writer) match record.
func (r *Registry) UnmatchReader(local guid.GUID, remote guid.GUID) {
	r.mu.Lock()
	rd, ok := r.readers[local]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, matched := rd.matched[remote]; !matched {
		r.mu.Unlock()
		return
	}
	delete(rd.matched, remote)
	r.mu.Unlock()
	if r.hooks.ReaderUnmatched != nil {
		r.hooks.ReaderUnmatched(local, remote)
	}
}

// MatchedWriters lists the remote writers currently matched to the reader.
func (r *Registry) MatchedWriters(reader guid.GUID) []guid.GUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.readers[reader]
	if !ok {
		return nil
	}
	out := make([]guid.GUID, 0, len(rd.matched))
	for remote := range rd.matched {
		out = append(out, remote)
	}
	return out
}

// MatchedReaders lists the remote readers currently matched to the writer.
func (r *Registry) MatchedReaders(writer guid.GUID) []guid.GUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[writer]
	if !ok {
		return nil
	}
	out := make([]guid.GUID, 0, len(w.matched))
	for remote := range w.matched {
		out = append(out, remote)
	}
	return out
}
