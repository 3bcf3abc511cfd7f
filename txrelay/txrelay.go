// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txrelay tracks which peers have relayed or been asked for which
// transactions, and the outstanding publish callbacks a caller is waiting
// on. It holds no network or wallet state of its own; the session
// orchestrator (package manager) is the only caller.
package txrelay

import (
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// PeerKey identifies a connected peer independent of its session object;
// the manager supplies it (typically host:port).
type PeerKey string

// Relations holds the two per-tx peer relation sets: which peers relayed a
// tx to us (tx_relays) and which peers we have asked for a tx (tx_requests).
// Their sizes drive the verification signal and the unrelayed-tx sweep.
type Relations struct {
	mu       sync.Mutex
	relays   map[chainhash.Hash]map[PeerKey]struct{}
	requests map[chainhash.Hash]map[PeerKey]struct{}
}

// New creates an empty Relations set.
func New() *Relations {
	return &Relations{
		relays:   make(map[chainhash.Hash]map[PeerKey]struct{}),
		requests: make(map[chainhash.Hash]map[PeerKey]struct{}),
	}
}

// AddRelay records that peer relayed tx to us.
func (r *Relations) AddRelay(tx chainhash.Hash, peer PeerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.relays[tx]
	if !ok {
		set = make(map[PeerKey]struct{})
		r.relays[tx] = set
	}
	set[peer] = struct{}{}
}

// RelayCount returns how many distinct peers have relayed tx.
func (r *Relations) RelayCount(tx chainhash.Hash) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.relays[tx])
}

// HasRelay reports whether peer is recorded as having relayed tx.
func (r *Relations) HasRelay(tx chainhash.Hash, peer PeerKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.relays[tx][peer]
	return ok
}

// AddRequest records that we asked peer for tx.
func (r *Relations) AddRequest(tx chainhash.Hash, peer PeerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.requests[tx]
	if !ok {
		set = make(map[PeerKey]struct{})
		r.requests[tx] = set
	}
	set[peer] = struct{}{}
}

// RemoveRequest forgets that we asked peer for tx, typically once it
// arrives or the peer disconnects.
func (r *Relations) RemoveRequest(tx chainhash.Hash, peer PeerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests[tx], peer)
	if len(r.requests[tx]) == 0 {
		delete(r.requests, tx)
	}
}

// RequestCount returns how many distinct peers we have asked for tx.
func (r *Relations) RequestCount(tx chainhash.Hash) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests[tx])
}

// HasAnyRelation reports whether any peer has relayed tx or been asked for
// it — the unrelayed-tx sweep keeps a wallet tx alive as long as this is
// true.
func (r *Relations) HasAnyRelation(tx chainhash.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.relays[tx]) > 0 || len(r.requests[tx]) > 0
}

// RemovePeer drops peer from every tracked relation, called when a peer
// disconnects so stale relations don't outlive the session.
func (r *Relations) RemovePeer(peer PeerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tx, set := range r.relays {
		delete(set, peer)
		if len(set) == 0 {
			delete(r.relays, tx)
		}
	}
	for tx, set := range r.requests {
		delete(set, peer)
		if len(set) == 0 {
			delete(r.requests, tx)
		}
	}
}

// Forget drops all relation tracking for tx, called once a wallet tx is
// confirmed or abandoned.
func (r *Relations) Forget(tx chainhash.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.relays, tx)
	delete(r.requests, tx)
}

// entry is one row of the published-tx table.
type entry struct {
	info     interface{}
	callback func(error)
	fired    bool
}

// Published is the published-tx table: every tx a publish() call has
// pushed out, plus its unconfirmed ancestors, keyed by hash. Only the
// original tx normally carries a non-nil callback; ancestors are tracked
// so the unrelayed-tx sweep does not discard them out from under a
// publish still in flight.
type Published struct {
	mu      sync.Mutex
	entries map[chainhash.Hash]*entry
}

// NewPublished creates an empty published-tx table.
func NewPublished() *Published {
	return &Published{entries: make(map[chainhash.Hash]*entry)}
}

// Add records tx as published, with optional info and an optional
// callback to fire exactly once when Fire or FireAll is called for it.
// Adding a hash already present replaces its callback (a later publish of
// the same tx arrives with a fresh caller waiting on it).
func (p *Published) Add(tx chainhash.Hash, info interface{}, callback func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[tx] = &entry{info: info, callback: callback}
}

// Has reports whether tx is present in the published-tx table.
func (p *Published) Has(tx chainhash.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[tx]
	return ok
}

// HasPendingCallback reports whether any entry still has an unfired
// callback — used to decide whether a publish timeout deadline is needed.
func (p *Published) HasPendingCallback() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.callback != nil && !e.fired {
			return true
		}
	}
	return false
}

// Fire runs tx's callback with err exactly once, then nulls it so a second
// Fire or FireAll is a no-op for this entry. The callback runs outside the
// lock so it may safely call back into the manager.
func (p *Published) Fire(tx chainhash.Hash, err error) {
	p.mu.Lock()
	e, ok := p.entries[tx]
	if !ok || e.fired || e.callback == nil {
		p.mu.Unlock()
		return
	}
	e.fired = true
	cb := e.callback
	p.mu.Unlock()

	cb(err)
}

// FireAll fires every still-pending callback with err, used when a peer
// disconnect or publish timeout resolves every outstanding publish at
// once (spec: "deliver any pending tx callbacks once with the computed
// tx_error outside the lock").
func (p *Published) FireAll(err error) {
	p.mu.Lock()
	var pending []func(error)
	for _, e := range p.entries {
		if e.callback != nil && !e.fired {
			e.fired = true
			pending = append(pending, e.callback)
		}
	}
	p.mu.Unlock()

	for _, cb := range pending {
		cb(err)
	}
}

// Remove drops tx from the table entirely, once it confirms or is
// abandoned.
func (p *Published) Remove(tx chainhash.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, tx)
}

// Len returns the number of tracked published entries.
func (p *Published) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Hashes returns every tx hash currently tracked, used to build the inv
// fan-out when a new peer joins (spec §4.5 "load the filter and publish
// pending tx on the new peer") and the mempool filter in loadMempools
// (spec §4.5 "send mempool filtered by published_tx_hashes").
func (p *Published) Hashes() []chainhash.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]chainhash.Hash, 0, len(p.entries))
	for h := range p.entries {
		out = append(out, h)
	}
	return out
}
