// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrmgr implements the peer registry (spec §4.1): a persistent,
// size-bounded directory of known peer addresses, DNS seed bootstrapping,
// age-based pruning, and the biased random sampling used to pick
// connection candidates.
package addrmgr

import (
	"context"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/decred/slog"
)

// log is the package-level subsystem logger; callers wire a real backend
// via UseLogger, mirroring the teacher's subsystem logging convention. It
// defaults to a disabled logger so importing this package is silent by
// default.
var log = slog.Disabled

// UseLogger sets the subsystem logger used by package addrmgr.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Per-session flags carried on a NetAddress (spec §3).
const (
	FlagSynced = 1 << iota
	FlagNeedsFilterUpdate
)

// MaxPeers is the hard cap on the registry's size (spec §3, T7).
const MaxPeers = 2500

// pruneFloor is the size the tail-trim in Prune won't go below.
const pruneFloor = 1000

// pruneAge is how stale (relative to now) a tail entry must be before
// Prune will trim it, once the registry is above pruneFloor.
const pruneAge = 3 * 60 * 60 // 3 hours

// NetAddress is a peer address entry (spec §3).
type NetAddress struct {
	IP        net.IP
	Port      uint16
	Services  uint64
	Timestamp int64
	Flags     uint8
}

// Key returns the string used to deduplicate addresses in the registry.
func (a *NetAddress) Key() string {
	return net.JoinHostPort(a.IP.String(), portString(a.Port))
}

func portString(p uint16) string {
	const digits = "0123456789"
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = digits[p%10]
		p /= 10
	}
	return string(buf[i:])
}

// Resolver resolves a DNS seed hostname to a set of addresses. NetResolver
// adapts the standard library's *net.Resolver to this narrowed interface;
// tests supply a fake directly.
type Resolver interface {
	LookupHost(host string) ([]string, error)
}

// NetResolver adapts *net.Resolver (or any equivalent) to Resolver by
// supplying a background context, since DNS seed resolution here has no
// caller-supplied deadline of its own — Discover's own bookkeeping
// (dnsThreadCount draining, or the registry reaching maxConnections) is
// what bounds how long a caller waits on it.
type NetResolver struct {
	Resolver *net.Resolver
}

// LookupHost implements Resolver.
func (r NetResolver) LookupHost(host string) ([]string, error) {
	resolver := r.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return resolver.LookupHost(context.Background(), host)
}

// RandSource supplies the randomness Discover and SampleForConnect need,
// factored out for determinism in tests.
type RandSource interface {
	Intn(n int) int
}

// Seed identifies one DNS seed to query.
type Seed struct {
	Host string
}

// Manager is the peer registry described in spec §4.1/§3. It is safe for
// concurrent use: Discover spawns background goroutines per the spec, and
// Add/Remove/Prune/SampleForConnect may be called from the manager's event
// loop goroutine while those goroutines are still running.
type Manager struct {
	mu    sync.Mutex
	peers []*NetAddress // sorted by Timestamp descending
	index map[string]int

	resolver Resolver
	rand     RandSource
	seeds    []Seed

	dnsThreadCount int32
}

// New creates an empty registry that seeds from the given DNS hosts using
// resolver, drawing connect samples and DNS timestamp offsets from rnd.
func New(seeds []Seed, resolver Resolver, rnd RandSource) *Manager {
	return &Manager{
		peers:    make([]*NetAddress, 0, 64),
		index:    make(map[string]int),
		resolver: resolver,
		rand:     rnd,
		seeds:    seeds,
	}
}

// Len returns the number of addresses currently held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// DNSThreadCount returns the number of DNS seed lookups still in flight
// (spec §3 "dns_thread_count").
func (m *Manager) DNSThreadCount() int {
	return int(atomic.LoadInt32(&m.dnsThreadCount))
}

// Add inserts or refreshes addr, re-sorting to keep the registry ordered
// by Timestamp descending (spec §3), then enforces the 2500-entry cap.
func (m *Manager) Add(addr *NetAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(addr)
}

func (m *Manager) addLocked(addr *NetAddress) {
	key := addr.Key()
	if i, ok := m.index[key]; ok {
		m.peers[i] = addr
	} else {
		m.peers = append(m.peers, addr)
	}
	m.resortLocked()
	m.capLocked()
}

func (m *Manager) resortLocked() {
	sort.SliceStable(m.peers, func(i, j int) bool {
		return m.peers[i].Timestamp > m.peers[j].Timestamp
	})
	for i, p := range m.peers {
		m.index[p.Key()] = i
	}
}

func (m *Manager) capLocked() {
	if len(m.peers) <= MaxPeers {
		return
	}
	dropped := m.peers[MaxPeers:]
	m.peers = m.peers[:MaxPeers]
	for _, p := range dropped {
		delete(m.index, p.Key())
	}
}

// OldestTimestamp returns the Timestamp of the tail entry (the
// least-recently-seen address), or false if the registry is empty. Connect
// uses this to decide whether the pool is stale enough to warrant a fresh
// Discover even though it already holds PeerMaxConnections or more entries.
func (m *Manager) OldestTimestamp() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.peers) == 0 {
		return 0, false
	}
	return m.peers[len(m.peers)-1].Timestamp, true
}

// Remove evicts addr from the registry (misbehaving peer eviction).
func (m *Manager) Remove(addr *NetAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeKeyLocked(addr.Key())
}

func (m *Manager) removeKeyLocked(key string) {
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.peers = append(m.peers[:i], m.peers[i+1:]...)
	delete(m.index, key)
	for j := i; j < len(m.peers); j++ {
		m.index[m.peers[j].Key()] = j
	}
}

// Clear empties the registry, forcing a future Discover to re-seed from
// DNS (spec §4.5, §7: ten cumulative misbehaving peers).
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers = m.peers[:0]
	m.index = make(map[string]int)
}

// Prune keeps at most 2500 peers and additionally trims from the tail
// while the registry holds more than 1000 entries and the oldest entry is
// more than 3 hours stale relative to now (spec §4.1).
func (m *Manager) Prune(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capLocked()
	for len(m.peers) > pruneFloor {
		tail := m.peers[len(m.peers)-1]
		if tail.Timestamp+pruneAge >= now {
			break
		}
		m.peers = m.peers[:len(m.peers)-1]
		delete(m.index, tail.Key())
	}
}

// SampleForConnect draws up to k candidate addresses, biased toward
// more-recently-seen peers (spec §4.1): each draw samples a uniform index
// i in [0, n) then remaps it to i*i/n, which skews toward the front of the
// Timestamp-descending ordering.
func (m *Manager) SampleForConnect(k int) []*NetAddress {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.peers)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	seen := make(map[int]bool, k)
	out := make([]*NetAddress, 0, k)
	attempts := 0
	for len(out) < k && attempts < k*10 {
		attempts++
		i := m.rand.Intn(n)
		i = (i * i) / n
		if i >= n {
			i = n - 1
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, m.peers[i])
	}
	return out
}

// dnsBiasMinSeconds and dnsBiasMaxSeconds bound the artificial age applied
// to asynchronously-resolved seed addresses (spec §4.1: "bias against
// immediate preference of unvetted addresses").
const (
	dnsBiasMinSeconds = 1 * secondsPerDay
	dnsBiasMaxSeconds = 3 * secondsPerDay
	secondsPerDay     = 24 * 60 * 60
)

// Discover resolves the compiled-in DNS seeds (spec §4.1). The first seed
// resolves synchronously on the caller and its addresses are inserted with
// Timestamp == now; every remaining seed runs on its own goroutine and its
// addresses are inserted with a randomized stale Timestamp. Discover
// blocks, yielding, until either every background lookup has finished or
// the registry has reached maxConnections entries.
func (m *Manager) Discover(now int64, maxConnections int) {
	if len(m.seeds) == 0 {
		return
	}

	first := m.seeds[0]
	m.resolveSeed(first, now, now)

	rest := m.seeds[1:]
	if len(rest) == 0 {
		return
	}

	done := make(chan struct{}, len(rest))
	atomic.AddInt32(&m.dnsThreadCount, int32(len(rest)))
	for _, seed := range rest {
		seed := seed
		go func() {
			defer func() {
				atomic.AddInt32(&m.dnsThreadCount, -1)
				done <- struct{}{}
			}()
			bias := dnsBiasMinSeconds + m.rand.Intn(dnsBiasMaxSeconds-dnsBiasMinSeconds+1)
			m.resolveSeed(seed, now, now-int64(bias))
		}()
	}

	for i := 0; i < len(rest); i++ {
		if m.Len() >= maxConnections {
			return
		}
		<-done
	}
}

func (m *Manager) resolveSeed(seed Seed, now, timestamp int64) {
	hosts, err := m.resolver.LookupHost(seed.Host)
	if err != nil {
		log.Debugf("addrmgr: DNS seed %s lookup failed: %v", seed.Host, err)
		return
	}
	for _, h := range hosts {
		ip := net.ParseIP(h)
		if ip == nil {
			continue
		}
		m.Add(&NetAddress{IP: ip, Timestamp: timestamp})
	}
}
