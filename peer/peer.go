// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer implements the connected-peer handle (spec §3, §6): the
// session's advertised state, the ping-barrier primitive that sequences
// filter updates and mempool loads (spec §4.4, §4.5), and the inbound
// callback surface the session orchestrator (package manager) implements.
// The byte-level wire codec is an external collaborator (spec §1 Non-goal
// "peer wire framing"); Peer talks to it only through the Transport
// interface. Peer forwards each Send* call to the Transport synchronously
// on the caller's goroutine; it keeps no send queue and starts no receive
// goroutine, so messages go out in the order the calls are made.
package peer

import (
	"errors"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/slog"

	"github.com/ltcsuite/ltcspv/addrmgr"
	"github.com/ltcsuite/ltcspv/bloom"
	"github.com/ltcsuite/ltcspv/blockstore"
)

var log = slog.Disabled

// UseLogger sets the subsystem logger used by package peer.
func UseLogger(logger slog.Logger) {
	log = logger
}

// ServiceFlag mirrors the wire protocol's advertised node service bits
// relevant to SPV (spec §4.5 "On peer connected").
type ServiceFlag uint64

const (
	SFNodeNetwork ServiceFlag = 1 << iota
	SFNodeBloom
)

// ConnStatus is the connection lifecycle state (spec §3).
type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connecting
	Connected
)

// RejectCode mirrors the wire protocol's tx/block rejection codes the
// manager cares about (spec §7 "rejection code ≠ SPENT").
type RejectCode uint8

const (
	RejectOther RejectCode = iota
	RejectSpent
	RejectDoubleSpend
)

// DisconnectReason classifies why a session ended (spec §7).
type DisconnectReason int

const (
	DisconnectProtocol DisconnectReason = iota
	DisconnectTimedOut
	DisconnectNetworkUnreachable
	DisconnectRequested
	DisconnectOther
)

// InvVect identifies an advertised object (a tx or block hash) the way
// BIP37's inv messages do.
type InvVect struct {
	IsBlock bool
	Hash    chainhash.Hash
}

// Transport is the pluggable wire codec a Peer drives. A real
// implementation frames and parses actual Bitcoin/Litecoin P2P messages
// over a net.Conn; that framing is explicitly out of scope for this
// module (spec §1), so Transport only describes the calls Peer needs to
// make and the events it needs delivered back via Callbacks.
type Transport interface {
	Close() error
	SendGetBlocks(locator []chainhash.Hash, stop chainhash.Hash) error
	SendGetHeaders(locator []chainhash.Hash, stop chainhash.Hash) error
	SendGetData(invs []InvVect) error
	SendMempool() error
	SendInv(invs []InvVect) error
	SendPing(nonce uint64) error
	SendFilterLoad(bits []byte, nHashFuncs uint32, tweak uint32, flag bloom.UpdateFlag) error
	SendGetAddr() error
}

// Callbacks is the inbound surface the manager implements (spec §6). Peer
// itself invokes only OnConnected (from SetConnected) and OnDisconnected
// and OnThreadCleanup (from Disconnect), each on the calling goroutine,
// which for a ScheduleDisconnect deadline is the timer's goroutine; the
// remaining callbacks are for the Transport to invoke. Peer does not
// serialize callbacks against one another.
type Callbacks struct {
	OnConnected        func(p Session)
	OnDisconnected     func(p Session, reason DisconnectReason)
	OnRelayedPeers     func(p Session, addrs []*addrmgr.NetAddress)
	OnRelayedTx        func(p Session, txHash chainhash.Hash)
	OnHasTx            func(p Session, txHash chainhash.Hash) bool
	OnRejectedTx       func(p Session, txHash chainhash.Hash, code RejectCode)
	OnRelayedBlock     func(p Session, block *blockstore.MerkleBlock)
	OnDataNotFound     func(p Session, txHashes, blockHashes []chainhash.Hash)
	OnSetFeePerKb      func(p Session, fee dcrutil.Amount)
	OnRequestedTx      func(p Session, txHash chainhash.Hash) (tx interface{}, ok bool)
	NetworkIsReachable func() bool
	OnThreadCleanup    func(p Session)
}

// Session is the subset of Peer's behavior the session orchestrator
// (package manager) depends on, factored out as an interface so manager
// can be exercised in tests against a fake session with no real Transport.
// *Peer satisfies this interface.
type Session interface {
	Host() string
	Port() uint16
	ConnectStatus() ConnStatus
	Version() int32
	Services() ServiceFlag
	LastBlock() int32
	SetLastBlock(height int32)
	PingTimeMs() int64
	FeePerKb() dcrutil.Amount
	SetFeePerKb(fee dcrutil.Amount)
	Misbehaving() bool
	MarkMisbehaving()
	SetSynced(v bool)
	IsSynced() bool
	SetNeedsFilterUpdate(v bool)
	NeedsFilterUpdate() bool
	Disconnect(reason DisconnectReason)
	ScheduleDisconnect(d time.Duration)
	RerequestBlocks(fromHash chainhash.Hash) error
	SendGetBlocks(locator []chainhash.Hash, stop chainhash.Hash) error
	SendGetHeaders(locator []chainhash.Hash, stop chainhash.Hash) error
	SendGetData(invs []InvVect) error
	SendMempool() error
	SendInv(invs []InvVect) error
	SendGetAddr() error
	SendFilterLoad(f *bloom.Filter) error
	SendPing(onPong func()) error
}

// Peer is a connected peer handle (spec §3). It holds the session's
// advertised facts and a map of pending ping barriers keyed by nonce
// (spec §5 "Ordering guarantees", §9 "Callback + lock pattern"); sends go
// straight to the Transport in call order.
type Peer struct {
	host string
	port uint16

	transport Transport
	callbacks Callbacks

	mu             sync.Mutex
	status         ConnStatus
	version        int32
	services       ServiceFlag
	lastBlock      int32
	pingTimeMs     int64
	feePerKb       dcrutil.Amount
	needsFilter    bool
	synced         bool
	misbehaving    bool

	pendingPings   map[uint64]func()
	nextPingNonce  uint64

	disconnectTimer *time.Timer
	disconnectOnce  sync.Once
}

// New wraps transport as a Peer talking to host:port.
func New(host string, port uint16, transport Transport, callbacks Callbacks) *Peer {
	return &Peer{
		host:         host,
		port:         port,
		transport:    transport,
		callbacks:    callbacks,
		pendingPings: make(map[uint64]func()),
	}
}

// Host returns the peer's address host.
func (p *Peer) Host() string { return p.host }

// Port returns the peer's address port.
func (p *Peer) Port() uint16 { return p.port }

// ConnectStatus returns the peer's connection lifecycle state.
func (p *Peer) ConnectStatus() ConnStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetConnected marks the peer connected with the given handshake facts,
// called by the Transport once a version/verack exchange completes.
func (p *Peer) SetConnected(version int32, services ServiceFlag, lastBlock int32, feePerKb dcrutil.Amount) {
	p.mu.Lock()
	p.status = Connected
	p.version = version
	p.services = services
	p.lastBlock = lastBlock
	p.feePerKb = feePerKb
	p.mu.Unlock()

	if p.callbacks.OnConnected != nil {
		p.callbacks.OnConnected(p)
	}
}

func (p *Peer) Version() int32           { p.mu.Lock(); defer p.mu.Unlock(); return p.version }
func (p *Peer) Services() ServiceFlag     { p.mu.Lock(); defer p.mu.Unlock(); return p.services }
func (p *Peer) LastBlock() int32         { p.mu.Lock(); defer p.mu.Unlock(); return p.lastBlock }
func (p *Peer) PingTimeMs() int64        { p.mu.Lock(); defer p.mu.Unlock(); return p.pingTimeMs }
func (p *Peer) FeePerKb() dcrutil.Amount { p.mu.Lock(); defer p.mu.Unlock(); return p.feePerKb }
func (p *Peer) Misbehaving() bool        { p.mu.Lock(); defer p.mu.Unlock(); return p.misbehaving }

// SetLastBlock updates the peer's advertised chain tip, used to recompute
// estimated_height (spec §3).
func (p *Peer) SetLastBlock(height int32) {
	p.mu.Lock()
	p.lastBlock = height
	p.mu.Unlock()
}

// SetFeePerKb updates the peer's advertised fee floor (spec §4.7).
func (p *Peer) SetFeePerKb(fee dcrutil.Amount) {
	p.mu.Lock()
	p.feePerKb = fee
	p.mu.Unlock()
}

// MarkMisbehaving flags the peer for diagnostics (spec §4.9); it does not
// itself disconnect the peer — the manager decides that.
func (p *Peer) MarkMisbehaving() {
	p.mu.Lock()
	p.misbehaving = true
	p.mu.Unlock()
}

// SetSynced/IsSynced track the per-session SYNCED flag (spec §3, §4.5
// "Unrelayed tx sweep").
func (p *Peer) SetSynced(v bool) { p.mu.Lock(); p.synced = v; p.mu.Unlock() }
func (p *Peer) IsSynced() bool   { p.mu.Lock(); defer p.mu.Unlock(); return p.synced }

// SetNeedsFilterUpdate marks the peer as due for a filter reload (spec §3
// FlagNeedsFilterUpdate, §4.4 update protocol step 1).
func (p *Peer) SetNeedsFilterUpdate(v bool) { p.mu.Lock(); p.needsFilter = v; p.mu.Unlock() }
func (p *Peer) NeedsFilterUpdate() bool     { p.mu.Lock(); defer p.mu.Unlock(); return p.needsFilter }

// Disconnect tears the session down immediately.
func (p *Peer) Disconnect(reason DisconnectReason) {
	p.disconnectOnce.Do(func() {
		p.mu.Lock()
		p.status = Disconnected
		if p.disconnectTimer != nil {
			p.disconnectTimer.Stop()
		}
		p.mu.Unlock()

		_ = p.transport.Close()
		if p.callbacks.OnDisconnected != nil {
			p.callbacks.OnDisconnected(p, reason)
		}
		if p.callbacks.OnThreadCleanup != nil {
			p.callbacks.OnThreadCleanup(p)
		}
	})
}

// ScheduleDisconnect arms (or re-arms) a PROTOCOL_TIMEOUT deadline that
// disconnects the peer with DisconnectTimedOut if it fires. Passing a
// zero duration cancels any pending deadline (spec §5 "Cancellation &
// timeouts").
func (p *Peer) ScheduleDisconnect(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
		p.disconnectTimer = nil
	}
	if d <= 0 {
		return
	}
	p.disconnectTimer = time.AfterFunc(d, func() {
		p.Disconnect(DisconnectTimedOut)
	})
}

// RerequestBlocks re-issues a getblocks from fromHash (spec §4.4 "rerequest
// blocks from last_block onward").
func (p *Peer) RerequestBlocks(fromHash chainhash.Hash) error {
	return p.transport.SendGetBlocks([]chainhash.Hash{fromHash}, chainhash.Hash{})
}

func (p *Peer) SendGetBlocks(locator []chainhash.Hash, stop chainhash.Hash) error {
	return p.transport.SendGetBlocks(locator, stop)
}

func (p *Peer) SendGetHeaders(locator []chainhash.Hash, stop chainhash.Hash) error {
	return p.transport.SendGetHeaders(locator, stop)
}

func (p *Peer) SendGetData(invs []InvVect) error {
	return p.transport.SendGetData(invs)
}

func (p *Peer) SendMempool() error {
	return p.transport.SendMempool()
}

func (p *Peer) SendInv(invs []InvVect) error {
	if len(invs) == 0 {
		return nil
	}
	return p.transport.SendInv(invs)
}

func (p *Peer) SendGetAddr() error {
	return p.transport.SendGetAddr()
}

func (p *Peer) SendFilterLoad(f *bloom.Filter) error {
	bits, nHashFuncs, tweak, flag := f.Serialize()
	return p.transport.SendFilterLoad(bits, nHashFuncs, tweak, flag)
}

var errNoPingSlot = errors.New("peer: too many pings outstanding")

// SendPing sends a ping and arranges for onPong to run (on the goroutine
// that calls OnPong) once the matching pong is observed. This
// is the ping-barrier primitive spec §4.4/§4.5/§4.6/§9 build on: it lets a
// caller sequence a continuation after "every message sent before this
// ping has been fully processed by the peer" without blocking the caller.
func (p *Peer) SendPing(onPong func()) error {
	p.mu.Lock()
	nonce := p.nextPingNonce
	p.nextPingNonce++
	if len(p.pendingPings) > 64 {
		p.mu.Unlock()
		return errNoPingSlot
	}
	p.pendingPings[nonce] = onPong
	p.mu.Unlock()

	if err := p.transport.SendPing(nonce); err != nil {
		p.mu.Lock()
		delete(p.pendingPings, nonce)
		p.mu.Unlock()
		return err
	}
	return nil
}

// OnPong is invoked by the Transport when a pong with the given nonce
// arrives. It runs the barrier continuation registered by SendPing exactly
// once, outside of any manager-held state (spec §5 "never holds the lock
// across a network await").
func (p *Peer) OnPong(nonce uint64, rtt time.Duration) {
	p.mu.Lock()
	p.pingTimeMs = rtt.Milliseconds()
	cb, ok := p.pendingPings[nonce]
	if ok {
		delete(p.pendingPings, nonce)
	}
	p.mu.Unlock()

	if ok && cb != nil {
		cb()
	}
}

var _ Session = (*Peer)(nil)
