// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package manager implements the session orchestrator (spec §4.5) and the
// host-facing API (spec §6): connection lifecycle, download-peer election,
// sync timeouts, Bloom filter coordination, tx publishing, and fan-out of
// requests across connected peers. It composes every other package in this
// module but is composed by none of them.
//
// Manager is a single-goroutine actor (spec §5, §9 "message-passing
// alternative"): all mutable state is owned exclusively by the run loop
// goroutine, and every external call crosses into it through the mailbox —
// a channel of closures — rather than through a lock. This satisfies "the
// mutex is never held across a network await" by construction, since there
// is no mutex to hold.
package manager

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/slog"

	"github.com/ltcsuite/ltcspv/addrmgr"
	"github.com/ltcsuite/ltcspv/blockstore"
	"github.com/ltcsuite/ltcspv/chain"
	"github.com/ltcsuite/ltcspv/chaincfg"
	"github.com/ltcsuite/ltcspv/connmgr"
	"github.com/ltcsuite/ltcspv/filtercontroller"
	"github.com/ltcsuite/ltcspv/peer"
	"github.com/ltcsuite/ltcspv/txrelay"
	"github.com/ltcsuite/ltcspv/wallet"
)

var log = slog.Disabled

// UseLogger sets the subsystem logger used by package manager.
func UseLogger(logger slog.Logger) {
	log = logger
}

const secondsPerWeek = 7 * 24 * 60 * 60

// Manager is the SPV session orchestrator (spec §3 "Manager state
// (singleton)", §4.5). See the package doc for its concurrency model.
type Manager struct {
	params *chaincfg.Params
	wallet wallet.Adapter

	store  *blockstore.Store
	engine *chain.Engine
	addr   *addrmgr.Manager
	filter *filtercontroller.Controller
	rel    *txrelay.Relations
	pub    *txrelay.Published

	dial Dialer

	peerMaxConnections int
	maxConnectFailures int
	protocolTimeout    time.Duration
	reconnectDelay     time.Duration
	defaultFeePerKb    dcrutil.Amount
	maxFeePerKb        dcrutil.Amount
	earliestKeyTime    int64

	cb Callbacks

	mailbox chan func()
	quit    chan struct{}

	reconnect *connmgr.ConnManager

	// Everything below is touched only from inside run().
	peers     map[txrelay.PeerKey]peer.Session
	peerAddrs map[txrelay.PeerKey]*addrmgr.NetAddress

	downloadPeer    txrelay.PeerKey
	syncStartHeight int64
	estimatedHeight int64

	connectFailures int
	misbehaveCount  int

	// reconnectReq tracks the single outstanding scheduled reconnect, if
	// any, so Disconnect can cancel it (spec §5 "disconnect()").
	reconnectReq *connmgr.ConnReq

	// currentBlockPeer is set for the duration of a single ProcessBlock
	// call so chain.Hooks callbacks know which peer to act on (spec §4.2,
	// §4.9); it is only ever read synchronously within that same call.
	currentBlockPeer txrelay.PeerKey

	disconnecting bool
}

// New constructs a Manager from persisted state (spec §6 "new(wallet,
// earliest_key_time, blocks[], peers[])") and starts its event loop.
func New(cfg Config) (*Manager, error) {
	cfg.setDefaults()
	if cfg.Params == nil {
		return nil, newError(ErrInvalid, "nil chaincfg.Params")
	}
	if cfg.Wallet == nil {
		return nil, newError(ErrInvalid, "nil wallet.Adapter")
	}

	store := blockstore.NewWithOrphanBound(cfg.OrphanBound)
	for _, cp := range cfg.Params.Checkpoints {
		store.PutCheckpoint(cp.Height, &blockstore.MerkleBlock{
			BlockHash:        cp.Hash,
			Height:           cp.Height,
			Timestamp:        cp.Timestamp,
			DifficultyTarget: cp.DifficultyBits,
		})
	}
	seedChain(store, cfg.Params, cfg.Blocks, cfg.EarliestKeyTime)

	seeds := make([]addrmgr.Seed, len(cfg.Params.DNSSeeds))
	for i, s := range cfg.Params.DNSSeeds {
		seeds[i] = addrmgr.Seed{Host: s.Host}
	}
	addrReg := addrmgr.New(seeds, cfg.Resolver, cfg.Rand)
	for _, a := range cfg.Peers {
		addrReg.Add(a)
	}

	m := &Manager{
		params:             cfg.Params,
		wallet:             cfg.Wallet,
		store:              store,
		addr:               addrReg,
		filter:             filtercontroller.New(),
		rel:                txrelay.New(),
		pub:                txrelay.NewPublished(),
		dial:               cfg.Dial,
		peerMaxConnections: cfg.PeerMaxConnections,
		maxConnectFailures: cfg.MaxConnectFailures,
		protocolTimeout:    cfg.ProtocolTimeout,
		reconnectDelay:     cfg.ReconnectDelay,
		defaultFeePerKb:    cfg.DefaultFeePerKb,
		maxFeePerKb:        cfg.MaxFeePerKb,
		earliestKeyTime:    cfg.EarliestKeyTime,
		peers:              make(map[txrelay.PeerKey]peer.Session),
		peerAddrs:          make(map[txrelay.PeerKey]*addrmgr.NetAddress),
		mailbox:            make(chan func(), 256),
		quit:               make(chan struct{}),
	}
	m.reconnect = connmgr.New(connmgr.Config{
		RetryDuration: cfg.ReconnectDelay,
		OnFailure: func(req *connmgr.ConnReq, err error) {
			log.Debugf("manager: scheduled reconnect attempt failed: %v", err)
		},
	})
	m.engine = chain.New(cfg.Params, store, cfg.Wallet, cfg.Verify, cfg.EarliestKeyTime, chain.Hooks{
		RescheduleSyncTimeout: m.hookRescheduleSyncTimeout,
		RequestGetBlocks:      m.hookRequestGetBlocks,
		MarkMisbehaving:       m.hookMarkMisbehaving,
		SaveSingleBlock:       m.hookSaveSingleBlock,
		SaveRecentBlocks:      m.hookSaveRecentBlocks,
		EnterMempoolPhase:     m.hookEnterMempoolPhase,
	})

	go m.run()
	return m, nil
}

// seedChain implements spec §6 "new": the highest retarget-boundary block
// among the supplied blocks becomes last_block, then its descendants among
// them are spliced into blocks; every other supplied block goes into the
// orphan pool.
// Absent any qualifying supplied block, last_block falls back to the latest
// checkpoint at or before earliestKeyTime, or genesis.
func seedChain(store *blockstore.Store, params *chaincfg.Params, blocks []*blockstore.MerkleBlock, earliestKeyTime int64) {
	var best *blockstore.MerkleBlock
	byPrev := make(map[chainhash.Hash]*blockstore.MerkleBlock, len(blocks))
	for _, b := range blocks {
		byPrev[b.PrevBlockHash] = b
		if params.DifficultyInterval > 0 && b.Height >= 0 && b.Height%params.DifficultyInterval == 0 {
			if best == nil || b.Height > best.Height {
				best = b
			}
		}
	}

	if best != nil {
		delete(byPrev, best.PrevBlockHash)
		store.PutBlock(best)
		store.SetLastBlock(best)

		cur := best
		for {
			child, ok := byPrev[cur.BlockHash]
			if !ok {
				break
			}
			delete(byPrev, cur.BlockHash)
			store.PutBlock(child)
			store.SetLastBlock(child)
			cur = child
		}
	}
	for _, b := range byPrev {
		store.PutOrphan(b)
	}
	if best != nil {
		return
	}

	if cp, ok := params.LatestCheckpointBeforeTime(earliestKeyTime); ok {
		cpBlock := &blockstore.MerkleBlock{
			BlockHash:        cp.Hash,
			Height:           cp.Height,
			Timestamp:        cp.Timestamp,
			DifficultyTarget: cp.DifficultyBits,
		}
		store.PutBlock(cpBlock)
		store.SetLastBlock(cpBlock)
		return
	}

	genesis := &blockstore.MerkleBlock{
		BlockHash:        params.GenesisHash,
		Height:           0,
		Timestamp:        params.GenesisTimestamp,
		DifficultyTarget: params.GenesisBits,
	}
	store.PutBlock(genesis)
	store.SetLastBlock(genesis)
}

// run is the Manager's event loop: the only goroutine that ever touches its
// unexported state.
func (m *Manager) run() {
	for {
		select {
		case fn := <-m.mailbox:
			fn()
		case <-m.quit:
			return
		}
	}
}

// enqueue schedules fn to run on the loop goroutine without waiting for it.
func (m *Manager) enqueue(fn func()) {
	select {
	case m.mailbox <- fn:
	case <-m.quit:
	}
}

// do schedules fn on the loop goroutine and blocks the caller until it has
// run, for callers that need a happens-before guarantee but no return value.
func (m *Manager) do(fn func()) {
	done := make(chan struct{})
	m.enqueue(func() { fn(); close(done) })
	<-done
}

// doV runs fn on the loop goroutine and returns its result to the caller.
func doV[T any](m *Manager, fn func() T) T {
	out := make(chan T, 1)
	m.enqueue(func() { out <- fn() })
	return <-out
}

func peerKeyFor(s peer.Session) txrelay.PeerKey {
	return txrelay.PeerKey(fmt.Sprintf("%s:%d", s.Host(), s.Port()))
}

func peerKeyForAddr(a *addrmgr.NetAddress) txrelay.PeerKey {
	return txrelay.PeerKey(a.Key())
}

func (m *Manager) lastBlockHeight() int64 {
	if b := m.store.LastBlock(); b != nil {
		return b.Height
	}
	return 0
}

func (m *Manager) lastBlockTimestamp() int64 {
	if b := m.store.LastBlock(); b != nil {
		return b.Timestamp
	}
	return 0
}

// blockLocator builds the locator Peer.SendGetBlocks/SendGetHeaders need.
// Full multi-hop locators (exponential backoff over ancestors) are a
// peripheral wire-protocol concern; a single current-tip hash is sufficient
// for every peer implementation this module drives, since Session.SendGet*
// only needs somewhere to resume from.
func (m *Manager) blockLocator() []chainhash.Hash {
	if b := m.store.LastBlock(); b != nil {
		return []chainhash.Hash{b.BlockHash}
	}
	return []chainhash.Hash{m.params.GenesisHash}
}

func (m *Manager) peerTweak(p peer.Session) uint32 {
	key := peerKeyFor(p)
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return h
}

// SetCallbacks installs the host's callback surface (spec §6
// "set_callbacks").
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.do(func() { m.cb = cb })
}

// Connect implements spec §4.5 "Connect".
func (m *Manager) Connect() {
	m.enqueue(m.connectLocked)
}

func (m *Manager) connectLocked() {
	now := time.Now().Unix()

	if len(m.peers) < m.peerMaxConnections {
		stale := m.addr.Len() < m.peerMaxConnections
		if !stale {
			if oldest, ok := m.addr.OldestTimestamp(); ok && now-oldest > 3*secondsPerDayManager {
				stale = true
			}
		}
		if stale {
			m.addr.Discover(now, m.peerMaxConnections)
		}

		candidates := m.addr.SampleForConnect(100)
		for _, c := range candidates {
			if len(m.peers) >= m.peerMaxConnections {
				break
			}
			key := peerKeyForAddr(c)
			if _, connected := m.peers[key]; connected {
				continue
			}
			m.initiateConnect(c)
		}
	}

	if m.syncStartHeight == 0 && m.lastBlockHeight() < m.estimatedHeight {
		m.syncStartHeight = m.lastBlockHeight() + 1
		if m.cb.SyncStarted != nil {
			m.cb.SyncStarted()
		}
	}
}

const secondsPerDayManager = 24 * 60 * 60

// scheduleReconnect implements spec §4.5 "Otherwise schedule reconnect":
// after a non-terminal peer disconnect, retry connectLocked once the
// reconnect delay elapses rather than immediately, so a churning peer
// can't spin the dial loop. Only one reconnect is ever pending; a fresh
// disconnect replaces it.
func (m *Manager) scheduleReconnect() {
	if m.reconnectReq != nil {
		m.reconnectReq.Cancel()
	}
	req := &connmgr.ConnReq{}
	m.reconnectReq = req
	m.reconnect.Schedule(req, m.reconnectDelay, false, func(ctx context.Context) error {
		m.enqueue(func() {
			if m.reconnectReq == req && !m.disconnecting {
				m.reconnectReq = nil
				m.connectLocked()
			}
		})
		return nil
	})
}

func (m *Manager) initiateConnect(addr *addrmgr.NetAddress) {
	if m.dial == nil {
		return
	}
	key := peerKeyForAddr(addr)
	session, err := m.dial(addr, m.peerCallbacks())
	if err != nil {
		log.Debugf("manager: dial %s failed: %v", addr.Key(), err)
		m.addr.Remove(addr)
		m.connectFailures++
		return
	}
	m.peers[key] = session
	m.peerAddrs[key] = addr
}

// Disconnect implements spec §5 "disconnect()": marks every session for
// teardown and spin-waits, yielding, until both connected peers and DNS
// lookup goroutines have drained.
func (m *Manager) Disconnect() {
	m.do(func() {
		m.disconnecting = true
		if m.reconnectReq != nil {
			m.reconnectReq.Cancel()
			m.reconnectReq = nil
		}
		for _, p := range m.peers {
			p.Disconnect(peer.DisconnectRequested)
		}
	})

	for {
		remaining := doV(m, func() int { return len(m.peers) })
		if remaining == 0 && m.addr.DNSThreadCount() == 0 {
			break
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}

	m.do(func() { m.disconnecting = false })
}

// Rescan implements spec §4.8: reset last_block to the nearest checkpoint at
// or before earliest_key_time (or genesis), drop the Bloom filter, and
// re-issue a chain download from the download peer if connected.
func (m *Manager) Rescan() {
	m.enqueue(func() {
		cp, ok := m.params.LatestCheckpointBeforeTime(m.earliestKeyTime)
		var tip *blockstore.MerkleBlock
		if ok {
			tip = &blockstore.MerkleBlock{
				BlockHash:        cp.Hash,
				Height:           cp.Height,
				Timestamp:        cp.Timestamp,
				DifficultyTarget: cp.DifficultyBits,
			}
		} else {
			tip = &blockstore.MerkleBlock{
				BlockHash:        m.params.GenesisHash,
				Height:           0,
				Timestamp:        m.params.GenesisTimestamp,
				DifficultyTarget: m.params.GenesisBits,
			}
		}
		m.store.PutBlock(tip)
		m.store.SetLastBlock(tip)
		m.syncStartHeight = 0
		m.filter.Clear()

		if dp, ok := m.peers[m.downloadPeer]; ok {
			locator := m.blockLocator()
			if time.Now().Unix()-m.earliestKeyTime < secondsPerWeek {
				dp.SendGetBlocks(locator, chainhash.Hash{})
			} else {
				dp.SendGetHeaders(locator, chainhash.Hash{})
			}
		}
	})
}

// PublishTx implements spec §4.6 "publish". cb is invoked at most once,
// outside the loop goroutine, with nil on success (the tx was relayed or
// advertised) or a *Error describing why it was abandoned.
func (m *Manager) PublishTx(tx wallet.Tx, info interface{}, cb func(error)) {
	m.enqueue(func() { m.publishTxLocked(tx, info, cb) })
}

func (m *Manager) publishTxLocked(tx wallet.Tx, info interface{}, cb func(error)) {
	if cb != nil {
		userCb := cb
		cb = func(err error) { go userCb(err) }
	}
	if !tx.Signed {
		if cb != nil {
			cb(newError(ErrInvalid, "tx not signed"))
		}
		return
	}
	if len(m.peers) == 0 || m.connectFailures >= m.maxConnectFailures {
		if cb != nil {
			cb(newError(ErrNotConnected, ""))
		}
		m.wallet.RemoveTx(tx.Hash)
		return
	}

	tx.Timestamp = time.Now().Unix()
	m.wallet.RegisterTx(tx)
	m.pub.Add(tx.Hash, info, cb)
	m.addUnconfirmedAncestors(tx, map[chainhash.Hash]bool{tx.Hash: true})

	invs := []peer.InvVect{{IsBlock: false, Hash: tx.Hash}}
	sent := false
	for key, p := range m.peers {
		if p.ConnectStatus() != peer.Connected {
			continue
		}
		if key == m.downloadPeer && len(m.peers) > 1 {
			continue
		}
		p.SendInv(invs)
		pk := key
		pp := p
		p.SendPing(func() {
			m.enqueue(func() { m.requestUnrelayedTxFrom(pk, pp) })
		})
		sent = true
	}

	if sent && m.pub.HasPendingCallback() {
		for _, p := range m.peers {
			if p.ConnectStatus() == peer.Connected {
				p.ScheduleDisconnect(m.protocolTimeout)
			}
		}
	}
}

// addUnconfirmedAncestors walks tx's inputs, recursively adding every
// unconfirmed ancestor to the published-tx table with no callback of its
// own (spec §4.6 "adds tx plus all unconfirmed ancestors"). seen guards
// against revisiting a tx already walked in this closure.
func (m *Manager) addUnconfirmedAncestors(tx wallet.Tx, seen map[chainhash.Hash]bool) {
	for _, in := range tx.Inputs {
		if seen[in] {
			continue
		}
		seen[in] = true
		anc, ok := m.wallet.TxByHash(in)
		if !ok || anc.Height != 0 {
			continue
		}
		if !m.pub.Has(in) {
			m.pub.Add(in, nil, nil)
		}
		m.addUnconfirmedAncestors(anc, seen)
	}
}

func (m *Manager) requestUnrelayedTxFrom(key txrelay.PeerKey, p peer.Session) {
	if _, ok := m.peers[key]; !ok {
		return
	}
	for _, h := range m.pub.Hashes() {
		if m.rel.HasRelay(h, key) || m.rel.HasRequest(h, key) {
			continue
		}
		p.SendGetData([]peer.InvVect{{IsBlock: false, Hash: h}})
		m.rel.AddRequest(h, key)
	}
}

// recomputeFeeFloor implements spec §4.7: take the second-highest fee_per_kb
// across connected peers; if 1.5x that lies in (DefaultFeePerKb,
// MaxFeePerKb] and exceeds the wallet's current setting, raise it.
func (m *Manager) recomputeFeeFloor() {
	var highest, second dcrutil.Amount
	for _, p := range m.peers {
		if p.ConnectStatus() != peer.Connected {
			continue
		}
		fee := p.FeePerKb()
		if fee > highest {
			second = highest
			highest = fee
		} else if fee > second {
			second = fee
		}
	}
	if second == 0 {
		return
	}
	candidate := dcrutil.Amount(float64(second) * 1.5)
	if candidate <= m.defaultFeePerKb || candidate > m.maxFeePerKb {
		return
	}
	if candidate > m.wallet.FeePerKb() {
		m.wallet.SetFeePerKb(candidate)
	}
}

// IsConnected reports whether at least one peer is connected.
func (m *Manager) IsConnected() bool {
	return doV(m, func() bool {
		for _, p := range m.peers {
			if p.ConnectStatus() == peer.Connected {
				return true
			}
		}
		return false
	})
}

// PeerCount returns the number of peers currently connected or connecting.
func (m *Manager) PeerCount() int {
	return doV(m, func() int { return len(m.peers) })
}

// LastBlockHeight returns the current best tip's height.
func (m *Manager) LastBlockHeight() int64 {
	return doV(m, m.lastBlockHeight)
}

// LastBlockTimestamp returns the current best tip's header timestamp.
func (m *Manager) LastBlockTimestamp() int64 {
	return doV(m, m.lastBlockTimestamp)
}

// EstimatedBlockHeight returns the estimated chain height: the last_block
// advertised by the most recently elected download peer at the time of its
// election. It is not updated from other peers' advertisements.
func (m *Manager) EstimatedBlockHeight() int64 {
	return doV(m, func() int64 { return m.estimatedHeight })
}

// SyncProgress implements spec §6 "Sync-progress".
func (m *Manager) SyncProgress() float64 {
	return doV(m, func() float64 {
		if m.syncStartHeight == 0 {
			return 0
		}
		last := m.lastBlockHeight()
		if last >= m.estimatedHeight {
			return 1.0
		}
		span := m.estimatedHeight - m.syncStartHeight
		if span <= 0 || last <= m.syncStartHeight {
			return 0.05
		}
		progress := 0.1 + 0.9*float64(last-m.syncStartHeight)/float64(span)
		if progress < 0.05 {
			return 0.05
		}
		return progress
	})
}

// RelayCount returns how many distinct connected peers have relayed txHash.
func (m *Manager) RelayCount(txHash chainhash.Hash) int {
	return doV(m, func() int { return m.rel.RelayCount(txHash) })
}

// DownloadPeerName returns the elected download peer's host:port, or "" if
// none is elected.
func (m *Manager) DownloadPeerName() string {
	return doV(m, func() string { return string(m.downloadPeer) })
}
