// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package manager

import (
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"

	"github.com/ltcsuite/ltcspv/addrmgr"
	"github.com/ltcsuite/ltcspv/blockstore"
	"github.com/ltcsuite/ltcspv/chain"
	"github.com/ltcsuite/ltcspv/filtercontroller"
	"github.com/ltcsuite/ltcspv/peer"
	"github.com/ltcsuite/ltcspv/txrelay"
)

// peerCallbacks builds the peer.Callbacks value every dialed session is
// constructed with. Every handler immediately hops onto the loop goroutine
// (spec §5: callbacks run outside any peer-held lock, and the manager has no
// lock of its own to acquire — only a mailbox send).
func (m *Manager) peerCallbacks() peer.Callbacks {
	return peer.Callbacks{
		OnConnected: func(p peer.Session) {
			m.enqueue(func() { m.onPeerConnected(p) })
		},
		OnDisconnected: func(p peer.Session, reason peer.DisconnectReason) {
			m.enqueue(func() { m.onPeerDisconnected(p, reason) })
		},
		OnRelayedPeers: func(p peer.Session, addrs []*addrmgr.NetAddress) {
			m.enqueue(func() { m.onRelayedPeers(p, addrs) })
		},
		OnRelayedTx: func(p peer.Session, txHash chainhash.Hash) {
			m.enqueue(func() { m.onRelayedTx(p, txHash) })
		},
		OnHasTx: func(p peer.Session, txHash chainhash.Hash) bool {
			return doV(m, func() bool {
				_, ok := m.wallet.TxByHash(txHash)
				return ok || m.pub.Has(txHash)
			})
		},
		OnRejectedTx: func(p peer.Session, txHash chainhash.Hash, code peer.RejectCode) {
			m.enqueue(func() { m.onRejectedTx(p, txHash, code) })
		},
		OnRelayedBlock: func(p peer.Session, block *blockstore.MerkleBlock) {
			m.enqueue(func() { m.onRelayedBlock(p, block) })
		},
		OnDataNotFound: func(p peer.Session, txHashes, blockHashes []chainhash.Hash) {
			m.enqueue(func() { m.onDataNotFound(p, txHashes, blockHashes) })
		},
		OnSetFeePerKb: func(p peer.Session, fee dcrutil.Amount) {
			m.enqueue(func() {
				p.SetFeePerKb(fee)
				m.recomputeFeeFloor()
			})
		},
		OnRequestedTx: func(p peer.Session, txHash chainhash.Hash) (interface{}, bool) {
			type lookup struct {
				tx interface{}
				ok bool
			}
			res := doV(m, func() lookup {
				tx, ok := m.wallet.TxByHash(txHash)
				if !ok {
					return lookup{}
				}
				return lookup{tx: tx, ok: true}
			})
			return res.tx, res.ok
		},
		NetworkIsReachable: func() bool {
			return doV(m, func() bool {
				if m.cb.NetworkIsReachable != nil {
					return m.cb.NetworkIsReachable()
				}
				return true
			})
		},
		OnThreadCleanup: func(p peer.Session) {
			m.enqueue(func() { m.onThreadCleanup(p) })
		},
	}
}

// onPeerConnected implements spec §4.5 "On peer connected".
func (m *Manager) onPeerConnected(p peer.Session) {
	key := peerKeyFor(p)
	if _, known := m.peers[key]; !known {
		// Connected after Disconnect tore the pool down; ignore.
		return
	}

	if addr, ok := m.peerAddrs[key]; ok {
		now := time.Now().Unix()
		if addr.Timestamp < now-2*60*60 {
			addr.Timestamp = now - 2*60*60
		} else if addr.Timestamp > now+2*60*60 {
			addr.Timestamp = now + 2*60*60
		}
	}

	if p.Services()&peer.SFNodeNetwork == 0 ||
		int64(p.LastBlock())+10 < m.lastBlockHeight() ||
		(p.Version() >= 70011 && p.Services()&peer.SFNodeBloom == 0) {
		m.dropPeer(key, peer.DisconnectProtocol)
		return
	}

	now := time.Now().Unix()

	keepCurrent := false
	if m.downloadPeer != "" {
		if dp, ok := m.peers[m.downloadPeer]; ok {
			if dp.LastBlock() >= p.LastBlock() || m.lastBlockHeight() >= int64(p.LastBlock()) {
				keepCurrent = true
				if m.isSyncedLocked() {
					m.loadFilterOnto(p)
					m.publishPendingOn(key, p)
				}
			}
		}
	}

	if !keepCurrent {
		m.electDownloadPeer(p, now)
	}

	m.connectLocked()
}

func (m *Manager) isSyncedLocked() bool {
	return m.syncStartHeight != 0 && m.lastBlockHeight() >= m.estimatedHeight
}

// farFromTip reports whether p is more than 500 blocks ahead of our current
// tip, the concrete "far from the chain tip" gate spec §4.4's proactive
// filter rebuild requires rather than mere sync-in-progress state.
func (m *Manager) farFromTip(p peer.Session) bool {
	return int64(p.LastBlock())-m.lastBlockHeight() > 500
}

// electDownloadPeer implements spec §4.5's election rule as written,
// without the two-peer-agreement mitigation the spec's §9 Open Questions
// flags as commented-out in the source: a single adversarial peer can
// still inflate last_block to win election here. See DESIGN.md for why
// this implementation leaves that open rather than guessing an unspecified
// agreement protocol.
//
// Among connected peers (including the candidate), prefer the lowest ping
// time among those whose last_block is >= the candidate's; failing that,
// the one with
// strictly greater last_block.
func (m *Manager) electDownloadPeer(candidate peer.Session, now int64) {
	pool := make([]peer.Session, 0, len(m.peers))
	for _, s := range m.peers {
		if s.ConnectStatus() == peer.Connected {
			pool = append(pool, s)
		}
	}

	var eligible []peer.Session
	for _, s := range pool {
		if s.LastBlock() >= candidate.LastBlock() {
			eligible = append(eligible, s)
		}
	}

	var winner peer.Session
	if len(eligible) > 0 {
		winner = eligible[0]
		for _, s := range eligible[1:] {
			if s.PingTimeMs() < winner.PingTimeMs() {
				winner = s
			}
		}
	} else {
		winner = candidate
		for _, s := range pool {
			if s.LastBlock() > winner.LastBlock() {
				winner = s
			}
		}
	}

	newKey := peerKeyFor(winner)
	if m.downloadPeer == newKey {
		return
	}
	if old, ok := m.peers[m.downloadPeer]; ok {
		old.Disconnect(peer.DisconnectRequested)
	}
	m.downloadPeer = newKey
	m.estimatedHeight = int64(winner.LastBlock())
	m.loadFilterOnto(winner)

	if m.lastBlockHeight() < m.estimatedHeight {
		winner.ScheduleDisconnect(m.protocolTimeout)
		locator := m.blockLocator()
		if now-m.earliestKeyTime < secondsPerWeek {
			winner.SendGetBlocks(locator, chainhash.Hash{})
		} else {
			winner.SendGetHeaders(locator, chainhash.Hash{})
		}
	}
}

func (m *Manager) loadFilterOnto(p peer.Session) {
	f := m.filter.Filter()
	if f == nil {
		f = filtercontroller.Build(m.wallet, m.lastBlockHeight(), m.peerTweak(p))
		m.filter.SetFilter(f, m.lastBlockHeight())
	}
	p.SendFilterLoad(f)
}

func (m *Manager) publishPendingOn(key txrelay.PeerKey, p peer.Session) {
	hashes := m.pub.Hashes()
	if len(hashes) == 0 {
		return
	}
	invs := make([]peer.InvVect, 0, len(hashes))
	for _, h := range hashes {
		invs = append(invs, peer.InvVect{IsBlock: false, Hash: h})
	}
	p.SendInv(invs)
	p.SendPing(func() {
		m.enqueue(func() { m.requestUnrelayedTxFrom(key, p) })
	})
}

func (m *Manager) dropPeer(key txrelay.PeerKey, reason peer.DisconnectReason) {
	if p, ok := m.peers[key]; ok {
		p.Disconnect(reason)
	}
}

// onPeerDisconnected implements spec §4.5 "On peer disconnected" / §7.
func (m *Manager) onPeerDisconnected(p peer.Session, reason peer.DisconnectReason) {
	key := peerKeyFor(p)
	if _, ok := m.peers[key]; !ok {
		return
	}
	delete(m.peers, key)
	addr := m.peerAddrs[key]
	delete(m.peerAddrs, key)
	m.rel.RemovePeer(key)

	var txErr error
	switch reason {
	case peer.DisconnectProtocol:
		if addr != nil {
			m.addr.Remove(addr)
		}
		m.misbehaveCount++
		if m.misbehaveCount >= misbehaveClearThreshold {
			m.addr.Clear()
		}
	default:
		if addr != nil {
			m.addr.Remove(addr)
		}
		m.connectFailures++
		if reason == peer.DisconnectTimedOut {
			txErr = newError(ErrTimedOut, "")
		}
	}

	if m.downloadPeer == key {
		m.downloadPeer = ""
	}

	if m.connectFailures >= m.maxConnectFailures {
		m.syncStartHeight = 0
		m.addr.Clear()
		txErr = newError(ErrNotConnected, "")
		if m.cb.SaveBlocks != nil {
			if tip := m.store.LastBlock(); tip != nil {
				m.cb.SaveBlocks([]*blockstore.MerkleBlock{tip}, 1)
			}
		}
		if m.cb.SyncFailed != nil {
			m.cb.SyncFailed(txErr)
		}
	} else if !m.disconnecting {
		m.scheduleReconnect()
	}

	if txErr != nil {
		m.pub.FireAll(txErr)
	}

	if m.cb.ThreadCleanup != nil {
		m.cb.ThreadCleanup()
	}
}

func (m *Manager) onThreadCleanup(p peer.Session) {
	// OnDisconnected already ran the teardown; OnThreadCleanup is the
	// final notification the session object may now be released. Nothing
	// further to do since Manager holds no resources keyed by the Session
	// pointer itself once it is removed from m.peers.
}

func (m *Manager) onRelayedPeers(p peer.Session, addrs []*addrmgr.NetAddress) {
	for _, a := range addrs {
		m.addr.Add(a)
	}
}

func (m *Manager) onRelayedTx(p peer.Session, txHash chainhash.Hash) {
	key := peerKeyFor(p)
	m.rel.AddRelay(txHash, key)
	m.rel.RemoveRequest(txHash, key)

	if m.rel.RelayCount(txHash) >= m.peerMaxConnections {
		if tx, ok := m.wallet.TxByHash(txHash); ok && tx.Height == 0 && tx.Timestamp == 0 {
			m.wallet.SetTxTimestamp(txHash, time.Now().Unix())
			if m.cb.TxStatusUpdate != nil {
				m.cb.TxStatusUpdate()
			}
		}
	}

	m.pub.Fire(txHash, nil)

	if filtercontroller.NeedsReactiveRebuild(m.wallet, m.filter.Filter()) {
		m.filter.Clear()
		m.triggerFilterUpdate()
	}
}

// onRejectedTx implements spec §7's invalid-tx handling.
func (m *Manager) onRejectedTx(p peer.Session, txHash chainhash.Hash, code peer.RejectCode) {
	tx, ok := m.wallet.TxByHash(txHash)
	if code != peer.RejectSpent && code != peer.RejectDoubleSpend {
		allConfirmed := ok
		for _, in := range tx.Inputs {
			anc, ok := m.wallet.TxByHash(in)
			if !ok || anc.Height == 0 {
				allConfirmed = false
				break
			}
		}
		if allConfirmed {
			p.MarkMisbehaving()
			p.Disconnect(peer.DisconnectProtocol)
			return
		}
	}
	if ok && tx.Timestamp != 0 {
		m.wallet.SetTxTimestamp(txHash, 0)
	}
	m.pub.Fire(txHash, newError(ErrInvalid, "tx rejected by peer"))
}

// onRelayedBlock implements the transport side of spec §4.2: build the
// chain.Context the engine needs and apply ProcessBlock, then run the
// filter controller's false-positive tracking when the block came from the
// download peer.
func (m *Manager) onRelayedBlock(p peer.Session, block *blockstore.MerkleBlock) {
	key := peerKeyFor(p)
	fromDownloadPeer := key == m.downloadPeer

	m.currentBlockPeer = key
	ctx := chain.Context{
		FromDownloadPeer:      fromDownloadPeer,
		IsSyncing:             m.syncStartHeight != 0,
		FilterActive:          m.filter.Filter() != nil,
		AppearsSyncedWithPeer: int64(p.LastBlock()) <= m.lastBlockHeight()+1,
		EstimatedHeight:       m.estimatedHeight,
	}
	result := m.engine.ProcessBlock(block, ctx, time.Now().Unix())
	m.currentBlockPeer = ""

	if fromDownloadPeer && m.filter.Filter() != nil {
		falsePositives := 0
		for _, h := range block.TxHashes {
			if _, ok := m.wallet.TxByHash(h); !ok {
				falsePositives++
			}
		}
		m.filter.RecordBlock(int(block.TotalTx), falsePositives)
		if m.filter.ShouldDisconnectForFPRate() {
			p.Disconnect(peer.DisconnectOther)
		} else if m.farFromTip(p) && m.filter.ShouldTriggerUpdateFarFromTip() {
			m.filter.Clear()
			m.triggerFilterUpdate()
		}
	}

	_ = result
}

// triggerFilterUpdate implements spec §4.4's "Update protocol": a
// ping-barrier chain that rebuilds the Bloom filter once it has been
// cleared and pushes it out to the peers due for a refresh — every
// connected peer when not syncing, only the download peer when syncing —
// before resuming either chain download or mempool relay on the far side
// of a second barrier.
func (m *Manager) triggerFilterUpdate() {
	for key, p := range m.peers {
		if p.ConnectStatus() != peer.Connected {
			continue
		}
		if m.syncStartHeight != 0 && key != m.downloadPeer {
			continue
		}
		p.SetNeedsFilterUpdate(true)
		pk, pp := key, p
		p.SendPing(func() {
			m.enqueue(func() { m.onFilterUpdateBarrier1(pk, pp) })
		})
	}
}

// onFilterUpdateBarrier1 runs once the first ping of the update barrier
// is acknowledged: rebuild the filter if no concurrent chain already did,
// push it to this peer, then arm the second ping.
func (m *Manager) onFilterUpdateBarrier1(key txrelay.PeerKey, p peer.Session) {
	if _, ok := m.peers[key]; !ok || !p.NeedsFilterUpdate() {
		return
	}
	p.SetNeedsFilterUpdate(false)

	f := m.filter.Filter()
	if f == nil {
		f = filtercontroller.Build(m.wallet, m.lastBlockHeight(), m.peerTweak(p))
		m.filter.SetFilter(f, m.lastBlockHeight())
		f = m.filter.Filter()
	}
	p.SendFilterLoad(f)

	pk, pp := key, p
	p.SendPing(func() {
		m.enqueue(func() { m.onFilterUpdateBarrier2(pk, pp) })
	})
}

// onFilterUpdateBarrier2 runs once the second ping is acknowledged: the
// peer has now applied the reloaded filter, so it's safe to resume either
// chain download (rerequesting from the current tip) or mempool relay.
func (m *Manager) onFilterUpdateBarrier2(key txrelay.PeerKey, p peer.Session) {
	if _, ok := m.peers[key]; !ok {
		return
	}
	if m.syncStartHeight != 0 {
		if tip := m.store.LastBlock(); tip != nil {
			p.RerequestBlocks(tip.BlockHash)
		}
		return
	}
	p.SendMempool()
}

func (m *Manager) onDataNotFound(p peer.Session, txHashes, blockHashes []chainhash.Hash) {
	key := peerKeyFor(p)
	for _, h := range txHashes {
		m.rel.RemoveRequest(h, key)
	}
}

func (m *Manager) hookRescheduleSyncTimeout() {
	if p, ok := m.peers[m.currentBlockPeer]; ok {
		p.ScheduleDisconnect(m.protocolTimeout)
	}
}

func (m *Manager) hookRequestGetBlocks() {
	if p, ok := m.peers[m.currentBlockPeer]; ok {
		p.SendGetBlocks(m.blockLocator(), chainhash.Hash{})
	}
}

func (m *Manager) hookMarkMisbehaving(reason string) {
	if p, ok := m.peers[m.currentBlockPeer]; ok {
		log.Debugf("manager: peer %s misbehaving: %s", m.currentBlockPeer, reason)
		p.MarkMisbehaving()
		p.Disconnect(peer.DisconnectProtocol)
	}
}

func (m *Manager) hookSaveSingleBlock(b *blockstore.MerkleBlock) {
	if m.cb.SaveBlocks != nil {
		m.cb.SaveBlocks([]*blockstore.MerkleBlock{b}, 1)
	}
}

func (m *Manager) hookSaveRecentBlocks(blocks []*blockstore.MerkleBlock, n int) {
	if m.cb.SaveBlocks != nil {
		m.cb.SaveBlocks(blocks, n)
	}
}

func (m *Manager) hookEnterMempoolPhase() {
	m.enterMempoolPhase()
}

// enterMempoolPhase implements spec §4.5 "Post-sync phase (loadMempools)".
func (m *Manager) enterMempoolPhase() {
	if m.cb.SyncSucceeded != nil {
		m.cb.SyncSucceeded()
	}
	for key, p := range m.peers {
		if p.ConnectStatus() != peer.Connected {
			continue
		}
		skipFilterReload := key == m.downloadPeer && !m.filter.ShouldRefreshOnDownloadPeerDuringMempoolLoad()
		if !skipFilterReload {
			m.loadFilterOnto(p)
		}
		m.publishPendingOn(key, p)

		pk, pp := key, p
		p.SendPing(func() {
			m.enqueue(func() { m.onMempoolBarrier(pk, pp) })
		})
	}
}

func (m *Manager) onMempoolBarrier(key txrelay.PeerKey, p peer.Session) {
	if _, ok := m.peers[key]; !ok {
		return
	}
	p.SendMempool()
	p.SendPing(func() {
		m.enqueue(func() { m.onMempoolRelayed(key, p) })
	})
}

func (m *Manager) onMempoolRelayed(key txrelay.PeerKey, p peer.Session) {
	if _, ok := m.peers[key]; !ok {
		return
	}
	p.SetSynced(true)
	p.SendGetAddr()
	m.requestUnrelayedTxFrom(key, p)

	m.maybeSweepUnrelayedTx()
}

// maybeSweepUnrelayedTx implements spec §4.5 "Unrelayed tx sweep": once
// every connection slot is marked synced, unconfirmed wallet tx with no
// surviving relation are dropped, and those with too few relays are
// demoted back to unverified.
func (m *Manager) maybeSweepUnrelayedTx() {
	if len(m.peers) < m.peerMaxConnections {
		return
	}
	for _, p := range m.peers {
		if !p.IsSynced() {
			return
		}
	}

	for _, tx := range m.wallet.UnconfirmedTxs() {
		hasRelation := m.rel.HasAnyRelation(tx.Hash)
		if m.pub.HasPendingCallback() && m.pub.Has(tx.Hash) {
			hasRelation = true
		}
		if !hasRelation {
			m.wallet.RemoveTx(tx.Hash)
			m.pub.Remove(tx.Hash)
			m.rel.Forget(tx.Hash)
			continue
		}
		if m.rel.RelayCount(tx.Hash) < m.peerMaxConnections {
			m.wallet.SetTxTimestamp(tx.Hash, 0)
		}
	}
}
