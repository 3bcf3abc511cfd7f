// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain implements the chain engine (spec §4.2): arrival
// classification for incoming merkle blocks, reorg detection and
// execution, difficulty verification on retarget boundaries, and orphan
// resolution. It owns no network or peer state; the session orchestrator
// (package manager) drives it and supplies the Hooks it needs for side
// effects that must happen outside the event loop's synchronous path.
package chain

import (
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/slog"

	"github.com/ltcsuite/ltcspv/blockstore"
	"github.com/ltcsuite/ltcspv/chaincfg"
	"github.com/ltcsuite/ltcspv/wallet"
)

// log is the package-level subsystem logger; callers wire a real backend
// via UseLogger. Defaults to a disabled logger so importing this package
// is silent by default.
var log = slog.Disabled

// UseLogger sets the subsystem logger used by package chain.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Result classifies how an incoming block was handled (spec §4.2, one of
// nine mutually exclusive cases).
type Result int

const (
	ResultHeaderOnlyTooNew Result = iota
	ResultFilterUpdateInFlight
	ResultOrphan
	ResultInvalid
	ResultExtendsTip
	ResultDuplicateMainChain
	ResultDuplicateFork
	ResultGapOnDownload
	ResultForkBelowCheckpoint
	ResultReorg
)

func (r Result) String() string {
	switch r {
	case ResultHeaderOnlyTooNew:
		return "header-only-too-new"
	case ResultFilterUpdateInFlight:
		return "filter-update-in-flight"
	case ResultOrphan:
		return "orphan"
	case ResultInvalid:
		return "invalid"
	case ResultExtendsTip:
		return "extends-tip"
	case ResultDuplicateMainChain:
		return "duplicate-main-chain"
	case ResultDuplicateFork:
		return "duplicate-fork"
	case ResultGapOnDownload:
		return "gap-on-download"
	case ResultForkBelowCheckpoint:
		return "fork-below-checkpoint"
	case ResultReorg:
		return "reorg"
	}
	return "unknown"
}

// secondsPerWeek bounds orphan retention (spec §4.2 case 3) and the
// header-only-too-new window uses a 5 day offset from earliest_key_time.
const (
	secondsPerDay  = 24 * 60 * 60
	secondsPerWeek = 7 * secondsPerDay
	headerOnlyGraceDays = 5
)

// Hooks are the side effects the engine requests from its caller. They are
// always invoked synchronously from within ProcessBlock (the engine has no
// goroutines of its own); the manager's event loop is the only caller, so
// these never race with anything else touching the store (spec §5).
type Hooks struct {
	// RescheduleSyncTimeout reschedules the PROTOCOL_TIMEOUT deadline for
	// the peer the current block arrived from.
	RescheduleSyncTimeout func()

	// RequestGetBlocks asks the orchestrator to send getblocks to resume
	// sync after an orphan is observed (spec §4.2 case 3).
	RequestGetBlocks func()

	// MarkMisbehaving flags the peer the current block arrived from as
	// misbehaving (spec §4.2 case 4, §4.5, §7).
	MarkMisbehaving func(reason string)

	// SaveSingleBlock requests a single-block incremental save (spec
	// §4.2 "Persistence trigger", n==1 case).
	SaveSingleBlock func(b *blockstore.MerkleBlock)

	// SaveRecentBlocks requests a full save of the most recent n blocks
	// (spec §4.2 "Persistence trigger", reaching estimated_height).
	SaveRecentBlocks func(blocks []*blockstore.MerkleBlock, n int)

	// EnterMempoolPhase is invoked once height == estimated_height (spec
	// §4.2 case 5, "trigger mempool-load phase").
	EnterMempoolPhase func()
}

// Context carries the ambient facts the engine needs about the arriving
// block's origin that it cannot derive from the store alone.
type Context struct {
	FromDownloadPeer   bool
	IsSyncing          bool
	FilterActive       bool // false means bloom_filter == nil, an update is in flight
	AppearsSyncedWithPeer bool
	EstimatedHeight    int64
}

// Engine is the chain engine described in spec §4.2. It is not safe for
// concurrent use; all calls are expected to come from a single serializing
// goroutine (spec §5), typically package manager's event loop.
type Engine struct {
	Params          *chaincfg.Params
	Store           *blockstore.Store
	Wallet          wallet.Adapter
	Verify          Verifier
	EarliestKeyTime int64
	Hooks           Hooks
}

// New builds an Engine. verify may be nil, in which case DefaultVerifier is
// used.
func New(params *chaincfg.Params, store *blockstore.Store, w wallet.Adapter, verify Verifier, earliestKeyTime int64, hooks Hooks) *Engine {
	if verify == nil {
		verify = DefaultVerifier
	}
	return &Engine{
		Params:          params,
		Store:           store,
		Wallet:          w,
		Verify:          verify,
		EarliestKeyTime: earliestKeyTime,
		Hooks:           hooks,
	}
}

// ProcessBlock classifies and applies an incoming merkle block, returning
// which of the nine spec §4.2 cases it fell into. now is the caller's
// current wall-clock time, passed in rather than read internally so the
// engine stays deterministic and testable.
func (e *Engine) ProcessBlock(b *blockstore.MerkleBlock, ctx Context, now int64) Result {
	// Case 2: filter update in flight. Checked first — it must suppress
	// mutation of the store entirely (spec T6).
	if !ctx.FilterActive {
		if ctx.FromDownloadPeer && ctx.IsSyncing && e.Hooks.RescheduleSyncTimeout != nil {
			e.Hooks.RescheduleSyncTimeout()
		}
		return ResultFilterUpdateInFlight
	}

	// Case 1: header-only too new.
	if b.IsHeaderOnly() && b.Timestamp > e.EarliestKeyTime-headerOnlyGraceDays*secondsPerDay {
		if e.Hooks.RescheduleSyncTimeout != nil {
			e.Hooks.RescheduleSyncTimeout()
		}
		return ResultHeaderOnlyTooNew
	}

	// Case 6: duplicate.
	if existing, ok := e.Store.Block(b.BlockHash); ok {
		return e.handleDuplicate(existing, now)
	}

	prev, havePrev := e.Store.Block(b.PrevBlockHash)

	// Case 3: orphan.
	if !havePrev {
		return e.handleOrphan(b, ctx, now)
	}

	// Case 4: invalid (difficulty/checkpoint).
	if !e.isValid(b, prev) {
		log.Warnf("chain: rejecting block %v at height %d: difficulty or checkpoint mismatch",
			b.BlockHash, prev.Height+1)
		if e.Hooks.MarkMisbehaving != nil {
			e.Hooks.MarkMisbehaving("invalid block: difficulty or checkpoint mismatch")
		}
		return ResultInvalid
	}

	b.Height = prev.Height + 1

	tip := e.Store.LastBlock()

	// Case 8: fork below most recent checkpoint.
	if tip != nil {
		if cpHeight, ok := e.Store.MostRecentCheckpointHeight(tip.Height); ok && b.Height <= cpHeight {
			if b.PrevBlockHash != tip.BlockHash {
				return ResultForkBelowCheckpoint
			}
		}
	}

	// Case 7: gap on download.
	if tip != nil && tip.Height+1 < b.Height {
		e.Store.PutOrphan(b)
		return ResultGapOnDownload
	}

	e.Store.PutBlock(b)

	// Case 5: extends tip.
	if tip == nil || b.PrevBlockHash == tip.BlockHash {
		e.applyBlockToWallet(b, prev)
		e.Store.SetLastBlock(b)
		e.afterIntegration(b, ctx)
		if e.Hooks.RescheduleSyncTimeout != nil {
			e.Hooks.RescheduleSyncTimeout()
		}
		if b.Height == ctx.EstimatedHeight && e.Hooks.EnterMempoolPhase != nil {
			e.Hooks.EnterMempoolPhase()
		}
		return ResultExtendsTip
	}

	// Case 9: fork. Reorg if now strictly longer than main.
	if tip != nil && b.Height > tip.Height {
		e.reorg(b)
		e.afterIntegration(b, ctx)
		return ResultReorg
	}

	return ResultDuplicateFork
}

// handleDuplicate implements spec §4.2 case 6.
func (e *Engine) handleDuplicate(existing *blockstore.MerkleBlock, now int64) Result {
	tip := e.Store.LastBlock()
	if e.Store.IsAncestor(existing, tip) {
		e.applyBlockToWallet(existing, e.parentOf(existing))
		return ResultDuplicateMainChain
	}
	return ResultDuplicateFork
}

// handleOrphan implements spec §4.2 case 3.
func (e *Engine) handleOrphan(b *blockstore.MerkleBlock, ctx Context, now int64) Result {
	if now-b.Timestamp > secondsPerWeek {
		return ResultOrphan // too old, dropped without storing
	}

	prevWasSamePredecessor := false
	if last := e.Store.LastOrphan(); last != nil {
		prevWasSamePredecessor = last.PrevBlockHash == b.PrevBlockHash
	}

	e.Store.PutOrphan(b)

	if ctx.AppearsSyncedWithPeer && !prevWasSamePredecessor && e.Hooks.RequestGetBlocks != nil {
		e.Hooks.RequestGetBlocks()
	}
	return ResultOrphan
}

// isValid runs spec §4.2 B2/B3 plus §4.3 difficulty verification.
func (e *Engine) isValid(b, prev *blockstore.MerkleBlock) bool {
	height := prev.Height + 1

	if cp, ok := e.Store.CheckpointAt(height); ok {
		if cp.BlockHash != b.BlockHash {
			return false
		}
	}

	if e.Params.DifficultyInterval > 0 && height%e.Params.DifficultyInterval == 0 {
		intervalStart := e.walkToIntervalStart(prev)
		if intervalStart == nil {
			return false
		}
		if !e.Verify(e.Params, b, prev, intervalStart) {
			return false
		}
	}

	return true
}

// walkToIntervalStart walks DifficultyInterval-1 parents back from prev
// (DifficultyInterval heights below the block being verified) to find the
// block at the start of the current retarget interval, evicting
// non-retarget-boundary intermediates it passes through along the way
// (spec §4.3).
func (e *Engine) walkToIntervalStart(prev *blockstore.MerkleBlock) *blockstore.MerkleBlock {
	steps := e.Params.DifficultyInterval - 1
	cur := prev
	for i := int64(0); i < steps; i++ {
		if cur == nil {
			return nil
		}
		parent, ok := e.Store.Block(cur.PrevBlockHash)
		if !ok {
			return nil
		}
		if cur.Height%e.Params.DifficultyInterval != 0 && cur.Height != prev.Height {
			e.Store.EvictBlock(cur.BlockHash)
		}
		cur = parent
	}
	return cur
}

// parentOf is a convenience lookup used where a missing parent is not
// itself meaningful (the block is already known to be linked).
func (e *Engine) parentOf(b *blockstore.MerkleBlock) *blockstore.MerkleBlock {
	p, _ := e.Store.Block(b.PrevBlockHash)
	return p
}

// applyBlockToWallet updates wallet tx heights for a block extending (or
// already on) the main chain, approximating the block's effective
// timestamp as the average of it and its parent's header timestamp (spec
// §4.2 case 5).
func (e *Engine) applyBlockToWallet(b, prev *blockstore.MerkleBlock) {
	if len(b.TxHashes) == 0 {
		return
	}
	ts := b.Timestamp / 2
	if prev != nil {
		ts += prev.Timestamp / 2
	}
	e.Wallet.UpdateTxHeights(b.TxHashes, b.Height, ts)
}

// reorg implements spec §4.2 "Reorg": walk both tips back in lockstep to
// the common ancestor, demote every wallet tx above it to unconfirmed,
// then walk forward from the ancestor to the new tip re-applying heights
// in order so the wallet ends with the new chain's view.
func (e *Engine) reorg(newTip *blockstore.MerkleBlock) {
	oldTip := e.Store.LastBlock()
	log.Infof("chain: reorg from %v (height %d) to %v (height %d)",
		oldTip.BlockHash, oldTip.Height, newTip.BlockHash, newTip.Height)

	a, bNode := oldTip, newTip
	for a != nil && bNode != nil && a.BlockHash != bNode.BlockHash {
		if a.Height >= bNode.Height && a.Height > 0 {
			a = e.parentOf(a)
		} else if bNode.Height > 0 {
			bNode = e.parentOf(bNode)
		} else {
			break
		}
	}
	var ancestorHeight int64
	if a != nil {
		ancestorHeight = a.Height
	}

	e.Wallet.SetUnconfirmedAfter(ancestorHeight)

	// Walk forward from the new tip down to the ancestor, collecting the
	// chain in ancestor-to-tip order, then re-apply in that order so the
	// final wallet state reflects the new chain.
	var forward []*blockstore.MerkleBlock
	cur := newTip
	for cur != nil && cur.Height > ancestorHeight {
		forward = append(forward, cur)
		cur = e.parentOf(cur)
	}
	for i := len(forward) - 1; i >= 0; i-- {
		blk := forward[i]
		e.applyBlockToWallet(blk, e.parentOf(blk))
	}

	e.Store.SetLastBlock(newTip)
}

// afterIntegration runs orphan resolution and the persistence trigger that
// follow processing any block that was integrated into the store (spec
// §4.2 "Orphan resolution", "Persistence trigger").
func (e *Engine) afterIntegration(b *blockstore.MerkleBlock, ctx Context) {
	e.resolveOrphans(b, ctx)

	if e.Params.DifficultyInterval > 0 && b.Height%e.Params.DifficultyInterval == 0 {
		if e.Hooks.SaveSingleBlock != nil {
			e.Hooks.SaveSingleBlock(b)
		}
	}

	if b.Height == ctx.EstimatedHeight && e.Hooks.SaveRecentBlocks != nil {
		n := int(b.Height%e.Params.DifficultyInterval) + int(e.Params.DifficultyInterval) + 1
		recent := e.collectRecent(b, n)
		e.Hooks.SaveRecentBlocks(recent, n)
	}
}

// collectRecent gathers up to n of the most recent blocks ending at tip,
// walking prev-block links.
func (e *Engine) collectRecent(tip *blockstore.MerkleBlock, n int) []*blockstore.MerkleBlock {
	out := make([]*blockstore.MerkleBlock, 0, n)
	cur := tip
	for cur != nil && len(out) < n {
		out = append(out, cur)
		cur = e.parentOf(cur)
	}
	return out
}

// resolveOrphans implements spec §4.2 "Orphan resolution" with an explicit
// work queue (spec §9 "Orphan recursion") rather than direct recursion, to
// bound stack use on long orphan chains.
func (e *Engine) resolveOrphans(b *blockstore.MerkleBlock, ctx Context) {
	queue := []chainhash.Hash{b.BlockHash}
	for len(queue) > 0 {
		parentHash := queue[0]
		queue = queue[1:]

		child, ok := e.Store.RemoveOrphan(parentHash)
		if !ok {
			continue
		}

		parent, _ := e.Store.Block(parentHash)
		if parent == nil {
			continue
		}
		child.Height = parent.Height + 1
		if !e.isValid(child, parent) {
			if e.Hooks.MarkMisbehaving != nil {
				e.Hooks.MarkMisbehaving("orphan child failed validation on resolution")
			}
			continue
		}

		e.Store.PutBlock(child)
		tip := e.Store.LastBlock()
		if tip == nil || child.PrevBlockHash == tip.BlockHash {
			e.applyBlockToWallet(child, parent)
			e.Store.SetLastBlock(child)
		} else if child.Height > tip.Height {
			e.reorg(child)
		}

		queue = append(queue, child.BlockHash)
	}
}
