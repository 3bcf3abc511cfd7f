// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package filtercontroller builds the Bloom filter from wallet state,
// tracks its false-positive rate, and decides when a rebuild is due. The
// three-step ping-barrier exchange that actually pushes a rebuilt filter
// out to peers (set-needs-update -> ping -> rebuild+filterload -> ping ->
// rerequest-or-mempool) is driven by package manager, which owns the peer
// sessions; this package only supplies the building blocks that protocol
// steps on.
package filtercontroller

import (
	"github.com/decred/slog"

	"github.com/ltcsuite/ltcspv/bloom"
	"github.com/ltcsuite/ltcspv/wallet"
)

// log is the package-level subsystem logger; callers wire a real backend
// via UseLogger. Defaults to a disabled logger so importing this package
// is silent by default.
var log = slog.Disabled

// UseLogger sets the subsystem logger used by package filtercontroller.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Gap limits and false-positive-rate targets. Bitcoin-family SPV wallets
// in this lineage use a 10/5 external/internal gap and a reduced target FP
// rate an order of magnitude below the default once enough of the wallet
// is known; there's no protocol reason these must match any particular
// wallet implementation's own gap limit, so a Wallet adapter is free to
// return fewer addresses than requested.
const (
	ExternalGap = 10
	InternalGap = 5

	DefaultFPRate = 0.0005
	ReducedFPRate = 0.00005

	// recentBlockWindow bounds how far back "confirmed within the last N
	// blocks" reaches when collecting transactions for the filter (Build).
	recentBlockWindow = 100

	// minFilterElements floors the Bloom element count so a freshly
	// created, near-empty wallet still gets a filter with a reasonable
	// false-positive rate rather than oversized bits-per-element.
	minFilterElements = 200
)

// Controller owns the Bloom filter and its false-positive analytics
// (spec §3 "filter_update_height, fp_rate, average_tx_per_block").
type Controller struct {
	filter            *bloom.Filter // nil means "update in flight"; callers must not dereference while nil
	fpRate            float64
	averageTxPerBlock float64
	updateHeight      int64
}

// New creates a Controller with no filter installed.
func New() *Controller {
	return &Controller{fpRate: ReducedFPRate}
}

// Filter returns the currently installed filter, or nil if an update is
// in flight. Inbound blocks must be discarded while this is nil (spec
// §4.2 case 2, §4.4 "While bloom_filter == null").
func (c *Controller) Filter() *bloom.Filter {
	return c.filter
}

// Clear marks a filter update as in flight; subsequent Filter() calls
// return nil until SetFilter installs the rebuilt filter.
func (c *Controller) Clear() {
	c.filter = nil
}

// SetFilter installs f as the current filter, completing an update cycle.
func (c *Controller) SetFilter(f *bloom.Filter, updateHeight int64) {
	c.filter = f
	c.updateHeight = updateHeight
}

// UpdateHeight returns the chain height the current filter was built at.
func (c *Controller) UpdateHeight() int64 {
	return c.updateHeight
}

// Build enumerates wallet addresses, UTXOs, and recently-relevant
// transactions into a new Bloom filter targeting ReducedFPRate, keyed by
// peerTweak so each peer sees a distinct filter (spec §4.4 Build).
//
// The element count fed to bloom.NewFilter counts every address, spare
// address, UTXO, and enumerated transaction as one element each. The
// source this behavior is grounded on passes a txCount that a comment
// there admits is "not the same as the number of spent wallet outputs" —
// an open approximation this implementation preserves rather than
// reverse-engineering a stricter accounting, since either choice only
// moves the realized false-positive rate, never correctness.
func Build(w wallet.Adapter, tipHeight int64, peerTweak uint32) *bloom.Filter {
	spareExt := w.UnusedAddresses(true, ExternalGap+100)
	spareInt := w.UnusedAddresses(false, InternalGap+100)
	addrs := w.AllAddresses()
	utxos := w.UTXOs()
	txs := w.TxsUnconfirmedOrWithinLastBlocks(tipHeight, recentBlockWindow)

	n := len(addrs) + len(spareExt) + len(spareInt) + len(utxos) + len(txs)
	if n < minFilterElements {
		n = minFilterElements
	}

	log.Debugf("filtercontroller: building filter with %d elements at height %d", n, tipHeight)
	f := bloom.NewFilter(uint32(n), peerTweak, ReducedFPRate, bloom.UpdateAll)
	for _, a := range addrs {
		f.Add(a[:])
	}
	for _, a := range spareExt {
		f.Add(a[:])
	}
	for _, a := range spareInt {
		f.Add(a[:])
	}
	for _, u := range utxos {
		f.AddOutPoint([32]byte(u.TxHash), u.Index)
	}
	for _, tx := range txs {
		for _, in := range tx.Inputs {
			f.Add(in[:])
		}
	}
	return f
}

// NeedsReactiveRebuild reports whether the next ExternalGap+InternalGap
// unused addresses are still all matched by f; if any is not, the caller
// must drop the filter and trigger an update (spec §4.4 "Reactive
// rebuild").
func NeedsReactiveRebuild(w wallet.Adapter, f *bloom.Filter) bool {
	if f == nil {
		return true
	}
	check := w.UnusedAddresses(true, ExternalGap)
	check = append(check, w.UnusedAddresses(false, InternalGap)...)
	for _, a := range check {
		if !f.Matches(a[:]) {
			return true
		}
	}
	return false
}

// RecordBlock updates the false-positive EWMAs from one merkle block
// delivered by the download peer: totalTx is the block's total_tx count,
// falsePositives is how many of its delivered tx hashes were not relevant
// to the wallet (spec §4.4 FP tracking).
func (c *Controller) RecordBlock(totalTx, falsePositives int) {
	c.averageTxPerBlock = 0.999*c.averageTxPerBlock + 0.001*float64(totalTx)
	if c.averageTxPerBlock <= 0 {
		return
	}
	c.fpRate = c.fpRate*(1-0.01*float64(totalTx)/c.averageTxPerBlock) +
		0.01*float64(falsePositives)/c.averageTxPerBlock
}

// FPRate returns the current false-positive EWMA.
func (c *Controller) FPRate() float64 {
	return c.fpRate
}

// AverageTxPerBlock returns the current average-tx-per-block EWMA.
func (c *Controller) AverageTxPerBlock() float64 {
	return c.averageTxPerBlock
}

// ShouldDisconnectForFPRate reports whether the realized false-positive
// rate has drifted far enough above DefaultFPRate to treat the peer as
// unreliable (spec §4.4: "fp_rate > DEFAULT_FP_RATE*10").
func (c *Controller) ShouldDisconnectForFPRate() bool {
	disconnect := c.fpRate > DefaultFPRate*10
	if disconnect {
		log.Warnf("filtercontroller: false-positive rate %.6f exceeds disconnect threshold", c.fpRate)
	}
	return disconnect
}

// ShouldTriggerUpdateFarFromTip reports whether the false-positive rate
// warrants a proactive filter rebuild while still far from the chain tip
// (spec §4.4: "fp_rate > REDUCED_FP_RATE*10").
func (c *Controller) ShouldTriggerUpdateFarFromTip() bool {
	return c.fpRate > ReducedFPRate*10
}

// ShouldRefreshOnDownloadPeerDuringMempoolLoad reports whether the
// download peer's filter should still be reloaded during the post-sync
// mempool phase, or may be skipped because its false-positive rate is
// already comfortably low (spec §4.5 loadMempools: "except download peer
// when fp_rate <= REDUCED_FP_RATE*5").
func (c *Controller) ShouldRefreshOnDownloadPeerDuringMempoolLoad() bool {
	return c.fpRate > ReducedFPRate*5
}
