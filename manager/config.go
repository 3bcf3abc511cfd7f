// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package manager

import (
	"time"

	"github.com/decred/dcrd/dcrutil/v4"

	"github.com/ltcsuite/ltcspv/addrmgr"
	"github.com/ltcsuite/ltcspv/blockstore"
	"github.com/ltcsuite/ltcspv/chain"
	"github.com/ltcsuite/ltcspv/chaincfg"
	"github.com/ltcsuite/ltcspv/peer"
	"github.com/ltcsuite/ltcspv/wallet"
)

// Default tunables (§4.1, §4.5, §4.7, §5, §7).
const (
	DefaultPeerMaxConnections = 3
	DefaultMaxConnectFailures = 20
	DefaultProtocolTimeout    = 20 * time.Second
	DefaultFeePerKb           = dcrutil.Amount(1000)
	MaxFeePerKb               = dcrutil.Amount(1000000)

	// DefaultReconnectDelay is how long the orchestrator waits before
	// retrying connectLocked after a non-terminal peer disconnect (spec
	// §4.5 "Otherwise schedule reconnect"). The spec names the behavior
	// but not a duration; this mirrors ProtocolTimeout's order of
	// magnitude so a churning peer doesn't spin the dial loop.
	DefaultReconnectDelay = 10 * time.Second

	// misbehaveClearThreshold is the cumulative misbehaving-peer count that
	// forces a registry clear (§4.5, §7).
	misbehaveClearThreshold = 10
)

// Dialer constructs and begins connecting a peer session for addr,
// delivering events back through callbacks. The actual wire handshake and
// byte-level framing live outside this module (spec §1 Non-goal); Dialer is
// how the host plugs that in.
type Dialer func(addr *addrmgr.NetAddress, callbacks peer.Callbacks) (peer.Session, error)

// Callbacks is the host-facing event surface (spec §6 "set_callbacks").
type Callbacks struct {
	SyncStarted        func()
	SyncSucceeded      func()
	SyncFailed         func(err error)
	TxStatusUpdate     func()
	SaveBlocks         func(blocks []*blockstore.MerkleBlock, n int)
	SavePeers          func(peers []*addrmgr.NetAddress, n int)
	NetworkIsReachable func() bool
	ThreadCleanup      func()
}

// Config supplies everything New needs to build a Manager.
type Config struct {
	Params *chaincfg.Params
	Wallet wallet.Adapter

	// EarliestKeyTime is the wallet's birthday, used to pick a sync
	// starting point when no persisted chain state qualifies.
	EarliestKeyTime int64

	// Blocks is persisted chain state from a prior run (spec §6 "new").
	Blocks []*blockstore.MerkleBlock
	// Peers is a persisted peer registry snapshot from a prior run.
	Peers []*addrmgr.NetAddress

	Dial     Dialer
	Resolver addrmgr.Resolver
	Rand     addrmgr.RandSource

	// Verify overrides the difficulty verifier; nil selects
	// chain.DefaultVerifier.
	Verify chain.Verifier

	// OrphanBound overrides blockstore.DefaultOrphanBound.
	OrphanBound int

	PeerMaxConnections int
	MaxConnectFailures int
	ProtocolTimeout    time.Duration
	DefaultFeePerKb    dcrutil.Amount
	MaxFeePerKb        dcrutil.Amount

	// ReconnectDelay overrides DefaultReconnectDelay.
	ReconnectDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.PeerMaxConnections <= 0 {
		c.PeerMaxConnections = DefaultPeerMaxConnections
	}
	if c.MaxConnectFailures <= 0 {
		c.MaxConnectFailures = DefaultMaxConnectFailures
	}
	if c.ProtocolTimeout <= 0 {
		c.ProtocolTimeout = DefaultProtocolTimeout
	}
	if c.DefaultFeePerKb <= 0 {
		c.DefaultFeePerKb = DefaultFeePerKb
	}
	if c.MaxFeePerKb <= 0 {
		c.MaxFeePerKb = MaxFeePerKb
	}
	if c.OrphanBound <= 0 {
		c.OrphanBound = blockstore.DefaultOrphanBound
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
}
