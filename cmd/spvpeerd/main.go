// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command spvpeerd is a reference daemon wiring the ltcspv manager to a
// goleveldb-backed persistence layer and the DNS-seeded peer registry. It
// demonstrates how a host process assembles the pieces package manager
// depends on; it does not itself implement Bitcoin/Litecoin wire framing
// (spec §1 Non-goal), so dialTransport's Send* methods are stubs a real
// deployment replaces with an actual wire codec.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ltcsuite/ltcspv/addrmgr"
	"github.com/ltcsuite/ltcspv/chaincfg"
	"github.com/ltcsuite/ltcspv/manager"
	"github.com/ltcsuite/ltcspv/peer"
	"github.com/ltcsuite/ltcspv/store"
	"github.com/ltcsuite/ltcspv/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "spvpeerd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg.LogLevel)

	params := chaincfg.MainNetParams()
	if cfg.TestNet {
		params = chaincfg.TestNetParams()
	}

	db, err := store.Open(filepath.Join(cfg.DataDir, "chain.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	blocks, err := db.LoadBlocks()
	if err != nil {
		return fmt.Errorf("loading persisted blocks: %w", err)
	}
	peers, err := db.LoadPeers()
	if err != nil {
		return fmt.Errorf("loading persisted peers: %w", err)
	}

	w := wallet.NewMemory()

	mgr, err := manager.New(manager.Config{
		Params:             params,
		Wallet:             w,
		EarliestKeyTime:    cfg.EarliestKeyTime,
		Blocks:             blocks,
		Peers:              peers,
		Dial:               dialPeer,
		Resolver:           addrmgr.NetResolver{},
		Rand:               rand.New(rand.NewSource(time.Now().UnixNano())),
		PeerMaxConnections: cfg.MaxPeers,
	})
	if err != nil {
		return fmt.Errorf("constructing manager: %w", err)
	}

	mgr.SetCallbacks(manager.Callbacks{
		SyncStarted:        func() { log.Infof("spvpeerd: sync started") },
		SyncSucceeded:      func() { log.Infof("spvpeerd: sync complete") },
		SyncFailed:         func(err error) { log.Errorf("spvpeerd: sync failed: %v", err) },
		SaveBlocks:         db.SaveBlocks,
		SavePeers:          db.SavePeers,
		NetworkIsReachable: func() bool { return true },
	})

	mgr.Connect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("spvpeerd: shutting down")
	mgr.Disconnect()
	return nil
}

// dialPeer is the manager.Dialer passed into Config. It dials the TCP
// address and wraps it in a peer.Peer; actual protocol framing is left to
// dialTransport's documented stub (see transport.go).
func dialPeer(addr *addrmgr.NetAddress, callbacks peer.Callbacks) (peer.Session, error) {
	hostPort := fmt.Sprintf("%s:%d", addr.IP.String(), addr.Port)
	transport, err := dial(hostPort, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return peer.New(addr.IP.String(), addr.Port, transport, callbacks), nil
}
