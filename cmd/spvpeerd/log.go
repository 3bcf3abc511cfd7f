// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/decred/slog"

	"github.com/ltcsuite/ltcspv/addrmgr"
	"github.com/ltcsuite/ltcspv/chain"
	"github.com/ltcsuite/ltcspv/connmgr"
	"github.com/ltcsuite/ltcspv/filtercontroller"
	"github.com/ltcsuite/ltcspv/manager"
	"github.com/ltcsuite/ltcspv/peer"
	"github.com/ltcsuite/ltcspv/store"
)

// backend is the daemon's single logging backend; every subsystem logger
// is a tagged view onto it, matching the teacher's subsystem-logging setup
// in its root log.go.
var backend = slog.NewBackend(os.Stdout)

// log is the daemon's own subsystem logger, for messages that originate in
// main rather than in one of the library packages.
var log = backend.Logger("SPVD")

// initLogging wires each package's subsystem logger to backend and applies
// the configured level to all of them.
func initLogging(levelName string) {
	level, ok := slog.LevelFromString(levelName)
	if !ok {
		level = slog.LevelInfo
	}

	mgrLog := backend.Logger("MGR")
	chainLog := backend.Logger("CHAN")
	addrLog := backend.Logger("ADMR")
	peerLog := backend.Logger("PEER")
	filterLog := backend.Logger("FLTR")
	connLog := backend.Logger("CONN")
	storeLog := backend.Logger("STOR")

	manager.UseLogger(mgrLog)
	chain.UseLogger(chainLog)
	addrmgr.UseLogger(addrLog)
	peer.UseLogger(peerLog)
	filtercontroller.UseLogger(filterLog)
	connmgr.UseLogger(connLog)
	store.UseLogger(storeLog)

	for _, l := range []slog.Logger{mgrLog, chainLog, addrLog, peerLog, filterLog, connLog, storeLog, log} {
		l.SetLevel(level)
	}
}
