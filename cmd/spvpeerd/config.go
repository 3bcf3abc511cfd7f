// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname  = "data"
	defaultConfigFile   = "spvpeerd.conf"
	defaultLogLevel     = "info"
	defaultMaxPeers     = 3
	defaultEarliestTime = 1486949366 // Same value as the testnet4 genesis timestamp.
)

// config defines the daemon's command-line and config-file options,
// mirroring the teacher's root config struct / go-flags tag convention.
type config struct {
	DataDir         string `short:"b" long:"datadir" description:"Directory to store data"`
	ConfigFile      string `short:"C" long:"configfile" description:"Path to configuration file"`
	TestNet         bool   `long:"testnet" description:"Use the test network"`
	LogLevel        string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	MaxPeers        int    `long:"maxpeers" description:"Max number of outbound peer connections"`
	EarliestKeyTime int64  `long:"earliestkeytime" description:"Unix time before which the wallet has no keys; used to pick a sync start point"`
}

func defaultConfig() config {
	return config{
		DataDir:         defaultDataDir(),
		LogLevel:        defaultLogLevel,
		MaxPeers:        defaultMaxPeers,
		EarliestKeyTime: defaultEarliestTime,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirname
	}
	return filepath.Join(home, ".spvpeerd", defaultDataDirname)
}

// loadConfig parses command-line flags over the defaults; it does not read
// a config file from disk (spec Non-goal: this is a reference daemon, not
// a full deployment tool), but keeps the ConfigFile flag for symmetry with
// the teacher's invocation.
func loadConfig() (*config, error) {
	cfg := defaultConfig()
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("config: creating data directory: %w", err)
	}
	return &cfg, nil
}
