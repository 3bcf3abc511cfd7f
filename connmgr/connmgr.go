// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package connmgr implements the delayed-reconnect primitive the session
// orchestrator (package manager) schedules after a peer drops without
// reaching the connect-failure ceiling (spec §4.5 "Otherwise schedule
// reconnect"). It knows nothing about peer sessions, addresses, or wire
// framing — peer wire framing is out of scope (spec §1) — it only owns
// "run this attempt after a delay, retry once more if it fails, and let
// the caller cancel it before it fires".
package connmgr

import (
	"context"
	"sync"
	"time"

	"github.com/decred/slog"
)

// log is the package-level subsystem logger; callers wire a real backend
// via UseLogger. Defaults to a disabled logger so importing this package
// is silent by default.
var log = slog.Disabled

// UseLogger sets the subsystem logger used by package connmgr.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Attempt is one reconnection attempt. A non-nil error means the attempt
// should be retried (if retries remain) rather than treated as terminal.
type Attempt func(ctx context.Context) error

// ConnReq tracks one scheduled attempt so it can be canceled before it
// runs, or between its initial try and its retry.
type ConnReq struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// Cancel aborts a pending or in-flight attempt for this request. Safe to
// call even if the attempt already completed.
func (c *ConnReq) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Config configures a ConnManager.
type Config struct {
	// RetryDuration is how long to wait before retrying a failed attempt.
	RetryDuration time.Duration

	// OnFailure is called when an attempt fails after its retry (if any)
	// is exhausted. It is not called when the caller cancels the request.
	OnFailure func(req *ConnReq, err error)
}

// ConnManager schedules attempts after a delay and retries failures once
// on a timer, entirely off the caller's goroutine.
type ConnManager struct {
	cfg Config
}

// New creates a ConnManager. A non-positive RetryDuration defaults to ten
// seconds.
func New(cfg Config) *ConnManager {
	if cfg.RetryDuration <= 0 {
		cfg.RetryDuration = 10 * time.Second
	}
	return &ConnManager{cfg: cfg}
}

// Schedule runs attempt in the background after delay elapses. If retry is
// true and the attempt fails, it is retried once after RetryDuration
// before giving up and calling OnFailure; callers that want indefinite
// reconnection (spec §4.5) call Schedule again from OnFailure.
func (cm *ConnManager) Schedule(req *ConnReq, delay time.Duration, retry bool, attempt Attempt) {
	ctx, cancel := context.WithCancel(context.Background())
	req.mu.Lock()
	req.cancel = cancel
	req.mu.Unlock()

	go cm.run(ctx, req, delay, retry, attempt)
}

func (cm *ConnManager) run(ctx context.Context, req *ConnReq, delay time.Duration, retry bool, attempt Attempt) {
	if delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	err := attempt(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	if !retry {
		log.Debugf("connmgr: attempt failed, no retry scheduled: %v", err)
		if cm.cfg.OnFailure != nil {
			cm.cfg.OnFailure(req, err)
		}
		return
	}
	log.Debugf("connmgr: attempt failed, retrying in %s: %v", cm.cfg.RetryDuration, err)

	select {
	case <-ctx.Done():
		return
	case <-time.After(cm.cfg.RetryDuration):
	}

	if err := attempt(ctx); err != nil && ctx.Err() == nil {
		log.Debugf("connmgr: retry failed: %v", err)
		if cm.cfg.OnFailure != nil {
			cm.cfg.OnFailure(req, err)
		}
	}
}
