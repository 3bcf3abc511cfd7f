// Copyright (c) 2026 The ltcspv developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestScheduleRunsAttemptAfterDelay(t *testing.T) {
	var mu sync.Mutex
	var ran bool
	start := time.Now()
	var elapsed time.Duration
	done := make(chan struct{})

	cm := New(Config{})
	cm.Schedule(&ConnReq{}, 20*time.Millisecond, false, func(ctx context.Context) error {
		mu.Lock()
		ran = true
		elapsed = time.Since(start)
		mu.Unlock()
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("attempt never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	if !ran {
		t.Fatal("attempt did not run")
	}
	if elapsed < 20*time.Millisecond {
		t.Fatalf("attempt ran after %s, want >= 20ms", elapsed)
	}
}

func TestScheduleRetriesThenFails(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	done := make(chan struct{})

	cm := New(Config{
		RetryDuration: 10 * time.Millisecond,
		OnFailure: func(req *ConnReq, err error) {
			close(done)
		},
	})

	cm.Schedule(&ConnReq{}, 0, true, func(ctx context.Context) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("not ready")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnFailure was never called")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (initial + one retry)", attempts)
	}
}

func TestCancelBeforeDelayElapsesSuppressesAttempt(t *testing.T) {
	var mu sync.Mutex
	var ran bool

	cm := New(Config{})
	req := &ConnReq{}
	cm.Schedule(req, 50*time.Millisecond, false, func(ctx context.Context) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	})
	req.Cancel()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if ran {
		t.Fatal("canceled attempt ran")
	}
}
